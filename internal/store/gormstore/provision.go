package gormstore

import (
	"context"
	"strings"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"gorm.io/gorm/clause"
)

// UpsertFloor creates the floor with the given number or renames the existing one.
func (store *Store) UpsertFloor(ctx context.Context, number int, name string) (parking.Floor, error) {
	model := Floor{Number: number, Name: strings.TrimSpace(name)}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "number"}},
			DoUpdates: clause.AssignmentColumns([]string{"name"}),
		}).
		Create(&model).Error
	if err != nil {
		return parking.Floor{}, wrapStoreError(errorSubjectFloor, errorCodeUpsert, classifyError(err))
	}
	var stored Floor
	if err := store.db.WithContext(ctx).Where("number = ?", number).Take(&stored).Error; err != nil {
		return parking.Floor{}, wrapStoreError(errorSubjectFloor, errorCodeGet, classifyError(err))
	}
	return parking.Floor{ID: stored.FloorID, Number: stored.Number, Name: stored.Name}, nil
}

// UpsertSpot creates a spot on the floor or updates the category of an
// existing one. The status of an existing spot is left untouched.
func (store *Store) UpsertSpot(ctx context.Context, floor parking.Floor, code string, category parking.SpotCategory) (parking.Spot, error) {
	trimmedCode := strings.TrimSpace(code)
	model := Spot{
		FloorID:  floor.ID,
		Code:     trimmedCode,
		Category: category.String(),
		Status:   parking.SpotAvailable.String(),
	}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "floor_id"}, {Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"category"}),
		}).
		Create(&model).Error
	if err != nil {
		return parking.Spot{}, wrapStoreError(errorSubjectSpot, errorCodeUpsert, classifyError(err))
	}
	var stored Spot
	err = store.db.WithContext(ctx).Where("floor_id = ? AND code = ?", floor.ID, trimmedCode).Take(&stored).Error
	if err != nil {
		return parking.Spot{}, wrapStoreError(errorSubjectSpot, errorCodeGet, classifyError(err))
	}
	spot, err := mapSpot(stored, floor.Number)
	if err != nil {
		return parking.Spot{}, wrapStoreError(errorSubjectSpot, errorCodeInvalid, err)
	}
	return spot, nil
}

// UpsertGate creates the named gate or updates its direction.
func (store *Store) UpsertGate(ctx context.Context, name string, direction parking.GateDirection) (parking.Gate, error) {
	trimmedName := strings.TrimSpace(name)
	model := Gate{Name: trimmedName, Direction: direction.String()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoUpdates: clause.AssignmentColumns([]string{"direction"}),
		}).
		Create(&model).Error
	if err != nil {
		return parking.Gate{}, wrapStoreError(errorSubjectGate, errorCodeUpsert, classifyError(err))
	}
	var stored Gate
	if err := store.db.WithContext(ctx).Where("name = ?", trimmedName).Take(&stored).Error; err != nil {
		return parking.Gate{}, wrapStoreError(errorSubjectGate, errorCodeGet, classifyError(err))
	}
	gate, err := mapGate(stored)
	if err != nil {
		return parking.Gate{}, wrapStoreError(errorSubjectGate, errorCodeInvalid, err)
	}
	return gate, nil
}

// AuditTrail returns the audit records written for one entity, oldest first.
func (store *Store) AuditTrail(ctx context.Context, entityType parking.AuditEntityType, entityID string) ([]parking.AuditRecord, error) {
	var rows []AuditLog
	err := store.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", string(entityType), entityID).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, wrapStoreError(errorSubjectAudit, errorCodeList, classifyError(err))
	}
	records := make([]parking.AuditRecord, 0, len(rows))
	for _, row := range rows {
		record, err := mapAuditLog(row)
		if err != nil {
			return nil, wrapStoreError(errorSubjectAudit, errorCodeInvalid, err)
		}
		records = append(records, record)
	}
	return records, nil
}
