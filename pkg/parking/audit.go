package parking

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// AuditEntityType names the kind of entity an audit record describes.
type AuditEntityType string

const (
	AuditEntitySpot    AuditEntityType = "spot"
	AuditEntityTicket  AuditEntityType = "ticket"
	AuditEntityPayment AuditEntityType = "payment"
)

// AuditSnapshot is a JSON object describing entity state.
type AuditSnapshot map[string]any

// AuditRecord is an append-only description of one committed state change.
type AuditRecord struct {
	ID            string
	EntityType    AuditEntityType
	EntityID      string
	Action        string
	PreviousState AuditSnapshot
	NextState     AuditSnapshot
	ActorID       ActorID
	Metadata      AuditSnapshot
	CreatedAt     time.Time
}

// NewAuditRecord validates and builds an audit record.
func NewAuditRecord(entityType AuditEntityType, entityID string, action string, previousState AuditSnapshot, nextState AuditSnapshot, actorID ActorID, metadata AuditSnapshot, createdAt time.Time) (AuditRecord, error) {
	switch entityType {
	case AuditEntitySpot, AuditEntityTicket, AuditEntityPayment:
	default:
		return AuditRecord{}, fmt.Errorf("%w: unknown entity type %q", ErrInvalidAuditRecord, entityType)
	}
	if strings.TrimSpace(entityID) == "" {
		return AuditRecord{}, fmt.Errorf("%w: empty entity id", ErrInvalidAuditRecord)
	}
	if strings.TrimSpace(action) == "" {
		return AuditRecord{}, fmt.Errorf("%w: empty action", ErrInvalidAuditRecord)
	}
	if createdAt.IsZero() {
		return AuditRecord{}, fmt.Errorf("%w: missing timestamp", ErrInvalidAuditRecord)
	}
	return AuditRecord{
		EntityType:    entityType,
		EntityID:      entityID,
		Action:        action,
		PreviousState: previousState,
		NextState:     nextState,
		ActorID:       actorID,
		Metadata:      metadata,
		CreatedAt:     createdAt,
	}, nil
}

// MarshalSnapshot renders a snapshot as JSON; nil yields nil.
func MarshalSnapshot(snapshot AuditSnapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, nil
	}
	return json.Marshal(snapshot)
}

// UnmarshalSnapshot parses a stored snapshot; empty input yields nil.
func UnmarshalSnapshot(raw []byte) (AuditSnapshot, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var snapshot AuditSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAuditRecord, err)
	}
	return snapshot, nil
}

func spotSnapshot(status SpotStatus) AuditSnapshot {
	return AuditSnapshot{
		"status":     status.String(),
		"isOccupied": status == SpotOccupied,
	}
}

// auditBatch accumulates records for one transaction so they are appended together.
type auditBatch struct {
	actorID   ActorID
	createdAt time.Time
	records   []AuditRecord
}

func newAuditBatch(actorID ActorID, createdAt time.Time) *auditBatch {
	return &auditBatch{actorID: actorID, createdAt: createdAt}
}

func (batch *auditBatch) add(entityType AuditEntityType, entityID string, action string, previousState AuditSnapshot, nextState AuditSnapshot, metadata AuditSnapshot) error {
	record, err := NewAuditRecord(entityType, entityID, action, previousState, nextState, batch.actorID, metadata, batch.createdAt)
	if err != nil {
		return err
	}
	batch.records = append(batch.records, record)
	return nil
}
