package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	dialectPostgres          = "postgres"
	pgUniqueViolationCode    = "23505"
	pgLockNotAvailableCode   = "55P03"
	pgDeadlockDetectedCode   = "40P01"
	pgSerializationFailCode  = "40001"
	sqliteConstraintCode     = 19
	sqliteBusyCode           = 5
	sqliteLockedCode         = 6
	sqlitePrimaryCodeMask    = 0xFF
	lockStrengthUpdate       = "UPDATE"
	lockOptionSkipLocked     = "SKIP LOCKED"
	lockOptionNoWait         = "NOWAIT"
	columnTicketNumber       = "ticket_number"
	errorOperationStore      = "store"
	errorSubjectTransaction  = "transaction"
	errorSubjectGate         = "gate"
	errorSubjectVehicle      = "vehicle"
	errorSubjectSpot         = "spot"
	errorSubjectTicket       = "ticket"
	errorSubjectPayment      = "payment"
	errorSubjectAudit        = "audit"
	errorSubjectFloor        = "floor"
	errorCodeCommit          = "commit"
	errorCodeCount           = "count"
	errorCodeCreate          = "create"
	errorCodeDuplicate       = "duplicate"
	errorCodeGet             = "get"
	errorCodeInvalid         = "invalid"
	errorCodeList            = "list"
	errorCodeLock            = "lock"
	errorCodeLookup          = "lookup"
	errorCodeUpdateStatus    = "update_status"
	errorCodeComplete        = "complete"
	errorCodeAppend          = "append"
	errorCodeEncode          = "encode"
	errorCodeUpsert          = "upsert"
	errorCodeLockTimeoutInit = "lock_timeout"
)

var pgTransientCodes = map[string]bool{
	pgLockNotAvailableCode:  true,
	pgDeadlockDetectedCode:  true,
	pgSerializationFailCode: true,
}

// Option configures a Store.
type Option func(*Store)

// WithLockTimeout bounds how long a transaction waits for a row lock on
// PostgreSQL. Expiry surfaces as a transient error.
func WithLockTimeout(timeout time.Duration) Option {
	return func(store *Store) {
		store.lockTimeout = timeout
	}
}

// Store implements parking.Store using GORM.
type Store struct {
	db          *gorm.DB
	lockTimeout time.Duration
	inTx        bool
}

// New returns a Store backed by gorm.DB.
func New(db *gorm.DB, options ...Option) *Store {
	store := &Store{db: db}
	for _, option := range options {
		if option != nil {
			option(store)
		}
	}
	return store
}

// WithTx executes fn within a transaction. Nested calls reuse the open transaction.
func (store *Store) WithTx(ctx context.Context, fn func(ctx context.Context, txStore parking.Store) error) error {
	if store.inTx {
		return fn(ctx, store)
	}
	var callbackErr error
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := store.applyLockTimeout(transaction); err != nil {
			return wrapStoreError(errorSubjectTransaction, errorCodeLockTimeoutInit, classifyError(err))
		}
		callbackErr = fn(ctx, &Store{db: transaction, lockTimeout: store.lockTimeout, inTx: true})
		return callbackErr
	})
	if err == nil || callbackErr != nil {
		return err
	}
	if isTransientError(err) {
		return wrapStoreError(errorSubjectTransaction, errorCodeCommit, parking.MarkTransient(err))
	}
	return err
}

func (store *Store) applyLockTimeout(transaction *gorm.DB) error {
	if store.lockTimeout <= 0 || transaction.Dialector.Name() != dialectPostgres {
		return nil
	}
	return transaction.Exec(fmt.Sprintf("SET LOCAL lock_timeout = %d", store.lockTimeout.Milliseconds())).Error
}

// GetGate resolves a gate by id, or by its unique name when the value is not a UUID.
func (store *Store) GetGate(ctx context.Context, gateID parking.GateID) (parking.Gate, error) {
	var model Gate
	query := store.db.WithContext(ctx)
	if isUUID(gateID.String()) {
		query = query.Where("gate_id = ?", gateID.String())
	} else {
		query = query.Where("name = ?", gateID.String())
	}
	err := query.Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.Gate{}, wrapStoreError(errorSubjectGate, errorCodeGet, parking.ErrGateNotFound)
		}
		return parking.Gate{}, wrapStoreError(errorSubjectGate, errorCodeGet, classifyError(err))
	}
	gate, err := mapGate(model)
	if err != nil {
		return parking.Gate{}, wrapStoreError(errorSubjectGate, errorCodeInvalid, err)
	}
	return gate, nil
}

// LockOrCreateVehicle inserts the plate if it is new, then locks its row so
// concurrent entries for one plate serialize.
func (store *Store) LockOrCreateVehicle(ctx context.Context, plate parking.PlateNumber, category parking.VehicleCategory) (parking.Vehicle, error) {
	candidate := Vehicle{PlateNumber: plate.String(), Category: category.String()}
	err := store.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "plate_number"}},
			DoNothing: true,
		}).
		Create(&candidate).Error
	if err != nil {
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeCreate, classifyError(err))
	}
	var model Vehicle
	err = store.db.WithContext(ctx).
		Clauses(lockingClause(parking.LockModeWait)).
		Where("plate_number = ?", plate.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeLock, parking.ErrVehicleNotFound)
		}
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeLock, classifyError(err))
	}
	vehicle, err := mapVehicle(model)
	if err != nil {
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeInvalid, err)
	}
	return vehicle, nil
}

func (store *Store) GetVehicle(ctx context.Context, vehicleID string) (parking.Vehicle, error) {
	if !isUUID(vehicleID) {
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeGet, parking.ErrVehicleNotFound)
	}
	var model Vehicle
	err := store.db.WithContext(ctx).Where("vehicle_id = ?", vehicleID).Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeGet, parking.ErrVehicleNotFound)
		}
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeGet, classifyError(err))
	}
	vehicle, err := mapVehicle(model)
	if err != nil {
		return parking.Vehicle{}, wrapStoreError(errorSubjectVehicle, errorCodeInvalid, err)
	}
	return vehicle, nil
}

func (store *Store) HasActiveTicket(ctx context.Context, vehicleID string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).
		Model(&Ticket{}).
		Where("vehicle_id = ? AND status = ?", vehicleID, parking.TicketActive.String()).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectTicket, errorCodeLookup, classifyError(err))
	}
	return count > 0, nil
}

type spotRow struct {
	SpotID      string
	FloorID     string
	Code        string
	Category    string
	Status      string
	FloorNumber int
}

// ListSpotCandidates reads available spots of the given categories in floor
// number, code order without locking them.
func (store *Store) ListSpotCandidates(ctx context.Context, query parking.SpotCandidateQuery) ([]parking.Spot, error) {
	if len(query.Categories) == 0 {
		return nil, nil
	}
	categories := make([]string, 0, len(query.Categories))
	for _, category := range query.Categories {
		categories = append(categories, category.String())
	}
	statement := store.db.WithContext(ctx).
		Table("spots").
		Select("spots.spot_id, spots.floor_id, spots.code, spots.category, spots.status, floors.number AS floor_number").
		Joins("JOIN floors ON floors.floor_id = spots.floor_id").
		Where("spots.status = ?", parking.SpotAvailable.String()).
		Where("spots.category IN ?", categories)
	if query.After != nil {
		statement = statement.Where("(floors.number > ? OR (floors.number = ? AND spots.code > ?))",
			query.After.FloorNumber, query.After.FloorNumber, query.After.Code)
	}
	statement = statement.Order("floors.number ASC").Order("spots.code ASC")
	if query.Limit > 0 {
		statement = statement.Limit(query.Limit)
	}
	var rows []spotRow
	if err := statement.Scan(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectSpot, errorCodeList, classifyError(err))
	}
	spots := make([]parking.Spot, 0, len(rows))
	for _, row := range rows {
		spot, err := mapSpot(Spot{
			SpotID:   row.SpotID,
			FloorID:  row.FloorID,
			Code:     row.Code,
			Category: row.Category,
			Status:   row.Status,
		}, row.FloorNumber)
		if err != nil {
			return nil, wrapStoreError(errorSubjectSpot, errorCodeInvalid, err)
		}
		spots = append(spots, spot)
	}
	return spots, nil
}

// LockSpot locks one spot row. Only the spots row is locked; the floor number
// is read separately so floors never take row locks.
func (store *Store) LockSpot(ctx context.Context, spotID string, mode parking.LockMode) (parking.Spot, error) {
	if !isUUID(spotID) {
		return parking.Spot{}, wrapStoreError(errorSubjectSpot, errorCodeLock, parking.ErrSpotNotFound)
	}
	var model Spot
	err := store.db.WithContext(ctx).
		Clauses(lockingClause(mode)).
		Where("spot_id = ?", spotID).
		Take(&model).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.Spot{}, wrapStoreError(errorSubjectSpot, errorCodeLock, lockFailure(mode, err))
		}
		if mode == parking.LockModeSkipLocked {
			exists, existsErr := store.spotExists(ctx, spotID)
			if existsErr != nil {
				return parking.Spot{}, existsErr
			}
			if exists {
				return parking.Spot{}, wrapStoreError(errorSubjectSpot, errorCodeLock, parking.ErrSpotLocked)
			}
		}
		return parking.Spot{}, wrapStoreError(errorSubjectSpot, errorCodeLock, parking.ErrSpotNotFound)
	}
	var floor Floor
	if err := store.db.WithContext(ctx).Where("floor_id = ?", model.FloorID).Take(&floor).Error; err != nil {
		return parking.Spot{}, wrapStoreError(errorSubjectFloor, errorCodeGet, classifyError(err))
	}
	spot, err := mapSpot(model, floor.Number)
	if err != nil {
		return parking.Spot{}, wrapStoreError(errorSubjectSpot, errorCodeInvalid, err)
	}
	return spot, nil
}

func (store *Store) spotExists(ctx context.Context, spotID string) (bool, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&Spot{}).Where("spot_id = ?", spotID).Count(&count).Error
	if err != nil {
		return false, wrapStoreError(errorSubjectSpot, errorCodeLookup, classifyError(err))
	}
	return count > 0, nil
}

// UpdateSpotStatus is a compare-and-set on the current status.
func (store *Store) UpdateSpotStatus(ctx context.Context, spotID string, from, to parking.SpotStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Spot{}).
		Where("spot_id = ? AND status = ?", spotID, from.String()).
		Update("status", to.String())
	if result.Error != nil {
		return wrapStoreError(errorSubjectSpot, errorCodeUpdateStatus, classifyError(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectSpot, errorCodeUpdateStatus, parking.ErrSpotStatusChanged)
	}
	return nil
}

func (store *Store) CreateTicket(ctx context.Context, ticket parking.Ticket) (parking.Ticket, error) {
	model := Ticket{
		TicketNumber: ticket.Number.String(),
		VehicleID:    ticket.VehicleID,
		SpotID:       ticket.SpotID,
		EntryGateID:  ticket.EntryGateID,
		EntryTime:    ticket.EntryTime.UTC(),
		Status:       ticket.Status.String(),
	}
	err := store.db.WithContext(ctx).Create(&model).Error
	if hint, duplicate := uniqueViolation(err); duplicate {
		if strings.Contains(hint, columnTicketNumber) {
			return parking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeDuplicate, parking.ErrDuplicateTicketNumber)
		}
		return parking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeDuplicate, parking.ErrVehicleHasActiveTicket)
	}
	if err != nil {
		return parking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeCreate, classifyError(err))
	}
	created, err := mapTicket(model)
	if err != nil {
		return parking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeInvalid, err)
	}
	return created, nil
}

func (store *Store) LockTicketByNumber(ctx context.Context, number parking.TicketNumber) (parking.Ticket, error) {
	var model Ticket
	err := store.db.WithContext(ctx).
		Clauses(lockingClause(parking.LockModeWait)).
		Where("ticket_number = ?", number.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return parking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeLock, parking.ErrTicketNotFound)
		}
		return parking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeLock, classifyError(err))
	}
	ticket, err := mapTicket(model)
	if err != nil {
		return parking.Ticket{}, wrapStoreError(errorSubjectTicket, errorCodeInvalid, err)
	}
	return ticket, nil
}

// CompleteTicket moves an active ticket to completed exactly once.
func (store *Store) CompleteTicket(ctx context.Context, completion parking.TicketCompletion) error {
	result := store.db.WithContext(ctx).
		Model(&Ticket{}).
		Where("ticket_id = ? AND status = ?", completion.TicketID, parking.TicketActive.String()).
		Updates(map[string]interface{}{
			"status":           parking.TicketCompleted.String(),
			"exit_gate_id":     completion.ExitGateID,
			"exit_time":        completion.ExitTime.UTC(),
			"duration_minutes": completion.DurationMinutes,
			"amount_cents":     completion.AmountCents.Int64(),
		})
	if result.Error != nil {
		return wrapStoreError(errorSubjectTicket, errorCodeComplete, classifyError(result.Error))
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectTicket, errorCodeComplete, parking.ErrTicketNotActive)
	}
	return nil
}

func (store *Store) CreatePayment(ctx context.Context, payment parking.Payment) (parking.Payment, error) {
	breakdown, err := json.Marshal(payment.Breakdown)
	if err != nil {
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeEncode, err)
	}
	model := Payment{
		TicketID:    payment.TicketID,
		AmountCents: payment.AmountCents.Int64(),
		PaidAt:      payment.PaidAt.UTC(),
		Method:      payment.Method.String(),
		Status:      payment.Status.String(),
		Breakdown:   datatypes.JSON(breakdown),
	}
	err = store.db.WithContext(ctx).Create(&model).Error
	if _, duplicate := uniqueViolation(err); duplicate {
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeDuplicate, parking.ErrPaymentExists)
	}
	if err != nil {
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeCreate, classifyError(err))
	}
	created, err := mapPayment(model)
	if err != nil {
		return parking.Payment{}, wrapStoreError(errorSubjectPayment, errorCodeInvalid, err)
	}
	return created, nil
}

// AppendAuditRecords inserts audit rows in one statement. Audit rows are never
// updated or deleted.
func (store *Store) AppendAuditRecords(ctx context.Context, records []parking.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}
	models := make([]AuditLog, 0, len(records))
	for _, record := range records {
		model, err := newAuditLog(record)
		if err != nil {
			return wrapStoreError(errorSubjectAudit, errorCodeEncode, err)
		}
		models = append(models, model)
	}
	if err := store.db.WithContext(ctx).Create(&models).Error; err != nil {
		return wrapStoreError(errorSubjectAudit, errorCodeAppend, classifyError(err))
	}
	return nil
}

func (store *Store) CountTickets(ctx context.Context, status parking.TicketStatus) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&Ticket{}).Where("status = ?", status.String()).Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectTicket, errorCodeCount, classifyError(err))
	}
	return count, nil
}

func (store *Store) CountSpots(ctx context.Context) (int64, error) {
	var count int64
	if err := store.db.WithContext(ctx).Model(&Spot{}).Count(&count).Error; err != nil {
		return 0, wrapStoreError(errorSubjectSpot, errorCodeCount, classifyError(err))
	}
	return count, nil
}

func (store *Store) CountSpotsByStatus(ctx context.Context, status parking.SpotStatus) (int64, error) {
	var count int64
	err := store.db.WithContext(ctx).Model(&Spot{}).Where("status = ?", status.String()).Count(&count).Error
	if err != nil {
		return 0, wrapStoreError(errorSubjectSpot, errorCodeCount, classifyError(err))
	}
	return count, nil
}

func wrapStoreError(subject string, code string, err error) error {
	return parking.WrapError(errorOperationStore, subject, code, err)
}

func lockingClause(mode parking.LockMode) clause.Locking {
	locking := clause.Locking{Strength: lockStrengthUpdate}
	switch mode {
	case parking.LockModeSkipLocked:
		locking.Options = lockOptionSkipLocked
	case parking.LockModeNoWait:
		locking.Options = lockOptionNoWait
	}
	return locking
}

func isUUID(raw string) bool {
	_, err := uuid.Parse(raw)
	return err == nil
}

// lockFailure reports a NOWAIT lock conflict as ErrLockUnavailable.
func lockFailure(mode parking.LockMode, err error) error {
	var pgErr *pgconn.PgError
	if mode == parking.LockModeNoWait && errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailableCode {
		return fmt.Errorf("%w: %v", parking.ErrLockUnavailable, err)
	}
	return classifyError(err)
}

// classifyError tags lock timeouts, deadlocks, serialization failures and
// SQLite busy errors as transient.
func classifyError(err error) error {
	if isTransientError(err) {
		return parking.MarkTransient(err)
	}
	return err
}

func isTransientError(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgTransientCodes[pgErr.Code]
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code() & sqlitePrimaryCodeMask
		return code == sqliteBusyCode || code == sqliteLockedCode
	}
	return false
}

// uniqueViolation reports a unique-constraint failure with a hint naming the
// violated constraint or column.
func uniqueViolation(err error) (string, bool) {
	if err == nil {
		return "", false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolationCode {
			return "", false
		}
		return pgErr.ConstraintName + " " + pgErr.Detail, true
	}
	var sqliteErr *gosqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&sqlitePrimaryCodeMask != sqliteConstraintCode {
			return "", false
		}
		return sqliteErr.Error(), true
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return err.Error(), true
	}
	return "", false
}
