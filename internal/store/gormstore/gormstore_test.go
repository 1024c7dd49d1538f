package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"github.com/glebarez/sqlite"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type storeFixture struct {
	store   *Store
	db      *gorm.DB
	floors  map[int]parking.Floor
	spots   map[string]parking.Spot
	entry   parking.Gate
	exit    parking.Gate
	context context.Context
}

func newStoreFixture(test *testing.T) *storeFixture {
	test.Helper()
	path := filepath.Join(test.TempDir(), "parking.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		test.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	test.Cleanup(func() { _ = sqlDB.Close() })
	if err := Migrate(db); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	ctx := context.Background()
	store := New(db, WithLockTimeout(time.Second))
	fixture := &storeFixture{
		store:   store,
		db:      db,
		floors:  map[int]parking.Floor{},
		spots:   map[string]parking.Spot{},
		context: ctx,
	}
	fixture.entry, err = store.UpsertGate(ctx, "G-IN-1", parking.GateEntry)
	if err != nil {
		test.Fatalf("upsert entry gate: %v", err)
	}
	fixture.exit, err = store.UpsertGate(ctx, "G-OUT-1", parking.GateExit)
	if err != nil {
		test.Fatalf("upsert exit gate: %v", err)
	}
	return fixture
}

func (fixture *storeFixture) addSpot(test *testing.T, floorNumber int, code string, category parking.SpotCategory) parking.Spot {
	test.Helper()
	floor, ok := fixture.floors[floorNumber]
	if !ok {
		var err error
		floor, err = fixture.store.UpsertFloor(fixture.context, floorNumber, fmt.Sprintf("Level %d", floorNumber))
		if err != nil {
			test.Fatalf("upsert floor: %v", err)
		}
		fixture.floors[floorNumber] = floor
	}
	spot, err := fixture.store.UpsertSpot(fixture.context, floor, code, category)
	if err != nil {
		test.Fatalf("upsert spot: %v", err)
	}
	fixture.spots[fmt.Sprintf("%d/%s", floorNumber, code)] = spot
	return spot
}

func (fixture *storeFixture) newService(test *testing.T, now func() time.Time) *parking.Service {
	test.Helper()
	settings := parking.DefaultPricingSettings()
	settings.Location = time.UTC
	service, err := parking.NewService(fixture.store, parking.StaticSettings{Settings: settings}, now)
	if err != nil {
		test.Fatalf("service init failed: %v", err)
	}
	return service
}

func (fixture *storeFixture) countRows(test *testing.T, model interface{}, query string, args ...interface{}) int64 {
	test.Helper()
	var count int64
	statement := fixture.db.Model(model)
	if query != "" {
		statement = statement.Where(query, args...)
	}
	if err := statement.Count(&count).Error; err != nil {
		test.Fatalf("count rows: %v", err)
	}
	return count
}

func mustPlate(test *testing.T, raw string) parking.PlateNumber {
	test.Helper()
	plate, err := parking.NewPlateNumber(raw)
	if err != nil {
		test.Fatalf("invalid plate: %v", err)
	}
	return plate
}

func mustGateID(test *testing.T, raw string) parking.GateID {
	test.Helper()
	gateID, err := parking.NewGateID(raw)
	if err != nil {
		test.Fatalf("invalid gate id: %v", err)
	}
	return gateID
}

func TestServiceEntryExitOverSQLite(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	spot := fixture.addSpot(test, 1, "A1", parking.SpotCompact)
	fixture.addSpot(test, 2, "A1", parking.SpotCompact)

	entryTime := time.Date(2024, time.May, 2, 9, 0, 0, 0, time.UTC)
	now := entryTime
	service := fixture.newService(test, func() time.Time { return now })

	ticket, err := service.HandleEntry(fixture.context, parking.EntryRequest{
		Plate:    mustPlate(test, "ka01ab1234"),
		Category: parking.VehicleCar,
		GateID:   mustGateID(test, fixture.entry.ID),
	})
	if err != nil {
		test.Fatalf("entry failed: %v", err)
	}
	if ticket.SpotID != spot.ID || ticket.Spot.FloorNumber != 1 {
		test.Fatalf("expected floor 1 spot, got %+v", ticket.Spot)
	}
	if fixture.countRows(test, &Spot{}, "status = ?", "occupied") != 1 {
		test.Fatalf("expected one occupied spot")
	}
	if fixture.countRows(test, &AuditLog{}, "") != 2 {
		test.Fatalf("expected two audit rows after entry")
	}

	now = entryTime.Add(125 * time.Minute)
	receipt, err := service.HandleExit(fixture.context, parking.ExitRequest{
		TicketNumber: ticket.Number,
		GateID:       mustGateID(test, "G-OUT-1"),
		Method:       parking.PaymentCash,
	})
	if err != nil {
		test.Fatalf("exit failed: %v", err)
	}
	if receipt.Payment.AmountCents != 12000 {
		test.Fatalf("expected 12000 cents, got %d", receipt.Payment.AmountCents)
	}
	if fixture.countRows(test, &AuditLog{}, "") != 5 {
		test.Fatalf("expected five audit rows after exit")
	}
	if fixture.countRows(test, &Spot{}, "status = ?", "available") != 2 {
		test.Fatalf("expected both spots available after exit")
	}

	var stored Ticket
	if err := fixture.db.Where("ticket_number = ?", ticket.Number.String()).Take(&stored).Error; err != nil {
		test.Fatalf("load ticket: %v", err)
	}
	if stored.Status != "completed" || stored.AmountCents == nil || *stored.AmountCents != 12000 || stored.ExitGateID == nil || *stored.ExitGateID != fixture.exit.ID {
		test.Fatalf("unexpected stored ticket: %+v", stored)
	}
	if stored.DurationMinutes == nil || *stored.DurationMinutes != 125 {
		test.Fatalf("unexpected duration: %v", stored.DurationMinutes)
	}

	var payment Payment
	if err := fixture.db.Where("ticket_id = ?", stored.TicketID).Take(&payment).Error; err != nil {
		test.Fatalf("load payment: %v", err)
	}
	var breakdown map[string]interface{}
	if err := json.Unmarshal(payment.Breakdown, &breakdown); err != nil {
		test.Fatalf("decode breakdown: %v", err)
	}
	if breakdown["totalAmount"] != 120.0 || breakdown["billableHours"] != 3.0 {
		test.Fatalf("unexpected breakdown: %s", payment.Breakdown)
	}

	trail, err := fixture.store.AuditTrail(fixture.context, parking.AuditEntitySpot, spot.ID)
	if err != nil {
		test.Fatalf("audit trail: %v", err)
	}
	if len(trail) != 2 || trail[0].Action != parking.EventSpotOccupied || trail[1].Action != parking.EventSpotReleased {
		test.Fatalf("unexpected spot audit trail: %+v", trail)
	}
	if trail[1].Metadata["ticketNumber"] != ticket.Number.String() {
		test.Fatalf("expected ticket number in release metadata, got %+v", trail[1].Metadata)
	}

	_, err = service.HandleExit(fixture.context, parking.ExitRequest{
		TicketNumber: ticket.Number,
		GateID:       mustGateID(test, "G-OUT-1"),
		Method:       parking.PaymentCash,
	})
	if !errors.Is(err, parking.ErrTicketNotActive) {
		test.Fatalf("expected ticket not active, got %v", err)
	}
	if fixture.countRows(test, &Payment{}, "") != 1 {
		test.Fatalf("expected a single payment row")
	}
}

func TestConcurrentEntriesForOnePlate(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	for index := 0; index < 4; index++ {
		fixture.addSpot(test, 1, fmt.Sprintf("C%d", index), parking.SpotCompact)
	}
	service := fixture.newService(test, time.Now)

	const attempts = 8
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		successes int
		conflicts int
		others    []error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			_, err := service.HandleEntry(context.Background(), parking.EntryRequest{
				Plate:    mustPlate(test, "MH12XY9999"),
				Category: parking.VehicleCar,
				GateID:   mustGateID(test, "G-IN-1"),
			})
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, parking.ErrConflict):
				conflicts++
			default:
				others = append(others, err)
			}
		}()
	}
	waitGroup.Wait()
	if len(others) != 0 {
		test.Fatalf("unexpected errors: %v", others)
	}
	if successes != 1 || conflicts != attempts-1 {
		test.Fatalf("expected 1 success and %d conflicts, got %d/%d", attempts-1, successes, conflicts)
	}
	if fixture.countRows(test, &Ticket{}, "status = ?", "active") != 1 {
		test.Fatalf("expected exactly one active ticket")
	}
	if fixture.countRows(test, &Vehicle{}, "") != 1 {
		test.Fatalf("expected exactly one vehicle row")
	}
}

func TestConcurrentEntriesNeverExceedAvailableSpots(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	fixture.addSpot(test, 1, "L1", parking.SpotLarge)
	fixture.addSpot(test, 1, "L2", parking.SpotLarge)
	fixture.addSpot(test, 2, "L1", parking.SpotLarge)
	fixture.addSpot(test, 1, "C1", parking.SpotCompact)
	service := fixture.newService(test, time.Now)

	const attempts = 10
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		spotIDs   = map[string]int{}
		denied    int
		others    []error
	)
	for attempt := 0; attempt < attempts; attempt++ {
		waitGroup.Add(1)
		go func(attempt int) {
			defer waitGroup.Done()
			ticket, err := service.HandleEntry(context.Background(), parking.EntryRequest{
				Plate:    mustPlate(test, fmt.Sprintf("TRUCK%02d", attempt)),
				Category: parking.VehicleTruck,
				GateID:   mustGateID(test, "G-IN-1"),
			})
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				spotIDs[ticket.SpotID]++
			case errors.Is(err, parking.ErrAdmissionDenied):
				denied++
			default:
				others = append(others, err)
			}
		}(attempt)
	}
	waitGroup.Wait()
	if len(others) != 0 {
		test.Fatalf("unexpected errors: %v", others)
	}
	if len(spotIDs) != 3 || denied != attempts-3 {
		test.Fatalf("expected 3 distinct large spots and %d denials, got %v / %d", attempts-3, spotIDs, denied)
	}
	for spotID, count := range spotIDs {
		if count != 1 {
			test.Fatalf("spot %s allocated %d times", spotID, count)
		}
	}
	if fixture.countRows(test, &Spot{}, "status = ? AND category = ?", "occupied", "large") != 3 {
		test.Fatalf("expected three occupied large spots")
	}
	if fixture.countRows(test, &Spot{}, "status = ? AND category = ?", "available", "compact") != 1 {
		test.Fatalf("expected compact spot untouched by trucks")
	}
}

func TestListSpotCandidatesOrderingAndKeyset(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	fixture.addSpot(test, 2, "A1", parking.SpotCompact)
	fixture.addSpot(test, 1, "B1", parking.SpotLarge)
	fixture.addSpot(test, 1, "A2", parking.SpotCompact)
	fixture.addSpot(test, 1, "H1", parking.SpotHandicapped)
	fixture.addSpot(test, 1, "K1", parking.SpotBike)

	query := parking.SpotCandidateQuery{
		Categories: []parking.SpotCategory{parking.SpotCompact, parking.SpotLarge},
		Limit:      2,
	}
	first, err := fixture.store.ListSpotCandidates(fixture.context, query)
	if err != nil {
		test.Fatalf("list candidates: %v", err)
	}
	if len(first) != 2 || first[0].Code != "A2" || first[1].Code != "B1" || first[0].FloorNumber != 1 {
		test.Fatalf("unexpected first page: %+v", first)
	}
	query.After = &parking.SpotCursor{FloorNumber: first[1].FloorNumber, Code: first[1].Code}
	second, err := fixture.store.ListSpotCandidates(fixture.context, query)
	if err != nil {
		test.Fatalf("list candidates: %v", err)
	}
	if len(second) != 1 || second[0].FloorNumber != 2 || second[0].Code != "A1" {
		test.Fatalf("unexpected second page: %+v", second)
	}
}

func TestSpotStatusCompareAndSet(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	spot := fixture.addSpot(test, 1, "A1", parking.SpotCompact)

	err := fixture.store.UpdateSpotStatus(fixture.context, spot.ID, parking.SpotAvailable, parking.SpotOccupied)
	if err != nil {
		test.Fatalf("first update failed: %v", err)
	}
	err = fixture.store.UpdateSpotStatus(fixture.context, spot.ID, parking.SpotAvailable, parking.SpotOccupied)
	if !errors.Is(err, parking.ErrSpotStatusChanged) {
		test.Fatalf("expected stale compare-and-set to fail, got %v", err)
	}
	locked, err := fixture.store.LockSpot(fixture.context, spot.ID, parking.LockModeNoWait)
	if err != nil {
		test.Fatalf("lock spot: %v", err)
	}
	if locked.Status != parking.SpotOccupied || locked.FloorNumber != 1 {
		test.Fatalf("unexpected locked spot: %+v", locked)
	}
	if _, err := fixture.store.LockSpot(fixture.context, "not-a-uuid", parking.LockModeWait); !errors.Is(err, parking.ErrSpotNotFound) {
		test.Fatalf("expected spot not found, got %v", err)
	}
	if _, err := fixture.store.LockSpot(fixture.context, "7f2c1a8e-0000-4000-8000-000000000000", parking.LockModeSkipLocked); !errors.Is(err, parking.ErrSpotNotFound) {
		test.Fatalf("expected spot not found for unknown id, got %v", err)
	}
}

func TestTicketConstraints(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	spot := fixture.addSpot(test, 1, "A1", parking.SpotCompact)
	vehicle, err := fixture.store.LockOrCreateVehicle(fixture.context, mustPlate(test, "DL01"), parking.VehicleCar)
	if err != nil {
		test.Fatalf("create vehicle: %v", err)
	}
	again, err := fixture.store.LockOrCreateVehicle(fixture.context, mustPlate(test, "DL01"), parking.VehicleTruck)
	if err != nil {
		test.Fatalf("lock vehicle: %v", err)
	}
	if again.ID != vehicle.ID || again.Category != parking.VehicleCar {
		test.Fatalf("expected existing vehicle with original category, got %+v", again)
	}

	number, _ := parking.NewTicketNumber("TKT-C-1-AAAA")
	ticket, err := fixture.store.CreateTicket(fixture.context, parking.Ticket{
		Number:      number,
		VehicleID:   vehicle.ID,
		SpotID:      spot.ID,
		EntryGateID: fixture.entry.ID,
		EntryTime:   time.Now(),
		Status:      parking.TicketActive,
	})
	if err != nil {
		test.Fatalf("create ticket: %v", err)
	}
	active, err := fixture.store.HasActiveTicket(fixture.context, vehicle.ID)
	if err != nil || !active {
		test.Fatalf("expected active ticket, got %v %v", active, err)
	}

	otherNumber, _ := parking.NewTicketNumber("TKT-C-1-BBBB")
	_, err = fixture.store.CreateTicket(fixture.context, parking.Ticket{
		Number:      otherNumber,
		VehicleID:   vehicle.ID,
		SpotID:      spot.ID,
		EntryGateID: fixture.entry.ID,
		EntryTime:   time.Now(),
		Status:      parking.TicketActive,
	})
	if !errors.Is(err, parking.ErrVehicleHasActiveTicket) {
		test.Fatalf("expected partial unique index to reject second active ticket, got %v", err)
	}

	secondVehicle, err := fixture.store.LockOrCreateVehicle(fixture.context, mustPlate(test, "DL02"), parking.VehicleCar)
	if err != nil {
		test.Fatalf("create vehicle: %v", err)
	}
	_, err = fixture.store.CreateTicket(fixture.context, parking.Ticket{
		Number:      number,
		VehicleID:   secondVehicle.ID,
		SpotID:      spot.ID,
		EntryGateID: fixture.entry.ID,
		EntryTime:   time.Now(),
		Status:      parking.TicketActive,
	})
	if !errors.Is(err, parking.ErrDuplicateTicketNumber) || !errors.Is(err, parking.ErrConflict) {
		test.Fatalf("expected duplicate ticket number, got %v", err)
	}

	completion := parking.TicketCompletion{
		TicketID:        ticket.ID,
		ExitGateID:      fixture.exit.ID,
		ExitTime:        time.Now(),
		DurationMinutes: 30,
		AmountCents:     4000,
	}
	if err := fixture.store.CompleteTicket(fixture.context, completion); err != nil {
		test.Fatalf("complete ticket: %v", err)
	}
	if err := fixture.store.CompleteTicket(fixture.context, completion); !errors.Is(err, parking.ErrTicketNotActive) {
		test.Fatalf("expected second completion to fail, got %v", err)
	}

	_, err = fixture.store.CreateTicket(fixture.context, parking.Ticket{
		Number:      otherNumber,
		VehicleID:   vehicle.ID,
		SpotID:      spot.ID,
		EntryGateID: fixture.entry.ID,
		EntryTime:   time.Now(),
		Status:      parking.TicketActive,
	})
	if err != nil {
		test.Fatalf("expected new active ticket after completion, got %v", err)
	}

	payment := parking.Payment{
		TicketID:    ticket.ID,
		AmountCents: 4000,
		PaidAt:      time.Now(),
		Method:      parking.PaymentUPI,
		Status:      parking.PaymentSucceeded,
		Breakdown:   parking.FareBreakdown{DurationMinutes: 30, BillableHours: 1, BaseRateCents: 4000, TotalCents: 4000},
	}
	created, err := fixture.store.CreatePayment(fixture.context, payment)
	if err != nil {
		test.Fatalf("create payment: %v", err)
	}
	if created.ID == "" || created.Breakdown.TotalCents != 4000 || created.Method != parking.PaymentUPI {
		test.Fatalf("unexpected payment: %+v", created)
	}
	if _, err := fixture.store.CreatePayment(fixture.context, payment); !errors.Is(err, parking.ErrPaymentExists) {
		test.Fatalf("expected duplicate payment rejection, got %v", err)
	}
}

func TestWithTxRollsBackOnError(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	spot := fixture.addSpot(test, 1, "A1", parking.SpotCompact)
	failure := errors.New("abort")

	err := fixture.store.WithTx(fixture.context, func(ctx context.Context, txStore parking.Store) error {
		if err := txStore.UpdateSpotStatus(ctx, spot.ID, parking.SpotAvailable, parking.SpotOccupied); err != nil {
			return err
		}
		record, err := parking.NewAuditRecord(parking.AuditEntitySpot, spot.ID, parking.EventSpotOccupied, nil, nil, parking.ActorID{}, nil, time.Now())
		if err != nil {
			return err
		}
		if err := txStore.AppendAuditRecords(ctx, []parking.AuditRecord{record}); err != nil {
			return err
		}
		return txStore.WithTx(ctx, func(ctx context.Context, nested parking.Store) error {
			return failure
		})
	})
	if !errors.Is(err, failure) {
		test.Fatalf("expected callback error, got %v", err)
	}
	if fixture.countRows(test, &Spot{}, "status = ?", "available") != 1 {
		test.Fatalf("expected spot status rolled back")
	}
	if fixture.countRows(test, &AuditLog{}, "") != 0 {
		test.Fatalf("expected audit rows rolled back")
	}
}

func TestGetGateByIDOrName(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	byName, err := fixture.store.GetGate(fixture.context, mustGateID(test, "G-OUT-1"))
	if err != nil {
		test.Fatalf("get by name: %v", err)
	}
	byID, err := fixture.store.GetGate(fixture.context, mustGateID(test, fixture.exit.ID))
	if err != nil {
		test.Fatalf("get by id: %v", err)
	}
	if byName != byID || byID.Direction != parking.GateExit {
		test.Fatalf("expected same exit gate, got %+v / %+v", byName, byID)
	}
	if _, err := fixture.store.GetGate(fixture.context, mustGateID(test, "G-MISSING")); !errors.Is(err, parking.ErrGateNotFound) {
		test.Fatalf("expected gate not found, got %v", err)
	}
}

func TestUpsertsAreIdempotent(test *testing.T) {
	test.Parallel()
	fixture := newStoreFixture(test)
	spot := fixture.addSpot(test, 1, "A1", parking.SpotCompact)
	if err := fixture.store.UpdateSpotStatus(fixture.context, spot.ID, parking.SpotAvailable, parking.SpotOutOfService); err != nil {
		test.Fatalf("update status: %v", err)
	}
	again, err := fixture.store.UpsertSpot(fixture.context, fixture.floors[1], "A1", parking.SpotLarge)
	if err != nil {
		test.Fatalf("upsert spot again: %v", err)
	}
	if again.ID != spot.ID || again.Category != parking.SpotLarge || again.Status != parking.SpotOutOfService {
		test.Fatalf("expected same spot with new category and preserved status, got %+v", again)
	}
	floor, err := fixture.store.UpsertFloor(fixture.context, 1, "Ground")
	if err != nil {
		test.Fatalf("upsert floor again: %v", err)
	}
	if floor.ID != fixture.floors[1].ID || floor.Name != "Ground" {
		test.Fatalf("expected renamed floor, got %+v", floor)
	}
	gate, err := fixture.store.UpsertGate(fixture.context, "G-IN-1", parking.GateEntry)
	if err != nil || gate.ID != fixture.entry.ID {
		test.Fatalf("expected same gate, got %+v %v", gate, err)
	}
	if fixture.countRows(test, &Spot{}, "") != 1 || fixture.countRows(test, &Gate{}, "") != 2 {
		test.Fatalf("expected no duplicate rows")
	}
}

func TestErrorClassification(test *testing.T) {
	test.Parallel()
	testCases := []struct {
		name      string
		err       error
		transient bool
		unique    bool
	}{
		{name: "lock not available", err: &pgconn.PgError{Code: "55P03"}, transient: true},
		{name: "deadlock", err: &pgconn.PgError{Code: "40P01"}, transient: true},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, transient: true},
		{name: "unique violation", err: &pgconn.PgError{Code: "23505", ConstraintName: "idx_tickets_ticket_number"}, unique: true},
		{name: "gorm duplicate", err: gorm.ErrDuplicatedKey, unique: true},
		{name: "plain", err: errors.New("boom")},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			classified := classifyError(fmt.Errorf("wrapped: %w", testCase.err))
			if parking.IsRetryable(classified) != testCase.transient {
				test.Fatalf("expected transient=%v for %v", testCase.transient, testCase.err)
			}
			if _, unique := uniqueViolation(testCase.err); unique != testCase.unique {
				test.Fatalf("expected unique=%v for %v", testCase.unique, testCase.err)
			}
		})
	}
}

func TestLockFailureReportsNoWaitConflicts(test *testing.T) {
	test.Parallel()
	lockNotAvailable := fmt.Errorf("lock spot: %w", &pgconn.PgError{Code: "55P03"})
	testCases := []struct {
		name        string
		mode        parking.LockMode
		err         error
		unavailable bool
		retryable   bool
	}{
		{name: "nowait conflict", mode: parking.LockModeNoWait, err: lockNotAvailable, unavailable: true, retryable: true},
		{name: "wait timeout", mode: parking.LockModeWait, err: lockNotAvailable, retryable: true},
		{name: "nowait deadlock", mode: parking.LockModeNoWait, err: &pgconn.PgError{Code: "40P01"}, retryable: true},
		{name: "nowait plain", mode: parking.LockModeNoWait, err: errors.New("boom")},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			mapped := lockFailure(testCase.mode, testCase.err)
			if errors.Is(mapped, parking.ErrLockUnavailable) != testCase.unavailable {
				test.Fatalf("expected unavailable=%v, got %v", testCase.unavailable, mapped)
			}
			if parking.IsRetryable(mapped) != testCase.retryable {
				test.Fatalf("expected retryable=%v, got %v", testCase.retryable, mapped)
			}
		})
	}
}
