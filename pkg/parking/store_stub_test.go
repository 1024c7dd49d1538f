package parking

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"
)

type memoryState struct {
	gates    map[string]Gate
	vehicles map[string]Vehicle
	spots    map[string]Spot
	tickets  map[string]Ticket
	payments map[string]Payment
	audit    []AuditRecord
	nextID   int
}

func newMemoryState() *memoryState {
	return &memoryState{
		gates:    map[string]Gate{},
		vehicles: map[string]Vehicle{},
		spots:    map[string]Spot{},
		tickets:  map[string]Ticket{},
		payments: map[string]Payment{},
	}
}

func (state *memoryState) clone() *memoryState {
	copied := newMemoryState()
	for key, value := range state.gates {
		copied.gates[key] = value
	}
	for key, value := range state.vehicles {
		copied.vehicles[key] = value
	}
	for key, value := range state.spots {
		copied.spots[key] = value
	}
	for key, value := range state.tickets {
		copied.tickets[key] = value
	}
	for key, value := range state.payments {
		copied.payments[key] = value
	}
	copied.audit = append([]AuditRecord(nil), state.audit...)
	copied.nextID = state.nextID
	return copied
}

func (state *memoryState) newID(prefix string) string {
	state.nextID++
	return fmt.Sprintf("%s-%d", prefix, state.nextID)
}

// memoryStore is a serialized, copy-on-transaction Store used by service tests.
type memoryStore struct {
	mutex       *sync.Mutex
	root        *memoryStore
	state       *memoryState
	failures    map[string]error
	lockedSpots map[string]bool
	listCalls   int
}

func newMemoryStore(test *testing.T) *memoryStore {
	test.Helper()
	return &memoryStore{
		mutex:       &sync.Mutex{},
		state:       newMemoryState(),
		failures:    map[string]error{},
		lockedSpots: map[string]bool{},
	}
}

func (store *memoryStore) inTx() bool {
	return store.root != nil
}

func (store *memoryStore) failOn(method string, err error) {
	store.failures[method] = err
}

func (store *memoryStore) failure(method string) error {
	return store.failures[method]
}

func (store *memoryStore) read(fn func(state *memoryState)) {
	if store.inTx() {
		fn(store.state)
		return
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	fn(store.state)
}

func (store *memoryStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	if err := store.failure("WithTx"); err != nil {
		return err
	}
	if store.inTx() {
		return fn(ctx, store)
	}
	store.mutex.Lock()
	defer store.mutex.Unlock()
	txStore := &memoryStore{
		mutex:       store.mutex,
		root:        store,
		state:       store.state.clone(),
		failures:    store.failures,
		lockedSpots: store.lockedSpots,
	}
	if err := fn(ctx, txStore); err != nil {
		return err
	}
	store.state = txStore.state
	store.listCalls += txStore.listCalls
	return nil
}

func (store *memoryStore) GetGate(ctx context.Context, gateID GateID) (Gate, error) {
	if err := store.failure("GetGate"); err != nil {
		return Gate{}, err
	}
	var (
		gate  Gate
		found bool
	)
	store.read(func(state *memoryState) {
		gate, found = state.gates[gateID.String()]
	})
	if !found {
		return Gate{}, ErrGateNotFound
	}
	return gate, nil
}

func (store *memoryStore) LockOrCreateVehicle(ctx context.Context, plate PlateNumber, category VehicleCategory) (Vehicle, error) {
	if err := store.failure("LockOrCreateVehicle"); err != nil {
		return Vehicle{}, err
	}
	var vehicle Vehicle
	store.read(func(state *memoryState) {
		for _, existing := range state.vehicles {
			if existing.Plate == plate {
				vehicle = existing
				return
			}
		}
		vehicle = Vehicle{ID: state.newID("vehicle"), Plate: plate, Category: category}
		state.vehicles[vehicle.ID] = vehicle
	})
	return vehicle, nil
}

func (store *memoryStore) GetVehicle(ctx context.Context, vehicleID string) (Vehicle, error) {
	if err := store.failure("GetVehicle"); err != nil {
		return Vehicle{}, err
	}
	var (
		vehicle Vehicle
		found   bool
	)
	store.read(func(state *memoryState) {
		vehicle, found = state.vehicles[vehicleID]
	})
	if !found {
		return Vehicle{}, ErrVehicleNotFound
	}
	return vehicle, nil
}

func (store *memoryStore) HasActiveTicket(ctx context.Context, vehicleID string) (bool, error) {
	if err := store.failure("HasActiveTicket"); err != nil {
		return false, err
	}
	active := false
	store.read(func(state *memoryState) {
		for _, ticket := range state.tickets {
			if ticket.VehicleID == vehicleID && ticket.Status == TicketActive {
				active = true
			}
		}
	})
	return active, nil
}

func (store *memoryStore) ListSpotCandidates(ctx context.Context, query SpotCandidateQuery) ([]Spot, error) {
	if err := store.failure("ListSpotCandidates"); err != nil {
		return nil, err
	}
	store.listCalls++
	eligible := map[SpotCategory]bool{}
	for _, category := range query.Categories {
		eligible[category] = true
	}
	var candidates []Spot
	store.read(func(state *memoryState) {
		for _, spot := range state.spots {
			if spot.Status == SpotAvailable && eligible[spot.Category] {
				candidates = append(candidates, spot)
			}
		}
	})
	sort.Slice(candidates, func(left, right int) bool {
		return spotBefore(candidates[left], candidates[right].FloorNumber, candidates[right].Code)
	})
	if query.After != nil {
		filtered := candidates[:0]
		for _, candidate := range candidates {
			if !spotBefore(candidate, query.After.FloorNumber, query.After.Code) &&
				!(candidate.FloorNumber == query.After.FloorNumber && candidate.Code == query.After.Code) {
				filtered = append(filtered, candidate)
			}
		}
		candidates = filtered
	}
	if query.Limit > 0 && len(candidates) > query.Limit {
		candidates = candidates[:query.Limit]
	}
	return candidates, nil
}

func spotBefore(spot Spot, floorNumber int, code string) bool {
	if spot.FloorNumber != floorNumber {
		return spot.FloorNumber < floorNumber
	}
	return spot.Code < code
}

func (store *memoryStore) LockSpot(ctx context.Context, spotID string, mode LockMode) (Spot, error) {
	if err := store.failure("LockSpot"); err != nil {
		return Spot{}, err
	}
	if store.lockedSpots[spotID] {
		switch mode {
		case LockModeSkipLocked:
			return Spot{}, ErrSpotLocked
		default:
			return Spot{}, ErrLockUnavailable
		}
	}
	var (
		spot  Spot
		found bool
	)
	store.read(func(state *memoryState) {
		spot, found = state.spots[spotID]
	})
	if !found {
		return Spot{}, ErrSpotNotFound
	}
	return spot, nil
}

func (store *memoryStore) UpdateSpotStatus(ctx context.Context, spotID string, from, to SpotStatus) error {
	if err := store.failure("UpdateSpotStatus"); err != nil {
		return err
	}
	var err error
	store.read(func(state *memoryState) {
		spot, found := state.spots[spotID]
		if !found {
			err = ErrSpotNotFound
			return
		}
		if spot.Status != from {
			err = ErrSpotStatusChanged
			return
		}
		spot.Status = to
		state.spots[spotID] = spot
	})
	return err
}

func (store *memoryStore) CreateTicket(ctx context.Context, ticket Ticket) (Ticket, error) {
	if err := store.failure("CreateTicket"); err != nil {
		return Ticket{}, err
	}
	var err error
	store.read(func(state *memoryState) {
		for _, existing := range state.tickets {
			if existing.Number == ticket.Number {
				err = ErrDuplicateTicketNumber
				return
			}
			if existing.VehicleID == ticket.VehicleID && existing.Status == TicketActive {
				err = ErrVehicleHasActiveTicket
				return
			}
		}
		ticket.ID = state.newID("ticket")
		state.tickets[ticket.ID] = ticket
	})
	if err != nil {
		return Ticket{}, err
	}
	return ticket, nil
}

func (store *memoryStore) LockTicketByNumber(ctx context.Context, number TicketNumber) (Ticket, error) {
	if err := store.failure("LockTicketByNumber"); err != nil {
		return Ticket{}, err
	}
	var (
		ticket Ticket
		found  bool
	)
	store.read(func(state *memoryState) {
		for _, existing := range state.tickets {
			if existing.Number == number {
				ticket, found = existing, true
			}
		}
	})
	if !found {
		return Ticket{}, ErrTicketNotFound
	}
	return ticket, nil
}

func (store *memoryStore) CompleteTicket(ctx context.Context, completion TicketCompletion) error {
	if err := store.failure("CompleteTicket"); err != nil {
		return err
	}
	var err error
	store.read(func(state *memoryState) {
		ticket, found := state.tickets[completion.TicketID]
		if !found {
			err = ErrTicketNotFound
			return
		}
		if ticket.Status != TicketActive {
			err = ErrTicketNotActive
			return
		}
		exitTime := completion.ExitTime
		duration := completion.DurationMinutes
		amount := completion.AmountCents
		ticket.Status = TicketCompleted
		ticket.ExitGateID = completion.ExitGateID
		ticket.ExitTime = &exitTime
		ticket.DurationMinutes = &duration
		ticket.AmountCents = &amount
		state.tickets[ticket.ID] = ticket
	})
	return err
}

func (store *memoryStore) CreatePayment(ctx context.Context, payment Payment) (Payment, error) {
	if err := store.failure("CreatePayment"); err != nil {
		return Payment{}, err
	}
	var err error
	store.read(func(state *memoryState) {
		for _, existing := range state.payments {
			if existing.TicketID == payment.TicketID {
				err = ErrPaymentExists
				return
			}
		}
		payment.ID = state.newID("payment")
		state.payments[payment.ID] = payment
	})
	if err != nil {
		return Payment{}, err
	}
	return payment, nil
}

func (store *memoryStore) AppendAuditRecords(ctx context.Context, records []AuditRecord) error {
	if err := store.failure("AppendAuditRecords"); err != nil {
		return err
	}
	if !store.inTx() {
		return errors.New("audit records must be appended inside a transaction")
	}
	store.read(func(state *memoryState) {
		for _, record := range records {
			record.ID = state.newID("audit")
			state.audit = append(state.audit, record)
		}
	})
	return nil
}

func (store *memoryStore) CountTickets(ctx context.Context, status TicketStatus) (int64, error) {
	if err := store.failure("CountTickets"); err != nil {
		return 0, err
	}
	var count int64
	store.read(func(state *memoryState) {
		for _, ticket := range state.tickets {
			if ticket.Status == status {
				count++
			}
		}
	})
	return count, nil
}

func (store *memoryStore) CountSpots(ctx context.Context) (int64, error) {
	if err := store.failure("CountSpots"); err != nil {
		return 0, err
	}
	var count int64
	store.read(func(state *memoryState) {
		count = int64(len(state.spots))
	})
	return count, nil
}

func (store *memoryStore) CountSpotsByStatus(ctx context.Context, status SpotStatus) (int64, error) {
	if err := store.failure("CountSpotsByStatus"); err != nil {
		return 0, err
	}
	var count int64
	store.read(func(state *memoryState) {
		for _, spot := range state.spots {
			if spot.Status == status {
				count++
			}
		}
	})
	return count, nil
}

func (store *memoryStore) addGate(id string, direction GateDirection) {
	store.state.gates[id] = Gate{ID: id, Name: id, Direction: direction}
}

func (store *memoryStore) addSpot(id string, floorNumber int, code string, category SpotCategory, status SpotStatus) {
	store.state.spots[id] = Spot{
		ID:          id,
		Code:        code,
		Category:    category,
		Status:      status,
		FloorID:     fmt.Sprintf("floor-%d", floorNumber),
		FloorNumber: floorNumber,
	}
}

func (store *memoryStore) spot(id string) Spot {
	var spot Spot
	store.read(func(state *memoryState) {
		spot = state.spots[id]
	})
	return spot
}

func (store *memoryStore) auditRecords() []AuditRecord {
	var records []AuditRecord
	store.read(func(state *memoryState) {
		records = append(records, state.audit...)
	})
	return records
}

func (store *memoryStore) vehicleCount() int {
	var count int
	store.read(func(state *memoryState) {
		count = len(state.vehicles)
	})
	return count
}

func (store *memoryStore) paymentCount() int {
	var count int
	store.read(func(state *memoryState) {
		count = len(state.payments)
	})
	return count
}

func (store *memoryStore) ticketByNumber(number TicketNumber) (Ticket, bool) {
	var (
		ticket Ticket
		found  bool
	)
	store.read(func(state *memoryState) {
		for _, existing := range state.tickets {
			if existing.Number == number {
				ticket, found = existing, true
			}
		}
	})
	return ticket, found
}

type fakeClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (clock *fakeClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func (clock *fakeClock) Set(now time.Time) {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	clock.now = now
}

type sequentialTicketNumbers struct {
	mutex sync.Mutex
	next  int
}

func (generator *sequentialTicketNumbers) NextTicketNumber(issuedAt time.Time, category VehicleCategory) (TicketNumber, error) {
	generator.mutex.Lock()
	defer generator.mutex.Unlock()
	generator.next++
	return NewTicketNumber(fmt.Sprintf("TKT-%03d", generator.next))
}

type recordingNotifier struct {
	mutex       sync.Mutex
	spotUpdates []SpotUpdate
	lifecycles  []TicketLifecycle
	metrics     []DashboardMetrics
}

func (notifier *recordingNotifier) PublishSpotUpdated(_ context.Context, update SpotUpdate) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.spotUpdates = append(notifier.spotUpdates, update)
}

func (notifier *recordingNotifier) PublishTicketLifecycle(_ context.Context, event TicketLifecycle) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.lifecycles = append(notifier.lifecycles, event)
}

func (notifier *recordingNotifier) PublishDashboardMetrics(_ context.Context, metrics DashboardMetrics) {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.metrics = append(notifier.metrics, metrics)
}

func mustPlateNumber(test *testing.T, raw string) PlateNumber {
	test.Helper()
	plate, err := NewPlateNumber(raw)
	if err != nil {
		test.Fatalf("invalid plate %q: %v", raw, err)
	}
	return plate
}

func mustGateID(test *testing.T, raw string) GateID {
	test.Helper()
	gateID, err := NewGateID(raw)
	if err != nil {
		test.Fatalf("invalid gate id %q: %v", raw, err)
	}
	return gateID
}

func mustSpotID(test *testing.T, raw string) SpotID {
	test.Helper()
	spotID, err := NewSpotID(raw)
	if err != nil {
		test.Fatalf("invalid spot id %q: %v", raw, err)
	}
	return spotID
}

func mustActorID(test *testing.T, raw string) ActorID {
	test.Helper()
	actorID, err := NewActorID(raw)
	if err != nil {
		test.Fatalf("invalid actor id %q: %v", raw, err)
	}
	return actorID
}
