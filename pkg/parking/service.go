package parking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Service runs gate operations as atomic transactions over a Store.
type Service struct {
	store         Store
	settings      SettingsProvider
	nowFn         func() time.Time
	logger        OperationLogger
	notifier      Notifier
	ticketNumbers TicketNumberGenerator
	allocator     SpotAllocator
}

// NewService wires a Service.
func NewService(store Store, settings SettingsProvider, now func() time.Time, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: store dependency is nil", ErrInvalidServiceConfig)
	}
	if settings == nil {
		return nil, fmt.Errorf("%w: settings dependency is nil", ErrInvalidServiceConfig)
	}
	if now == nil {
		return nil, fmt.Errorf("%w: clock dependency is nil", ErrInvalidServiceConfig)
	}
	service := &Service{
		store:         store,
		settings:      settings,
		nowFn:         now,
		notifier:      NopNotifier{},
		ticketNumbers: RandomTicketNumbers{},
		allocator:     NewSpotAllocator(defaultCandidateBatchSize),
	}
	for _, option := range options {
		if option != nil {
			option(service)
		}
	}
	return service, nil
}

// EntryRequest is a vehicle arriving at an entry gate.
type EntryRequest struct {
	Plate    PlateNumber
	Category VehicleCategory
	GateID   GateID
	ActorID  ActorID
}

func (request EntryRequest) validate() error {
	if request.Plate.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidPlateNumber)
	}
	if _, err := ParseVehicleCategory(request.Category.String()); err != nil {
		return err
	}
	if request.GateID.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidGateID)
	}
	return nil
}

// ExitRequest is a ticket presented at an exit gate.
type ExitRequest struct {
	TicketNumber TicketNumber
	GateID       GateID
	Method       PaymentMethod
	ActorID      ActorID
}

func (request ExitRequest) validate() error {
	if request.TicketNumber.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidTicketNumber)
	}
	if request.GateID.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidGateID)
	}
	if _, err := ParsePaymentMethod(request.Method.String()); err != nil {
		return err
	}
	return nil
}

// ExitReceipt is the outcome of a successful exit.
type ExitReceipt struct {
	Ticket  Ticket
	Payment Payment
}

// SpotStatusChange is an administrative spot status update.
type SpotStatusChange struct {
	SpotID  SpotID
	Status  SpotStatus
	ActorID ActorID
	Reason  string
}

func (change SpotStatusChange) validate() error {
	if change.SpotID.String() == "" {
		return fmt.Errorf("%w: empty value", ErrInvalidSpotID)
	}
	status, err := ParseSpotStatus(change.Status.String())
	if err != nil {
		return err
	}
	if status == SpotOccupied {
		return fmt.Errorf("%w: occupied is only set by vehicle entry", ErrInvalidSpotStatus)
	}
	return nil
}

// HandleEntry admits a vehicle: it allocates a spot, opens a ticket, and audits both.
func (service *Service) HandleEntry(ctx context.Context, request EntryRequest) (Ticket, error) {
	var ticket Ticket
	operationError := request.validate()
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			issued, err := service.admitVehicle(ctx, transactionStore, request)
			if err != nil {
				return err
			}
			ticket = issued
			return nil
		})
	}
	var notifyError error
	if operationError == nil {
		now := service.nowFn()
		service.notifier.PublishSpotUpdated(ctx, SpotUpdate{
			SpotID:       ticket.Spot.ID,
			Code:         ticket.Spot.Code,
			FloorNumber:  ticket.Spot.FloorNumber,
			Status:       ticket.Spot.Status,
			Action:       EventSpotOccupied,
			TicketNumber: ticket.Number.String(),
			At:           now,
		})
		service.notifier.PublishTicketLifecycle(ctx, ticketLifecycle(ticket, EventTicketCreated, now))
		notifyError = service.publishDashboardMetrics(ctx)
	}
	service.logOperation(ctx, OperationLog{
		Operation:    operationEntry,
		Plate:        request.Plate,
		TicketNumber: ticket.Number,
		GateID:       request.GateID,
		ActorID:      request.ActorID,
		SpotCode:     ticket.Spot.Code,
		Error:        operationError,
		NotifyError:  notifyError,
	})
	if operationError != nil {
		return Ticket{}, operationError
	}
	return ticket, nil
}

func (service *Service) admitVehicle(ctx context.Context, transactionStore Store, request EntryRequest) (Ticket, error) {
	now := service.nowFn()
	gate, err := transactionStore.GetGate(ctx, request.GateID)
	if err != nil {
		return Ticket{}, err
	}
	if gate.Direction != GateEntry {
		return Ticket{}, fmt.Errorf("%w: gate %s is an %s gate", ErrWrongGateDirection, gate.Name, gate.Direction)
	}
	vehicle, err := transactionStore.LockOrCreateVehicle(ctx, request.Plate, request.Category)
	if err != nil {
		return Ticket{}, err
	}
	if vehicle.Category != request.Category {
		return Ticket{}, fmt.Errorf("%w: %s is registered as %s", ErrVehicleCategoryMismatch, vehicle.Plate, vehicle.Category)
	}
	hasActive, err := transactionStore.HasActiveTicket(ctx, vehicle.ID)
	if err != nil {
		return Ticket{}, err
	}
	if hasActive {
		return Ticket{}, fmt.Errorf("%w: %s", ErrVehicleHasActiveTicket, vehicle.Plate)
	}
	spot, err := service.allocator.Allocate(ctx, transactionStore, vehicle.Category)
	if err != nil {
		return Ticket{}, err
	}
	if err := transactionStore.UpdateSpotStatus(ctx, spot.ID, SpotAvailable, SpotOccupied); err != nil {
		return Ticket{}, err
	}
	spot.Status = SpotOccupied
	number, err := service.ticketNumbers.NextTicketNumber(now, vehicle.Category)
	if err != nil {
		return Ticket{}, err
	}
	ticket, err := transactionStore.CreateTicket(ctx, Ticket{
		Number:      number,
		VehicleID:   vehicle.ID,
		SpotID:      spot.ID,
		EntryGateID: gate.ID,
		EntryTime:   now,
		Status:      TicketActive,
	})
	if err != nil {
		return Ticket{}, err
	}
	occupiedSnapshot := spotSnapshot(SpotOccupied)
	occupiedSnapshot["ticketNumber"] = number.String()
	audit := newAuditBatch(request.ActorID, now)
	if err := audit.add(AuditEntitySpot, spot.ID, EventSpotOccupied,
		spotSnapshot(SpotAvailable), occupiedSnapshot,
		AuditSnapshot{"ticketNumber": number.String()}); err != nil {
		return Ticket{}, err
	}
	if err := audit.add(AuditEntityTicket, ticket.ID, EventTicketCreated,
		nil,
		AuditSnapshot{
			"ticketNumber":  number.String(),
			"status":        TicketActive.String(),
			"vehicleNumber": vehicle.Plate.String(),
			"spotCode":      spot.Code,
		},
		nil); err != nil {
		return Ticket{}, err
	}
	if err := transactionStore.AppendAuditRecords(ctx, audit.records); err != nil {
		return Ticket{}, err
	}
	ticket.Vehicle = vehicle
	ticket.Spot = spot
	return ticket, nil
}

// HandleExit completes a ticket, records payment, releases its spot, and audits all three.
func (service *Service) HandleExit(ctx context.Context, request ExitRequest) (ExitReceipt, error) {
	var receipt ExitReceipt
	operationError := request.validate()
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			completed, err := service.releaseVehicle(ctx, transactionStore, request)
			if err != nil {
				return err
			}
			receipt = completed
			return nil
		})
	}
	var notifyError error
	if operationError == nil {
		now := service.nowFn()
		service.notifier.PublishSpotUpdated(ctx, SpotUpdate{
			SpotID:       receipt.Ticket.Spot.ID,
			Code:         receipt.Ticket.Spot.Code,
			FloorNumber:  receipt.Ticket.Spot.FloorNumber,
			Status:       receipt.Ticket.Spot.Status,
			Action:       EventSpotReleased,
			TicketNumber: receipt.Ticket.Number.String(),
			At:           now,
		})
		service.notifier.PublishTicketLifecycle(ctx, ticketLifecycle(receipt.Ticket, EventTicketCompleted, now))
		notifyError = service.publishDashboardMetrics(ctx)
	}
	service.logOperation(ctx, OperationLog{
		Operation:    operationExit,
		Plate:        receipt.Ticket.Vehicle.Plate,
		TicketNumber: request.TicketNumber,
		GateID:       request.GateID,
		ActorID:      request.ActorID,
		SpotCode:     receipt.Ticket.Spot.Code,
		Amount:       receipt.Payment.AmountCents,
		Error:        operationError,
		NotifyError:  notifyError,
	})
	if operationError != nil {
		return ExitReceipt{}, operationError
	}
	return receipt, nil
}

func (service *Service) releaseVehicle(ctx context.Context, transactionStore Store, request ExitRequest) (ExitReceipt, error) {
	now := service.nowFn()
	gate, err := transactionStore.GetGate(ctx, request.GateID)
	if err != nil {
		return ExitReceipt{}, err
	}
	if gate.Direction != GateExit {
		return ExitReceipt{}, fmt.Errorf("%w: gate %s is an %s gate", ErrWrongGateDirection, gate.Name, gate.Direction)
	}
	ticket, err := transactionStore.LockTicketByNumber(ctx, request.TicketNumber)
	if err != nil {
		return ExitReceipt{}, err
	}
	if ticket.Status != TicketActive {
		return ExitReceipt{}, fmt.Errorf("%w: %s is %s", ErrTicketNotActive, ticket.Number, ticket.Status)
	}
	spot, err := transactionStore.LockSpot(ctx, ticket.SpotID, LockModeWait)
	if err != nil {
		return ExitReceipt{}, err
	}
	vehicle, err := transactionStore.GetVehicle(ctx, ticket.VehicleID)
	if err != nil {
		return ExitReceipt{}, err
	}
	settings, err := service.settings.PricingSettings(ctx)
	if err != nil {
		return ExitReceipt{}, WrapError("service", "pricing_settings", "load", err)
	}
	breakdown, err := CalculateFare(PricingInput{
		EntryTime: ticket.EntryTime,
		ExitTime:  now,
		Category:  vehicle.Category,
	}, settings)
	if err != nil {
		return ExitReceipt{}, err
	}
	completion := TicketCompletion{
		TicketID:        ticket.ID,
		ExitGateID:      gate.ID,
		ExitTime:        now,
		DurationMinutes: breakdown.DurationMinutes,
		AmountCents:     breakdown.TotalCents,
	}
	if err := transactionStore.CompleteTicket(ctx, completion); err != nil {
		return ExitReceipt{}, err
	}
	payment, err := transactionStore.CreatePayment(ctx, Payment{
		TicketID:    ticket.ID,
		AmountCents: breakdown.TotalCents,
		PaidAt:      now,
		Method:      request.Method,
		Status:      PaymentSucceeded,
		Breakdown:   breakdown,
	})
	if err != nil {
		return ExitReceipt{}, err
	}
	if err := transactionStore.UpdateSpotStatus(ctx, spot.ID, SpotOccupied, SpotAvailable); err != nil {
		return ExitReceipt{}, err
	}
	previousStatus := spot.Status
	spot.Status = SpotAvailable

	audit := newAuditBatch(request.ActorID, now)
	if err := audit.add(AuditEntityTicket, ticket.ID, EventTicketCompleted,
		AuditSnapshot{"status": TicketActive.String(), "exitTime": nil},
		AuditSnapshot{
			"status":           TicketCompleted.String(),
			"exitTime":         now.UTC().Format(time.RFC3339Nano),
			"calculatedAmount": breakdown.TotalCents.Float64(),
		},
		nil); err != nil {
		return ExitReceipt{}, err
	}
	if err := audit.add(AuditEntityPayment, payment.ID, EventPaymentSucceeded,
		nil,
		AuditSnapshot{
			"amount": payment.AmountCents.Float64(),
			"method": payment.Method.String(),
			"status": payment.Status.String(),
		},
		nil); err != nil {
		return ExitReceipt{}, err
	}
	if err := audit.add(AuditEntitySpot, spot.ID, EventSpotReleased,
		spotSnapshot(previousStatus), spotSnapshot(SpotAvailable),
		AuditSnapshot{"ticketNumber": ticket.Number.String()}); err != nil {
		return ExitReceipt{}, err
	}
	if err := transactionStore.AppendAuditRecords(ctx, audit.records); err != nil {
		return ExitReceipt{}, err
	}

	exitTime := now
	duration := breakdown.DurationMinutes
	amount := breakdown.TotalCents
	ticket.ExitTime = &exitTime
	ticket.ExitGateID = gate.ID
	ticket.Status = TicketCompleted
	ticket.DurationMinutes = &duration
	ticket.AmountCents = &amount
	ticket.Vehicle = vehicle
	ticket.Spot = spot
	return ExitReceipt{Ticket: ticket, Payment: payment}, nil
}

// SetSpotStatus moves a free spot between available, reserved, and out_of_service.
// Occupied spots are owned by their active ticket and cannot be changed here.
// The spot is locked without waiting: a spot held by a gate transaction fails
// with ErrLockUnavailable instead of queueing behind it.
func (service *Service) SetSpotStatus(ctx context.Context, change SpotStatusChange) (Spot, error) {
	var (
		spot    Spot
		changed bool
	)
	operationError := change.validate()
	if operationError == nil {
		operationError = service.store.WithTx(ctx, func(ctx context.Context, transactionStore Store) error {
			now := service.nowFn()
			locked, err := transactionStore.LockSpot(ctx, change.SpotID.String(), LockModeNoWait)
			if err != nil {
				return err
			}
			if locked.Status == SpotOccupied {
				return fmt.Errorf("%w: %s", ErrSpotOccupied, locked.Code)
			}
			if locked.Status == change.Status {
				spot = locked
				return nil
			}
			if err := transactionStore.UpdateSpotStatus(ctx, locked.ID, locked.Status, change.Status); err != nil {
				return err
			}
			var metadata AuditSnapshot
			if reason := strings.TrimSpace(change.Reason); reason != "" {
				metadata = AuditSnapshot{"reason": reason}
			}
			audit := newAuditBatch(change.ActorID, now)
			if err := audit.add(AuditEntitySpot, locked.ID, EventSpotStatusChanged,
				spotSnapshot(locked.Status), spotSnapshot(change.Status), metadata); err != nil {
				return err
			}
			if err := transactionStore.AppendAuditRecords(ctx, audit.records); err != nil {
				return err
			}
			locked.Status = change.Status
			spot = locked
			changed = true
			return nil
		})
	}
	var notifyError error
	if operationError == nil && changed {
		service.notifier.PublishSpotUpdated(ctx, SpotUpdate{
			SpotID:      spot.ID,
			Code:        spot.Code,
			FloorNumber: spot.FloorNumber,
			Status:      spot.Status,
			Action:      EventSpotStatusChanged,
			At:          service.nowFn(),
		})
		notifyError = service.publishDashboardMetrics(ctx)
	}
	service.logOperation(ctx, OperationLog{
		Operation:   operationSetSpotStatus,
		ActorID:     change.ActorID,
		SpotCode:    spot.Code,
		Error:       operationError,
		NotifyError: notifyError,
	})
	if operationError != nil {
		return Spot{}, operationError
	}
	return spot, nil
}

// DashboardMetrics computes the current occupancy summary from committed state.
func (service *Service) DashboardMetrics(ctx context.Context) (DashboardMetrics, error) {
	activeTickets, err := service.store.CountTickets(ctx, TicketActive)
	if err != nil {
		return DashboardMetrics{}, err
	}
	totalSpots, err := service.store.CountSpots(ctx)
	if err != nil {
		return DashboardMetrics{}, err
	}
	occupiedSpots, err := service.store.CountSpotsByStatus(ctx, SpotOccupied)
	if err != nil {
		return DashboardMetrics{}, err
	}
	return DashboardMetrics{
		ActiveTickets: activeTickets,
		TotalSpots:    totalSpots,
		OccupiedSpots: occupiedSpots,
		OccupancyRate: occupancyRate(occupiedSpots, totalSpots),
		UpdatedAt:     service.nowFn(),
	}, nil
}

func (service *Service) publishDashboardMetrics(ctx context.Context) error {
	metrics, err := service.DashboardMetrics(ctx)
	if err != nil {
		return err
	}
	service.notifier.PublishDashboardMetrics(ctx, metrics)
	return nil
}

func (service *Service) logOperation(ctx context.Context, entry OperationLog) {
	if service.logger == nil {
		return
	}
	if entry.Status == "" {
		if entry.Error != nil {
			entry.Status = operationStatusError
		} else {
			entry.Status = operationStatusOK
		}
	}
	service.logger.LogOperation(ctx, entry)
}

func ticketLifecycle(ticket Ticket, action string, at time.Time) TicketLifecycle {
	event := TicketLifecycle{
		TicketID:     ticket.ID,
		TicketNumber: ticket.Number.String(),
		Plate:        ticket.Vehicle.Plate.String(),
		Status:       ticket.Status,
		Action:       action,
		SpotCode:     ticket.Spot.Code,
		At:           at,
	}
	if ticket.AmountCents != nil {
		amount := ticket.AmountCents.Int64()
		event.AmountCents = &amount
	}
	return event
}
