package parking

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AmountCents is an integer currency amount in cents.
type AmountCents int64

// Int64 returns the raw cents value.
func (amount AmountCents) Int64() int64 {
	return int64(amount)
}

// Float64 returns the amount in currency units.
func (amount AmountCents) Float64() float64 {
	return float64(amount) / 100
}

// String renders the amount with two decimal places.
func (amount AmountCents) String() string {
	sign := ""
	value := int64(amount)
	if value < 0 {
		sign = "-"
		value = -value
	}
	return fmt.Sprintf("%s%d.%02d", sign, value/100, value%100)
}

// VehicleCategory classifies vehicles for spot eligibility and rates.
type VehicleCategory string

const (
	VehicleCar   VehicleCategory = "car"
	VehicleBike  VehicleCategory = "bike"
	VehicleTruck VehicleCategory = "truck"
)

// ParseVehicleCategory validates a vehicle category.
func ParseVehicleCategory(raw string) (VehicleCategory, error) {
	switch category := VehicleCategory(strings.ToLower(strings.TrimSpace(raw))); category {
	case VehicleCar, VehicleBike, VehicleTruck:
		return category, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidVehicleCategory, raw)
	}
}

func (category VehicleCategory) String() string {
	return string(category)
}

// SpotCategory classifies physical spots.
type SpotCategory string

const (
	SpotCompact     SpotCategory = "compact"
	SpotLarge       SpotCategory = "large"
	SpotBike        SpotCategory = "bike"
	SpotHandicapped SpotCategory = "handicapped"
)

// ParseSpotCategory validates a spot category.
func ParseSpotCategory(raw string) (SpotCategory, error) {
	switch category := SpotCategory(strings.ToLower(strings.TrimSpace(raw))); category {
	case SpotCompact, SpotLarge, SpotBike, SpotHandicapped:
		return category, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSpotCategory, raw)
	}
}

func (category SpotCategory) String() string {
	return string(category)
}

// SpotStatus defines the spot lifecycle.
type SpotStatus string

const (
	SpotAvailable    SpotStatus = "available"
	SpotOccupied     SpotStatus = "occupied"
	SpotReserved     SpotStatus = "reserved"
	SpotOutOfService SpotStatus = "out_of_service"
)

// ParseSpotStatus validates a spot status.
func ParseSpotStatus(raw string) (SpotStatus, error) {
	switch status := SpotStatus(strings.ToLower(strings.TrimSpace(raw))); status {
	case SpotAvailable, SpotOccupied, SpotReserved, SpotOutOfService:
		return status, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidSpotStatus, raw)
	}
}

func (status SpotStatus) String() string {
	return string(status)
}

// GateDirection tells whether a gate admits or releases vehicles.
type GateDirection string

const (
	GateEntry GateDirection = "entry"
	GateExit  GateDirection = "exit"
)

// ParseGateDirection validates a gate direction.
func ParseGateDirection(raw string) (GateDirection, error) {
	switch direction := GateDirection(strings.ToLower(strings.TrimSpace(raw))); direction {
	case GateEntry, GateExit:
		return direction, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGateDirection, raw)
	}
}

func (direction GateDirection) String() string {
	return string(direction)
}

// TicketStatus defines the ticket lifecycle.
type TicketStatus string

const (
	TicketActive    TicketStatus = "active"
	TicketCompleted TicketStatus = "completed"
)

func (status TicketStatus) String() string {
	return string(status)
}

// PaymentMethod enumerates accepted payment methods.
type PaymentMethod string

const (
	PaymentCash PaymentMethod = "cash"
	PaymentCard PaymentMethod = "card"
	PaymentUPI  PaymentMethod = "upi"
)

// ParsePaymentMethod validates a payment method.
func ParsePaymentMethod(raw string) (PaymentMethod, error) {
	switch method := PaymentMethod(strings.ToLower(strings.TrimSpace(raw))); method {
	case PaymentCash, PaymentCard, PaymentUPI:
		return method, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPaymentMethod, raw)
	}
}

func (method PaymentMethod) String() string {
	return string(method)
}

// PaymentStatus defines the payment lifecycle.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

func (status PaymentStatus) String() string {
	return string(status)
}

// PlateNumber identifies a vehicle.
type PlateNumber struct {
	value string
}

// NewPlateNumber validates and normalizes a plate number.
func NewPlateNumber(raw string) (PlateNumber, error) {
	normalized := strings.ToUpper(strings.Join(strings.Fields(raw), ""))
	if normalized == "" {
		return PlateNumber{}, fmt.Errorf("%w: empty value", ErrInvalidPlateNumber)
	}
	return PlateNumber{value: normalized}, nil
}

// String returns the normalized plate.
func (plate PlateNumber) String() string {
	return plate.value
}

// TicketNumber is the human-readable ticket identifier.
type TicketNumber struct {
	value string
}

// NewTicketNumber validates and normalizes a ticket number.
func NewTicketNumber(raw string) (TicketNumber, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(raw))
	if trimmed == "" {
		return TicketNumber{}, fmt.Errorf("%w: empty value", ErrInvalidTicketNumber)
	}
	return TicketNumber{value: trimmed}, nil
}

// String returns the normalized ticket number.
func (number TicketNumber) String() string {
	return number.value
}

// GateID identifies a gate.
type GateID struct {
	value string
}

// NewGateID validates and normalizes a gate id.
func NewGateID(raw string) (GateID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return GateID{}, fmt.Errorf("%w: empty value", ErrInvalidGateID)
	}
	return GateID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id GateID) String() string {
	return id.value
}

// SpotID identifies a spot.
type SpotID struct {
	value string
}

// NewSpotID validates and normalizes a spot id.
func NewSpotID(raw string) (SpotID, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return SpotID{}, fmt.Errorf("%w: empty value", ErrInvalidSpotID)
	}
	return SpotID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id SpotID) String() string {
	return id.value
}

// ActorID identifies the operator or system acting on a gate. The zero value
// means "no actor".
type ActorID struct {
	value string
}

// NewActorID normalizes an optional actor id. Blank input yields the zero ActorID.
func NewActorID(raw string) (ActorID, error) {
	trimmed := strings.TrimSpace(raw)
	if len(trimmed) > maxActorIDLength {
		return ActorID{}, fmt.Errorf("%w: longer than %d characters", ErrInvalidActorID, maxActorIDLength)
	}
	return ActorID{value: trimmed}, nil
}

// String returns the normalized identifier.
func (id ActorID) String() string {
	return id.value
}

// IsZero reports whether no actor was supplied.
func (id ActorID) IsZero() bool {
	return id.value == ""
}

// Floor groups spots by level.
type Floor struct {
	ID     string
	Number int
	Name   string
}

// Spot is one physical parking position.
type Spot struct {
	ID          string
	Code        string
	Category    SpotCategory
	Status      SpotStatus
	FloorID     string
	FloorNumber int
}

// Vehicle is a plate with an immutable category.
type Vehicle struct {
	ID       string
	Plate    PlateNumber
	Category VehicleCategory
}

// Gate is a physical entry or exit checkpoint.
type Gate struct {
	ID        string
	Name      string
	Direction GateDirection
}

// Ticket records one vehicle stay. Vehicle and Spot are populated on values
// returned by the service.
type Ticket struct {
	ID              string
	Number          TicketNumber
	VehicleID       string
	SpotID          string
	EntryGateID     string
	ExitGateID      string
	EntryTime       time.Time
	ExitTime        *time.Time
	Status          TicketStatus
	DurationMinutes *int
	AmountCents     *AmountCents
	Vehicle         Vehicle
	Spot            Spot
}

// TicketCompletion carries the fields written when a ticket completes.
type TicketCompletion struct {
	TicketID        string
	ExitGateID      string
	ExitTime        time.Time
	DurationMinutes int
	AmountCents     AmountCents
}

// Payment settles a completed ticket.
type Payment struct {
	ID          string
	TicketID    string
	AmountCents AmountCents
	PaidAt      time.Time
	Method      PaymentMethod
	Status      PaymentStatus
	Breakdown   FareBreakdown
}

// LockMode selects how a locking read behaves when the row is already locked.
type LockMode int

const (
	// LockModeWait blocks until the competing lock is released.
	LockModeWait LockMode = iota
	// LockModeSkipLocked treats a contended row as absent.
	LockModeSkipLocked
	// LockModeNoWait fails immediately on contention.
	LockModeNoWait
)

func (mode LockMode) String() string {
	switch mode {
	case LockModeWait:
		return "wait"
	case LockModeSkipLocked:
		return "skip_locked"
	case LockModeNoWait:
		return "nowait"
	default:
		return fmt.Sprintf("lock_mode(%d)", int(mode))
	}
}

// SpotCursor is a keyset position in floor-number, spot-code order.
type SpotCursor struct {
	FloorNumber int
	Code        string
}

// SpotCandidateQuery selects available spots for the allocation scan.
type SpotCandidateQuery struct {
	Categories []SpotCategory
	After      *SpotCursor
	Limit      int
}

// Store is the persistence contract used by Service. Every method called on
// the store handed to a WithTx callback runs inside that transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error
	GetGate(ctx context.Context, gateID GateID) (Gate, error)
	LockOrCreateVehicle(ctx context.Context, plate PlateNumber, category VehicleCategory) (Vehicle, error)
	GetVehicle(ctx context.Context, vehicleID string) (Vehicle, error)
	HasActiveTicket(ctx context.Context, vehicleID string) (bool, error)
	ListSpotCandidates(ctx context.Context, query SpotCandidateQuery) ([]Spot, error)
	LockSpot(ctx context.Context, spotID string, mode LockMode) (Spot, error)
	UpdateSpotStatus(ctx context.Context, spotID string, from, to SpotStatus) error
	CreateTicket(ctx context.Context, ticket Ticket) (Ticket, error)
	LockTicketByNumber(ctx context.Context, number TicketNumber) (Ticket, error)
	CompleteTicket(ctx context.Context, completion TicketCompletion) error
	CreatePayment(ctx context.Context, payment Payment) (Payment, error)
	AppendAuditRecords(ctx context.Context, records []AuditRecord) error
	CountTickets(ctx context.Context, status TicketStatus) (int64, error)
	CountSpots(ctx context.Context) (int64, error)
	CountSpotsByStatus(ctx context.Context, status SpotStatus) (int64, error)
}
