package gormstore

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Floor represents the floors table.
type Floor struct {
	FloorID   string    `gorm:"type:uuid;primaryKey"`
	Number    int       `gorm:"not null;uniqueIndex:idx_floors_number"`
	Name      string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Floor) TableName() string { return "floors" }

func (floor *Floor) BeforeCreate(tx *gorm.DB) error {
	if floor.FloorID == "" {
		floor.FloorID = uuid.NewString()
	}
	return nil
}

// Spot mirrors the spots table.
type Spot struct {
	SpotID    string    `gorm:"type:uuid;primaryKey"`
	FloorID   string    `gorm:"type:uuid;not null;index:idx_spots_floor_code,unique,priority:1"`
	Code      string    `gorm:"not null;index:idx_spots_floor_code,unique,priority:2"`
	Category  string    `gorm:"not null;index:idx_spots_status_category,priority:2"`
	Status    string    `gorm:"not null;index:idx_spots_status_category,priority:1"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (Spot) TableName() string { return "spots" }

func (spot *Spot) BeforeCreate(tx *gorm.DB) error {
	if spot.SpotID == "" {
		spot.SpotID = uuid.NewString()
	}
	return nil
}

// Vehicle mirrors the vehicles table.
type Vehicle struct {
	VehicleID   string    `gorm:"type:uuid;primaryKey"`
	PlateNumber string    `gorm:"not null;uniqueIndex:idx_vehicles_plate_number"`
	Category    string    `gorm:"not null"`
	CreatedAt   time.Time `gorm:"not null"`
}

func (Vehicle) TableName() string { return "vehicles" }

func (vehicle *Vehicle) BeforeCreate(tx *gorm.DB) error {
	if vehicle.VehicleID == "" {
		vehicle.VehicleID = uuid.NewString()
	}
	return nil
}

// Gate mirrors the gates table.
type Gate struct {
	GateID    string    `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null;uniqueIndex:idx_gates_name"`
	Direction string    `gorm:"not null"`
	CreatedAt time.Time `gorm:"not null"`
}

func (Gate) TableName() string { return "gates" }

func (gate *Gate) BeforeCreate(tx *gorm.DB) error {
	if gate.GateID == "" {
		gate.GateID = uuid.NewString()
	}
	return nil
}

// Ticket mirrors the tickets table. The partial unique index keeps one active
// ticket per vehicle even if the service-level check is bypassed.
type Ticket struct {
	TicketID        string     `gorm:"type:uuid;primaryKey"`
	TicketNumber    string     `gorm:"not null;uniqueIndex:idx_tickets_ticket_number"`
	VehicleID       string     `gorm:"type:uuid;not null;index:idx_tickets_active_vehicle,unique,where:status = 'active'"`
	SpotID          string     `gorm:"type:uuid;not null;index:idx_tickets_spot"`
	EntryGateID     string     `gorm:"type:uuid;not null"`
	ExitGateID      *string    `gorm:"type:uuid"`
	EntryTime       time.Time  `gorm:"not null"`
	ExitTime        *time.Time `gorm:""`
	Status          string     `gorm:"not null;index:idx_tickets_status"`
	DurationMinutes *int       `gorm:""`
	AmountCents     *int64     `gorm:""`
	CreatedAt       time.Time  `gorm:"not null"`
	UpdatedAt       time.Time  `gorm:"not null"`
}

func (Ticket) TableName() string { return "tickets" }

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) error {
	if ticket.TicketID == "" {
		ticket.TicketID = uuid.NewString()
	}
	return nil
}

// Payment mirrors the payments table.
type Payment struct {
	PaymentID   string         `gorm:"type:uuid;primaryKey"`
	TicketID    string         `gorm:"type:uuid;not null;uniqueIndex:idx_payments_ticket"`
	AmountCents int64          `gorm:"not null"`
	PaidAt      time.Time      `gorm:"not null"`
	Method      string         `gorm:"not null"`
	Status      string         `gorm:"not null"`
	Breakdown   datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
}

func (Payment) TableName() string { return "payments" }

func (payment *Payment) BeforeCreate(tx *gorm.DB) error {
	if payment.PaymentID == "" {
		payment.PaymentID = uuid.NewString()
	}
	return nil
}

// AuditLog mirrors the append-only audit_logs table.
type AuditLog struct {
	AuditID       string         `gorm:"type:uuid;primaryKey"`
	EntityType    string         `gorm:"not null;index:idx_audit_entity,priority:1"`
	EntityID      string         `gorm:"not null;index:idx_audit_entity,priority:2"`
	Action        string         `gorm:"not null"`
	PreviousState datatypes.JSON `gorm:""`
	NextState     datatypes.JSON `gorm:""`
	ActorID       *string        `gorm:""`
	Metadata      datatypes.JSON `gorm:""`
	CreatedAt     time.Time      `gorm:"not null;index:idx_audit_created"`
}

func (AuditLog) TableName() string { return "audit_logs" }

func (auditLog *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if auditLog.AuditID == "" {
		auditLog.AuditID = uuid.NewString()
	}
	return nil
}

// Migrate creates or updates every table the store uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Floor{}, &Spot{}, &Vehicle{}, &Gate{}, &Ticket{}, &Payment{}, &AuditLog{})
}
