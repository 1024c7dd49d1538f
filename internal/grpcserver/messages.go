package grpcserver

import (
	"time"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
)

// EntryRequest asks the facility to admit a vehicle at an entry gate.
type EntryRequest struct {
	VehicleNumber string `json:"vehicle_number"`
	VehicleType   string `json:"vehicle_type"`
	GateID        string `json:"gate_id"`
	ActorID       string `json:"actor_id,omitempty"`
}

// ExitRequest presents a ticket at an exit gate.
type ExitRequest struct {
	TicketNumber  string `json:"ticket_number"`
	GateID        string `json:"gate_id"`
	PaymentMethod string `json:"payment_method"`
	ActorID       string `json:"actor_id,omitempty"`
}

// SetSpotStatusRequest changes the administrative status of a free spot.
type SetSpotStatusRequest struct {
	SpotID  string `json:"spot_id"`
	Status  string `json:"status"`
	ActorID string `json:"actor_id,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// Spot is the wire form of a parking spot.
type Spot struct {
	SpotID      string `json:"spot_id"`
	Code        string `json:"code"`
	Category    string `json:"category"`
	Status      string `json:"status"`
	FloorNumber int    `json:"floor_number"`
}

// Ticket is the wire form of a ticket.
type Ticket struct {
	TicketID        string     `json:"ticket_id"`
	TicketNumber    string     `json:"ticket_number"`
	VehicleNumber   string     `json:"vehicle_number"`
	VehicleType     string     `json:"vehicle_type"`
	Status          string     `json:"status"`
	EntryTime       time.Time  `json:"entry_time"`
	ExitTime        *time.Time `json:"exit_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`
	AmountCents     *int64     `json:"amount_cents,omitempty"`
	Spot            Spot       `json:"spot"`
}

// Payment is the wire form of a settled payment.
type Payment struct {
	PaymentID   string                `json:"payment_id"`
	AmountCents int64                 `json:"amount_cents"`
	Method      string                `json:"method"`
	Status      string                `json:"status"`
	PaidAt      time.Time             `json:"paid_at"`
	Breakdown   parking.FareBreakdown `json:"breakdown"`
}

// ExitResponse carries the completed ticket and its payment.
type ExitResponse struct {
	Ticket  Ticket  `json:"ticket"`
	Payment Payment `json:"payment"`
}

// NewSpot converts a domain spot to its wire form.
func NewSpot(spot parking.Spot) Spot {
	return Spot{
		SpotID:      spot.ID,
		Code:        spot.Code,
		Category:    spot.Category.String(),
		Status:      spot.Status.String(),
		FloorNumber: spot.FloorNumber,
	}
}

// NewTicket converts a domain ticket to its wire form.
func NewTicket(ticket parking.Ticket) Ticket {
	response := Ticket{
		TicketID:        ticket.ID,
		TicketNumber:    ticket.Number.String(),
		VehicleNumber:   ticket.Vehicle.Plate.String(),
		VehicleType:     ticket.Vehicle.Category.String(),
		Status:          ticket.Status.String(),
		EntryTime:       ticket.EntryTime,
		ExitTime:        ticket.ExitTime,
		DurationMinutes: ticket.DurationMinutes,
		Spot:            NewSpot(ticket.Spot),
	}
	if ticket.AmountCents != nil {
		amount := ticket.AmountCents.Int64()
		response.AmountCents = &amount
	}
	return response
}

// NewPayment converts a domain payment to its wire form.
func NewPayment(payment parking.Payment) Payment {
	return Payment{
		PaymentID:   payment.ID,
		AmountCents: payment.AmountCents.Int64(),
		Method:      payment.Method.String(),
		Status:      payment.Status.String(),
		PaidAt:      payment.PaidAt,
		Breakdown:   payment.Breakdown,
	}
}
