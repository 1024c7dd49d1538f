package gormstore

import (
	"encoding/json"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"gorm.io/datatypes"
)

func mapGate(model Gate) (parking.Gate, error) {
	direction, err := parking.ParseGateDirection(model.Direction)
	if err != nil {
		return parking.Gate{}, err
	}
	return parking.Gate{ID: model.GateID, Name: model.Name, Direction: direction}, nil
}

func mapVehicle(model Vehicle) (parking.Vehicle, error) {
	plate, err := parking.NewPlateNumber(model.PlateNumber)
	if err != nil {
		return parking.Vehicle{}, err
	}
	category, err := parking.ParseVehicleCategory(model.Category)
	if err != nil {
		return parking.Vehicle{}, err
	}
	return parking.Vehicle{ID: model.VehicleID, Plate: plate, Category: category}, nil
}

func mapSpot(model Spot, floorNumber int) (parking.Spot, error) {
	category, err := parking.ParseSpotCategory(model.Category)
	if err != nil {
		return parking.Spot{}, err
	}
	status, err := parking.ParseSpotStatus(model.Status)
	if err != nil {
		return parking.Spot{}, err
	}
	return parking.Spot{
		ID:          model.SpotID,
		Code:        model.Code,
		Category:    category,
		Status:      status,
		FloorID:     model.FloorID,
		FloorNumber: floorNumber,
	}, nil
}

func mapTicket(model Ticket) (parking.Ticket, error) {
	number, err := parking.NewTicketNumber(model.TicketNumber)
	if err != nil {
		return parking.Ticket{}, err
	}
	ticket := parking.Ticket{
		ID:              model.TicketID,
		Number:          number,
		VehicleID:       model.VehicleID,
		SpotID:          model.SpotID,
		EntryGateID:     model.EntryGateID,
		EntryTime:       model.EntryTime,
		ExitTime:        model.ExitTime,
		Status:          parking.TicketStatus(model.Status),
		DurationMinutes: model.DurationMinutes,
	}
	if model.ExitGateID != nil {
		ticket.ExitGateID = *model.ExitGateID
	}
	if model.AmountCents != nil {
		amount := parking.AmountCents(*model.AmountCents)
		ticket.AmountCents = &amount
	}
	return ticket, nil
}

func mapPayment(model Payment) (parking.Payment, error) {
	method, err := parking.ParsePaymentMethod(model.Method)
	if err != nil {
		return parking.Payment{}, err
	}
	var breakdown parking.FareBreakdown
	if len(model.Breakdown) > 0 {
		if err := json.Unmarshal(model.Breakdown, &breakdown); err != nil {
			return parking.Payment{}, err
		}
	}
	return parking.Payment{
		ID:          model.PaymentID,
		TicketID:    model.TicketID,
		AmountCents: parking.AmountCents(model.AmountCents),
		PaidAt:      model.PaidAt,
		Method:      method,
		Status:      parking.PaymentStatus(model.Status),
		Breakdown:   breakdown,
	}, nil
}

func newAuditLog(record parking.AuditRecord) (AuditLog, error) {
	previousState, err := parking.MarshalSnapshot(record.PreviousState)
	if err != nil {
		return AuditLog{}, err
	}
	nextState, err := parking.MarshalSnapshot(record.NextState)
	if err != nil {
		return AuditLog{}, err
	}
	metadata, err := parking.MarshalSnapshot(record.Metadata)
	if err != nil {
		return AuditLog{}, err
	}
	var actorID *string
	if !record.ActorID.IsZero() {
		value := record.ActorID.String()
		actorID = &value
	}
	return AuditLog{
		AuditID:       record.ID,
		EntityType:    string(record.EntityType),
		EntityID:      record.EntityID,
		Action:        record.Action,
		PreviousState: datatypes.JSON(previousState),
		NextState:     datatypes.JSON(nextState),
		ActorID:       actorID,
		Metadata:      datatypes.JSON(metadata),
		CreatedAt:     record.CreatedAt.UTC(),
	}, nil
}

func mapAuditLog(model AuditLog) (parking.AuditRecord, error) {
	previousState, err := parking.UnmarshalSnapshot(model.PreviousState)
	if err != nil {
		return parking.AuditRecord{}, err
	}
	nextState, err := parking.UnmarshalSnapshot(model.NextState)
	if err != nil {
		return parking.AuditRecord{}, err
	}
	metadata, err := parking.UnmarshalSnapshot(model.Metadata)
	if err != nil {
		return parking.AuditRecord{}, err
	}
	var actorID parking.ActorID
	if model.ActorID != nil {
		actorID, err = parking.NewActorID(*model.ActorID)
		if err != nil {
			return parking.AuditRecord{}, err
		}
	}
	return parking.AuditRecord{
		ID:            model.AuditID,
		EntityType:    parking.AuditEntityType(model.EntityType),
		EntityID:      model.EntityID,
		Action:        model.Action,
		PreviousState: previousState,
		NextState:     nextState,
		ActorID:       actorID,
		Metadata:      metadata,
		CreatedAt:     model.CreatedAt,
	}, nil
}
