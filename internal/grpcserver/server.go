package grpcserver

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	errorGateNotFound         = "gate_not_found"
	errorTicketNotFound       = "ticket_not_found"
	errorSpotNotFound         = "spot_not_found"
	errorVehicleHasActive     = "vehicle_has_active_ticket"
	errorVehicleCategory      = "vehicle_category_mismatch"
	errorNoSpotAvailable      = "no_spot_available"
	errorWrongGateDirection   = "wrong_gate_direction"
	errorTicketNotActive      = "ticket_not_active"
	errorSpotOccupied         = "spot_occupied"
	errorInvalidPlateNumber   = "invalid_vehicle_number"
	errorInvalidVehicleType   = "invalid_vehicle_type"
	errorInvalidTicketNumber  = "invalid_ticket_number"
	errorInvalidGateID        = "invalid_gate_id"
	errorInvalidSpotID        = "invalid_spot_id"
	errorInvalidActorID       = "invalid_actor_id"
	errorInvalidSpotStatus    = "invalid_spot_status"
	errorInvalidPaymentMethod = "invalid_payment_method"
	errorInvalidArgument      = "invalid_argument"
	errorNotFound             = "not_found"
	errorConflict             = "conflict"
	errorAdmissionDenied      = "admission_denied"
	errorInvalidState         = "invalid_state"
	errorRetryable            = "retryable"
	errorInternal             = "internal"
)

// ParkingService is the domain surface the transport calls.
type ParkingService interface {
	HandleEntry(ctx context.Context, request parking.EntryRequest) (parking.Ticket, error)
	HandleExit(ctx context.Context, request parking.ExitRequest) (parking.ExitReceipt, error)
	SetSpotStatus(ctx context.Context, change parking.SpotStatusChange) (parking.Spot, error)
}

// ParkingServer exposes the parking service over gRPC.
type ParkingServer struct {
	parkingService ParkingService
}

// NewParkingServer constructs a gRPC server for the parking service.
func NewParkingServer(parkingService ParkingService) *ParkingServer {
	return &ParkingServer{parkingService: parkingService}
}

func (server *ParkingServer) Entry(ctx context.Context, request *EntryRequest) (*Ticket, error) {
	plate, err := parking.NewPlateNumber(request.VehicleNumber)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	category, err := parking.ParseVehicleCategory(request.VehicleType)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	gateID, err := parking.NewGateID(request.GateID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	actorID, err := parking.NewActorID(request.ActorID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	ticket, operationError := server.parkingService.HandleEntry(ctx, parking.EntryRequest{
		Plate:    plate,
		Category: category,
		GateID:   gateID,
		ActorID:  actorID,
	})
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	response := NewTicket(ticket)
	return &response, nil
}

func (server *ParkingServer) Exit(ctx context.Context, request *ExitRequest) (*ExitResponse, error) {
	ticketNumber, err := parking.NewTicketNumber(request.TicketNumber)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	gateID, err := parking.NewGateID(request.GateID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	method, err := parking.ParsePaymentMethod(request.PaymentMethod)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	actorID, err := parking.NewActorID(request.ActorID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	receipt, operationError := server.parkingService.HandleExit(ctx, parking.ExitRequest{
		TicketNumber: ticketNumber,
		GateID:       gateID,
		Method:       method,
		ActorID:      actorID,
	})
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	return &ExitResponse{
		Ticket:  NewTicket(receipt.Ticket),
		Payment: NewPayment(receipt.Payment),
	}, nil
}

func (server *ParkingServer) SetSpotStatus(ctx context.Context, request *SetSpotStatusRequest) (*Spot, error) {
	spotID, err := parking.NewSpotID(request.SpotID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	spotStatus, err := parking.ParseSpotStatus(request.Status)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	actorID, err := parking.NewActorID(request.ActorID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	spot, operationError := server.parkingService.SetSpotStatus(ctx, parking.SpotStatusChange{
		SpotID:  spotID,
		Status:  spotStatus,
		ActorID: actorID,
		Reason:  request.Reason,
	})
	if operationError != nil {
		return nil, mapToGRPCError(operationError)
	}
	response := NewSpot(spot)
	return &response, nil
}

// specificErrors maps the errors callers branch on to stable reason codes.
// First match wins.
var specificErrors = []struct {
	target error
	code   codes.Code
	reason string
}{
	{parking.ErrInvalidPlateNumber, codes.InvalidArgument, errorInvalidPlateNumber},
	{parking.ErrInvalidVehicleCategory, codes.InvalidArgument, errorInvalidVehicleType},
	{parking.ErrInvalidTicketNumber, codes.InvalidArgument, errorInvalidTicketNumber},
	{parking.ErrInvalidGateID, codes.InvalidArgument, errorInvalidGateID},
	{parking.ErrInvalidSpotID, codes.InvalidArgument, errorInvalidSpotID},
	{parking.ErrInvalidActorID, codes.InvalidArgument, errorInvalidActorID},
	{parking.ErrInvalidSpotStatus, codes.InvalidArgument, errorInvalidSpotStatus},
	{parking.ErrInvalidPaymentMethod, codes.InvalidArgument, errorInvalidPaymentMethod},
	{parking.ErrGateNotFound, codes.NotFound, errorGateNotFound},
	{parking.ErrTicketNotFound, codes.NotFound, errorTicketNotFound},
	{parking.ErrSpotNotFound, codes.NotFound, errorSpotNotFound},
	{parking.ErrVehicleHasActiveTicket, codes.AlreadyExists, errorVehicleHasActive},
	{parking.ErrVehicleCategoryMismatch, codes.FailedPrecondition, errorVehicleCategory},
	{parking.ErrNoSpotAvailable, codes.ResourceExhausted, errorNoSpotAvailable},
	{parking.ErrWrongGateDirection, codes.FailedPrecondition, errorWrongGateDirection},
	{parking.ErrTicketNotActive, codes.FailedPrecondition, errorTicketNotActive},
	{parking.ErrSpotOccupied, codes.FailedPrecondition, errorSpotOccupied},
}

var kindErrors = []struct {
	target error
	code   codes.Code
	reason string
}{
	{parking.ErrTransient, codes.Aborted, errorRetryable},
	{parking.ErrInvalidInput, codes.InvalidArgument, errorInvalidArgument},
	{parking.ErrNotFound, codes.NotFound, errorNotFound},
	{parking.ErrConflict, codes.AlreadyExists, errorConflict},
	{parking.ErrAdmissionDenied, codes.ResourceExhausted, errorAdmissionDenied},
	{parking.ErrInvalidState, codes.FailedPrecondition, errorInvalidState},
}

// Classify returns the status code and stable reason string for an error
// returned by the parking service.
func Classify(source error) (codes.Code, string) {
	for _, candidate := range specificErrors {
		if errors.Is(source, candidate.target) {
			return candidate.code, candidate.reason
		}
	}
	for _, candidate := range kindErrors {
		if errors.Is(source, candidate.target) {
			return candidate.code, candidate.reason
		}
	}
	if errors.Is(source, context.Canceled) {
		return codes.Canceled, source.Error()
	}
	if errors.Is(source, context.DeadlineExceeded) {
		return codes.DeadlineExceeded, source.Error()
	}
	return codes.Internal, errorInternal
}

func mapToGRPCError(source error) error {
	code, reason := Classify(source)
	return status.Error(code, reason)
}
