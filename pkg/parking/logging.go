package parking

import "context"

// ServiceOption configures a Service instance.
type ServiceOption func(*Service)

// OperationLogger records domain-level events emitted by Service operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes one gate or admin operation.
type OperationLog struct {
	Operation    string
	Plate        PlateNumber
	TicketNumber TicketNumber
	GateID       GateID
	ActorID      ActorID
	SpotCode     string
	Amount       AmountCents
	Status       string
	Error        error
	// NotifyError is set when the operation committed but the post-commit
	// dashboard refresh could not be computed.
	NotifyError error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) ServiceOption {
	return func(service *Service) {
		service.logger = logger
	}
}

// WithNotifier wires the sink for committed-state notifications.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(service *Service) {
		if notifier != nil {
			service.notifier = notifier
		}
	}
}

// WithTicketNumberGenerator replaces the default ticket number generator.
func WithTicketNumberGenerator(generator TicketNumberGenerator) ServiceOption {
	return func(service *Service) {
		if generator != nil {
			service.ticketNumbers = generator
		}
	}
}

// WithCandidateBatchSize sets how many candidate spots are read per allocation page.
func WithCandidateBatchSize(size int) ServiceOption {
	return func(service *Service) {
		if size > 0 {
			service.allocator.batchSize = size
		}
	}
}
