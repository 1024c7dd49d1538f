package parking

const (
	operationEntry         = "entry"
	operationExit          = "exit"
	operationSetSpotStatus = "set_spot_status"

	operationStatusOK    = "ok"
	operationStatusError = "error"

	EventSpotOccupied      = "spot.occupied"
	EventSpotReleased      = "spot.released"
	EventSpotStatusChanged = "spot.status_changed"
	EventTicketCreated     = "ticket.created"
	EventTicketCompleted   = "ticket.completed"
	EventPaymentSucceeded  = "payment.succeeded"

	ticketNumberPrefix     = "TKT"
	ticketNumberSeparator  = "-"
	ticketRandomSuffixSize = 4

	defaultCandidateBatchSize = 32
	maxActorIDLength          = 128
	occupancyPercentScale     = 100
)
