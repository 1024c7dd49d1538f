package parking

import (
	"context"
	"math"
	"time"
)

// SpotUpdate announces a committed spot status change.
// TicketNumber is set when the change was caused by a ticket.
type SpotUpdate struct {
	SpotID       string     `json:"spotId"`
	Code         string     `json:"code"`
	FloorNumber  int        `json:"floorNumber"`
	Status       SpotStatus `json:"status"`
	Action       string     `json:"action"`
	TicketNumber string     `json:"ticketNumber,omitempty"`
	At           time.Time  `json:"at"`
}

// TicketLifecycle announces a committed ticket creation or completion.
type TicketLifecycle struct {
	TicketID     string       `json:"ticketId"`
	TicketNumber string       `json:"ticketNumber"`
	Plate        string       `json:"plate"`
	Status       TicketStatus `json:"status"`
	Action       string       `json:"action"`
	SpotCode     string       `json:"spotCode"`
	AmountCents  *int64       `json:"amountCents,omitempty"`
	At           time.Time    `json:"at"`
}

// DashboardMetrics is the live occupancy summary.
type DashboardMetrics struct {
	ActiveTickets int64     `json:"activeTickets"`
	TotalSpots    int64     `json:"totalSpots"`
	OccupiedSpots int64     `json:"occupiedSpots"`
	OccupancyRate float64   `json:"occupancyRate"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Notifier receives events after the transaction producing them has committed.
// Implementations must not block the caller for long and own their delivery
// failures.
type Notifier interface {
	PublishSpotUpdated(ctx context.Context, update SpotUpdate)
	PublishTicketLifecycle(ctx context.Context, event TicketLifecycle)
	PublishDashboardMetrics(ctx context.Context, metrics DashboardMetrics)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) PublishSpotUpdated(context.Context, SpotUpdate)             {}
func (NopNotifier) PublishTicketLifecycle(context.Context, TicketLifecycle)    {}
func (NopNotifier) PublishDashboardMetrics(context.Context, DashboardMetrics) {}

// occupancyRate returns occupied/total as a percentage rounded to two decimals.
func occupancyRate(occupied int64, total int64) float64 {
	if total <= 0 {
		return 0
	}
	rate := float64(occupied) / float64(total) * occupancyPercentScale
	return math.Round(rate*100) / 100
}
