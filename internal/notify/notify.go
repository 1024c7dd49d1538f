// Package notify provides post-commit notification sinks for parking events.
// Sinks are best effort: failures are logged and never reach the caller.
package notify

import (
	"context"
	"encoding/json"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis channels used by RedisNotifier.
const (
	ChannelSpotUpdated      = "parking:spot.updated"
	ChannelTicketLifecycle  = "parking:ticket.lifecycle"
	ChannelDashboardMetrics = "parking:dashboard.metrics"
)

// LogNotifier writes every event as a structured log line.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier returns a notifier that logs through logger.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

func (notifier *LogNotifier) PublishSpotUpdated(_ context.Context, update parking.SpotUpdate) {
	fields := []zap.Field{
		zap.String("spot_id", update.SpotID),
		zap.String("spot_code", update.Code),
		zap.Int("floor_number", update.FloorNumber),
		zap.String("status", update.Status.String()),
		zap.String("action", update.Action),
	}
	if update.TicketNumber != "" {
		fields = append(fields, zap.String("ticket_number", update.TicketNumber))
	}
	notifier.logger.Info("spot updated", fields...)
}

func (notifier *LogNotifier) PublishTicketLifecycle(_ context.Context, lifecycle parking.TicketLifecycle) {
	fields := []zap.Field{
		zap.String("ticket_id", lifecycle.TicketID),
		zap.String("ticket_number", lifecycle.TicketNumber),
		zap.String("plate", lifecycle.Plate),
		zap.String("status", lifecycle.Status.String()),
		zap.String("action", lifecycle.Action),
		zap.String("spot_code", lifecycle.SpotCode),
	}
	if lifecycle.AmountCents != nil {
		fields = append(fields, zap.Int64("amount_cents", *lifecycle.AmountCents))
	}
	notifier.logger.Info("ticket lifecycle", fields...)
}

func (notifier *LogNotifier) PublishDashboardMetrics(_ context.Context, metrics parking.DashboardMetrics) {
	notifier.logger.Info("dashboard metrics",
		zap.Int64("active_tickets", metrics.ActiveTickets),
		zap.Int64("total_spots", metrics.TotalSpots),
		zap.Int64("occupied_spots", metrics.OccupiedSpots),
		zap.Float64("occupancy_rate", metrics.OccupancyRate),
		zap.Time("updated_at", metrics.UpdatedAt),
	)
}

// Publisher is the subset of the go-redis client used for pub/sub.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisNotifier publishes JSON events on Redis channels.
type RedisNotifier struct {
	publisher Publisher
	logger    *zap.Logger
}

// NewRedisNotifier returns a notifier publishing through publisher. Publish
// failures are logged on logger.
func NewRedisNotifier(publisher Publisher, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisNotifier{publisher: publisher, logger: logger}
}

func (notifier *RedisNotifier) PublishSpotUpdated(ctx context.Context, update parking.SpotUpdate) {
	notifier.publish(ctx, ChannelSpotUpdated, update)
}

func (notifier *RedisNotifier) PublishTicketLifecycle(ctx context.Context, lifecycle parking.TicketLifecycle) {
	notifier.publish(ctx, ChannelTicketLifecycle, lifecycle)
}

func (notifier *RedisNotifier) PublishDashboardMetrics(ctx context.Context, metrics parking.DashboardMetrics) {
	notifier.publish(ctx, ChannelDashboardMetrics, metrics)
}

func (notifier *RedisNotifier) publish(ctx context.Context, channel string, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		notifier.logger.Warn("notification encode failed", zap.String("channel", channel), zap.Error(err))
		return
	}
	if err := notifier.publisher.Publish(ctx, channel, payload).Err(); err != nil {
		notifier.logger.Warn("notification publish failed", zap.String("channel", channel), zap.Error(err))
	}
}

// Fanout delivers each event to every sink in order.
type Fanout []parking.Notifier

func (fanout Fanout) PublishSpotUpdated(ctx context.Context, update parking.SpotUpdate) {
	for _, notifier := range fanout {
		notifier.PublishSpotUpdated(ctx, update)
	}
}

func (fanout Fanout) PublishTicketLifecycle(ctx context.Context, lifecycle parking.TicketLifecycle) {
	for _, notifier := range fanout {
		notifier.PublishTicketLifecycle(ctx, lifecycle)
	}
}

func (fanout Fanout) PublishDashboardMetrics(ctx context.Context, metrics parking.DashboardMetrics) {
	for _, notifier := range fanout {
		notifier.PublishDashboardMetrics(ctx, metrics)
	}
}
