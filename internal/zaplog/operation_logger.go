// Package zaplog adapts parking operation callbacks to zap.
package zaplog

import (
	"context"
	"errors"

	"github.com/MarkoPoloResearchLab/parking/pkg/parking"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const operationMessage = "parking operation"

// OperationLogger implements parking.OperationLogger on top of zap.
type OperationLogger struct {
	logger *zap.Logger
}

// NewOperationLogger returns an OperationLogger writing to logger.
func NewOperationLogger(logger *zap.Logger) *OperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OperationLogger{logger: logger}
}

// LogOperation writes one entry. Rejections the caller can act on log at warn,
// everything else that failed logs at error.
func (operationLogger *OperationLogger) LogOperation(_ context.Context, entry parking.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	fields = appendIfSet(fields, "plate", entry.Plate.String())
	fields = appendIfSet(fields, "ticket_number", entry.TicketNumber.String())
	fields = appendIfSet(fields, "gate_id", entry.GateID.String())
	fields = appendIfSet(fields, "actor_id", entry.ActorID.String())
	fields = appendIfSet(fields, "spot_code", entry.SpotCode)
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount_cents", entry.Amount.Int64()))
	}
	if entry.NotifyError != nil {
		fields = append(fields, zap.NamedError("notify_error", entry.NotifyError))
	}
	if entry.Error != nil {
		fields = append(fields, zap.Error(entry.Error), zap.Bool("retryable", parking.IsRetryable(entry.Error)))
	}
	operationLogger.logger.Check(levelFor(entry), operationMessage).Write(fields...)
}

func levelFor(entry parking.OperationLog) zapcore.Level {
	switch {
	case entry.Error == nil && entry.NotifyError == nil:
		return zapcore.InfoLevel
	case entry.Error == nil:
		return zapcore.WarnLevel
	case isRejection(entry.Error):
		return zapcore.WarnLevel
	default:
		return zapcore.ErrorLevel
	}
}

func isRejection(err error) bool {
	return errors.Is(err, parking.ErrNotFound) ||
		errors.Is(err, parking.ErrConflict) ||
		errors.Is(err, parking.ErrAdmissionDenied) ||
		errors.Is(err, parking.ErrInvalidState) ||
		errors.Is(err, parking.ErrInvalidInput)
}

func appendIfSet(fields []zap.Field, key string, value string) []zap.Field {
	if value == "" {
		return fields
	}
	return append(fields, zap.String(key, value))
}
