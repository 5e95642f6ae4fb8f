package events

import (
	"context"

	"go.uber.org/zap"
)

// LogEmitter writes events to the log. It stands in for kafka when no
// brokers are configured.
type LogEmitter struct {
	logger *zap.Logger
}

func NewLogEmitter(logger *zap.Logger) *LogEmitter {
	if logger == nil {
		logger = zap.L()
	}
	return &LogEmitter{logger: logger.Named("events")}
}

func (e *LogEmitter) Emit(_ context.Context, channel string, event Event) error {
	e.logger.Info("event",
		zap.String("channel", channel),
		zap.String("event_type", event.EventType),
		zap.String("user_id", event.UserID),
		zap.String("org_id", event.OrgID),
		zap.String("subject_id", event.SubjectID),
		zap.String("message", event.Message),
	)
	return nil
}
