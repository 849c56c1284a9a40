package audit

import (
	"context"

	"go.uber.org/zap"
)

// LogPublisher writes audit events to the structured log. It is used when no
// message bus is configured.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher constructs a LogPublisher.
func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger}
}

// Publish logs the event.
func (p *LogPublisher) Publish(_ context.Context, event Event) error {
	p.logger.Info("audit event",
		zap.String("type", EventTypeUserLoggedIn),
		zap.String("user_id", event.UserID),
		zap.String("result", event.Result),
		zap.Time("timestamp", event.Timestamp))
	return nil
}
