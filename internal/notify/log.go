package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// LogNotifier writes escalations to the structured log.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("escalation")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(_ context.Context, kind domain.BreachKind, ticketID string, recipientIDs []string, nctx Context) error {
	level := zap.WarnLevel
	if kind.IsBreached() {
		level = zap.ErrorLevel
	}
	n.logger.Log(level, "sla escalation",
		zap.String("kind", string(kind)),
		zap.String("ticket_id", ticketID),
		zap.Strings("recipients", recipientIDs),
		zap.String("priority", string(nctx.Priority)),
		zap.Time("due_at", nctx.DueAt),
	)
	return nil
}
