package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/domain"
)

// WebhookNotifier posts escalations as JSON. A circuit breaker stops hammering a dead endpoint;
// while open, deliveries fail fast and the events are retried on later sweeps.
type WebhookNotifier struct {
	url     string
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout time.Duration, logger *zap.Logger) *WebhookNotifier {
	n := &WebhookNotifier{url: url, timeout: timeout, logger: logger}
	n.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "sla-webhook",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("webhook circuit state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return n
}

// Notify implements Notifier.
func (n *WebhookNotifier) Notify(ctx context.Context, kind domain.BreachKind, ticketID string, recipientIDs []string, nctx Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	timeout := n.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); timeout <= 0 || left < timeout {
			timeout = left
		}
	}

	_, err := n.breaker.Execute(func() (interface{}, error) {
		agent := fiber.Post(n.url)
		agent.JSON(message{Kind: kind, TicketID: ticketID, RecipientIDs: recipientIDs, Context: nctx})
		if timeout > 0 {
			agent.Timeout(timeout)
		}
		status, body, errs := agent.Bytes()
		if len(errs) > 0 {
			return nil, errs[0]
		}
		if status < fiber.StatusOK || status >= fiber.StatusMultipleChoices {
			return nil, fmt.Errorf("webhook returned %d: %s", status, truncate(body, 200))
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("webhook %s: %w", n.url, err)
	}
	return nil
}

// State reports the breaker state.
func (n *WebhookNotifier) State() gobreaker.State {
	return n.breaker.State()
}

func truncate(body []byte, max int) string {
	if len(body) > max {
		return string(body[:max])
	}
	return string(body)
}
