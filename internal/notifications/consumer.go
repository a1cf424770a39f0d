// Package notifications delivers customer email for order lifecycle events
// read off the orders Pub/Sub subscription.
package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/mailer"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/registry"
)

const orderEmailConsumer = "order-emails"

// ErrEmailDelivery wraps a failed send. The message is nacked for redelivery;
// the order itself is already durable.
var ErrEmailDelivery = errors.New("order email delivery failed")

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type emailMetrics interface {
	Email(template, outcome string)
}

// Consumer turns order_paid and order_shipped events into customer email.
type Consumer struct {
	sender       mailer.Sender
	subscription *pubsub.Subscriber
	decoders     *registry.DecoderRegistry
	idempotency  idempotencyGuard
	logg         *logger.Logger
	metrics      emailMetrics
}

// NewConsumer builds the order email consumer. metrics may be nil.
func NewConsumer(sender mailer.Sender, subscription *pubsub.Subscriber, guard idempotencyGuard, logg *logger.Logger, metrics emailMetrics) (*Consumer, error) {
	switch {
	case sender == nil:
		return nil, errors.New("notifications: mail sender required")
	case subscription == nil:
		return nil, errors.New("notifications: orders subscription required")
	case guard == nil:
		return nil, errors.New("notifications: idempotency manager required")
	case logg == nil:
		return nil, errors.New("notifications: logger required")
	}
	return &Consumer{
		sender:       sender,
		subscription: subscription,
		decoders:     registry.PayloadDecoders(),
		idempotency:  guard,
		logg:         logg,
		metrics:      metrics,
	}, nil
}

// Run receives until ctx is canceled. Messages are acked unless a retry
// could succeed.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes["event_type"], msg.Data).nack {
			msg.Nack()
			return
		}
		msg.Ack()
	})
}

type processResult struct {
	ack  bool
	nack bool
}

var (
	acked  = processResult{ack: true}
	nacked = processResult{nack: true}
)

func (c *Consumer) process(ctx context.Context, messageID, rawType string, data []byte) processResult {
	eventType := enums.OutboxEventType(rawType)
	logCtx := c.logg.WithFields(ctx, map[string]any{"message_id": messageID, "event_type": rawType})

	if !c.decoders.Handles(eventType) {
		c.logg.Debug(logCtx, "notifications.skip")
		return acked
	}

	var env outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.logg.Error(logCtx, "notifications.bad_envelope", err)
		return acked
	}
	eventID, err := uuid.Parse(env.EventID)
	if err != nil {
		c.logg.Error(logCtx, "notifications.bad_event_id", err)
		return acked
	}
	logCtx = c.logg.WithField(logCtx, "event_id", eventID.String())

	seen, err := c.idempotency.CheckAndMarkProcessed(ctx, orderEmailConsumer, eventID)
	if err != nil {
		c.logg.Error(logCtx, "notifications.idempotency_unavailable", err)
		return nacked
	}
	if seen {
		c.logg.Info(logCtx, "notifications.duplicate")
		return acked
	}

	template := templateFor(eventType)
	logCtx = c.logg.WithField(logCtx, "template", template)

	msg, err := c.render(eventType, env)
	if err != nil {
		// rendering is deterministic, a redelivery would fail the same way
		c.logg.Error(logCtx, "notifications.unrenderable", err)
		c.record(template, "invalid")
		return acked
	}

	if err := c.sender.Send(ctx, msg); err != nil {
		c.logg.Error(logCtx, "notifications.send_failed", fmt.Errorf("%w: %w", ErrEmailDelivery, err))
		c.record(template, "failed")
		if err := c.idempotency.Delete(ctx, orderEmailConsumer, eventID); err != nil {
			c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notifications.release_failed")
		}
		return nacked
	}

	c.record(template, "sent")
	c.logg.Info(logCtx, "notifications.sent")
	return acked
}

func (c *Consumer) render(eventType enums.OutboxEventType, env outbox.PayloadEnvelope) (mailer.Message, error) {
	payload, err := c.decoders.Decode(eventType, env.Version, env.Data)
	if err != nil {
		return mailer.Message{}, err
	}
	switch event := payload.(type) {
	case *payloads.OrderPaidEvent:
		if event.Email == "" {
			return mailer.Message{}, errors.New("order paid event has no email")
		}
		return renderConfirmation(*event)
	case *payloads.OrderShippedEvent:
		if event.Email == "" {
			return mailer.Message{}, errors.New("order shipped event has no email")
		}
		return renderShipped(*event)
	default:
		return mailer.Message{}, fmt.Errorf("no email for payload %T", payload)
	}
}

func templateFor(eventType enums.OutboxEventType) string {
	if eventType == enums.EventOrderShipped {
		return templateShipped
	}
	return templateConfirmation
}

func (c *Consumer) record(template, outcome string) {
	if c.metrics != nil {
		c.metrics.Email(template, outcome)
	}
}
