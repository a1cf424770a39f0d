// Package fulfillment turns a verified, paid checkout into an order. The order,
// its stock decrements and the order_paid notification fact commit together;
// email delivery happens later off the outbox.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kiggyshop-backend/internal/checkout"
	"github.com/angelmondragon/kiggyshop-backend/internal/orders"
	"github.com/angelmondragon/kiggyshop-backend/internal/stock"
	dbpkg "github.com/angelmondragon/kiggyshop-backend/pkg/db"
	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/payloads"
)

const (
	uniqueOrderCheckoutSession = "ux_orders_checkout_session"
	uniqueOrderProviderSession = "ux_orders_provider_session"
)

var (
	// ErrDuplicateFulfillment means the checkout session already produced an order.
	ErrDuplicateFulfillment = errors.New("checkout session already fulfilled")
	// ErrUnknownSession means the provider reported a checkout we never recorded.
	ErrUnknownSession = errors.New("unknown checkout session")
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type fulfillmentMetrics interface {
	Fulfillment(outcome string)
	Oversold(units int)
}

// Params wires the coordinator.
type Params struct {
	Tx       txRunner
	Sessions checkout.Repository
	Orders   orders.Repository
	Stock    stock.Repository
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Metrics  fulfillmentMetrics
	Now      func() time.Time
}

// Coordinator records orders for completed checkouts.
type Coordinator struct {
	tx       txRunner
	sessions checkout.Repository
	orders   orders.Repository
	stock    stock.Repository
	outbox   outboxPublisher
	logg     *logger.Logger
	metrics  fulfillmentMetrics
	now      func() time.Time
}

func NewCoordinator(p Params) (*Coordinator, error) {
	switch {
	case p.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case p.Sessions == nil:
		return nil, fmt.Errorf("checkout session repository required")
	case p.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case p.Stock == nil:
		return nil, fmt.Errorf("stock repository required")
	case p.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case p.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	return &Coordinator{
		tx:       p.Tx,
		sessions: p.Sessions,
		orders:   p.Orders,
		stock:    p.Stock,
		outbox:   p.Outbox,
		logg:     p.Logger,
		metrics:  p.Metrics,
		now:      now,
	}, nil
}

// Fulfill claims the pending checkout session, records the order with its
// line items and address, decrements stock and queues the confirmation, all
// in one transaction. A session that was already fulfilled yields
// ErrDuplicateFulfillment and changes nothing. Stock never goes below zero:
// a shortfall is recorded on the line and flags the order for reconciliation.
func (c *Coordinator) Fulfill(ctx context.Context, in CheckoutCompleted) (*Result, error) {
	if in.CheckoutSessionID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeMalformedPayload, "checkout session id required")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": in.CheckoutSessionID.String(),
		"provider_session_id": in.ProviderSessionID,
		"event_id":            in.EventID,
	})

	var result *Result
	err := c.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = c.fulfillTx(ctx, tx, in)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, ErrDuplicateFulfillment):
		c.record("duplicate")
		c.logg.Info(ctx, "checkout session already fulfilled")
		return nil, err
	case errors.Is(err, ErrUnknownSession):
		c.record("unknown_session")
		c.logg.Error(ctx, "paid checkout references an unknown session", err)
		return nil, err
	default:
		c.record("error")
		c.logg.Error(ctx, "fulfillment failed", err)
		return nil, err
	}

	c.record("fulfilled")
	if c.metrics != nil {
		c.metrics.Oversold(result.OversoldUnits)
	}
	fields := map[string]any{
		"order_id":    result.OrderID.String(),
		"total_cents": result.TotalCents,
	}
	if result.NeedsReconciliation {
		fields["oversold_units"] = result.OversoldUnits
		c.logg.Warn(c.logg.WithFields(ctx, fields), "order recorded with stock shortfall; needs reconciliation")
	} else {
		c.logg.Info(c.logg.WithFields(ctx, fields), "order recorded")
	}
	return result, nil
}

// FlagUnshippable records on the checkout session that it was paid but could
// not become an order. Redeliveries flag the same row again.
func (c *Coordinator) FlagUnshippable(ctx context.Context, in *UnshippableError) error {
	if in == nil || in.CheckoutSessionID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeMalformedPayload, "checkout session id required")
	}
	ctx = c.logg.WithFields(ctx, map[string]any{
		"checkout_session_id": in.CheckoutSessionID.String(),
		"provider_session_id": in.ProviderSessionID,
	})
	reason := "unknown"
	if in.Err != nil {
		reason = in.Err.Error()
	}
	flagged, err := c.sessions.FlagAttention(ctx, in.CheckoutSessionID, reason)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "flag checkout session")
	}
	if !flagged {
		c.logg.Info(ctx, "unshippable checkout has no open session to flag")
		return nil
	}
	c.record("needs_attention")
	c.logg.Warn(c.logg.WithField(ctx, "reason", reason), "paid checkout flagged for attention")
	return nil
}

func (c *Coordinator) fulfillTx(ctx context.Context, tx *gorm.DB, in CheckoutCompleted) (*Result, error) {
	sessions := c.sessions.WithTx(tx)
	now := c.now().UTC()
	orderID := uuid.New()

	claimed, err := sessions.Claim(ctx, in.CheckoutSessionID, orderID, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim checkout session")
	}
	session, err := sessions.FindByID(ctx, in.CheckoutSessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load checkout session")
	}
	if session == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, ErrUnknownSession, "checkout session not found")
	}
	if !claimed {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFulfillment, session.ID)
	}
	if len(session.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout session has no lines")
	}

	needsReconciliation := false
	if session.ProviderSessionID != nil && *session.ProviderSessionID != in.ProviderSessionID {
		needsReconciliation = true
		c.logg.Warn(c.logg.WithField(ctx, "recorded_provider_session_id", *session.ProviderSessionID), "provider session id differs from recorded session")
	}
	if in.AmountTotalCents > 0 && in.AmountTotalCents != session.TotalCents {
		needsReconciliation = true
		c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
			"charged_cents":  in.AmountTotalCents,
			"recorded_cents": session.TotalCents,
		}), "charged amount differs from recorded total")
	}

	items := c.stock.WithTx(tx)
	result := &Result{
		OrderID:           orderID,
		CheckoutSessionID: session.ID,
		TotalCents:        session.TotalCents,
		Lines:             make([]LineResult, 0, len(session.Lines)),
	}
	lineItems := make([]models.OrderLineItem, 0, len(session.Lines))
	eventLines := make([]payloads.OrderLine, 0, len(session.Lines))
	for _, line := range session.Lines {
		dec, err := items.Decrement(ctx, line.ItemID, line.Quantity)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement stock").
				WithDetails(map[string]any{"item_id": line.ItemID})
		}
		if dec.Shortfall > 0 {
			needsReconciliation = true
			result.OversoldUnits += dec.Shortfall
			c.logg.Warn(c.logg.WithFields(ctx, map[string]any{
				"item_id":   line.ItemID,
				"requested": line.Quantity,
				"in_stock":  dec.Before,
				"shortfall": dec.Shortfall,
				"missing":   dec.Missing,
			}), "stock shortfall at fulfillment")
		}
		result.Lines = append(result.Lines, LineResult{
			ItemID:     line.ItemID,
			Quantity:   line.Quantity,
			StockAfter: dec.After,
			OversoldBy: dec.Shortfall,
		})
		lineItems = append(lineItems, models.OrderLineItem{
			ItemID:         line.ItemID,
			Title:          line.Title,
			Kind:           line.Kind,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
			OversoldBy:     dec.Shortfall,
		})
		eventLines = append(eventLines, payloads.OrderLine{
			ItemID:         line.ItemID,
			Title:          line.Title,
			Kind:           line.Kind,
			UnitPriceCents: line.UnitPriceCents,
			Quantity:       line.Quantity,
			LineTotalCents: line.LineTotalCents,
		})
	}
	result.NeedsReconciliation = needsReconciliation

	order := &models.Order{
		ID:                  orderID,
		CheckoutSessionID:   session.ID,
		ProviderSessionID:   in.ProviderSessionID,
		Name:                in.Name,
		Email:               strings.ToLower(in.Email),
		SubtotalCents:       session.SubtotalCents,
		ShippingCents:       session.ShippingCents,
		TotalCents:          session.TotalCents,
		Currency:            session.Currency,
		NeedsReconciliation: needsReconciliation,
		Items:               lineItems,
		Address: &models.OrderAddress{
			Name:    in.Address.Name,
			Number:  in.Address.Number,
			Street:  in.Address.Street,
			City:    in.Address.City,
			State:   in.Address.State,
			Zipcode: in.Address.Zipcode,
		},
	}
	if err := c.orders.WithTx(tx).Create(ctx, order); err != nil {
		if dbpkg.IsUniqueViolation(err, uniqueOrderCheckoutSession) || dbpkg.IsUniqueViolation(err, uniqueOrderProviderSession) {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateFulfillment, session.ID)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order")
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data: payloads.OrderPaidEvent{
			OrderID:             orderID,
			CheckoutSessionID:   session.ID,
			Name:                order.Name,
			Email:               order.Email,
			Address:             in.Address.String(),
			Lines:               eventLines,
			SubtotalCents:       order.SubtotalCents,
			ShippingCents:       order.ShippingCents,
			TotalCents:          order.TotalCents,
			Currency:            order.Currency,
			NeedsReconciliation: needsReconciliation,
		},
		OccurredAt: now,
	}
	if err := c.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order paid")
	}
	return result, nil
}

func (c *Coordinator) record(outcome string) {
	if c.metrics != nil {
		c.metrics.Fulfillment(outcome)
	}
}
