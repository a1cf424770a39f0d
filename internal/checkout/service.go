package checkout

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/internal/cart"
	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/money"
	"github.com/angelmondragon/kiggyshop-backend/pkg/stripe"
)

// The provider accepts session expiries between 30 minutes and 24 hours out.
const (
	minSessionTTL = 31 * time.Minute
	maxSessionTTL = 23*time.Hour + 55*time.Minute
)

// ErrProvider marks failures of the external payment provider.
var ErrProvider = errors.New("payment provider error")

type cartPricer interface {
	PriceCart(ctx context.Context, c cart.Cart) (*cart.PricedCart, error)
}

type paymentGateway interface {
	EnsurePrice(ctx context.Context, req stripe.ProductRequest) (stripe.PriceRef, error)
	CreateShippingRate(ctx context.Context, req stripe.ShippingRateRequest) (string, error)
	CreateSession(ctx context.Context, req stripe.SessionRequest) (*stripe.Session, error)
}

type sessionMetrics interface {
	CheckoutSession(outcome string)
}

// Service opens hosted payment sessions for shopper carts.
type Service interface {
	CreateSession(ctx context.Context, c cart.Cart) (*SessionResult, error)
}

// ServiceParams wires the checkout service.
type ServiceParams struct {
	Repo       Repository
	Pricer     cartPricer
	Gateway    paymentGateway
	Shipping   config.ShippingConfig
	Currency   string
	SessionTTL time.Duration
	Logger     *logger.Logger
	Metrics    sessionMetrics
	Now        func() time.Time
}

type service struct {
	repo     Repository
	pricer   cartPricer
	gateway  paymentGateway
	shipping config.ShippingConfig
	currency string
	ttl      time.Duration
	logg     *logger.Logger
	metrics  sessionMetrics
	now      func() time.Time
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("checkout repository required")
	}
	if params.Pricer == nil {
		return nil, fmt.Errorf("cart pricer required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Shipping.AmountCents < 0 {
		return nil, fmt.Errorf("shipping amount must not be negative")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "usd"
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repo,
		pricer:   params.Pricer,
		gateway:  params.Gateway,
		shipping: params.Shipping,
		currency: currency,
		ttl:      clampTTL(params.SessionTTL),
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

func clampTTL(ttl time.Duration) time.Duration {
	switch {
	case ttl <= 0, ttl > maxSessionTTL:
		return maxSessionTTL
	case ttl < minSessionTTL:
		return minSessionTTL
	}
	return ttl
}

// CreateSession prices the cart, records a pending checkout session and
// opens the provider session that references it.
func (s *service) CreateSession(ctx context.Context, c cart.Cart) (*SessionResult, error) {
	priced, err := s.pricer.PriceCart(ctx, c)
	if err != nil {
		s.record("rejected")
		return nil, err
	}

	lines := make([]models.CheckoutLine, len(priced.Lines))
	sessionLines := make([]stripe.SessionLine, len(priced.Lines))
	for i, line := range priced.Lines {
		priceID, err := s.resolvePrice(ctx, line)
		if err != nil {
			return nil, err
		}
		lines[i] = models.CheckoutLine{
			ItemID:          line.ItemID,
			Title:           line.Title,
			Kind:            line.Kind,
			UnitPriceCents:  line.UnitPriceCents,
			Quantity:        line.Quantity,
			LineTotalCents:  line.LineTotalCents,
			ProviderPriceID: priceID,
		}
		sessionLines[i] = stripe.SessionLine{PriceID: priceID, Quantity: int64(line.Quantity)}
	}

	rateID, err := s.resolveShippingRate(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	session := &models.CheckoutSession{
		ID:            uuid.New(),
		Lines:         lines,
		SubtotalCents: priced.SubtotalCents,
		ShippingCents: s.shipping.AmountCents,
		TotalCents:    priced.SubtotalCents + s.shipping.AmountCents,
		Currency:      s.currency,
		ExpiresAt:     now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, session); err != nil {
		s.record("error")
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record checkout session")
	}
	ctx = s.logg.WithCheckoutSessionID(ctx, session.ID.String())

	providerSession, err := s.gateway.CreateSession(ctx, stripe.SessionRequest{
		ReferenceID:      session.ID.String(),
		Lines:            sessionLines,
		ShippingRateID:   rateID,
		AllowedCountries: s.shipping.AllowedCountries,
		ExpiresAt:        session.ExpiresAt.Unix(),
	})
	if err != nil {
		if _, markErr := s.repo.MarkExpired(ctx, session.ID, now); markErr != nil {
			s.logg.Error(ctx, "failed to expire checkout session after provider error", markErr)
		}
		return nil, s.providerFailure(ctx, "create payment session", err)
	}

	if err := s.repo.AttachProvider(ctx, session.ID, providerSession.ID, providerSession.URL); err != nil {
		s.record("error")
		s.logg.Error(s.logg.WithField(ctx, "provider_session_id", providerSession.ID), "failed to attach provider session", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record provider session")
	}

	s.record("created")
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"provider_session_id": providerSession.ID,
		"total_cents":         session.TotalCents,
		"lines":               len(lines),
	}), "checkout session created")

	return &SessionResult{
		CheckoutSessionID: session.ID,
		PaymentURL:        providerSession.URL,
		Lines:             toLineResults(priced.Lines, s.currency),
		SubtotalCents:     session.SubtotalCents,
		ShippingCents:     session.ShippingCents,
		TotalCents:        session.TotalCents,
		Currency:          s.currency,
		Total:             money.Format(session.TotalCents, s.currency),
		ExpiresAt:         session.ExpiresAt.Format(time.RFC3339),
	}, nil
}

// resolvePrice reuses the cached provider price for the item at its current
// unit amount and mints one otherwise.
func (s *service) resolvePrice(ctx context.Context, line cart.PricedLine) (string, error) {
	cached, err := s.repo.FindPrice(ctx, line.ItemID, line.UnitPriceCents, s.currency)
	if err != nil {
		s.record("error")
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider price")
	}
	if cached != nil {
		return cached.ProviderPriceID, nil
	}

	ref, err := s.gateway.EnsurePrice(ctx, stripe.ProductRequest{
		ItemID:      line.ItemID,
		Title:       line.Title,
		Description: line.Kind.DisplayName(),
		UnitAmount:  line.UnitPriceCents,
		Currency:    s.currency,
	})
	if err != nil {
		return "", s.providerFailure(s.logg.WithField(ctx, "item_id", line.ItemID), "register item price", err)
	}

	err = s.repo.SavePrice(ctx, &models.ProviderPrice{
		ItemID:            line.ItemID,
		UnitAmountCents:   line.UnitPriceCents,
		Currency:          s.currency,
		ProviderProductID: ref.ProductID,
		ProviderPriceID:   ref.PriceID,
	})
	if err != nil {
		// the price exists provider-side; the next checkout will mint it again under the same idempotency key
		s.logg.Warn(s.logg.WithFields(ctx, map[string]any{"item_id": line.ItemID, "error": err.Error()}), "failed to cache provider price")
	}
	return ref.PriceID, nil
}

func (s *service) resolveShippingRate(ctx context.Context) (string, error) {
	cfg := s.shipping
	cached, err := s.repo.FindShippingRate(ctx, cfg.AmountCents, s.currency, cfg.MinBusinessDays, cfg.MaxBusinessDays)
	if err != nil {
		s.record("error")
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping rate")
	}
	if cached != nil {
		return cached.ProviderRateID, nil
	}

	rateID, err := s.gateway.CreateShippingRate(ctx, stripe.ShippingRateRequest{
		DisplayName:     cfg.DisplayName,
		Amount:          cfg.AmountCents,
		Currency:        s.currency,
		MinBusinessDays: cfg.MinBusinessDays,
		MaxBusinessDays: cfg.MaxBusinessDays,
	})
	if err != nil {
		return "", s.providerFailure(ctx, "register shipping rate", err)
	}

	err = s.repo.SaveShippingRate(ctx, &models.ProviderShippingRate{
		AmountCents:     cfg.AmountCents,
		Currency:        s.currency,
		MinBusinessDays: cfg.MinBusinessDays,
		MaxBusinessDays: cfg.MaxBusinessDays,
		ProviderRateID:  rateID,
	})
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "failed to cache shipping rate")
	}
	return rateID, nil
}

func (s *service) providerFailure(ctx context.Context, step string, err error) error {
	s.record("provider_error")
	fields := map[string]any{"step": step}
	var perr *stripe.ProviderError
	if errors.As(err, &perr) {
		fields["provider_op"] = perr.Op
		fields["retryable"] = strconv.FormatBool(perr.Retryable)
	}
	s.logg.Error(s.logg.WithFields(ctx, fields), "payment provider call failed", err)
	return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("%w: %w", ErrProvider, err), "payment provider unavailable")
}

func (s *service) record(outcome string) {
	if s.metrics != nil {
		s.metrics.CheckoutSession(outcome)
	}
}
