package stripe

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

// MetadataCheckoutSessionID carries our checkout session id on the provider session.
const MetadataCheckoutSessionID = "checkout_session_id"

// resourceAPI is the slice of the Stripe SDK used for checkout.
type resourceAPI interface {
	NewProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error)
	NewPrice(ctx context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error)
	NewShippingRate(ctx context.Context, params *stripe.ShippingRateCreateParams) (*stripe.ShippingRate, error)
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error)
}

type sdkResources struct {
	api *stripe.Client
}

func (r sdkResources) NewProduct(ctx context.Context, params *stripe.ProductCreateParams) (*stripe.Product, error) {
	return r.api.V1Products.Create(ctx, params)
}

func (r sdkResources) NewPrice(ctx context.Context, params *stripe.PriceCreateParams) (*stripe.Price, error) {
	return r.api.V1Prices.Create(ctx, params)
}

func (r sdkResources) NewShippingRate(ctx context.Context, params *stripe.ShippingRateCreateParams) (*stripe.ShippingRate, error) {
	return r.api.V1ShippingRates.Create(ctx, params)
}

func (r sdkResources) NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionCreateParams) (*stripe.CheckoutSession, error) {
	return r.api.V1CheckoutSessions.Create(ctx, params)
}

// ProductRequest registers one catalog item with the provider.
type ProductRequest struct {
	ItemID      int64
	Title       string
	Description string
	UnitAmount  int64
	Currency    string
}

// PriceRef identifies the provider product/price pair for an item.
type PriceRef struct {
	ProductID string
	PriceID   string
}

// ShippingRateRequest describes the flat shipping option.
type ShippingRateRequest struct {
	DisplayName     string
	Amount          int64
	Currency        string
	MinBusinessDays int64
	MaxBusinessDays int64
}

// SessionLine references a provider price.
type SessionLine struct {
	PriceID  string
	Quantity int64
}

// SessionRequest creates a hosted checkout session. ReferenceID is our
// pending checkout session id and doubles as the idempotency key.
type SessionRequest struct {
	ReferenceID      string
	Lines            []SessionLine
	ShippingRateID   string
	AllowedCountries []string
	ExpiresAt        int64
}

// Session is the provider-side checkout session handed to the shopper.
type Session struct {
	ID  string
	URL string
}

// CheckoutGateway creates the provider records a hosted checkout needs.
type CheckoutGateway struct {
	api        resourceAPI
	policy     RetryPolicy
	successURL string
	cancelURL  string
	logg       *logger.Logger
	observe    observer
}

// GatewayParams configures NewCheckoutGateway.
type GatewayParams struct {
	Client  *Client
	Config  config.StripeConfig
	Logger  *logger.Logger
	Observe func(op, outcome string)
}

func NewCheckoutGateway(params GatewayParams) (*CheckoutGateway, error) {
	if params.Client == nil || params.Client.api == nil {
		return nil, errors.New("stripe client is required")
	}
	if strings.TrimSpace(params.Config.SuccessURL) == "" {
		return nil, errors.New("stripe success url is required")
	}
	if strings.TrimSpace(params.Config.CancelURL) == "" {
		return nil, errors.New("stripe cancel url is required")
	}
	maxRetries := params.Config.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &CheckoutGateway{
		api: sdkResources{api: params.Client.api},
		policy: RetryPolicy{
			MaxRetries:  uint64(maxRetries),
			Base:        params.Config.RetryBase,
			CallTimeout: params.Config.CallTimeout,
		},
		successURL: params.Config.SuccessURL,
		cancelURL:  params.Config.CancelURL,
		logg:       params.Logger,
		observe:    params.Observe,
	}, nil
}

// EnsurePrice creates a product and a price for the item. Idempotency keys
// are derived from item id and amount so a retried or repeated call inside the
// provider's idempotency window returns the same records.
func (g *CheckoutGateway) EnsurePrice(ctx context.Context, req ProductRequest) (PriceRef, error) {
	currency := normalizeCurrency(req.Currency)
	keySuffix := fmt.Sprintf("item-%d-%d-%s", req.ItemID, req.UnitAmount, currency)

	var prod *stripe.Product
	err := g.policy.run(ctx, "product", g.observe, func(ctx context.Context) error {
		params := &stripe.ProductCreateParams{
			Name: stripe.String(req.Title),
		}
		if desc := strings.TrimSpace(req.Description); desc != "" {
			params.Description = stripe.String(desc)
		}
		params.AddMetadata("item_id", strconv.FormatInt(req.ItemID, 10))
		params.SetIdempotencyKey("product-" + keySuffix)
		created, err := g.api.NewProduct(ctx, params)
		if err != nil {
			return err
		}
		prod = created
		return nil
	})
	if err != nil {
		return PriceRef{}, err
	}

	var pr *stripe.Price
	err = g.policy.run(ctx, "price", g.observe, func(ctx context.Context) error {
		params := &stripe.PriceCreateParams{
			Product:    stripe.String(prod.ID),
			UnitAmount: stripe.Int64(req.UnitAmount),
			Currency:   stripe.String(currency),
		}
		params.SetIdempotencyKey("price-" + keySuffix)
		created, err := g.api.NewPrice(ctx, params)
		if err != nil {
			return err
		}
		pr = created
		return nil
	})
	if err != nil {
		return PriceRef{}, err
	}

	return PriceRef{ProductID: prod.ID, PriceID: pr.ID}, nil
}

// CreateShippingRate registers the flat-rate shipping option.
func (g *CheckoutGateway) CreateShippingRate(ctx context.Context, req ShippingRateRequest) (string, error) {
	currency := normalizeCurrency(req.Currency)
	var rate *stripe.ShippingRate
	err := g.policy.run(ctx, "shipping_rate", g.observe, func(ctx context.Context) error {
		params := &stripe.ShippingRateCreateParams{
			DisplayName: stripe.String(req.DisplayName),
			Type:        stripe.String("fixed_amount"),
			TaxBehavior: stripe.String("exclusive"),
			FixedAmount: &stripe.ShippingRateCreateFixedAmountParams{
				Amount:   stripe.Int64(req.Amount),
				Currency: stripe.String(currency),
			},
			DeliveryEstimate: &stripe.ShippingRateCreateDeliveryEstimateParams{
				Minimum: &stripe.ShippingRateCreateDeliveryEstimateMinimumParams{
					Unit:  stripe.String("business_day"),
					Value: stripe.Int64(req.MinBusinessDays),
				},
				Maximum: &stripe.ShippingRateCreateDeliveryEstimateMaximumParams{
					Unit:  stripe.String("business_day"),
					Value: stripe.Int64(req.MaxBusinessDays),
				},
			},
		}
		params.SetIdempotencyKey(fmt.Sprintf("shipping-%d-%s-%d-%d", req.Amount, currency, req.MinBusinessDays, req.MaxBusinessDays))
		created, err := g.api.NewShippingRate(ctx, params)
		if err != nil {
			return err
		}
		rate = created
		return nil
	})
	if err != nil {
		return "", err
	}
	return rate.ID, nil
}

// CreateSession opens a hosted checkout session for the given prices.
func (g *CheckoutGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if strings.TrimSpace(req.ReferenceID) == "" {
		return nil, errors.New("reference id is required")
	}
	if len(req.Lines) == 0 {
		return nil, errors.New("at least one line is required")
	}

	var created *stripe.CheckoutSession
	err := g.policy.run(ctx, "checkout_session", g.observe, func(ctx context.Context) error {
		params := &stripe.CheckoutSessionCreateParams{
			Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
			SuccessURL:        stripe.String(g.successURL),
			CancelURL:         stripe.String(g.cancelURL),
			ClientReferenceID: stripe.String(req.ReferenceID),
			CustomerCreation:  stripe.String("always"),
		}
		for _, line := range req.Lines {
			params.LineItems = append(params.LineItems, &stripe.CheckoutSessionCreateLineItemParams{
				Price:    stripe.String(line.PriceID),
				Quantity: stripe.Int64(line.Quantity),
			})
		}
		if len(req.AllowedCountries) > 0 {
			params.ShippingAddressCollection = &stripe.CheckoutSessionCreateShippingAddressCollectionParams{
				AllowedCountries: stripe.StringSlice(req.AllowedCountries),
			}
		}
		if req.ShippingRateID != "" {
			params.ShippingOptions = []*stripe.CheckoutSessionCreateShippingOptionParams{
				{ShippingRate: stripe.String(req.ShippingRateID)},
			}
		}
		if req.ExpiresAt > 0 {
			params.ExpiresAt = stripe.Int64(req.ExpiresAt)
		}
		params.AddMetadata(MetadataCheckoutSessionID, req.ReferenceID)
		params.SetIdempotencyKey("checkout-" + req.ReferenceID)

		sess, err := g.api.NewCheckoutSession(ctx, params)
		if err != nil {
			return err
		}
		created = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	if created.URL == "" {
		return nil, &ProviderError{Op: "checkout_session", Err: errors.New("provider returned a session without a url")}
	}
	return &Session{ID: created.ID, URL: created.URL}, nil
}

func normalizeCurrency(currency string) string {
	c := strings.ToLower(strings.TrimSpace(currency))
	if c == "" {
		return string(stripe.CurrencyUSD)
	}
	return c
}
