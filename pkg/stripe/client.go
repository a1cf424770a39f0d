package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

var (
	errAPIKeyRequired   = errors.New("stripe: api key is required")
	errSecretRequired   = errors.New("stripe: webhook signing secret is required")
	errInvalidStripeEnv = errors.New(`stripe: environment must be "test" or "live"`)
)

// keyPrefixes lists the secret and restricted key prefixes accepted per mode.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

// Client holds the validated provider credentials and the SDK client built
// from them. Nothing reads the package-level stripe.Key.
type Client struct {
	api           *stripe.Client
	mode          string
	signingSecret string
}

func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	if _, ok := keyPrefixes[mode]; !ok {
		return nil, errInvalidStripeEnv
	}
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, errAPIKeyRequired
	}
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errSecretRequired
	}
	if got := keyMode(key); got != mode {
		return nil, fmt.Errorf("stripe: %s environment needs a %s key, got %q", mode, mode, redact(key))
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_env", mode), "stripe.configured")
	}
	return &Client{api: stripe.NewClient(key), mode: mode, signingSecret: secret}, nil
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}

func keyMode(key string) string {
	for mode, prefixes := range keyPrefixes {
		for _, p := range prefixes {
			if strings.HasPrefix(key, p) {
				return mode
			}
		}
	}
	return ""
}

// redact keeps the key prefix and hides the rest.
func redact(key string) string {
	if i := strings.LastIndexByte(key, '_'); i >= 0 && i < 8 {
		return key[:i+1] + "***"
	}
	return "***"
}
