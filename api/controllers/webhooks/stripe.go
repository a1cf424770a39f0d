package webhooks

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/angelmondragon/kiggyshop-backend/api/responses"
	"github.com/angelmondragon/kiggyshop-backend/internal/fulfillment"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

const maxWebhookBody = 1 << 20

type checkoutVerifier interface {
	VerifyAndRoute(payload []byte, signature string) (*fulfillment.CheckoutCompleted, error)
}

type checkoutFulfiller interface {
	Fulfill(ctx context.Context, in fulfillment.CheckoutCompleted) (*fulfillment.Result, error)
	FlagUnshippable(ctx context.Context, in *fulfillment.UnshippableError) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type webhookMetrics interface {
	WebhookEvent(outcome string)
}

// StripeWebhook verifies provider callbacks and fulfills paid checkouts.
// Anything short of a durable order answers non-2xx so the provider redelivers.
func StripeWebhook(verifier checkoutVerifier, fulfiller checkoutFulfiller, guard stripeWebhookGuard, metrics webhookMetrics, logg *logger.Logger) http.HandlerFunc {
	record := func(outcome string) {
		if metrics != nil {
			metrics.WebhookEvent(outcome)
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if verifier == nil || fulfiller == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook handler not configured"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		completed, err := verifier.VerifyAndRoute(payload, r.Header.Get("Stripe-Signature"))
		if err != nil {
			var unshippable *fulfillment.UnshippableError
			switch {
			case pkgerrors.IsCode(err, pkgerrors.CodeInvalidSignature):
				record("rejected")
			case errors.As(err, &unshippable):
				record("needs_attention")
				if flagErr := fulfiller.FlagUnshippable(ctx, unshippable); flagErr != nil && logg != nil {
					logg.Error(ctx, "flag unshippable checkout", flagErr)
				}
			default:
				record("malformed")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if completed == nil {
			record("ignored")
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}

		if logg != nil {
			ctx = logg.WithFields(ctx, map[string]any{
				"event_id":            completed.EventID,
				"checkout_session_id": completed.CheckoutSessionID.String(),
				"provider_session_id": completed.ProviderSessionID,
			})
		}

		seen, err := guard.CheckAndMark(ctx, completed.EventID)
		if err != nil {
			record("failed")
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency"))
			return
		}
		if seen {
			record("duplicate")
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}

		result, err := fulfiller.Fulfill(ctx, *completed)
		if err != nil {
			if errors.Is(err, fulfillment.ErrDuplicateFulfillment) {
				record("duplicate")
				responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
				return
			}
			if delErr := guard.Delete(ctx, completed.EventID); delErr != nil && logg != nil {
				logg.Error(ctx, "release webhook idempotency key", delErr)
			}
			record("failed")
			responses.WriteError(ctx, logg, w, err)
			return
		}

		record("fulfilled")
		if logg != nil {
			logg.Info(logg.WithOrderID(ctx, result.OrderID.String()), "checkout fulfilled")
		}
		responses.WriteSuccess(w, result)
	}
}
