package stripewebhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/kiggyshop-backend/internal/address"
	"github.com/angelmondragon/kiggyshop-backend/internal/fulfillment"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	pkgstripe "github.com/angelmondragon/kiggyshop-backend/pkg/stripe"
	"github.com/angelmondragon/kiggyshop-backend/pkg/types"
)

var (
	// ErrVerification means the payload was not signed with our secret.
	ErrVerification = errors.New("webhook signature verification failed")
	// ErrMalformedPayload means a verified event lacks fields required to fulfill it.
	ErrMalformedPayload = errors.New("malformed checkout payload")
)

// Verifier authenticates provider webhooks and extracts completed checkouts.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

// NewVerifier builds a verifier for the given signing secret. A zero
// tolerance uses the provider library default.
func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("webhook signing secret is required")
	}
	if tolerance <= 0 {
		tolerance = webhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}, nil
}

// VerifyAndRoute checks the signature over the raw body before looking at its
// contents. It returns nil for verified events that do not complete a paid
// checkout.
func (v *Verifier) VerifyAndRoute(payload []byte, signature string) (*fulfillment.CheckoutCompleted, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, verificationError(errors.New("signature header missing"))
	}
	if err := webhook.ValidatePayloadWithTolerance(payload, signature, v.secret, v.tolerance); err != nil {
		return nil, verificationError(err)
	}

	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, malformed("decode event", err, nil)
	}

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		return decodeCompleted(&event, false)
	case stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		return decodeCompleted(&event, true)
	default:
		return nil, nil
	}
}

type shippingDetails struct {
	Name    string          `json:"name"`
	Address *stripe.Address `json:"address"`
}

// Shipping details moved under collected_information in newer API versions;
// both locations are read.
type shippingEnvelope struct {
	CollectedInformation *struct {
		ShippingDetails *shippingDetails `json:"shipping_details"`
	} `json:"collected_information"`
	ShippingDetails *shippingDetails `json:"shipping_details"`
}

func (e shippingEnvelope) details() *shippingDetails {
	if e.CollectedInformation != nil && e.CollectedInformation.ShippingDetails != nil {
		return e.CollectedInformation.ShippingDetails
	}
	return e.ShippingDetails
}

func decodeCompleted(event *stripe.Event, asyncSucceeded bool) (*fulfillment.CheckoutCompleted, error) {
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return nil, malformed("event data missing", errors.New("no data object"), nil)
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, malformed("decode checkout session", err, nil)
	}
	// asynchronous payment methods complete the session before funds settle
	if !asyncSucceeded && sess.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
		return nil, nil
	}

	var shipping shippingEnvelope
	if err := json.Unmarshal(event.Data.Raw, &shipping); err != nil {
		return nil, malformed("decode shipping details", err, nil)
	}

	missing := map[string]string{}
	if strings.TrimSpace(event.ID) == "" {
		missing["event_id"] = "required"
	}
	if strings.TrimSpace(sess.ID) == "" {
		missing["session_id"] = "required"
	}

	ref := strings.TrimSpace(sess.Metadata[pkgstripe.MetadataCheckoutSessionID])
	if ref == "" {
		ref = strings.TrimSpace(sess.ClientReferenceID)
	}
	checkoutSessionID, err := uuid.Parse(ref)
	if err != nil {
		missing["checkout_session_id"] = "required"
	}

	var email, customerName string
	if sess.CustomerDetails != nil {
		email = strings.TrimSpace(sess.CustomerDetails.Email)
		customerName = strings.TrimSpace(sess.CustomerDetails.Name)
	}
	if email == "" {
		missing["email"] = "required"
	}

	details := shipping.details()
	if details == nil || details.Address == nil {
		missing["shipping_address"] = "required"
	}
	if len(missing) > 0 {
		return nil, malformed("checkout session incomplete", errors.New("required fields missing"), missing)
	}

	name := strings.TrimSpace(details.Name)
	if name == "" {
		name = customerName
	}
	line2 := details.Address.Line2
	shipTo, err := address.Normalize(name, types.Address{
		Line1:      details.Address.Line1,
		Line2:      &line2,
		City:       details.Address.City,
		State:      details.Address.State,
		PostalCode: details.Address.PostalCode,
		Country:    details.Address.Country,
	})
	if err != nil {
		var fieldErr *address.FieldError
		var fields map[string]string
		if errors.As(err, &fieldErr) {
			fields = fieldErr.Fields
		}
		return nil, malformed("shipping address invalid", &fulfillment.UnshippableError{
			CheckoutSessionID: checkoutSessionID,
			ProviderSessionID: sess.ID,
			Err:               err,
		}, fields)
	}

	return &fulfillment.CheckoutCompleted{
		EventID:           event.ID,
		ProviderSessionID: sess.ID,
		CheckoutSessionID: checkoutSessionID,
		Name:              name,
		Email:             email,
		Address:           shipTo,
		AmountTotalCents:  sess.AmountTotal,
		Currency:          strings.ToLower(string(sess.Currency)),
	}, nil
}

func verificationError(cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeInvalidSignature, fmt.Errorf("%w: %w", ErrVerification, cause), "invalid webhook signature")
}

func malformed(msg string, cause error, fields map[string]string) error {
	err := pkgerrors.Wrap(pkgerrors.CodeMalformedPayload, fmt.Errorf("%w: %w", ErrMalformedPayload, cause), msg)
	if len(fields) > 0 {
		err = err.WithDetails(fields)
	}
	return err
}
