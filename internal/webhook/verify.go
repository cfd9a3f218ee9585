package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v76"
	stripewebhook "github.com/stripe/stripe-go/v76/webhook"
)

// SignatureHeader carries the gateway's HMAC signature and timestamp.
const SignatureHeader = "Stripe-Signature"

// ErrInvalidSignature marks a delivery whose signature is missing, wrong or too old.
var ErrInvalidSignature = errors.New("invalid gateway signature")

// Verifier authenticates raw deliveries against the endpoint's signing secret.
type Verifier struct {
	secret    string
	tolerance time.Duration
}

func NewVerifier(secret string, tolerance time.Duration) (*Verifier, error) {
	if secret == "" {
		return nil, fmt.Errorf("webhook signing secret is required")
	}
	if tolerance <= 0 {
		tolerance = stripewebhook.DefaultTolerance
	}
	return &Verifier{secret: secret, tolerance: tolerance}, nil
}

// Verify checks the signature header and returns the parsed event. Signature
// failures wrap ErrInvalidSignature; an authentic but unparseable body wraps
// ErrMalformedEvent.
func (v *Verifier) Verify(payload []byte, signature string) (stripe.Event, error) {
	event, err := stripewebhook.ConstructEventWithOptions(payload, signature, v.secret,
		stripewebhook.ConstructEventOptions{
			Tolerance: v.tolerance,
			// events are mapped field by field, the account's API version may differ
			IgnoreAPIVersionMismatch: true,
		})
	if err != nil {
		switch {
		case errors.Is(err, stripewebhook.ErrNotSigned),
			errors.Is(err, stripewebhook.ErrInvalidHeader),
			errors.Is(err, stripewebhook.ErrNoValidSignature),
			errors.Is(err, stripewebhook.ErrTooOld):
			return stripe.Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		default:
			return stripe.Event{}, malformed("%v", err)
		}
	}
	return event, nil
}
