// Package gateway contains payment.Gateway implementations.
package gateway

import (
	"context"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
	"golang.org/x/text/currency"

	"github.com/xenking/oolio-orders/internal/domain/payment"
)

type stripeIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures the Stripe gateway.
type StripeConfig struct {
	APIKey string
	// AccountID, when set, charges on behalf of a connected account.
	AccountID string
	// PaymentMethod is the stored payment method charged off-session.
	PaymentMethod string
	Backends      *stripe.Backends

	intents stripeIntentAPI
}

// Stripe captures payments with a confirmed, automatically captured
// PaymentIntent.
type Stripe struct {
	intents       stripeIntentAPI
	account       string
	paymentMethod string
}

var _ payment.Gateway = (*Stripe)(nil)

// NewStripe creates a Stripe gateway.
func NewStripe(cfg StripeConfig) (*Stripe, error) {
	intents := cfg.intents
	if intents == nil {
		key := strings.TrimSpace(cfg.APIKey)
		if key == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(key, cfg.Backends).PaymentIntents
	}
	pm := strings.TrimSpace(cfg.PaymentMethod)
	if pm == "" {
		return nil, errors.New("stripe: payment method is required")
	}
	return &Stripe{
		intents:       intents,
		account:       strings.TrimSpace(cfg.AccountID),
		paymentMethod: pm,
	}, nil
}

// AuthorizeAndCapture creates and confirms a PaymentIntent for the request.
// Card errors are reported as declines; any other API failure is returned as
// an error so the caller treats the gateway as unreachable.
func (s *Stripe) AuthorizeAndCapture(ctx context.Context, req payment.CaptureRequest) (payment.Result, error) {
	amount, err := minorAmount(req.Amount, req.Currency)
	if err != nil {
		return payment.Result{}, err
	}

	params := &stripe.PaymentIntentParams{
		Amount:             stripe.Int64(amount),
		Currency:           stripe.String(strings.ToLower(req.Currency)),
		PaymentMethod:      stripe.String(s.paymentMethod),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Confirm:            stripe.Bool(true),
		OffSession:         stripe.Bool(true),
		CaptureMethod:      stripe.String(string(stripe.PaymentIntentCaptureMethodAutomatic)),
	}
	params.Context = ctx
	params.AddMetadata("order_id", req.OrderID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}
	if s.account != "" {
		params.SetStripeAccount(s.account)
	}

	intent, err := s.intents.New(params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Type == stripe.ErrorTypeCard {
			reason := string(serr.DeclineCode)
			if reason == "" {
				reason = string(serr.Code)
			}
			ref := ""
			if serr.PaymentIntent != nil {
				ref = serr.PaymentIntent.ID
			}
			return payment.Result{Status: payment.StatusDeclined, Reference: ref, Reason: reason}, nil
		}
		return payment.Result{}, errors.Wrap(err, "stripe: create payment intent")
	}
	return intentResult(intent), nil
}

func intentResult(intent *stripe.PaymentIntent) payment.Result {
	res := payment.Result{Reference: intent.ID}
	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded:
		res.Status = payment.StatusSucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod,
		stripe.PaymentIntentStatusRequiresAction:
		res.Status = payment.StatusDeclined
		res.Reason = string(intent.Status)
		if pe := intent.LastPaymentError; pe != nil && pe.Code != "" {
			res.Reason = string(pe.Code)
		}
	case stripe.PaymentIntentStatusProcessing:
		res.Status = payment.StatusProcessing
		res.Reason = string(intent.Status)
	default:
		res.Status = payment.StatusUnreachable
		res.Reason = string(intent.Status)
	}
	return res
}

// minorAmount converts amount into the integer minor unit Stripe expects.
func minorAmount(amount decimal.Decimal, code string) (int64, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, errors.Wrapf(err, "currency %q", code)
	}
	scale, _ := currency.Standard.Rounding(unit)
	minor := amount.Shift(int32(scale))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, errors.Errorf("amount %s has more precision than %s allows", amount, unit)
	}
	return minor.IntPart(), nil
}
