package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v78"

	"github.com/xenking/oolio-orders/internal/domain/payment"
)

type fakeIntents struct {
	params *stripe.PaymentIntentParams
	intent *stripe.PaymentIntent
	err    error
}

func (f *fakeIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.params = params
	return f.intent, f.err
}

func newTestStripe(t *testing.T, f *fakeIntents) *Stripe {
	t.Helper()
	s, err := NewStripe(StripeConfig{PaymentMethod: "pm_card_visa", AccountID: "acct_1", intents: f})
	require.NoError(t, err)
	return s
}

func captureReq(amount, code string) payment.CaptureRequest {
	return payment.CaptureRequest{
		OrderID:        "order-1",
		IdempotencyKey: "tx-1",
		Amount:         decimal.RequireFromString(amount),
		Currency:       code,
	}
}

func TestStripe_AuthorizeAndCapture(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		fake   *fakeIntents
		want   payment.Result
		errMsg string
	}{
		{
			name: "succeeded",
			fake: &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_1", Status: stripe.PaymentIntentStatusSucceeded}},
			want: payment.Result{Status: payment.StatusSucceeded, Reference: "pi_1"},
		},
		{
			name: "requires payment method",
			fake: &fakeIntents{intent: &stripe.PaymentIntent{
				ID:               "pi_2",
				Status:           stripe.PaymentIntentStatusRequiresPaymentMethod,
				LastPaymentError: &stripe.Error{Code: stripe.ErrorCodeCardDeclined},
			}},
			want: payment.Result{Status: payment.StatusDeclined, Reference: "pi_2", Reason: "card_declined"},
		},
		{
			name: "processing is not settled",
			fake: &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_3", Status: stripe.PaymentIntentStatusProcessing}},
			want: payment.Result{Status: payment.StatusProcessing, Reference: "pi_3", Reason: "processing"},
		},
		{
			name: "unexpected status",
			fake: &fakeIntents{intent: &stripe.PaymentIntent{ID: "pi_5", Status: stripe.PaymentIntentStatusRequiresConfirmation}},
			want: payment.Result{Status: payment.StatusUnreachable, Reference: "pi_5", Reason: "requires_confirmation"},
		},
		{
			name: "card error",
			fake: &fakeIntents{err: &stripe.Error{
				Type:          stripe.ErrorTypeCard,
				Code:          stripe.ErrorCodeCardDeclined,
				DeclineCode:   stripe.DeclineCodeInsufficientFunds,
				PaymentIntent: &stripe.PaymentIntent{ID: "pi_4"},
			}},
			want: payment.Result{Status: payment.StatusDeclined, Reference: "pi_4", Reason: "insufficient_funds"},
		},
		{
			name:   "api error",
			fake:   &fakeIntents{err: &stripe.Error{Type: stripe.ErrorTypeAPI, Msg: "boom"}},
			errMsg: "stripe: create payment intent",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStripe(t, tt.fake)
			got, err := s.AuthorizeAndCapture(ctx, captureReq("22.50", "USD"))
			if tt.errMsg != "" {
				require.ErrorContains(t, err, tt.errMsg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			p := tt.fake.params
			require.NotNil(t, p)
			assert.Equal(t, int64(2250), *p.Amount)
			assert.Equal(t, "usd", *p.Currency)
			assert.True(t, *p.Confirm)
			assert.Equal(t, "automatic", *p.CaptureMethod)
			assert.Equal(t, "tx-1", *p.IdempotencyKey)
			assert.Equal(t, "acct_1", *p.StripeAccount)
			assert.Equal(t, "order-1", p.Metadata["order_id"])
		})
	}
}

func TestStripe_Config(t *testing.T) {
	_, err := NewStripe(StripeConfig{PaymentMethod: "pm_card_visa"})
	require.Error(t, err)
	_, err = NewStripe(StripeConfig{intents: &fakeIntents{}})
	require.Error(t, err)
}

func TestMinorAmount(t *testing.T) {
	tests := []struct {
		amount string
		code   string
		want   int64
		err    bool
	}{
		{"22.5", "USD", 2250, false},
		{"1000", "JPY", 1000, false},
		{"1.234", "KWD", 1234, false},
		{"1.005", "USD", 0, true},
		{"1", "ZZZ", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.amount+" "+tt.code, func(t *testing.T) {
			got, err := minorAmount(decimal.RequireFromString(tt.amount), tt.code)
			if tt.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSandbox(t *testing.T) {
	ctx := context.Background()

	t.Run("captures once per idempotency key", func(t *testing.T) {
		s := NewSandbox(SandboxConfig{})
		first, err := s.AuthorizeAndCapture(ctx, captureReq("10", "USD"))
		require.NoError(t, err)
		assert.Equal(t, payment.StatusSucceeded, first.Status)

		again, err := s.AuthorizeAndCapture(ctx, captureReq("10", "USD"))
		require.NoError(t, err)
		assert.Equal(t, first, again)
		assert.True(t, decimal.NewFromInt(10).Equal(s.Captured("order-1")))
	})

	t.Run("declines over limit", func(t *testing.T) {
		s := NewSandbox(SandboxConfig{Limit: decimal.NewFromInt(5)})
		res, err := s.AuthorizeAndCapture(ctx, captureReq("10", "USD"))
		require.NoError(t, err)
		assert.Equal(t, payment.StatusDeclined, res.Status)
		assert.Equal(t, "limit_exceeded", res.Reason)
		assert.True(t, s.Captured("order-1").IsZero())
	})

	t.Run("offline", func(t *testing.T) {
		s := NewSandbox(SandboxConfig{Offline: true})
		res, err := s.AuthorizeAndCapture(ctx, captureReq("10", "USD"))
		require.NoError(t, err)
		assert.Equal(t, payment.StatusUnreachable, res.Status)
		require.Error(t, s.Ping(ctx))
		require.NoError(t, NewSandbox(SandboxConfig{}).Ping(ctx))
	})

	t.Run("latency honours context", func(t *testing.T) {
		s := NewSandbox(SandboxConfig{Latency: time.Second})
		tctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
		defer cancel()
		_, err := s.AuthorizeAndCapture(tctx, captureReq("10", "USD"))
		require.True(t, errors.Is(err, context.DeadlineExceeded))
	})
}
