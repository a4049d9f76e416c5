package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/xenking/oolio-orders/internal/domain/payment"
)

// Config holds the pricing rules and policies the Service applies.
type Config struct {
	Shipping ShippingRule
	Tax      TaxRule
	// DefaultCurrency is used when Create receives no currency.
	DefaultCurrency string
	// AllowEmptyOrders permits deleting the last item of an order.
	AllowEmptyOrders bool
	// GatewayTimeout bounds a single capture call. Zero means no timeout
	// beyond the caller's context.
	GatewayTimeout time.Duration
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs overrides sub-entity and order id generation.
func WithIDs(subEntity, order func() string) Option {
	return func(s *Service) {
		s.newID = subEntity
		s.newOrderID = order
	}
}

// WithMeterProvider sets the provider for transition and charge counters.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *Service) { s.meterProvider = mp }
}

// WithTracerProvider sets the provider for gateway call spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Service) { s.tracer = tp.Tracer("orders") }
}

// Service is the order lifecycle controller. Every mutation runs as a single
// read, validate, mutate, recalculate, save section under a per-order lock.
type Service struct {
	store   Store
	gateway payment.Gateway
	cfg     Config

	locks   *keyedMutex
	metrics *metrics
	tracer  trace.Tracer

	meterProvider metric.MeterProvider
	now           func() time.Time
	newID         func() string
	newOrderID    func() string
}

// NewService creates a Service backed by store and gateway.
func NewService(store Store, gateway payment.Gateway, cfg Config, opts ...Option) (*Service, error) {
	if cfg.DefaultCurrency != "" {
		code, err := NormalizeCurrency(cfg.DefaultCurrency)
		if err != nil {
			return nil, errors.Wrap(err, "default currency")
		}
		cfg.DefaultCurrency = code
	}
	s := &Service{
		store:      store,
		gateway:    gateway,
		cfg:        cfg,
		locks:      newKeyedMutex(),
		tracer:     noop.NewTracerProvider().Tracer("orders"),
		now:        time.Now,
		newID:      func() string { return ulid.Make().String() },
		newOrderID: uuid.NewString,
	}
	for _, o := range opts {
		o(s)
	}
	m, err := newMetrics(s.meterProvider)
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	s.metrics = m
	return s, nil
}

// errAbsent aborts a mutation without saving when a sub-entity is missing.
var errAbsent = errors.New("sub-entity absent")

// mutate runs fn against the current order under the order lock, then
// recalculates totals, reconciles the payment state and saves. Nothing is
// persisted when fn fails.
func (s *Service) mutate(ctx context.Context, id string, fn func(o *Order) error) (*Order, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "lock order")
	}
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(o); err != nil {
		return nil, err
	}
	s.recalc(o)
	s.reconcile(ctx, o)
	o.UpdatedAt = s.now()
	if err := s.store.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	return o, nil
}

func (s *Service) recalc(o *Order) {
	r := Compute(Input{
		Currency:     o.Currency,
		Items:        o.Items,
		Discounts:    o.Discounts,
		Transactions: o.Transactions,
		ShipTo:       o.ShippingAddress,
		Shipping:     s.cfg.Shipping,
		Tax:          s.cfg.Tax,
	})
	o.Items, o.Discounts, o.Totals = r.Items, r.Discounts, r.Totals
}

// reconcile moves an order between checkout_pending and paid as recorded
// payments cover or stop covering the grand total. Orders that have never
// received money stay in checkout_pending even with a zero balance.
func (s *Service) reconcile(ctx context.Context, o *Order) {
	t := o.Totals
	switch {
	case o.Status == StatusCheckoutPending && t.PaidTotal.IsPositive() && !t.BalanceDue.IsPositive():
		s.transition(ctx, o, StatusPaid)
	case o.Status == StatusPaid && !t.PaidTotal.IsPositive():
		s.transition(ctx, o, StatusCheckoutPending)
	}
}

func (s *Service) transition(ctx context.Context, o *Order, to Status) {
	from := o.Status
	o.Status = to
	s.metrics.transition(ctx, from, to)
	zctx.From(ctx).Info("Order transition",
		zap.String("order_id", o.ID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

// CreateRequest describes a new order.
type CreateRequest struct {
	Currency        string
	Email           string
	Note            string
	BillingAddress  *Address
	ShippingAddress *Address
	Items           []ItemInput
}

// Create stores a new draft order.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Order, error) {
	code := req.Currency
	if code == "" {
		code = s.cfg.DefaultCurrency
	}
	code, err := NormalizeCurrency(code)
	if err != nil {
		return nil, err
	}
	billing, err := normalizeAddress("billing_address", req.BillingAddress)
	if err != nil {
		return nil, err
	}
	shipping, err := normalizeAddress("shipping_address", req.ShippingAddress)
	if err != nil {
		return nil, err
	}

	now := s.now()
	o := &Order{
		ID:              s.newOrderID(),
		Status:          StatusDraft,
		Currency:        code,
		Email:           strings.TrimSpace(req.Email),
		Note:            req.Note,
		BillingAddress:  billing,
		ShippingAddress: shipping,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, in := range req.Items {
		it, err := in.item()
		if err != nil {
			return nil, err
		}
		it.ID = s.newID()
		o.Items = append(o.Items, it)
	}
	s.recalc(o)
	if err := s.store.Save(ctx, o); err != nil {
		return nil, errors.Wrap(err, "save order")
	}
	s.metrics.transition(ctx, "", StatusDraft)
	return o, nil
}

// Get returns the order or an error wrapping ErrNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.store.Get(ctx, id)
}

// List returns orders matching f.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Order, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, invalid("status", "unknown status")
	}
	if f.Limit < 0 {
		return nil, invalid("limit", "must not be negative")
	}
	if f.Offset < 0 {
		return nil, invalid("offset", "must not be negative")
	}
	return s.store.List(ctx, f)
}

// UpdateRequest patches order attributes. Nil fields are left unchanged.
type UpdateRequest struct {
	Email    *string
	Note     *string
	Currency *string
}

// Update applies req. Currency may change only while the order is a draft.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Order, error) {
	var code string
	if req.Currency != nil {
		c, err := NormalizeCurrency(*req.Currency)
		if err != nil {
			return nil, err
		}
		code = c
	}
	return s.mutate(ctx, id, func(o *Order) error {
		if o.Status.Terminal() {
			return &StateError{OrderID: id, Op: "update", Status: o.Status}
		}
		if req.Currency != nil && code != o.Currency {
			if o.Status != StatusDraft {
				return &StateError{OrderID: id, Op: "change currency of", Status: o.Status}
			}
			o.Currency = code
		}
		if req.Email != nil {
			o.Email = strings.TrimSpace(*req.Email)
		}
		if req.Note != nil {
			o.Note = *req.Note
		}
		return nil
	})
}

// Delete removes the order with all of its sub-entities. It reports false
// when the order did not exist. Orders holding captured money cannot be
// deleted; refund first.
func (s *Service) Delete(ctx context.Context, id string) (bool, error) {
	unlock, err := s.locks.Lock(ctx, id)
	if err != nil {
		return false, errors.Wrap(err, "lock order")
	}
	defer unlock()

	o, err := s.store.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if o.Status == StatusPaid || o.Totals.PaidTotal.IsPositive() {
		return false, &StateError{OrderID: id, Op: "delete", Status: o.Status}
	}
	if _, ok := o.pendingCharge(); ok {
		return false, conflictf("order %s has a charge in flight", id)
	}
	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return false, errors.Wrap(err, "delete order")
	}
	return found, nil
}

// SetBillingAddress replaces the billing address wholesale.
func (s *Service) SetBillingAddress(ctx context.Context, id string, addr Address) (*Order, error) {
	a, err := normalizeAddress("billing_address", &addr)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(o *Order) error {
		if o.Status.Terminal() {
			return &StateError{OrderID: id, Op: "set billing address of", Status: o.Status}
		}
		o.BillingAddress = a
		return nil
	})
}

// SetShippingAddress replaces the shipping address wholesale. Totals are
// recomputed since tax rules may depend on the destination.
func (s *Service) SetShippingAddress(ctx context.Context, id string, addr Address) (*Order, error) {
	a, err := normalizeAddress("shipping_address", &addr)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(o *Order) error {
		if o.Status.Terminal() {
			return &StateError{OrderID: id, Op: "set shipping address of", Status: o.Status}
		}
		o.ShippingAddress = a
		return nil
	})
}

func normalizeAddress(field string, a *Address) (*Address, error) {
	if a == nil {
		return nil, nil
	}
	c := a.clone()
	c.Recipient = strings.TrimSpace(c.Recipient)
	if c.Recipient == "" {
		return nil, invalid(field+".recipient", "required")
	}
	lines := c.Lines[:0]
	for _, l := range c.Lines {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return nil, invalid(field+".lines", "at least one street line required")
	}
	c.Lines = lines
	c.Locality = strings.TrimSpace(c.Locality)
	if c.Locality == "" {
		return nil, invalid(field+".locality", "required")
	}
	if len(c.CountryCode) != 2 {
		return nil, invalid(field+".country_code", "must be an ISO 3166-1 alpha-2 code")
	}
	region, err := language.ParseRegion(strings.ToUpper(c.CountryCode))
	if err != nil || !region.IsCountry() {
		return nil, invalid(field+".country_code", "unknown country")
	}
	c.CountryCode = region.String()
	c.Region = strings.TrimSpace(c.Region)
	c.PostalCode = strings.TrimSpace(c.PostalCode)
	return c, nil
}
