package order

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	transitions metric.Int64Counter
	charges     metric.Int64Counter
	recalcs     metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("orders")

	var (
		m   metrics
		err error
	)
	if m.transitions, err = meter.Int64Counter("orders.transitions",
		metric.WithDescription("Order lifecycle transitions"),
	); err != nil {
		return nil, errors.Wrap(err, "transitions counter")
	}
	if m.charges, err = meter.Int64Counter("orders.charges",
		metric.WithDescription("Charge attempts by outcome"),
	); err != nil {
		return nil, errors.Wrap(err, "charges counter")
	}
	if m.recalcs, err = meter.Int64Counter("orders.recalculations",
		metric.WithDescription("Total recalculations"),
	); err != nil {
		return nil, errors.Wrap(err, "recalculations counter")
	}
	return &m, nil
}

func (m *metrics) transition(ctx context.Context, from, to Status) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (m *metrics) charge(ctx context.Context, outcome ChargeOutcome) {
	m.charges.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}
