package order

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	created     metric.Int64Counter
	reconciled  metric.Int64Counter
	transitions metric.Int64Counter
	cancelled   metric.Int64Counter
}

func newMetrics() *metrics {
	meter := otel.Meter("github.com/Additional-Code/topup/service/order")
	return &metrics{
		created:     counter(meter, "topup.orders.created", "Orders created after a deposit was opened"),
		reconciled:  counter(meter, "topup.orders.reconciled", "Reconcile passes by provider action and result"),
		transitions: counter(meter, "topup.orders.transitions", "Persisted order status changes"),
		cancelled:   counter(meter, "topup.orders.cancelled", "Cancellation attempts by result"),
	}
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		c, _ = noop.NewMeterProvider().Meter("noop").Int64Counter(name)
	}
	return c
}

func (m *metrics) reconcile(ctx context.Context, action, result string) {
	m.reconciled.Add(ctx, 1, metric.WithAttributes(
		attribute.String("action", action),
		attribute.String("result", result),
	))
}

func (m *metrics) transition(ctx context.Context, from, to string) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}
