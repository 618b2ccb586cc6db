package order

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

type metrics struct {
	prompts   metric.Int64Counter
	callbacks metric.Int64Counter
}

func newMetrics(mp metric.MeterProvider) (*metrics, error) {
	if mp == nil {
		mp = noop.NewMeterProvider()
	}
	meter := mp.Meter("github.com/campusbite/campusbite-api/internal/domain/order")

	prompts, err := meter.Int64Counter("campusbite.payment.prompts",
		metric.WithDescription("Mobile-money prompts by outcome"),
	)
	if err != nil {
		return nil, err
	}
	callbacks, err := meter.Int64Counter("campusbite.payment.callbacks",
		metric.WithDescription("Provider callbacks by outcome"),
	)
	if err != nil {
		return nil, err
	}
	return &metrics{prompts: prompts, callbacks: callbacks}, nil
}

func (m *metrics) prompt(ctx context.Context, outcome string) {
	m.prompts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

func (m *metrics) callback(ctx context.Context, outcome CallbackOutcome) {
	m.callbacks.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", string(outcome))))
}
