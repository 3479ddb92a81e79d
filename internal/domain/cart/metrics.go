package cart

import (
	"context"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics counts committed cart mutations. A nil *Metrics records nothing.
type Metrics struct {
	mutations      metric.Int64Counter
	couponsDropped metric.Int64Counter
}

// NewMetrics registers cart instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	mutations, err := meter.Int64Counter("cart.mutations",
		metric.WithDescription("Committed cart mutations by event type"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cart.mutations")
	}
	couponsDropped, err := meter.Int64Counter("cart.coupons_dropped",
		metric.WithDescription("Coupons removed from carts as a side effect of a mutation"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "cart.coupons_dropped")
	}
	return &Metrics{mutations: mutations, couponsDropped: couponsDropped}, nil
}

func (m *Metrics) record(ctx context.Context, ev Event) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("type", string(ev.Type)))
	m.mutations.Add(ctx, 1, attrs)
	if ev.CouponRemoved && ev.Type != EventCouponRemoved {
		m.couponsDropped.Add(ctx, 1, attrs)
	}
}
