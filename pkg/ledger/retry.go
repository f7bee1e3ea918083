package ledger

import (
	"context"

	"github.com/harunnryd/cipher/pkg/orders"
	"github.com/harunnryd/cipher/pkg/resilience"
)

// Retrying retries reads through a retry policy. Appends are not idempotent
// and go straight to the inner ledger.
type Retrying struct {
	inner  Ledger
	policy resilience.RetryPolicy
}

func WithReadRetry(inner Ledger, policy resilience.RetryPolicy) *Retrying {
	return &Retrying{inner: inner, policy: policy}
}

func (r *Retrying) Name() string { return r.inner.Name() }

func (r *Retrying) Append(ctx context.Context, order orders.Order) error {
	return r.inner.Append(ctx, order)
}

func (r *Retrying) All(ctx context.Context) ([]orders.Order, error) {
	var list []orders.Order
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		list, err = r.inner.All(ctx)
		return err
	})
	return list, err
}

func (r *Retrying) Last(ctx context.Context) (orders.Order, bool, error) {
	var (
		order orders.Order
		found bool
	)
	err := r.policy.Do(ctx, func(ctx context.Context) error {
		var err error
		order, found, err = r.inner.Last(ctx)
		return err
	})
	return order, found, err
}

func (r *Retrying) Close() error { return r.inner.Close() }
