// Package ledger persists placed orders in an append-only log shared by every session.
package ledger

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/harunnryd/cipher/pkg/orders"
)

// Ledger is the process-wide order log. Append must be atomic with respect to
// concurrent callers; All returns orders in append order.
type Ledger interface {
	Append(ctx context.Context, order orders.Order) error
	All(ctx context.Context) ([]orders.Order, error)
	Last(ctx context.Context) (orders.Order, bool, error)
	Name() string
	Close() error
}

func encodeOrder(order orders.Order) ([]byte, error) {
	body, err := json.Marshal(order)
	if err != nil {
		return nil, fmt.Errorf("encode order %s: %w", order.ID, err)
	}
	return body, nil
}

func decodeOrder(body []byte) (orders.Order, error) {
	var order orders.Order
	if err := json.Unmarshal(body, &order); err != nil {
		return orders.Order{}, fmt.Errorf("decode order: %w", err)
	}
	return order, nil
}

func lastOf(list []orders.Order) (orders.Order, bool) {
	if len(list) == 0 {
		return orders.Order{}, false
	}
	return list[len(list)-1], true
}
