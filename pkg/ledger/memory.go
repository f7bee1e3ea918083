package ledger

import (
	"context"
	"sync"

	"github.com/harunnryd/cipher/pkg/orders"
)

// Memory keeps orders in process memory.
type Memory struct {
	mu     sync.RWMutex
	orders []orders.Order
}

func NewMemory() *Memory { return &Memory{} }

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Append(ctx context.Context, order orders.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	m.orders = append(m.orders, order)
	m.mu.Unlock()
	return nil
}

func (m *Memory) All(ctx context.Context) ([]orders.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]orders.Order, len(m.orders))
	copy(out, m.orders)
	return out, nil
}

func (m *Memory) Last(ctx context.Context) (orders.Order, bool, error) {
	if err := ctx.Err(); err != nil {
		return orders.Order{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := lastOf(m.orders)
	return o, ok, nil
}

func (m *Memory) Close() error { return nil }
