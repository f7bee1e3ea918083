// Package session holds per-connection shop state. It carries no behavior
// beyond bookkeeping; the shop controller owns the rules.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/cipher/pkg/orders"
)

// CartLine references a catalog product with a quantity of at least one.
type CartLine struct {
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	Attrs     map[string]string `json:"attrs"`
}

// TraceEntry records one state-changing action.
type TraceEntry struct {
	Time      time.Time `json:"time"`
	Action    string    `json:"action"`
	ProductID string    `json:"product_id,omitempty"`
	Quantity  int       `json:"quantity,omitempty"`
	OrderID   string    `json:"order_id,omitempty"`
}

// Session is the mutable aggregate for one connected shopper.
type Session struct {
	ID        string         `json:"session_id"`
	Identity  string         `json:"identity,omitempty"`
	StartedAt time.Time      `json:"started_at"`
	Cart      []CartLine     `json:"cart"`
	Orders    []orders.Order `json:"orders"`
	History   []TraceEntry   `json:"history"`
}

// New starts a session with a short random id.
func New(identity string) *Session {
	return &Session{
		ID:        uuid.NewString(),
		Identity:  identity,
		StartedAt: time.Now().UTC(),
	}
}

// OrderLines converts the cart into order builder input.
func (s *Session) OrderLines() []orders.Line {
	lines := make([]orders.Line, 0, len(s.Cart))
	for _, li := range s.Cart {
		lines = append(lines, orders.Line{ProductID: li.ProductID, Quantity: li.Quantity, Attrs: li.Attrs})
	}
	return lines
}

// Trace appends an action entry stamped with now.
func (s *Session) Trace(now time.Time, entry TraceEntry) {
	entry.Time = now.UTC()
	s.History = append(s.History, entry)
}
