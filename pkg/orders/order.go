// Package orders builds immutable orders from cart lines.
package orders

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/harunnryd/cipher/pkg/catalog"
	"github.com/harunnryd/cipher/pkg/errorsx"
)

var (
	ErrEmptyCart      = errors.New("orders: cart is empty")
	ErrUnknownProduct = errors.New("orders: unknown product")
	ErrMixedCurrency  = errors.New("orders: mixed currencies")
	ErrBadQuantity    = errors.New("orders: quantity must be at least 1")
)

// OrderLine is a priced line of a placed order.
type OrderLine struct {
	ProductID string            `json:"product_id"`
	Name      string            `json:"name"`
	UnitPrice int               `json:"unit_price"`
	Quantity  int               `json:"quantity"`
	LineTotal int               `json:"line_total"`
	Attrs     map[string]string `json:"attrs"`
}

// Order is immutable once built.
type Order struct {
	ID        string      `json:"id"`
	Items     []OrderLine `json:"items"`
	Total     int         `json:"total"`
	Currency  string      `json:"currency"`
	CreatedAt time.Time   `json:"created_at"`
}

// Line is the input to Build.
type Line struct {
	ProductID string
	Quantity  int
	Attrs     map[string]string
}

// IDFunc generates order ids.
type IDFunc func() string

// NewID returns "order-" followed by a random UUID.
func NewID() string {
	return "order-" + uuid.NewString()
}

// Builder prices cart lines against a catalog.
type Builder struct {
	Catalog *catalog.Catalog
	Now     func() time.Time
	NewID   IDFunc
}

// NewBuilder returns a builder using wall clock time and random ids.
func NewBuilder(c *catalog.Catalog) *Builder {
	return &Builder{Catalog: c, Now: time.Now, NewID: NewID}
}

// Build prices every line or fails without producing a partial order.
func (b *Builder) Build(lines []Line) (Order, error) {
	if len(lines) == 0 {
		return Order{}, ErrEmptyCart
	}
	items := make([]OrderLine, 0, len(lines))
	total := 0
	currency := ""
	for _, li := range lines {
		p, ok := b.Catalog.Lookup(li.ProductID)
		if !ok {
			return Order{}, errorsx.Wrap(fmt.Errorf("%w: %s", ErrUnknownProduct, li.ProductID), errorsx.ReasonOrderIntegrity)
		}
		if li.Quantity < 1 {
			return Order{}, errorsx.Wrap(fmt.Errorf("%w: %s x %d", ErrBadQuantity, li.ProductID, li.Quantity), errorsx.ReasonOrderIntegrity)
		}
		if currency == "" {
			currency = p.Currency
		} else if p.Currency != currency {
			return Order{}, errorsx.Wrap(fmt.Errorf("%w: %s and %s", ErrMixedCurrency, currency, p.Currency), errorsx.ReasonOrderIntegrity)
		}
		lineTotal := p.Price * li.Quantity
		total += lineTotal
		items = append(items, OrderLine{
			ProductID: p.ID,
			Name:      p.Name,
			UnitPrice: p.Price,
			Quantity:  li.Quantity,
			LineTotal: lineTotal,
			Attrs:     copyAttrs(li.Attrs),
		})
	}
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	newID := NewID
	if b.NewID != nil {
		newID = b.NewID
	}
	return Order{
		ID:        newID(),
		Items:     items,
		Total:     total,
		Currency:  currency,
		CreatedAt: now().UTC(),
	}, nil
}

// Sum recomputes the order total from its lines.
func (o Order) Sum() int {
	sum := 0
	for _, it := range o.Items {
		sum += it.LineTotal
	}
	return sum
}

func copyAttrs(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
