// Package shop implements the shopkeeper actions: catalog search, cart,
// checkout and order lookup. Every action returns text meant to be spoken.
package shop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/harunnryd/cipher/pkg/catalog"
	"github.com/harunnryd/cipher/pkg/errorsx"
	"github.com/harunnryd/cipher/pkg/ledger"
	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/metrics"
	"github.com/harunnryd/cipher/pkg/orders"
	"github.com/harunnryd/cipher/pkg/redact"
	"github.com/harunnryd/cipher/pkg/resolver"
	"github.com/harunnryd/cipher/pkg/session"
)

const (
	DefaultStoreName  = "Khan's Tech Store"
	DefaultMaxResults = 8
)

// Action names, shared by traces and tool names.
const (
	ActionShowCatalog = "show_catalog"
	ActionAddToCart   = "add_to_cart"
	ActionShowCart    = "show_cart"
	ActionClearCart   = "clear_cart"
	ActionPlaceOrder  = "place_order"
	ActionLastOrder   = "last_order"
)

// Receipts delivers a confirmation for a placed order. Failures never undo the order.
type Receipts interface {
	SendReceipt(ctx context.Context, identity string, order orders.Order) error
}

type Options struct {
	StoreName  string
	MaxResults int
	Receipts   Receipts
	Observer   metrics.Observer
	Logger     *slog.Logger
	Now        func() time.Time
	NewOrderID orders.IDFunc
}

// CatalogQuery is the argument record of show_catalog.
type CatalogQuery struct {
	Query    string
	Category string
	Color    string
	Size     string
	MinPrice *int
	MaxPrice *int
}

// Controller runs shop actions against a session and the shared stores.
type Controller struct {
	catalog    *catalog.Catalog
	ledger     ledger.Ledger
	builder    *orders.Builder
	receipts   Receipts
	obs        metrics.Observer
	logger     *slog.Logger
	storeName  string
	maxResults int
	now        func() time.Time
}

func NewController(c *catalog.Catalog, l ledger.Ledger, opts Options) *Controller {
	if opts.StoreName == "" {
		opts.StoreName = DefaultStoreName
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = DefaultMaxResults
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewOrderID == nil {
		opts.NewOrderID = orders.NewID
	}
	if opts.Observer == nil {
		opts.Observer = metrics.NoopObserver{}
	}
	return &Controller{
		catalog:    c,
		ledger:     l,
		builder:    &orders.Builder{Catalog: c, Now: opts.Now, NewID: opts.NewOrderID},
		receipts:   opts.Receipts,
		obs:        opts.Observer,
		logger:     logging.NewComponentLogger(opts.Logger, "shop"),
		storeName:  opts.StoreName,
		maxResults: opts.MaxResults,
		now:        opts.Now,
	}
}

// StoreName returns the spoken store name.
func (c *Controller) StoreName() string { return c.storeName }

// Catalog exposes the product list the controller sells from.
func (c *Controller) Catalog() *catalog.Catalog { return c.catalog }

func (c *Controller) ShowCatalog(ctx context.Context, s *session.Session, q CatalogQuery) string {
	criteria := catalog.Criteria{
		Query:    q.Query,
		Category: q.Category,
		Color:    q.Color,
		Size:     q.Size,
		MinPrice: q.MinPrice,
		MaxPrice: q.MaxPrice,
	}
	if strings.TrimSpace(criteria.Category) == "" && criteria.Query != "" {
		if catalog.MentionsPhone(criteria.Query) {
			criteria.Category = catalog.CategoryMobile
		} else if mentionsTee(criteria.Query) {
			criteria.Category = "tshirt"
		}
	}
	found := catalog.Filter(c.catalog.Products(), criteria)
	c.record(s, ActionShowCatalog, map[string]any{"results": len(found)})
	if len(found) == 0 {
		return "Sorry — I couldn't find any items that match. Would you like to try another search?"
	}

	shown := found
	if len(shown) > c.maxResults {
		shown = shown[:c.maxResults]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Here are the top %d items I found at %s:\n", len(shown), c.storeName)
	for i, p := range shown {
		fmt.Fprintf(&b, "%d. %s — %d %s (id: %s)", i+1, p.Name, p.Price, p.Currency, p.ID)
		if len(p.Sizes) > 0 {
			fmt.Fprintf(&b, " (sizes: %s)", strings.Join(p.Sizes, ", "))
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "You can say: 'I want the second item' or 'add %s to my cart, quantity 2'.", shown[0].ID)
	for _, p := range found {
		if p.Category == catalog.CategoryMobile {
			fmt.Fprintf(&b, "\nTo buy a phone say: 'Add %s to my cart' or 'I want the second phone, quantity 1'.", p.ID)
			break
		}
	}
	return b.String()
}

func (c *Controller) AddToCart(ctx context.Context, s *session.Session, ref string, quantity int, size string) string {
	p, ok := resolver.Resolve(ref, c.catalog.Products())
	if !ok {
		return "I couldn't tell which product you meant. Try the item id, or say 'show catalog' to hear the options."
	}
	if quantity < 1 {
		return fmt.Sprintf("How many %s would you like? The quantity needs to be at least 1.", p.Name)
	}
	size = strings.TrimSpace(size)
	if size != "" && len(p.Sizes) > 0 && !p.HasSize(size) {
		return fmt.Sprintf("%s comes in sizes %s. Which one would you like?", p.Name, strings.Join(p.Sizes, ", "))
	}
	if ctx.Err() != nil {
		return interruptedReply
	}

	attrs := map[string]string{}
	if size != "" {
		attrs["size"] = size
	}
	s.Cart = append(s.Cart, session.CartLine{ProductID: p.ID, Quantity: quantity, Attrs: attrs})
	s.Trace(c.now(), session.TraceEntry{Action: ActionAddToCart, ProductID: p.ID, Quantity: quantity})
	c.record(s, ActionAddToCart, map[string]any{"product_id": p.ID, "quantity": quantity})
	c.logger.Debug("cart_line_added", "session_id", s.ID, "product_id", p.ID, "quantity", quantity)

	sizeText := ""
	if size != "" {
		sizeText = ", size " + size
	}
	return fmt.Sprintf("Added %d x %s%s to your cart. What would you like to do next?", quantity, p.Name, sizeText)
}

func (c *Controller) ShowCart(ctx context.Context, s *session.Session) string {
	c.record(s, ActionShowCart, map[string]any{"lines": len(s.Cart)})
	if len(s.Cart) == 0 {
		return "Your cart is empty. You can say 'show catalog' to browse items."
	}
	var b strings.Builder
	b.WriteString("Items in your cart:\n")
	total := 0
	currency := ""
	for _, li := range s.Cart {
		p, ok := c.catalog.Lookup(li.ProductID)
		if !ok {
			c.logger.Warn("cart_line_unknown_product", "session_id", s.ID, "product_id", li.ProductID, "reason_code", string(errorsx.ReasonOrderIntegrity))
			continue
		}
		if currency == "" {
			currency = p.Currency
		}
		lineTotal := p.Price * li.Quantity
		total += lineTotal
		sizeText := ""
		if sz := li.Attrs["size"]; sz != "" {
			sizeText = ", size " + sz
		}
		fmt.Fprintf(&b, "- %s x %d%s: %d %s\n", p.Name, li.Quantity, sizeText, lineTotal, p.Currency)
	}
	fmt.Fprintf(&b, "Cart total: %d %s\n", total, currency)
	b.WriteString("Say 'place my order' to checkout or 'clear cart' to empty the cart.")
	return b.String()
}

func (c *Controller) ClearCart(ctx context.Context, s *session.Session) string {
	s.Cart = nil
	s.Trace(c.now(), session.TraceEntry{Action: ActionClearCart})
	c.record(s, ActionClearCart, nil)
	return "Your cart has been cleared. What would you like to do next?"
}

func (c *Controller) PlaceOrder(ctx context.Context, s *session.Session, confirm bool) string {
	if len(s.Cart) == 0 {
		return "Your cart is empty — nothing to place. Would you like to browse items?"
	}
	if !confirm {
		return fmt.Sprintf("No problem, I haven't placed anything. Your cart still has %s.", pluralLines(len(s.Cart)))
	}

	order, err := c.builder.Build(s.OrderLines())
	if err != nil {
		c.logger.Error("order_build_failed", "session_id", s.ID, "reason_code", errorsx.LogValue(err), "error", err)
		if errors.Is(err, orders.ErrUnknownProduct) {
			return "Sorry, something in your cart is no longer available, so I couldn't place the order. Your cart is unchanged."
		}
		return "Sorry, I couldn't put that order together. Your cart is unchanged."
	}
	if ctx.Err() != nil {
		return interruptedReply
	}
	if err := c.ledger.Append(ctx, order); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonLedgerWrite)
		c.logger.Error("ledger_write_failed", "session_id", s.ID, "order_id", order.ID, "ledger", c.ledger.Name(), "reason_code", errorsx.LogValue(err), "error", err)
		return "Sorry, I couldn't save your order just now, so it was not placed. Your cart is still here. Please try again in a moment."
	}

	s.Orders = append(s.Orders, order)
	s.Trace(c.now(), session.TraceEntry{Action: ActionPlaceOrder, OrderID: order.ID})
	s.Cart = nil
	c.record(s, ActionPlaceOrder, map[string]any{"order_id": order.ID, "total": order.Total, "currency": order.Currency})
	c.logger.Info("order_placed", "session_id", s.ID, "order_id", order.ID, "total", order.Total, "currency", order.Currency, redact.IdentityAttr(s.Identity))
	c.sendReceipt(ctx, s, order)

	return fmt.Sprintf("Order placed. Order ID %s. Total %d %s. What would you like to do next?", order.ID, order.Total, order.Currency)
}

func (c *Controller) LastOrder(ctx context.Context, s *session.Session) string {
	c.record(s, ActionLastOrder, nil)
	order, ok, err := c.ledger.Last(ctx)
	if err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonLedgerRead)
		c.logger.Warn("ledger_read_failed", "session_id", s.ID, "ledger", c.ledger.Name(), "reason_code", errorsx.LogValue(err), "error", err)
		ok = false
	}
	if !ok {
		return "You have no past orders yet."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Most recent order: %s — %s\n", order.ID, order.CreatedAt.UTC().Format(time.RFC3339))
	for _, it := range order.Items {
		fmt.Fprintf(&b, "- %s x %d: %d %s\n", it.Name, it.Quantity, it.LineTotal, order.Currency)
	}
	fmt.Fprintf(&b, "Total: %d %s", order.Total, order.Currency)
	return b.String()
}

const interruptedReply = "Sorry, that took too long and nothing was changed. Could you say that again?"

func (c *Controller) sendReceipt(ctx context.Context, s *session.Session, order orders.Order) {
	if c.receipts == nil || strings.TrimSpace(s.Identity) == "" {
		return
	}
	if err := c.receipts.SendReceipt(ctx, s.Identity, order); err != nil {
		err = errorsx.Wrap(err, errorsx.ReasonNotifySend)
		c.logger.Warn("receipt_failed", "session_id", s.ID, "order_id", order.ID, "reason_code", errorsx.LogValue(err), "error", err, redact.IdentityAttr(s.Identity))
	}
}

func (c *Controller) record(s *session.Session, action string, fields map[string]any) {
	metrics.Record(c.obs, metrics.EventAction, map[string]string{
		"action":     action,
		"session_id": s.ID,
	}, fields)
}

func mentionsTee(q string) bool {
	for _, tok := range strings.Fields(strings.ToLower(q)) {
		switch strings.Trim(tok, ".,!?") {
		case "tee", "tees", "tshirt", "tshirts", "t-shirt", "t-shirts":
			return true
		}
	}
	return false
}

func pluralLines(n int) string {
	if n == 1 {
		return "1 item"
	}
	return fmt.Sprintf("%d items", n)
}
