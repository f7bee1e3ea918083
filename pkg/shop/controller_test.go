package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/cipher/pkg/catalog"
	"github.com/harunnryd/cipher/pkg/ledger"
	"github.com/harunnryd/cipher/pkg/logging"
	"github.com/harunnryd/cipher/pkg/metrics"
	"github.com/harunnryd/cipher/pkg/orders"
	"github.com/harunnryd/cipher/pkg/session"
)

var fixedNow = time.Date(2025, 11, 30, 10, 30, 0, 0, time.UTC)

func newTestController(t *testing.T, l ledger.Ledger, opts Options) *Controller {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	return NewController(catalog.Default(), l, opts)
}

func intPtr(v int) *int { return &v }

type failingLedger struct {
	*ledger.Memory
	appendErr error
	readErr   error
}

func (f *failingLedger) Append(ctx context.Context, o orders.Order) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	return f.Memory.Append(ctx, o)
}

func (f *failingLedger) Last(ctx context.Context) (orders.Order, bool, error) {
	if f.readErr != nil {
		return orders.Order{}, false, f.readErr
	}
	return f.Memory.Last(ctx)
}

type recordingReceipts struct {
	sent []string
	err  error
}

func (r *recordingReceipts) SendReceipt(ctx context.Context, identity string, order orders.Order) error {
	r.sent = append(r.sent, identity+":"+order.ID)
	return r.err
}

func TestShowCatalogGamingUnderBudget(t *testing.T) {
	c := newTestController(t, ledger.NewMemory(), Options{})
	s := session.New("")

	out := c.ShowCatalog(context.Background(), s, CatalogQuery{Category: "gaming", MaxPrice: intPtr(6000)})
	assert.Contains(t, out, "Here are the top 2 items I found at Khan's Tech Store:")
	assert.Contains(t, out, "1. Mechanical Gaming Keyboard — 5999 INR (id: keyboard-001)")
	assert.Contains(t, out, "2. Gaming Mouse Pro — 3499 INR (id: mouse-001)")
	assert.NotContains(t, out, "Headset")
	assert.NotContains(t, out, "To buy a phone")
}

func TestShowCatalogLimitsResults(t *testing.T) {
	c := newTestController(t, ledger.NewMemory(), Options{})
	out := c.ShowCatalog(context.Background(), session.New(""), CatalogQuery{})
	assert.Contains(t, out, "Here are the top 8 items")
	assert.Contains(t, out, "8. Fitness Tracker Pro")
	assert.NotContains(t, out, "9. ")
}

func TestShowCatalogEmptyAndPhoneQuery(t *testing.T) {
	c := newTestController(t, ledger.NewMemory(), Options{})
	s := session.New("")
	out := c.ShowCatalog(context.Background(), s, CatalogQuery{Query: "cheap phone"})
	assert.True(t, strings.HasPrefix(out, "Sorry"), out)
	assert.Empty(t, s.Cart)
}

func TestShowCatalogMobileHintAndSizes(t *testing.T) {
	cat, err := catalog.New([]catalog.Product{
		{ID: "phone-001", Name: "Pixel 8", Price: 52999, Currency: "INR", Category: "mobile", Color: "grey"},
		{ID: "tee-001", Name: "Logo Tee", Price: 799, Currency: "INR", Category: "tshirt", Color: "black", Sizes: []string{"S", "M"}},
	})
	require.NoError(t, err)
	c := NewController(cat, ledger.NewMemory(), Options{Logger: logging.Discard()})

	out := c.ShowCatalog(context.Background(), session.New(""), CatalogQuery{Category: "phones"})
	assert.Contains(t, out, "1. Pixel 8 — 52999 INR (id: phone-001)")
	assert.Contains(t, out, "To buy a phone say: 'Add phone-001 to my cart'")

	out = c.ShowCatalog(context.Background(), session.New(""), CatalogQuery{Category: "tees", Size: "M"})
	assert.Contains(t, out, "Logo Tee — 799 INR (id: tee-001) (sizes: S, M)")
}

func TestAddToCartSecondPhoneFallsBackToCatalogOrder(t *testing.T) {
	c := newTestController(t, ledger.NewMemory(), Options{})
	s := session.New("")

	out := c.AddToCart(context.Background(), s, "add the second phone to my cart", 1, "")
	assert.Equal(t, "Added 1 x Wireless Gaming Headset to your cart. What would you like to do next?", out)
	require.Len(t, s.Cart, 1)
	assert.Equal(t, "headset-001", s.Cart[0].ProductID)
	require.Len(t, s.History, 1)
	assert.Equal(t, session.TraceEntry{Time: fixedNow, Action: ActionAddToCart, ProductID: "headset-001", Quantity: 1}, s.History[0])
}

func TestAddToCartRejectsWithoutMutation(t *testing.T) {
	c := newTestController(t, ledger.NewMemory(), Options{})
	s := session.New("")

	out := c.AddToCart(context.Background(), s, "xyzzy", 1, "")
	assert.Contains(t, out, "couldn't tell which product")

	out = c.AddToCart(context.Background(), s, "mouse-001", 0, "")
	assert.Contains(t, out, "at least 1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out = c.AddToCart(ctx, s, "mouse-001", 1, "")
	assert.Equal(t, interruptedReply, out)

	assert.Empty(t, s.Cart)
	assert.Empty(t, s.History)
}

func TestAddToCartSize(t *testing.T) {
	cat, err := catalog.New([]catalog.Product{
		{ID: "tee-001", Name: "Logo Tee", Price: 799, Currency: "INR", Category: "tshirt", Sizes: []string{"S", "M"}},
	})
	require.NoError(t, err)
	c := NewController(cat, ledger.NewMemory(), Options{Logger: logging.Discard()})
	s := session.New("")

	out := c.AddToCart(context.Background(), s, "tee-001", 2, "XL")
	assert.Contains(t, out, "comes in sizes S, M")
	assert.Empty(t, s.Cart)

	out = c.AddToCart(context.Background(), s, "tee-001", 2, "M")
	assert.Equal(t, "Added 2 x Logo Tee, size M to your cart. What would you like to do next?", out)
	assert.Equal(t, map[string]string{"size": "M"}, s.Cart[0].Attrs)

	cart := c.ShowCart(context.Background(), s)
	assert.Contains(t, cart, "- Logo Tee x 2, size M: 1598 INR")
}

func TestShowCartEmptyAndTotals(t *testing.T) {
	c := newTestController(t, ledger.NewMemory(), Options{})
	s := session.New("")

	out := c.ShowCart(context.Background(), s)
	assert.Equal(t, "Your cart is empty. You can say 'show catalog' to browse items.", out)
	assert.NotContains(t, out, "0 INR")

	c.AddToCart(context.Background(), s, "keyboard-001", 2, "")
	c.AddToCart(context.Background(), s, "gaming mouse", 1, "")
	out = c.ShowCart(context.Background(), s)
	assert.Contains(t, out, "- Mechanical Gaming Keyboard x 2: 11998 INR")
	assert.Contains(t, out, "- Gaming Mouse Pro x 1: 3499 INR")
	assert.Contains(t, out, "Cart total: 15497 INR")
}

func TestClearCartIsIdempotent(t *testing.T) {
	l := ledger.NewMemory()
	c := newTestController(t, l, Options{})
	once := session.New("")
	twice := session.New("")
	for _, s := range []*session.Session{once, twice} {
		c.AddToCart(context.Background(), s, "mouse-001", 1, "")
	}

	c.ClearCart(context.Background(), once)
	c.ClearCart(context.Background(), twice)
	c.ClearCart(context.Background(), twice)

	assert.Equal(t, once.Cart, twice.Cart)
	assert.Equal(t, once.Orders, twice.Orders)
	assert.Empty(t, twice.Cart)
	all, err := l.All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestPlaceOrderTotalsAndClearsCart(t *testing.T) {
	l := ledger.NewMemory()
	c := newTestController(t, l, Options{NewOrderID: func() string { return "order-fixed" }})
	s := session.New("")
	c.AddToCart(context.Background(), s, "keyboard-001", 2, "")
	c.AddToCart(context.Background(), s, "bottle-001", 3, "")

	out := c.PlaceOrder(context.Background(), s, true)
	assert.Equal(t, "Order placed. Order ID order-fixed. Total 19495 INR. What would you like to do next?", out)
	assert.Empty(t, s.Cart)
	require.Len(t, s.Orders, 1)

	order := s.Orders[0]
	sum := 0
	for _, it := range order.Items {
		sum += it.UnitPrice * it.Quantity
	}
	assert.Equal(t, sum, order.Total)

	stored, ok, err := l.Last(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(order, stored); diff != "" {
		t.Fatalf("ledger order mismatch (-session +ledger):\n%s", diff)
	}
	assert.Equal(t, ActionPlaceOrder, s.History[len(s.History)-1].Action)
	assert.Equal(t, "order-fixed", s.History[len(s.History)-1].OrderID)
}

func TestPlaceOrderEmptyCartLeavesStateUnchanged(t *testing.T) {
	l := ledger.NewMemory()
	c := newTestController(t, l, Options{})
	s := session.New("")

	out := c.PlaceOrder(context.Background(), s, true)
	assert.Contains(t, out, "Your cart is empty")
	assert.Empty(t, s.Cart)
	assert.Empty(t, s.Orders)
	all, _ := l.All(context.Background())
	assert.Empty(t, all)
}

func TestPlaceOrderUnconfirmed(t *testing.T) {
	l := ledger.NewMemory()
	c := newTestController(t, l, Options{})
	s := session.New("")
	c.AddToCart(context.Background(), s, "mouse-001", 1, "")

	out := c.PlaceOrder(context.Background(), s, false)
	assert.Contains(t, out, "haven't placed anything")
	assert.Len(t, s.Cart, 1)
	all, _ := l.All(context.Background())
	assert.Empty(t, all)
}

func TestPlaceOrderLedgerWriteFailure(t *testing.T) {
	l := &failingLedger{Memory: ledger.NewMemory(), appendErr: errors.New("disk full")}
	c := newTestController(t, l, Options{})
	s := session.New("")
	c.AddToCart(context.Background(), s, "mouse-001", 1, "")
	historyBefore := len(s.History)

	out := c.PlaceOrder(context.Background(), s, true)
	assert.Contains(t, out, "couldn't save your order")
	assert.NotContains(t, out, "Order placed")
	assert.Len(t, s.Cart, 1)
	assert.Empty(t, s.Orders)
	assert.Len(t, s.History, historyBefore)
}

func TestPlaceOrderIntegrityFailureAbortsWholeOrder(t *testing.T) {
	l := ledger.NewMemory()
	c := newTestController(t, l, Options{})
	s := session.New("")
	s.Cart = []session.CartLine{
		{ProductID: "mouse-001", Quantity: 1},
		{ProductID: "discontinued-001", Quantity: 1},
	}

	out := c.PlaceOrder(context.Background(), s, true)
	assert.Contains(t, out, "no longer available")
	assert.Len(t, s.Cart, 2)
	assert.Empty(t, s.Orders)
	all, _ := l.All(context.Background())
	assert.Empty(t, all)
}

func TestLastOrderAcrossSessions(t *testing.T) {
	l := ledger.NewMemory()
	c := newTestController(t, l, Options{})
	alice := session.New("alice")
	bob := session.New("bob")

	assert.Equal(t, "You have no past orders yet.", c.LastOrder(context.Background(), alice))

	c.AddToCart(context.Background(), alice, "mouse-001", 1, "")
	c.PlaceOrder(context.Background(), alice, true)
	c.AddToCart(context.Background(), bob, "book-002", 2, "")
	c.PlaceOrder(context.Background(), bob, true)

	all, err := l.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.NotEqual(t, all[0].ID, all[1].ID)

	out := c.LastOrder(context.Background(), alice)
	assert.Contains(t, out, fmt.Sprintf("Most recent order: %s — 2025-11-30T10:30:00Z", bob.Orders[0].ID))
	assert.Contains(t, out, "- Digital Marketing Handbook x 2: 2598 INR")
	assert.Contains(t, out, "Total: 2598 INR")
}

func TestLastOrderReadFailureDegrades(t *testing.T) {
	l := &failingLedger{Memory: ledger.NewMemory(), readErr: errors.New("corrupt ledger")}
	c := newTestController(t, l, Options{})
	assert.Equal(t, "You have no past orders yet.", c.LastOrder(context.Background(), session.New("")))
}

func TestReceiptsAndTraceEvents(t *testing.T) {
	receipts := &recordingReceipts{err: errors.New("sms down")}
	obs := metrics.NewMemoryObserver()
	c := newTestController(t, ledger.NewMemory(), Options{Receipts: receipts, Observer: obs, NewOrderID: func() string { return "order-1" }})

	anon := session.New("")
	c.AddToCart(context.Background(), anon, "mouse-001", 1, "")
	c.PlaceOrder(context.Background(), anon, true)

	known := session.New("+919876543210")
	c.AddToCart(context.Background(), known, "mouse-001", 1, "")
	out := c.PlaceOrder(context.Background(), known, true)
	assert.Contains(t, out, "Order placed")
	assert.Equal(t, []string{"+919876543210:order-1"}, receipts.sent)

	var actions []string
	for _, ev := range obs.Named(metrics.EventAction) {
		actions = append(actions, ev.Tags["action"])
	}
	assert.Equal(t, []string{ActionAddToCart, ActionPlaceOrder, ActionAddToCart, ActionPlaceOrder}, actions)
}
