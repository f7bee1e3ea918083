package shop

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harunnryd/cipher/pkg/ledger"
	"github.com/harunnryd/cipher/pkg/session"
)

func TestToolsDefinitions(t *testing.T) {
	tools := NewTools(newTestController(t, ledger.NewMemory(), Options{}), session.New(""))
	var names []string
	for _, tool := range tools.Tools() {
		names = append(names, tool.Name)
		assert.Equal(t, "object", tool.Schema["type"])
	}
	assert.Equal(t, []string{"show_catalog", "add_to_cart", "show_cart", "clear_cart", "place_order", "last_order"}, names)
}

func TestToolsRoundTrip(t *testing.T) {
	l := ledger.NewMemory()
	s := session.New("")
	tools := NewTools(newTestController(t, l, Options{}), s)
	ctx := context.Background()

	out, err := tools.HandleTool(ctx, "show_catalog", map[string]any{"category": "gaming", "to": "6000"})
	require.NoError(t, err)
	assert.Contains(t, out, "keyboard-001")
	assert.NotContains(t, out, "headset-001")

	out, err = tools.HandleTool(ctx, "show_catalog", map[string]any{"category": "gaming", "max_price": "cheap", "min": 4000.0})
	require.NoError(t, err)
	assert.Contains(t, out, "console-001")
	assert.NotContains(t, out, "mouse-001")

	out, err = tools.HandleTool(ctx, "add_to_cart", map[string]any{"product_ref": "keyboard-001", "quantity": 2.0})
	require.NoError(t, err)
	assert.Contains(t, out, "Added 2 x Mechanical Gaming Keyboard")

	out, err = tools.HandleTool(ctx, "add_to_cart", map[string]any{"product_ref": "mouse-001"})
	require.NoError(t, err)
	assert.Contains(t, out, "Added 1 x Gaming Mouse Pro")

	out, err = tools.HandleTool(ctx, "add_to_cart", map[string]any{})
	require.NoError(t, err)
	assert.Contains(t, out, "Which product")

	out, err = tools.HandleTool(ctx, "show_cart", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Cart total: 15497 INR")

	out, err = tools.HandleTool(ctx, "place_order", map[string]any{"confirm": false})
	require.NoError(t, err)
	assert.Contains(t, out, "haven't placed anything")

	out, err = tools.HandleTool(ctx, "place_order", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Order placed")
	assert.Empty(t, s.Cart)

	out, err = tools.HandleTool(ctx, "last_order", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "Total: 15497 INR")

	out, err = tools.HandleTool(ctx, "clear_cart", nil)
	require.NoError(t, err)
	assert.Contains(t, out, "cleared")
}

func TestToolsErrors(t *testing.T) {
	tools := NewTools(newTestController(t, ledger.NewMemory(), Options{}), session.New(""))
	_, err := tools.HandleTool(context.Background(), "refund", nil)
	assert.ErrorIs(t, err, ErrUnknownTool)

}

func TestToolsBadArgumentsAreSpoken(t *testing.T) {
	l := ledger.NewMemory()
	s := session.New("")
	tools := NewTools(newTestController(t, l, Options{}), s)
	ctx := context.Background()

	out, err := tools.HandleTool(ctx, ActionAddToCart, map[string]any{"product_ref": "mouse-001", "quantity": "two"})
	require.NoError(t, err)
	assert.Equal(t, quantityReply, out)
	assert.Empty(t, s.Cart)
	assert.Empty(t, s.History)

	out, err = tools.HandleTool(ctx, ActionShowCatalog, map[string]any{"category": map[string]any{"nested": true}})
	require.NoError(t, err)
	assert.Equal(t, catalogArgsReply, out)

	_, err = tools.HandleTool(ctx, ActionAddToCart, map[string]any{"product_ref": "mouse-001"})
	require.NoError(t, err)
	out, err = tools.HandleTool(ctx, ActionPlaceOrder, map[string]any{"confirm": "maybe"})
	require.NoError(t, err)
	assert.Equal(t, confirmReply, out)
	assert.Len(t, s.Cart, 1)
	all, err := l.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}
