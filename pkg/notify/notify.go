// Package notify delivers order receipts to shoppers.
package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/harunnryd/cipher/pkg/orders"
)

// Notifier sends a receipt for a placed order. It satisfies shop.Receipts.
type Notifier interface {
	SendReceipt(ctx context.Context, identity string, order orders.Order) error
}

// Noop drops every receipt.
type Noop struct{}

func (Noop) SendReceipt(context.Context, string, orders.Order) error { return nil }

// ReceiptText renders the short text receipt for an order.
func ReceiptText(storeName string, order orders.Order) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: order %s confirmed.\n", storeName, order.ID)
	for _, it := range order.Items {
		fmt.Fprintf(&b, "%s x %d: %d %s\n", it.Name, it.Quantity, it.LineTotal, order.Currency)
	}
	fmt.Fprintf(&b, "Total: %d %s", order.Total, order.Currency)
	return b.String()
}
