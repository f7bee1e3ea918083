package shop

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harunnryd/cipher/pkg/catalog"
	"github.com/harunnryd/cipher/pkg/configutil"
	"github.com/harunnryd/cipher/pkg/errorsx"
	"github.com/harunnryd/cipher/pkg/llm"
	"github.com/harunnryd/cipher/pkg/session"
)

// ErrUnknownTool is returned for a tool name the registry does not serve.
var ErrUnknownTool = errors.New("shop: unknown tool")

// Spoken replies for arguments that do not decode.
const (
	catalogArgsReply = "Sorry, I didn't catch what to look for. Could you say the category or product again?"
	quantityReply    = "How many would you like? Please say a number."
	confirmReply     = "Should I place the order? Please say yes or no."
)

// Tools exposes a controller bound to one session as an llm.ToolRegistry.
type Tools struct {
	controller *Controller
	session    *session.Session
	handlers   map[string]func(context.Context, map[string]any) (string, error)
}

func NewTools(c *Controller, s *session.Session) *Tools {
	t := &Tools{controller: c, session: s}
	t.handlers = map[string]func(context.Context, map[string]any) (string, error){
		ActionShowCatalog: t.showCatalog,
		ActionAddToCart:   t.addToCart,
		ActionShowCart: func(ctx context.Context, _ map[string]any) (string, error) {
			return c.ShowCart(ctx, s), nil
		},
		ActionClearCart: func(ctx context.Context, _ map[string]any) (string, error) {
			return c.ClearCart(ctx, s), nil
		},
		ActionPlaceOrder: t.placeOrder,
		ActionLastOrder: func(ctx context.Context, _ map[string]any) (string, error) {
			return c.LastOrder(ctx, s), nil
		},
	}
	return t
}

func (t *Tools) Tools() []llm.Tool {
	return toolDefinitions
}

func (t *Tools) HandleTool(ctx context.Context, name string, args map[string]any) (string, error) {
	h := t.handlers[name]
	if h == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return h(ctx, args)
}

var _ llm.ToolRegistry = (*Tools)(nil)

type catalogArgs struct {
	Q        string `mapstructure:"q"`
	Query    string `mapstructure:"query"`
	Category string `mapstructure:"category"`
	Color    string `mapstructure:"color"`
	Size     string `mapstructure:"size"`
	MaxPrice any    `mapstructure:"max_price"`
	MinPrice any    `mapstructure:"min_price"`
	To       any    `mapstructure:"to"`
	From     any    `mapstructure:"from"`
	Max      any    `mapstructure:"max"`
	Min      any    `mapstructure:"min"`
}

func (t *Tools) showCatalog(ctx context.Context, args map[string]any) (string, error) {
	var in catalogArgs
	if err := configutil.DecodeSettings(args, &in); err != nil {
		return t.badArgs(ActionShowCatalog, err, catalogArgsReply), nil
	}
	query := in.Q
	if query == "" {
		query = in.Query
	}
	return t.controller.ShowCatalog(ctx, t.session, CatalogQuery{
		Query:    query,
		Category: in.Category,
		Color:    in.Color,
		Size:     in.Size,
		MaxPrice: firstBound(in.MaxPrice, in.To, in.Max),
		MinPrice: firstBound(in.MinPrice, in.From, in.Min),
	}), nil
}

type addToCartArgs struct {
	ProductRef string `mapstructure:"product_ref"`
	Quantity   *int   `mapstructure:"quantity"`
	Size       string `mapstructure:"size"`
}

func (t *Tools) addToCart(ctx context.Context, args map[string]any) (string, error) {
	var in addToCartArgs
	if err := configutil.DecodeSettings(args, &in); err != nil {
		return t.badArgs(ActionAddToCart, err, quantityReply), nil
	}
	if strings.TrimSpace(in.ProductRef) == "" {
		return "Which product would you like to add? You can say its id or name.", nil
	}
	return t.controller.AddToCart(ctx, t.session, in.ProductRef, configutil.IntValue(in.Quantity, 1), in.Size), nil
}

type placeOrderArgs struct {
	Confirm *bool `mapstructure:"confirm"`
}

func (t *Tools) placeOrder(ctx context.Context, args map[string]any) (string, error) {
	var in placeOrderArgs
	if err := configutil.DecodeSettings(args, &in); err != nil {
		return t.badArgs(ActionPlaceOrder, err, confirmReply), nil
	}
	return t.controller.PlaceOrder(ctx, t.session, configutil.BoolValue(in.Confirm, true)), nil
}

// badArgs logs an argument decode failure and returns the reply asking the
// shopper to repeat themselves. State is never touched.
func (t *Tools) badArgs(action string, err error, reply string) string {
	err = errorsx.Wrap(err, errorsx.ReasonToolArgs)
	t.controller.logger.Warn("tool_args_invalid", "session_id", t.session.ID, "tool", action, "reason_code", errorsx.LogValue(err), "error", err)
	return reply
}

// firstBound returns the first value that parses to a positive price.
func firstBound(values ...any) *int {
	for _, v := range values {
		if b := catalog.ParseBound(v); b != nil {
			return b
		}
	}
	return nil
}

var toolDefinitions = []llm.Tool{
	{
		Name:        ActionShowCatalog,
		Description: "Search the store catalog and return a short spoken summary of matching products with name, price and id.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"q":         map[string]any{"type": "string", "description": "Free text search query"},
				"category":  map[string]any{"type": "string", "description": "Category such as gaming, smart-home, fitness, books, kitchen, accessories, travel"},
				"max_price": map[string]any{"type": "integer", "description": "Maximum price in INR"},
				"min_price": map[string]any{"type": "integer", "description": "Minimum price in INR"},
				"color":     map[string]any{"type": "string"},
				"size":      map[string]any{"type": "string"},
			},
		},
	},
	{
		Name:        ActionAddToCart,
		Description: "Resolve a spoken product reference (id, name, 'the second one') and add it to the cart.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"product_ref": map[string]any{"type": "string", "description": "Product id, name or spoken reference"},
				"quantity":    map[string]any{"type": "integer", "description": "Quantity, defaults to 1"},
				"size":        map[string]any{"type": "string"},
			},
			"required": []string{"product_ref"},
		},
	},
	{
		Name:        ActionShowCart,
		Description: "Read back the cart with line totals and the cart total.",
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        ActionClearCart,
		Description: "Remove every item from the cart.",
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
	},
	{
		Name:        ActionPlaceOrder,
		Description: "Place an order for everything in the cart. Only call after the customer confirms.",
		Schema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"confirm": map[string]any{"type": "boolean", "description": "Customer confirmed the order"},
			},
		},
	},
	{
		Name:        ActionLastOrder,
		Description: "Read back the most recently placed order in the store.",
		Schema:      map[string]any{"type": "object", "properties": map[string]any{}},
	},
}
