// Package catalog holds the product list and the filter engine used by the shop persona.
package catalog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/harunnryd/cipher/pkg/errorsx"
)

// Product is an immutable catalog entry.
type Product struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Price       int      `json:"price" yaml:"price"`
	Currency    string   `json:"currency" yaml:"currency"`
	Category    string   `json:"category" yaml:"category"`
	Color       string   `json:"color" yaml:"color"`
	Sizes       []string `json:"sizes" yaml:"sizes"`
}

// HasSize reports whether size is one of the product's sizes.
func (p Product) HasSize(size string) bool {
	for _, s := range p.Sizes {
		if s == size {
			return true
		}
	}
	return false
}

// Catalog is a read-only product list in definition order.
type Catalog struct {
	products []Product
	byID     map[string]int
}

// New builds a catalog. Ids must be unique and non-empty.
func New(products []Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	for i, p := range products {
		if strings.TrimSpace(p.ID) == "" {
			return nil, fmt.Errorf("catalog: product %d has no id", i)
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate product id %q", p.ID)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("catalog: product %q has negative price", p.ID)
		}
		p.Sizes = append([]string(nil), p.Sizes...)
		c.products[i] = p
		c.byID[p.ID] = i
	}
	return c, nil
}

// Default returns the built-in Khan's Tech Store catalog.
func Default() *Catalog {
	c, err := New(defaultProducts)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadFile reads a YAML list of products. An empty path yields the default catalog.
func LoadFile(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("read catalog: %w", err), errorsx.ReasonCatalogLoad)
	}
	var doc struct {
		Products []Product `yaml:"products"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, errorsx.Wrap(fmt.Errorf("parse catalog: %w", err), errorsx.ReasonCatalogLoad)
	}
	if len(doc.Products) == 0 {
		return nil, errorsx.New(errorsx.ReasonCatalogLoad, "catalog %s has no products", path)
	}
	c, err := New(doc.Products)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonCatalogLoad)
	}
	return c, nil
}

// Products returns a copy of every product in definition order.
func (c *Catalog) Products() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Lookup finds a product by exact id.
func (c *Catalog) Lookup(id string) (Product, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

var defaultProducts = []Product{
	// gaming
	{ID: "console-001", Name: "PlayStation 5", Description: "Next-gen gaming console with 4K graphics.", Price: 49999, Currency: "INR", Category: "gaming", Color: "white"},
	{ID: "headset-001", Name: "Wireless Gaming Headset", Description: "Premium wireless headset with surround sound.", Price: 8999, Currency: "INR", Category: "gaming", Color: "black"},
	{ID: "keyboard-001", Name: "Mechanical Gaming Keyboard", Description: "RGB backlit mechanical keyboard for gamers.", Price: 5999, Currency: "INR", Category: "gaming", Color: "black"},
	{ID: "mouse-001", Name: "Gaming Mouse Pro", Description: "High-precision gaming mouse with customizable buttons.", Price: 3499, Currency: "INR", Category: "gaming", Color: "black"},
	// smart home
	{ID: "speaker-001", Name: "Smart Speaker with Alexa", Description: "Voice-controlled smart speaker for home automation.", Price: 4999, Currency: "INR", Category: "smart-home", Color: "charcoal"},
	{ID: "bulb-001", Name: "Smart LED Bulb Set", Description: "Color-changing smart bulbs controlled by app.", Price: 2999, Currency: "INR", Category: "smart-home", Color: "white"},
	{ID: "camera-001", Name: "Security Camera System", Description: "Wireless security cameras with night vision.", Price: 12999, Currency: "INR", Category: "smart-home", Color: "white"},
	// fitness
	{ID: "watch-001", Name: "Fitness Tracker Pro", Description: "Advanced fitness tracker with heart rate monitoring.", Price: 15999, Currency: "INR", Category: "fitness", Color: "black"},
	{ID: "scale-001", Name: "Smart Body Scale", Description: "Digital scale that tracks weight, BMI, and body fat.", Price: 3999, Currency: "INR", Category: "fitness", Color: "white"},
	{ID: "bottle-001", Name: "Smart Water Bottle", Description: "Temperature-controlled water bottle with hydration tracking.", Price: 2499, Currency: "INR", Category: "fitness", Color: "blue"},
	// books and learning
	{ID: "book-001", Name: "AI Programming Masterclass", Description: "Complete guide to artificial intelligence programming.", Price: 1599, Currency: "INR", Category: "books", Color: "blue"},
	{ID: "book-002", Name: "Digital Marketing Handbook", Description: "Modern strategies for online business growth.", Price: 1299, Currency: "INR", Category: "books", Color: "red"},
	{ID: "course-001", Name: "Online Coding Bootcamp", Description: "6-month intensive programming course with certification.", Price: 25999, Currency: "INR", Category: "education", Color: "digital"},
	// kitchen and home
	{ID: "blender-001", Name: "Smart Blender Pro", Description: "High-speed blender with app-controlled recipes.", Price: 8999, Currency: "INR", Category: "kitchen", Color: "silver"},
	{ID: "maker-001", Name: "Automatic Coffee Maker", Description: "Programmable coffee maker with built-in grinder.", Price: 12999, Currency: "INR", Category: "kitchen", Color: "black"},
	{ID: "purifier-001", Name: "Air Purifier with HEPA Filter", Description: "Smart air purifier removes 99.9% of pollutants.", Price: 18999, Currency: "INR", Category: "home", Color: "white"},
	// accessories
	{ID: "bag-001", Name: "Smart Backpack with USB", Description: "Anti-theft backpack with built-in USB charging port.", Price: 3999, Currency: "INR", Category: "accessories", Color: "black"},
	{ID: "wallet-001", Name: "RFID Blocking Wallet", Description: "Leather wallet with RFID protection technology.", Price: 1999, Currency: "INR", Category: "accessories", Color: "brown"},
	{ID: "glasses-001", Name: "Blue Light Blocking Glasses", Description: "Computer glasses that reduce eye strain.", Price: 2499, Currency: "INR", Category: "accessories", Color: "black"},
	// travel
	{ID: "charger-001", Name: "Portable Power Bank 20000mAh", Description: "Fast-charging power bank with wireless charging.", Price: 2999, Currency: "INR", Category: "travel", Color: "black"},
}
