package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v2"
)

// DefaultCurrency is used when a catalog file does not name one.
const DefaultCurrency = "USD"

var (
	ErrDuplicateItem = errors.New("catalog: duplicate item id")
	ErrInvalidPrice  = errors.New("catalog: price must be positive")
	ErrMissingID     = errors.New("catalog: item id is required")
	ErrItemNotFound  = errors.New("catalog: item not found")
)

// Item is a purchasable listing. Items are immutable once loaded.
type Item struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
}

// Catalog is an ordered, read-only list of items.
type Catalog struct {
	currency string
	items    []Item
	index    map[string]int
}

// New validates items and builds a catalog preserving their order.
func New(currency string, items []Item) (*Catalog, error) {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = DefaultCurrency
	}
	c := &Catalog{
		currency: currency,
		items:    make([]Item, 0, len(items)),
		index:    make(map[string]int, len(items)),
	}
	for _, it := range items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			return nil, ErrMissingID
		}
		if !it.Price.IsPositive() {
			return nil, fmt.Errorf("%w: item %s", ErrInvalidPrice, it.ID)
		}
		if _, ok := c.index[it.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateItem, it.ID)
		}
		c.index[it.ID] = len(c.items)
		c.items = append(c.items, it)
	}
	return c, nil
}

// Default returns the built-in marketplace listing.
func Default() *Catalog {
	c, err := New(DefaultCurrency, []Item{
		{ID: "1", Title: "Twitter DM Auto-Responder", Description: "Replies to new direct messages with a configurable template.", Price: decimal.NewFromInt(19)},
		{ID: "2", Title: "Notion to Slack Sync", Description: "Posts Notion database changes to a Slack channel.", Price: decimal.NewFromInt(29)},
		{ID: "3", Title: "Lead Enrichment Bot", Description: "Fills in company and role details for incoming leads.", Price: decimal.NewFromInt(39)},
		{ID: "4", Title: "CRM Cleaner", Description: "Merges duplicate contacts and normalizes fields.", Price: decimal.NewFromInt(24)},
	})
	if err != nil {
		panic(err)
	}
	return c
}

type fileItem struct {
	ID          string `yaml:"id"`
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
}

type file struct {
	Currency string     `yaml:"currency"`
	Items    []fileItem `yaml:"items"`
}

// Parse decodes a YAML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	items := make([]Item, 0, len(f.Items))
	for _, fi := range f.Items {
		price, err := decimal.NewFromString(strings.TrimSpace(fi.Price))
		if err != nil {
			return nil, fmt.Errorf("catalog: item %s price: %w", fi.ID, err)
		}
		items = append(items, Item{
			ID:          fi.ID,
			Title:       strings.TrimSpace(fi.Title),
			Description: strings.TrimSpace(fi.Description),
			Price:       price,
		})
	}
	return New(f.Currency, items)
}

// Load reads a YAML catalog file from disk.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return Parse(data)
}

// Currency returns the ISO code all prices are quoted in.
func (c *Catalog) Currency() string { return c.currency }

// Len reports the number of items.
func (c *Catalog) Len() int { return len(c.items) }

// Items returns a copy of the items in catalog order.
func (c *Catalog) Items() []Item {
	out := make([]Item, len(c.items))
	copy(out, c.items)
	return out
}

// Get looks up an item by id.
func (c *Catalog) Get(id string) (Item, error) {
	i, ok := c.index[id]
	if !ok {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return c.items[i], nil
}
