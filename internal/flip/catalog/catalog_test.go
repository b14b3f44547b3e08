package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
)

func TestDefaultCatalogOrder(t *testing.T) {
	c := Default()
	if c.Len() != 4 {
		t.Fatalf("expected 4 items, got %d", c.Len())
	}
	wantIDs := []string{"1", "2", "3", "4"}
	wantPrices := []int64{19, 29, 39, 24}
	for i, it := range c.Items() {
		if it.ID != wantIDs[i] {
			t.Fatalf("item %d: expected id %s, got %s", i, wantIDs[i], it.ID)
		}
		if !it.Price.Equal(decimal.NewFromInt(wantPrices[i])) {
			t.Fatalf("item %s: expected price %d, got %s", it.ID, wantPrices[i], it.Price)
		}
	}
	if c.Currency() != "USD" {
		t.Fatalf("expected USD, got %s", c.Currency())
	}
}

func TestItemsReturnsCopy(t *testing.T) {
	c := Default()
	items := c.Items()
	items[0].Price = decimal.NewFromInt(1)
	got, err := c.Get("1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Price.Equal(decimal.NewFromInt(19)) {
		t.Fatalf("catalog mutated through Items(): %s", got.Price)
	}
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		items   []Item
		wantErr error
	}{
		{name: "empty", items: nil},
		{name: "zero price", items: []Item{{ID: "a", Price: decimal.Zero}}, wantErr: ErrInvalidPrice},
		{name: "negative price", items: []Item{{ID: "a", Price: decimal.NewFromInt(-3)}}, wantErr: ErrInvalidPrice},
		{name: "missing id", items: []Item{{ID: " ", Price: decimal.NewFromInt(3)}}, wantErr: ErrMissingID},
		{
			name:    "duplicate",
			items:   []Item{{ID: "a", Price: decimal.NewFromInt(3)}, {ID: "a", Price: decimal.NewFromInt(4)}},
			wantErr: ErrDuplicateItem,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New("usd", tt.items)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	doc := `currency: eur
items:
  - id: "b"
    title: Second
    price: "12.50"
  - id: "a"
    title: First
    description: first item
    price: "3"
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Currency() != "EUR" {
		t.Fatalf("expected EUR, got %s", c.Currency())
	}
	items := c.Items()
	if len(items) != 2 || items[0].ID != "b" || items[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", items)
	}
	if !items[0].Price.Equal(decimal.RequireFromString("12.5")) {
		t.Fatalf("unexpected price %s", items[0].Price)
	}
	if _, err := c.Get("missing"); !errors.Is(err, ErrItemNotFound) {
		t.Fatalf("expected ErrItemNotFound, got %v", err)
	}
}

func TestParseRejectsBadPrice(t *testing.T) {
	if _, err := Parse([]byte("items:\n  - id: x\n    price: abc\n")); err == nil {
		t.Fatal("expected error for malformed price")
	}
}
