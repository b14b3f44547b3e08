package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"flipmarket/internal/flip/checkout"
)

// Supported database/sql driver names.
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "pgx"
)

const purchasesSchema = `CREATE TABLE IF NOT EXISTS flip_purchases (
	id VARCHAR(26) PRIMARY KEY,
	viewer_id VARCHAR(64) NOT NULL,
	item_id VARCHAR(64) NOT NULL,
	title VARCHAR(255) NOT NULL,
	path VARCHAR(16) NOT NULL,
	outcome VARCHAR(16) NOT NULL,
	listed_price DECIMAL(18,6) NOT NULL,
	final_price DECIMAL(18,6) NOT NULL,
	currency VARCHAR(3) NOT NULL,
	committed_at TIMESTAMP NOT NULL
)`

// PurchasesRepo stores committed purchases.
type PurchasesRepo struct {
	db     *sql.DB
	driver string
}

// NewPurchasesRepo creates repo. driver selects the placeholder style.
func NewPurchasesRepo(db *sql.DB, driver string) *PurchasesRepo {
	return &PurchasesRepo{db: db, driver: driver}
}

// EnsureSchema creates the purchases table when missing.
func (r *PurchasesRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, purchasesSchema)
	return err
}

// SavePurchase inserts a commit event.
func (r *PurchasesRepo) SavePurchase(ctx context.Context, ev checkout.Event) error {
	_, err := r.db.ExecContext(ctx, r.rebind(`INSERT INTO flip_purchases
		(id, viewer_id, item_id, title, path, outcome, listed_price, final_price, currency, committed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?)`),
		ev.ID, ev.ViewerID, ev.ItemID, ev.Title, ev.Path, ev.Outcome,
		ev.ListedPrice.String(), ev.FinalPrice.String(), ev.Currency, ev.CommittedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert purchase: %w", err)
	}
	return nil
}

// ListByViewer returns the viewer's purchases, newest first.
func (r *PurchasesRepo) ListByViewer(ctx context.Context, viewerID string, limit int) ([]checkout.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, r.rebind(`SELECT id, viewer_id, item_id, title, path, outcome, listed_price, final_price, currency, committed_at
		FROM flip_purchases WHERE viewer_id = ? ORDER BY committed_at DESC, id DESC LIMIT ?`), viewerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []checkout.Event
	for rows.Next() {
		var (
			ev            checkout.Event
			listed, final string
			committedAt   time.Time
		)
		if err := rows.Scan(&ev.ID, &ev.ViewerID, &ev.ItemID, &ev.Title, &ev.Path, &ev.Outcome, &listed, &final, &ev.Currency, &committedAt); err != nil {
			return nil, err
		}
		if ev.ListedPrice, err = decimal.NewFromString(listed); err != nil {
			return nil, fmt.Errorf("purchase %s listed_price: %w", ev.ID, err)
		}
		if ev.FinalPrice, err = decimal.NewFromString(final); err != nil {
			return nil, fmt.Errorf("purchase %s final_price: %w", ev.ID, err)
		}
		ev.CommittedAt = committedAt.UTC()
		out = append(out, ev)
	}
	return out, rows.Err()
}

func (r *PurchasesRepo) rebind(query string) string {
	return rebind(r.driver, query)
}

// rebind rewrites ? placeholders to $n for postgres.
func rebind(driver, query string) string {
	if driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, ch := range query {
		if ch == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}
