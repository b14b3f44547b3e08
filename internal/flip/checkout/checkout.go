package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Purchase paths.
const (
	PathStandard = "standard"
	PathFlip     = "flip"
)

// Event is a committed purchase handed to the checkout pipeline.
type Event struct {
	ID          string          `json:"id"`
	ViewerID    string          `json:"viewer_id"`
	ItemID      string          `json:"item_id"`
	Title       string          `json:"title"`
	Path        string          `json:"path"`
	Outcome     string          `json:"outcome,omitempty"`
	ListedPrice decimal.Decimal `json:"listed_price"`
	FinalPrice  decimal.Decimal `json:"final_price"`
	Currency    string          `json:"currency"`
	CommittedAt time.Time       `json:"committed_at"`
}

// Validate checks the fields every sink relies on.
func (e Event) Validate() error {
	switch {
	case e.ID == "":
		return errors.New("checkout event: id is required")
	case e.ItemID == "":
		return errors.New("checkout event: item id is required")
	case e.Path != PathStandard && e.Path != PathFlip:
		return fmt.Errorf("checkout event: unknown path %q", e.Path)
	case !e.FinalPrice.IsPositive():
		return errors.New("checkout event: final price must be positive")
	}
	return nil
}

// Logger provides minimal logging required by the pipeline.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Recorder durably stores a purchase. Its failure fails the commit.
type Recorder interface {
	SavePurchase(ctx context.Context, ev Event) error
}

// Publisher announces a purchase to downstream consumers. Failures are logged only.
type Publisher interface {
	PublishCommit(ctx context.Context, ev Event) error
}

// Pipeline records a commit and then fans it out to publishers.
type Pipeline struct {
	ledger     Recorder
	publishers []Publisher
	logger     Logger
}

// NewPipeline builds a pipeline. A nil ledger skips recording.
func NewPipeline(ledger Recorder, logger Logger, publishers ...Publisher) *Pipeline {
	ps := make([]Publisher, 0, len(publishers))
	for _, p := range publishers {
		if p != nil {
			ps = append(ps, p)
		}
	}
	return &Pipeline{ledger: ledger, publishers: ps, logger: logger}
}

// Commit implements the session hand-off.
func (p *Pipeline) Commit(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if p.ledger != nil {
		if err := p.ledger.SavePurchase(ctx, ev); err != nil {
			return fmt.Errorf("record purchase %s: %w", ev.ID, err)
		}
	}
	for _, pub := range p.publishers {
		if err := pub.PublishCommit(ctx, ev); err != nil && p.logger != nil {
			p.logger.Errorf("publish commit %s for item %s: %v", ev.ID, ev.ItemID, err)
		}
	}
	if p.logger != nil {
		p.logger.Infof("commit %s: viewer=%s item=%s path=%s price=%s %s", ev.ID, ev.ViewerID, ev.ItemID, ev.Path, ev.FinalPrice, ev.Currency)
	}
	return nil
}
