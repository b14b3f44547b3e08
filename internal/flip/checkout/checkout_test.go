package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

type testLogger struct{ errors int }

func (l *testLogger) Infof(string, ...interface{})  {}
func (l *testLogger) Errorf(string, ...interface{}) { l.errors++ }

type stubLedger struct {
	saved []Event
	err   error
}

func (s *stubLedger) SavePurchase(_ context.Context, ev Event) error {
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, ev)
	return nil
}

type stubPublisher struct {
	got []Event
	err error
}

func (s *stubPublisher) PublishCommit(_ context.Context, ev Event) error {
	s.got = append(s.got, ev)
	return s.err
}

func sampleEvent() Event {
	return Event{
		ID:          "01J0000000000000000000000A",
		ViewerID:    "viewer",
		ItemID:      "1",
		Path:        PathFlip,
		Outcome:     "win",
		ListedPrice: decimal.NewFromInt(19),
		FinalPrice:  decimal.RequireFromString("0.5"),
		Currency:    "USD",
		CommittedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestPipelineRecordsThenPublishes(t *testing.T) {
	ledger := &stubLedger{}
	failing := &stubPublisher{err: errors.New("redis down")}
	ok := &stubPublisher{}
	logger := &testLogger{}
	p := NewPipeline(ledger, logger, failing, nil, ok)

	if err := p.Commit(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(ledger.saved) != 1 {
		t.Fatalf("expected one recorded purchase, got %d", len(ledger.saved))
	}
	if len(failing.got) != 1 || len(ok.got) != 1 {
		t.Fatal("expected every publisher to be called once")
	}
	if logger.errors != 1 {
		t.Fatalf("expected publish failure to be logged once, got %d", logger.errors)
	}
}

func TestPipelineLedgerFailure(t *testing.T) {
	ledger := &stubLedger{err: errors.New("db gone")}
	pub := &stubPublisher{}
	p := NewPipeline(ledger, &testLogger{}, pub)

	if err := p.Commit(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected ledger error")
	}
	if len(pub.got) != 0 {
		t.Fatal("nothing must be published when recording fails")
	}
}

func TestEventValidate(t *testing.T) {
	ev := sampleEvent()
	ev.Path = "auction"
	if err := ev.Validate(); err == nil {
		t.Fatal("expected unknown path to be rejected")
	}
	ev = sampleEvent()
	ev.FinalPrice = decimal.Zero
	if err := ev.Validate(); err == nil {
		t.Fatal("expected zero price to be rejected")
	}
}
