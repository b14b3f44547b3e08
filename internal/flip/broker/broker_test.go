package broker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"flipmarket/internal/flip/checkout"
)

type fakeRedis struct {
	channel string
	message []byte
	err     error
}

func (f *fakeRedis) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.channel = channel
	f.message, _ = message.([]byte)
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(1)
	}
	return cmd
}

type fakeStream struct {
	subject string
	data    []byte
	opts    int
	err     error
}

func (f *fakeStream) Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("publish without deadline")
	}
	f.subject = subject
	f.data = data
	f.opts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return &jetstream.PubAck{Stream: StreamName, Sequence: 1}, nil
}

func sampleEvent() checkout.Event {
	return checkout.Event{
		ID:          "01HXCOMMIT00000000000000000",
		ViewerID:    "viewer",
		ItemID:      "3",
		Path:        checkout.PathStandard,
		ListedPrice: decimal.NewFromInt(39),
		FinalPrice:  decimal.NewFromInt(39),
		Currency:    "USD",
		CommittedAt: time.Unix(1700000000, 0).UTC(),
	}
}

func TestRedisPublisher(t *testing.T) {
	fake := &fakeRedis{}
	p := &RedisPublisher{rdb: fake}
	if err := p.PublishCommit(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fake.channel != "flip_events:3" {
		t.Fatalf("unexpected channel %s", fake.channel)
	}
	var got checkout.Event
	if err := json.Unmarshal(fake.message, &got); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if got.ID != sampleEvent().ID || got.ItemID != "3" {
		t.Fatalf("unexpected payload %+v", got)
	}

	fake.err = errors.New("connection reset")
	if err := p.PublishCommit(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected redis error")
	}
}

func TestJetStreamPublisher(t *testing.T) {
	fake := &fakeStream{}
	p := &JetStreamPublisher{js: fake, timeout: time.Second}
	if err := p.PublishCommit(context.Background(), sampleEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if fake.subject != "flip.commits.3" {
		t.Fatalf("unexpected subject %s", fake.subject)
	}
	if fake.opts != 1 {
		t.Fatalf("expected message id option, got %d options", fake.opts)
	}

	fake.err = errors.New("no responders")
	if err := p.PublishCommit(context.Background(), sampleEvent()); err == nil {
		t.Fatal("expected jetstream error")
	}
}
