package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"flipmarket/internal/flip/checkout"
)

// Stream and subject layout of the checkout hand-off.
const (
	StreamName    = "FLIP_COMMITS"
	SubjectPrefix = "flip.commits."
)

type streamPublisher interface {
	Publish(ctx context.Context, subject string, data []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// JetStreamPublisher hands commits to checkout consumers through a durable stream.
type JetStreamPublisher struct {
	js      streamPublisher
	timeout time.Duration
}

// NewJetStreamPublisher ensures the stream exists and returns a publisher.
func NewJetStreamPublisher(ctx context.Context, js jetstream.JetStream) (*JetStreamPublisher, error) {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Description: "Committed flip marketplace purchases",
		Subjects:    []string{SubjectPrefix + "*"},
		Storage:     jetstream.FileStorage,
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      7 * 24 * time.Hour,
		Duplicates:  2 * time.Minute,
		Replicas:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create or update stream %s: %w", StreamName, err)
	}
	return &JetStreamPublisher{js: js, timeout: 5 * time.Second}, nil
}

// Subject returns the stream subject for an item.
func Subject(itemID string) string {
	return SubjectPrefix + itemID
}

// PublishCommit publishes the event and waits for the stream ack. The commit
// id is the message id so redelivered commits are deduplicated.
func (p *JetStreamPublisher) PublishCommit(ctx context.Context, ev checkout.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal commit: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.js.Publish(ctx, Subject(ev.ItemID), data, jetstream.WithMsgID(ev.ID)); err != nil {
		return fmt.Errorf("jetstream publish: %w", err)
	}
	return nil
}
