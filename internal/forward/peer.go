// Package forward offloads buffered texts to peer machines over Kafka and
// lets a peer feed what it receives into its own translation buffer.
package forward

import (
	"context"
	"fmt"
	"time"

	"github.com/Adithya-Monish-Kumar-K/review-stats/internal/buffer"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/review-stats/pkg/logger"
)

// Message is the wire form of one forwarded text.
type Message struct {
	ID     string    `json:"id"`
	Text   string    `json:"text"`
	Origin string    `json:"origin"`
	SentAt time.Time `json:"sent_at"`
}

// Peer delivers a batch of items to one remote machine. Send either delivers
// the whole batch or returns an error.
type Peer interface {
	Name() string
	Send(ctx context.Context, items []buffer.Item) error
}

// Publisher is the part of the Kafka producer a peer needs.
type Publisher interface {
	PublishBatch(ctx context.Context, events []kafka.Event) error
}

// PeerTopic returns the topic a peer consumes from.
func PeerTopic(base, peer string) string {
	return base + "." + peer
}

// KafkaPeer publishes items to the peer's own topic.
type KafkaPeer struct {
	name   string
	origin string
	pub    Publisher
}

func NewKafkaPeer(name, origin string, pub Publisher) *KafkaPeer {
	return &KafkaPeer{name: name, origin: origin, pub: pub}
}

func (p *KafkaPeer) Name() string { return p.name }

func (p *KafkaPeer) Send(ctx context.Context, items []buffer.Item) error {
	now := time.Now().UTC()
	events := make([]kafka.Event, len(items))
	for i, it := range items {
		events[i] = kafka.Event{
			Key:   it.ID,
			Value: Message{ID: it.ID, Text: it.Text, Origin: p.origin, SentAt: now},
		}
	}
	if err := p.pub.PublishBatch(ctx, events); err != nil {
		return fmt.Errorf("sending %d texts to %s: %w", len(items), p.name, err)
	}
	return nil
}

// Handler returns a consumer callback that puts every received text into buf.
func Handler(buf *buffer.TranslationBuffer) kafka.MessageHandler {
	log := logger.WithComponent("forward-receiver")
	return func(ctx context.Context, key, value []byte) error {
		msg, err := kafka.DecodeJSON[Message](value)
		if err != nil {
			return fmt.Errorf("decoding forwarded text %s: %w", key, err)
		}
		if msg.ID == "" {
			return fmt.Errorf("forwarded text %s has no id", key)
		}
		buf.Put(msg.ID, msg.Text)
		log.Debug("forwarded text received", "id", msg.ID, "origin", msg.Origin)
		return nil
	}
}
