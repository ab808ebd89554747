// Package events publishes newly stored listings for the moderation workflow.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
)

const TypeListingPending = "listing.pending"

type ListingEvent struct {
	Type           string    `json:"type"`
	ListingID      string    `json:"listing_id"`
	Title          string    `json:"title"`
	CategoryID     string    `json:"category_id"`
	SourceURL      string    `json:"source_url"`
	ApplicationURL string    `json:"application_url"`
	Deadline       string    `json:"deadline,omitempty"`
	RunID          string    `json:"run_id"`
	CreatedAt      time.Time `json:"created_at"`
}

type Publisher interface {
	PublishListings(ctx context.Context, events ...ListingEvent) error
	Close() error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ Publisher = (*KafkaPublisher)(nil)

// KafkaPublisher writes one message per listing, keyed by listing ID.
type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			BatchTimeout:           50 * time.Millisecond,
			AllowAutoTopicCreation: false,
		},
	}
}

// NewKafkaPublisherWithWriter builds a publisher using a custom writer (tests).
func NewKafkaPublisherWithWriter(writer messageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: writer}
}

func (p *KafkaPublisher) PublishListings(ctx context.Context, events ...ListingEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal listing event: %w", err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(event.ListingID),
			Value: payload,
			Time:  time.Now().UTC(),
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d listing events: %w", len(msgs), err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

var _ Publisher = Nop{}

// Nop discards events; used when no brokers are configured.
type Nop struct{}

func (Nop) PublishListings(ctx context.Context, events ...ListingEvent) error { return nil }
func (Nop) Close() error                                                      { return nil }
