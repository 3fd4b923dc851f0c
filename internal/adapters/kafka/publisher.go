// Package kafka publishes BI purchase snapshots to Kafka.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/kevin07696/purchase-gateway/internal/domain"
	"github.com/kevin07696/purchase-gateway/internal/domain/ports"
	"github.com/kevin07696/purchase-gateway/pkg/resilience"
)

const defaultMaxAttempts = 3

// Config configures the BI publisher
type Config struct {
	Brokers     []string
	Topic       string
	MaxAttempts int
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher writes one message per snapshot, keyed by session id so a
// session's events stay ordered within a partition.
type Publisher struct {
	writer      messageWriter
	backoff     resilience.BackoffStrategy
	maxAttempts int
	logger      *zap.Logger
}

var _ ports.EventPublisher = (*Publisher)(nil)

// NewPublisher creates a publisher for cfg.Topic
func NewPublisher(cfg Config, logger *zap.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafkago.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafkago.RequireAll,
		MaxAttempts:  1,
	}
	return newPublisher(w, resilience.DefaultExponentialBackoff(), cfg.MaxAttempts, logger)
}

func newPublisher(w messageWriter, backoff resilience.BackoffStrategy, maxAttempts int, logger *zap.Logger) *Publisher {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Publisher{writer: w, backoff: backoff, maxAttempts: maxAttempts, logger: logger}
}

// Publish writes snapshot, retrying with backoff until ctx is done
func (p *Publisher) Publish(ctx context.Context, snapshot domain.PurchaseSnapshot) error {
	value, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	msg := kafkago.Message{
		Key:   []byte(snapshot.SessionID),
		Value: value,
		Headers: []kafkago.Header{
			{Key: "event", Value: []byte(snapshot.Event)},
		},
	}

	attempt := 0
	err = resilience.Retry(ctx, p.backoff, p.maxAttempts, func(ctx context.Context) error {
		attempt++
		if err := p.writer.WriteMessages(ctx, msg); err != nil {
			p.logger.Debug("Kafka write failed",
				zap.String("session_id", snapshot.SessionID),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("kafka publish %s: %w", snapshot.Event, err)
	}
	return nil
}

// Close flushes and closes the writer
func (p *Publisher) Close() error {
	return p.writer.Close()
}
