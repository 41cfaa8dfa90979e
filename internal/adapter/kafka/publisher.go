// Package kafka publishes analysis records to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/couchcryptid/storm-data-shared/retry"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/station-insight-service/internal/domain"
)

const (
	publishAttempts   = 3
	publishTimeout    = 10 * time.Second
	initialBackoff    = 200 * time.Millisecond
	maxPublishBackoff = 2 * time.Second

	// DefaultBuffer is the number of records that may wait for delivery.
	DefaultBuffer = 256
)

// ErrBufferFull is returned by Record when delivery has fallen too far behind.
var ErrBufferFull = errors.New("analysis record buffer full")

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("publisher closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Publisher produces one message per completed analysis. Record only queues
// the message; a single background goroutine delivers queued messages in
// order. It implements analysis.Recorder.
type Publisher struct {
	writer  messageWriter
	topic   string
	backoff time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex
	closed  bool
	pending chan kafkago.Message
	done    chan struct{}
}

// NewPublisher creates a Kafka producer for the analysis topic and starts its
// delivery loop. Close stops it.
func NewPublisher(brokers []string, topic string, logger *slog.Logger) *Publisher {
	w := &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafkago.Hash{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newPublisher(w, topic, DefaultBuffer, initialBackoff, logger)
}

func newPublisher(w messageWriter, topic string, buffer int, backoff time.Duration, logger *slog.Logger) *Publisher {
	p := &Publisher{
		writer:  w,
		topic:   topic,
		backoff: backoff,
		logger:  logger,
		pending: make(chan kafkago.Message, buffer),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// Record queues rec for delivery keyed by its analysis ID. It never waits on
// the broker.
func (p *Publisher) Record(_ context.Context, rec domain.AnalysisRecord) error {
	msg, err := serializeToMessage(rec)
	if err != nil {
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.pending <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting records, delivers what is already queued, and closes
// the writer.
func (p *Publisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.pending)
	}
	p.mu.Unlock()

	<-p.done
	return p.writer.Close()
}

func (p *Publisher) run() {
	defer close(p.done)
	for msg := range p.pending {
		if err := p.publish(context.Background(), msg); err != nil {
			p.logger.Error("failed to publish analysis record", "analysis_id", string(msg.Key), "error", err)
		}
	}
}

// publish writes msg with bounded retries and exponential backoff.
func (p *Publisher) publish(ctx context.Context, msg kafkago.Message) error {
	var err error
	backoff := p.backoff
	for attempt := 1; ; attempt++ {
		err = p.write(ctx, msg)
		if err == nil {
			p.logger.Debug("analysis record published", "analysis_id", string(msg.Key), "topic", p.topic)
			return nil
		}
		if attempt == publishAttempts {
			break
		}
		p.logger.Warn("publish failed, retrying", "analysis_id", string(msg.Key), "attempt", attempt, "backoff", backoff, "error", err)
		if !retry.SleepWithContext(ctx, backoff) {
			break
		}
		backoff = retry.NextBackoff(backoff, maxPublishBackoff)
	}
	return fmt.Errorf("publish analysis record: %w", err)
}

func (p *Publisher) write(ctx context.Context, msg kafkago.Message) error {
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return p.writer.WriteMessages(ctx, msg)
}

// serializeToMessage marshals an AnalysisRecord into a Kafka message.
func serializeToMessage(rec domain.AnalysisRecord) (kafkago.Message, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize analysis record: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(rec.ID),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "completed_at", Value: []byte(rec.CompletedAt.Format(time.RFC3339))},
		},
	}, nil
}
