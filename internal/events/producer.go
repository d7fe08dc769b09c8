package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// ErrProducerFull is returned when the inbox is full and the event is dropped.
var ErrProducerFull = errors.New("events: producer inbox full")

// ErrProducerClosed is returned by Publish after Close.
var ErrProducerClosed = errors.New("events: producer closed")

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer buffers events in an inbox drained by one goroutine, so
// request handlers never wait on the broker.
type KafkaProducer struct {
	w       messageWriter
	service string
	logger  *zap.Logger
	inbox   chan kafka.Message
	closeCh chan struct{}

	// mu guards closed and the close of inbox against in-flight sends.
	mu     sync.RWMutex
	closed bool
}

func NewKafkaProducer(brokers []string, service string, buf int, logger *zap.Logger) *KafkaProducer {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
	return newKafkaProducer(w, service, buf, logger)
}

func newKafkaProducer(w messageWriter, service string, buf int, logger *zap.Logger) *KafkaProducer {
	if buf <= 0 {
		buf = 1024
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaProducer{
		w:       w,
		service: service,
		logger:  logger,
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start runs the writer loop until Close is called.
func (p *KafkaProducer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.logger.Warn("event publish failed", zap.String("topic", m.Topic), zap.Error(err))
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.logger.Warn("event writer close failed", zap.Error(err))
		}
	}()
}

func (p *KafkaProducer) Publish(_ context.Context, eventType, orderID string, payload any) error {
	topic, ok := Topics[eventType]
	if !ok {
		return fmt.Errorf("events: unknown event type %s", eventType)
	}
	env, err := NewEnvelope(p.service, eventType, orderID, payload)
	if err != nil {
		return fmt.Errorf("events: encode %s: %w", eventType, err)
	}
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("events: encode envelope: %w", err)
	}
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(orderID),
		Value: value,
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(eventType)},
			{Key: "x-event-version", Value: []byte("1")},
		},
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrProducerClosed
	}
	select {
	case p.inbox <- msg:
		return nil
	default:
		return ErrProducerFull
	}
}

// Close stops accepting events; WaitClosed blocks until the inbox is flushed.
func (p *KafkaProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	close(p.inbox)
}

func (p *KafkaProducer) WaitClosed() { <-p.closeCh }
