package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// ProducerOption tunes the writers a KafkaProducer creates.
type ProducerOption func(*KafkaProducer)

// WithBatchTimeout bounds how long a writer waits to fill a batch. The dispatcher
// already batches per topic, so the default is short.
func WithBatchTimeout(d time.Duration) ProducerOption {
	return func(p *KafkaProducer) {
		if d > 0 {
			p.batchTimeout = d
		}
	}
}

// WithCompression overrides the codec used for change records.
func WithCompression(c kafka.Compression) ProducerOption {
	return func(p *KafkaProducer) { p.compression = c }
}

// KafkaProducer publishes habit and profile changes, one synchronous writer per topic.
// Records are hash-partitioned on their key (the owning user id), so a user's changes
// stay ordered within one partition.
type KafkaProducer struct {
	brokers      []string
	batchTimeout time.Duration
	compression  kafka.Compression

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

func NewKafkaProducer(brokers []string, opts ...ProducerOption) *KafkaProducer {
	p := &KafkaProducer{
		brokers:      brokers,
		batchTimeout: 50 * time.Millisecond,
		compression:  kafka.Snappy,
		writers:      make(map[string]*kafka.Writer),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WriteMessages blocks until every record is acknowledged by all in-sync replicas.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writer(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writer(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            p.compression,
		BatchTimeout:           p.batchTimeout,
		AllowAutoTopicCreation: false,
	}
	p.writers[topic] = w
	return w
}

// Close flushes and closes every writer, reporting all failures.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs []error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(p.writers, topic)
	}
	return errors.Join(errs...)
}
