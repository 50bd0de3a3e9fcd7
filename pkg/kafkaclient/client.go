// Package kafkaclient wraps segmentio/kafka-go with a channel based consumer
// that commits offsets explicitly, and a JSON publisher.
package kafkaclient

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// KafkaReader defines the interface for a Kafka message reader.
// This allows for easy mocking in unit tests. FetchMessage never commits;
// offsets move only through CommitMessages.
type KafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer manages the Kafka consumer and its message loop.
// It is designed to be thread-safe.
type KafkaConsumer struct {
	reader KafkaReader
	// signals a graceful shutdown.
	doneChan chan struct{}
	stopOnce sync.Once
	// ensures the read loop has exited before the reader is closed.
	wg sync.WaitGroup
	// hands messages to whoever ranges over Messages().
	messageChan chan kafka.Message
	retryDelay  time.Duration
}

// NewKafkaConsumer creates a consumer for topic in the given consumer group.
// Messages are fetched without committing; callers commit with CommitOffset
// once a message has been fully processed.
func NewKafkaConsumer(brokers []string, topic, groupID string) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
		// Commit synchronously inside CommitMessages.
		CommitInterval: 0,
		MinBytes:       1,
		// Read messages in batches of at most 10MB.
		MaxBytes: 10e6,
	})
	return newConsumer(reader)
}

func newConsumer(reader KafkaReader) *KafkaConsumer {
	return &KafkaConsumer{
		reader:      reader,
		doneChan:    make(chan struct{}),
		messageChan: make(chan kafka.Message),
		retryDelay:  time.Second,
	}
}

// Messages returns the channel of consumed messages. It is closed when the
// consumer stops.
func (kc *KafkaConsumer) Messages() <-chan kafka.Message {
	return kc.messageChan
}

// CommitOffset acknowledges a processed message.
func (kc *KafkaConsumer) CommitOffset(ctx context.Context, msg kafka.Message) error {
	zap.L().Debug("committing offset",
		zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
	return kc.reader.CommitMessages(ctx, msg)
}

// StartConsuming begins the Kafka message consumption loop in a separate goroutine.
func (kc *KafkaConsumer) StartConsuming(ctx context.Context) {
	kc.wg.Add(1)
	go func() {
		defer kc.wg.Done()
		defer close(kc.messageChan)

		log := zap.L().With(zap.String("component", "kafka-consumer"))
		log.Info("starting consumer loop")

		for {
			select {
			case <-ctx.Done():
				log.Info("context canceled, stopping consumer loop")
				return
			case <-kc.doneChan:
				log.Info("shutdown signal received, stopping consumer loop")
				return
			default:
			}

			msg, err := kc.reader.FetchMessage(ctx)
			if err != nil {
				if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					log.Info("reader closed, stopping consumer loop", zap.Error(err))
					return
				}
				log.Warn("error reading message", zap.Error(err))
				// Back off to prevent a tight error loop.
				select {
				case <-time.After(kc.retryDelay):
				case <-ctx.Done():
					return
				case <-kc.doneChan:
					return
				}
				continue
			}

			select {
			case kc.messageChan <- msg:
				log.Debug("message received",
					zap.String("topic", msg.Topic), zap.Int("partition", msg.Partition), zap.Int64("offset", msg.Offset))
			case <-ctx.Done():
				return
			case <-kc.doneChan:
				return
			}
		}
	}()
}

// Stop gracefully shuts down the Kafka consumer. It is safe to call more than once.
func (kc *KafkaConsumer) Stop() {
	kc.stopOnce.Do(func() {
		zap.L().Info("stopping kafka consumer")
		close(kc.doneChan)
		kc.wg.Wait()
		if err := kc.reader.Close(); err != nil {
			zap.L().Warn("failed to close kafka reader", zap.Error(err))
		}
		zap.L().Info("kafka consumer stopped")
	})
}
