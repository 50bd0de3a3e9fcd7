package service

import (
	"context"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/segmentio/kafka-go"
)

// MessageIterator defines the contract for consuming messages from a Kafka topic.
// *kafkaclient.KafkaConsumer satisfies it.
//
// Implementations are responsible for the lifecycle of the consumer connection.
type MessageIterator interface {
	// Messages returns a receive-only channel of Kafka messages. The channel
	// is closed by the implementation when the consumer is stopped or the
	// underlying source is exhausted.
	Messages() <-chan kafka.Message

	// CommitOffset acknowledges that a message has been successfully processed.
	CommitOffset(ctx context.Context, msg kafka.Message) error
}

// LoaderFunc loads and decodes the object named by a storage event. It must
// be read-only and honor ctx.
type LoaderFunc[T any] func(ctx context.Context, bucket, key string) (T, error)

// FetchedObject pairs an object loaded from the object store with the event
// that announced it.
type FetchedObject[T any] struct {
	// Data is the decoded object data, loaded from the object store.
	Data T
	// Event is the MinIO/S3 notification record that triggered the fetch.
	Event  notification.Event
	Bucket string
	Key    string

	msg    kafka.Message
	source MessageIterator
}

// Commit acknowledges the underlying message. Call it once the object has
// been fully processed.
func (o *FetchedObject[T]) Commit(ctx context.Context) error {
	return o.source.CommitOffset(ctx, o.msg)
}
