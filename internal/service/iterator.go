// Package service turns storage events delivered over a message source
// (Kafka via pkg/kafkaclient) into loaded objects from S3/MinIO.
package service

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/minio/minio-go/v7/pkg/notification"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Iterator consumes messages from a MessageIterator, interprets each message
// as a MinIO/S3 notification, loads the referenced object via LoaderFunc,
// and yields FetchedObject items on a channel. It is generic over the loaded
// item type T.
//
// The Iterator does not manage the lifecycle of the underlying message source;
// callers start and stop their consumer outside.
type Iterator[T any] struct {
	msgIterator MessageIterator
	loader      LoaderFunc[T]
	accept      func(key string) bool
}

// NewIterator constructs an Iterator for the provided message source and
// object loader.
func NewIterator[T any](iterator MessageIterator, loader LoaderFunc[T]) *Iterator[T] {
	return &Iterator[T]{
		msgIterator: iterator,
		loader:      loader,
		accept:      func(string) bool { return true },
	}
}

// WithKeyFilter restricts the iterator to object keys accepted by fn. Events
// for other keys are committed and skipped.
func (it *Iterator[T]) WithKeyFilter(fn func(key string) bool) *Iterator[T] {
	if fn != nil {
		it.accept = fn
	}
	return it
}

// Objects starts a goroutine that:
//  1. Receives messages from the underlying MessageIterator
//  2. Deserializes each message as a MinIO notification
//  3. Loads the referenced object using the provided LoaderFunc
//  4. Emits a FetchedObject[T] on the returned channel
//
// The message offset is committed when the receiver calls Commit on the
// object, so a crash while processing leaves it uncommitted. Messages that
// cannot be decoded, or whose key is filtered out, are committed right away.
// Load failures are logged and skipped. The output channel is closed when the
// underlying Messages() channel is closed or ctx is done.
func (it *Iterator[T]) Objects(ctx context.Context) <-chan *FetchedObject[T] {
	out := make(chan *FetchedObject[T])
	go func() {
		defer close(out)

		for msg := range it.msgIterator.Messages() {
			log := zap.L().With(zap.Int64("offset", msg.Offset), zap.Int("partition", msg.Partition))

			var info notification.Info
			if err := json.Unmarshal(msg.Value, &info); err != nil {
				log.Warn("skipping undecodable storage event", zap.Error(err))
				it.commit(ctx, msg)
				continue
			}
			if len(info.Records) == 0 {
				log.Warn("skipping storage event without records")
				it.commit(ctx, msg)
				continue
			}

			// MinIO publishes one record per event.
			event := info.Records[0]
			objectKey, err := url.QueryUnescape(event.S3.Object.Key)
			if err != nil {
				log.Warn("skipping storage event with malformed key", zap.String("key", event.S3.Object.Key), zap.Error(err))
				it.commit(ctx, msg)
				continue
			}
			if !it.accept(objectKey) {
				it.commit(ctx, msg)
				continue
			}

			data, err := it.loader(ctx, event.S3.Bucket.Name, objectKey)
			if err != nil {
				log.Error("error loading object", zap.String("key", objectKey), zap.Error(err))
				continue
			}

			obj := &FetchedObject[T]{
				Data:   data,
				Event:  event,
				Bucket: event.S3.Bucket.Name,
				Key:    objectKey,
				msg:    msg,
				source: it.msgIterator,
			}
			select {
			case out <- obj:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func (it *Iterator[T]) commit(ctx context.Context, msg kafka.Message) {
	if err := it.msgIterator.CommitOffset(ctx, msg); err != nil {
		zap.L().Warn("failed to commit offset", zap.Int64("offset", msg.Offset), zap.Error(err))
	}
}
