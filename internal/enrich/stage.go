// Package enrich runs independent lookup steps in parallel within a stage
// while keeping stages sequential, so later steps can build on what earlier
// stages stored in the item.
package enrich

import (
	"context"
)

// Step mutates one item. Steps of the same stage run concurrently on the
// same item and must write to distinct fields. A returned error goes to the
// pipeline's error handler; it never stops the other steps.
type Step[T any] func(ctx context.Context, item *T) error

// Stage groups steps that may run in parallel for a single item.
type Stage[T any] struct {
	steps []Step[T]
}

// NewStage constructs a Stage from the provided steps.
func NewStage[T any](steps ...Step[T]) Stage[T] {
	return Stage[T]{steps: steps}
}

// When wraps a step so it only runs when cond holds for the item.
func When[T any](cond func(*T) bool, step Step[T]) Step[T] {
	return func(ctx context.Context, item *T) error {
		if !cond(item) {
			return nil
		}
		return step(ctx, item)
	}
}
