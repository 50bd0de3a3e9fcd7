package enrich

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// ErrorHandler is called for every failed step. It may run concurrently for
// steps of the same stage.
type ErrorHandler[T any] func(ctx context.Context, item *T, err error)

// Pipeline coordinates the execution of a sequence of stages for items flowing
// through a channel. For each incoming item, steps within the same stage run in
// parallel, and stages themselves run sequentially. Any step errors are
// reported to the error handler and do not stop processing of the current item.
//
// Pipeline is generic over the item type T.
type Pipeline[T any] struct {
	stages  []Stage[T]
	onError ErrorHandler[T]
}

// NewPipeline constructs a Pipeline from the provided stages. Stages will be
// applied to each item in order. Step errors are logged until OnError sets
// another handler.
func NewPipeline[T any](stages ...Stage[T]) *Pipeline[T] {
	return &Pipeline[T]{stages: stages, onError: logError[T]}
}

// OnError replaces the step error handler.
func (p *Pipeline[T]) OnError(h ErrorHandler[T]) *Pipeline[T] {
	if h != nil {
		p.onError = h
	}
	return p
}

// Run applies every stage to a single item:
//   - All steps in a stage are started concurrently and must complete before
//     moving to the next stage (a stage barrier).
//   - Errors returned by steps go to the error handler and are otherwise ignored.
//   - Once ctx is done, remaining stages are skipped and ctx.Err() is returned.
func (p *Pipeline[T]) Run(ctx context.Context, item *T) error {
	for _, stage := range p.stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		var wg sync.WaitGroup
		for _, step := range stage.steps {
			wg.Add(1)
			go func(step Step[T]) {
				defer wg.Done()
				if err := step(ctx, item); err != nil {
					p.onError(ctx, item, err)
				}
			}(step)
		}
		wg.Wait() // stage barrier: ensure all steps finished before the next stage
	}
	return nil
}

// Process consumes items from the input channel and returns a channel that
// emits each item after all stages have been applied. The output channel is
// closed once the input is drained or ctx is done.
func (p *Pipeline[T]) Process(ctx context.Context, in <-chan *T) <-chan *T {
	out := make(chan *T)
	go func() {
		defer close(out)
		for item := range in {
			if err := p.Run(ctx, item); err != nil {
				return
			}
			select {
			case out <- item:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

func logError[T any](_ context.Context, _ *T, err error) {
	zap.L().Warn("enrich: step failed", zap.Error(err))
}
