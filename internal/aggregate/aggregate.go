// Package aggregate runs independent source fetches concurrently and collects
// every outcome, successful or not.
package aggregate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Task is a single labelled fetch operation.
type Task struct {
	Label string
	Fetch func(ctx context.Context) (any, error)
}

// Outcome is the settled result of a Task.
type Outcome struct {
	Label    string
	Value    any
	Err      error
	Duration time.Duration
}

// OK reports whether the task settled successfully.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Settle executes all tasks concurrently and waits for every one of them.
// Outcome i always corresponds to tasks[i], independent of completion order.
// A failing or panicking task never affects its siblings.
func Settle(ctx context.Context, tasks []Task) []Outcome {
	logger := zerolog.Ctx(ctx)
	outcomes := make([]Outcome, len(tasks))

	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task Task) {
			defer wg.Done()

			start := time.Now()
			value, err := run(ctx, task)
			outcomes[i] = Outcome{
				Label:    task.Label,
				Value:    value,
				Err:      err,
				Duration: time.Since(start),
			}

			if err != nil {
				logger.Warn().
					Err(err).
					Str("source", task.Label).
					Dur("took", outcomes[i].Duration).
					Msg("Source unavailable")
				return
			}
			logger.Debug().
				Str("source", task.Label).
				Dur("took", outcomes[i].Duration).
				Msg("Source fetched")
		}(i, task)
	}
	wg.Wait()

	return outcomes
}

func run(ctx context.Context, task Task) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("%s: panic: %v", task.Label, r)
		}
	}()

	if task.Fetch == nil {
		return nil, fmt.Errorf("%s: no fetch function", task.Label)
	}
	return task.Fetch(ctx)
}
