// Package throttle runs batches of independent tasks with a concurrency cap.
//
// Every task settles on its own: a failing task never cancels its siblings and
// the caller receives one Outcome per task, index-aligned with the input.
package throttle

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// State is the settled state of a task.
type State string

const (
	// Fulfilled means the task returned without error.
	Fulfilled State = "fulfilled"
	// Rejected means the task returned an error or panicked.
	Rejected State = "rejected"
)

// Task is a unit of work run by Run.
type Task[T any] func(ctx context.Context) (T, error)

// Outcome is the settled result of one task.
type Outcome[T any] struct {
	State State
	Value T
	Err   error
}

// Fulfilled reports whether the task succeeded.
func (o Outcome[T]) Fulfilled() bool {
	return o.State == Fulfilled
}

// Run executes tasks with at most limit of them in flight. A limit <= 0 runs
// every task concurrently. The returned slice preserves input order.
func Run[T any](ctx context.Context, tasks []Task[T], limit int) []Outcome[T] {
	outcomes := make([]Outcome[T], len(tasks))
	if len(tasks) == 0 {
		return outcomes
	}

	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i, task := range tasks {
		g.Go(func() error {
			outcomes[i] = settle(ctx, task)
			return nil
		})
	}

	// Tasks never return errors to the group; failures live in outcomes.
	_ = g.Wait()
	return outcomes
}

// Values returns the values of fulfilled outcomes, in order.
func Values[T any](outcomes []Outcome[T]) []T {
	values := make([]T, 0, len(outcomes))
	for _, o := range outcomes {
		if o.Fulfilled() {
			values = append(values, o.Value)
		}
	}
	return values
}

// Counts returns the number of fulfilled and rejected outcomes.
func Counts[T any](outcomes []Outcome[T]) (fulfilled, rejected int) {
	for _, o := range outcomes {
		if o.Fulfilled() {
			fulfilled++
		} else {
			rejected++
		}
	}
	return fulfilled, rejected
}

func settle[T any](ctx context.Context, task Task[T]) (out Outcome[T]) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome[T]{State: Rejected, Err: fmt.Errorf("task panicked: %v", r)}
		}
	}()

	if err := ctx.Err(); err != nil {
		return Outcome[T]{State: Rejected, Err: err}
	}

	v, err := task(ctx)
	if err != nil {
		return Outcome[T]{State: Rejected, Value: v, Err: err}
	}
	return Outcome[T]{State: Fulfilled, Value: v}
}
