package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime/debug"

	"golang.org/x/sync/errgroup"
)

// ErrTaskPanic marks a task that panicked instead of returning
var ErrTaskPanic = errors.New("task panicked")

// Task is one unit of work submitted to a Pool
type Task func(ctx context.Context) error

// Pool runs tasks with a fixed number in flight. A failing task never cancels
// its siblings; every task runs to completion.
type Pool struct {
	limit int
}

// NewPool creates a Pool. A limit below 1 is treated as 1.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{limit: limit}
}

// Limit returns the maximum number of concurrently running tasks
func (p *Pool) Limit() int {
	return p.limit
}

// Run executes every task and returns their errors at the matching index
func (p *Pool) Run(ctx context.Context, tasks []Task) []error {
	errs := make([]error, len(tasks))
	if len(tasks) == 0 {
		return errs
	}

	var g errgroup.Group
	g.SetLimit(p.limit)

	for i, task := range tasks {
		g.Go(func() error {
			errs[i] = runTask(ctx, i, task)
			return nil
		})
	}
	_ = g.Wait()

	return errs
}

func runTask(ctx context.Context, index int, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("pool: task %d panicked: %v\n%s", index, r, debug.Stack())
			err = fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()
	return task(ctx)
}
