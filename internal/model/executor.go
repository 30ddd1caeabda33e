package model

import (
	"context"
	"fmt"

	"github.com/omnitensor/omnitensor-node/internal/scheduler"
	"github.com/omnitensor/omnitensor-node/pkg/types"
)

// Executor adapts a Loader to the scheduler's asynchronous execution
// contract: Execute returns immediately and delivers exactly one result on
// the channel. Independent tasks run in their own goroutines, so executions
// bound to different devices proceed in parallel.
type Executor struct {
	loader Loader
}

// NewExecutor wraps loader for consumption by the dispatcher.
func NewExecutor(loader Loader) *Executor {
	return &Executor{loader: loader}
}

func (e *Executor) Execute(ctx context.Context, task types.Task) <-chan scheduler.ExecResult {
	ch := make(chan scheduler.ExecResult, 1)
	go func() {
		var res scheduler.ExecResult
		defer func() {
			// A panicking backend must still resolve the task.
			if r := recover(); r != nil {
				res = scheduler.ExecResult{Err: fmt.Errorf("inference panic: %v", r)}
			}
			ch <- res
			close(ch)
		}()
		h, err := e.loader.Load(ctx, task.ModelID)
		if err != nil {
			res = scheduler.ExecResult{Err: err}
			return
		}
		out, err := h.Execute(ctx, task.Input, task.Params)
		res = scheduler.ExecResult{Output: out, Err: err}
	}()
	return ch
}
