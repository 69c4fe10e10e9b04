// Package scheduler implements the scheduler family from section 4.4:
// work-stealing, round-robin, adaptive, and priority dispatch, all behind
// a common Scheduler contract that returns results in input order.
package scheduler

import (
	"fmt"

	"github.com/pyferris/pyferris/pkg/types"
)

// Outcome is one task's terminal result or error.
type Outcome struct {
	Result any
	Err    error
}

// Scheduler accepts a batch of tasks and returns their outcomes in the
// same order the tasks were given.
type Scheduler interface {
	Execute(tasks []*types.Task) []Outcome
	Shutdown()
}

func runTask(t *types.Task) Outcome {
	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicError{r}
			}
		}()
		return t.Run()
	}()
	if err != nil {
		t.Status = types.TaskFailed
		t.Err = err
	} else {
		t.Status = types.TaskCompleted
		t.Result = result
	}
	return Outcome{Result: result, Err: err}
}

type panicError struct{ v any }

func (p panicError) Error() string { return fmt.Sprintf("task panic: %v", p.v) }
