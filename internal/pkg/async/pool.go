// Package async runs independent named tasks on a bounded set of workers.
package async

import (
	"context"
	"fmt"
	"sync"
)

type Task struct {
	Name    string
	Execute func(ctx context.Context) (any, error)
}

type Result struct {
	Name string
	Data any
	Err  error
}

// Pool runs tasks with at most workerCount in flight. A Pool may be reused.
type Pool struct {
	workerCount int
}

func NewPool(workerCount int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Pool{workerCount: workerCount}
}

// Execute runs every task and returns results keyed by task name. Tasks not
// started before ctx is done get ctx.Err() as their result; a panicking task
// reports the panic as its error.
func (p *Pool) Execute(ctx context.Context, tasks []Task) map[string]Result {
	tasksCh := make(chan Task)
	resultsCh := make(chan Result, len(tasks))

	var wg sync.WaitGroup
	for i := 0; i < min(p.workerCount, len(tasks)); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for task := range tasksCh {
				resultsCh <- run(ctx, task)
			}
		}()
	}

	results := make(map[string]Result, len(tasks))

	for i, task := range tasks {
		select {
		case tasksCh <- task:
		case <-ctx.Done():
			for _, skipped := range tasks[i:] {
				results[skipped.Name] = Result{Name: skipped.Name, Err: ctx.Err()}
			}
			close(tasksCh)
			wg.Wait()
			close(resultsCh)
			for r := range resultsCh {
				results[r.Name] = r
			}
			return results
		}
	}
	close(tasksCh)
	wg.Wait()
	close(resultsCh)

	for r := range resultsCh {
		results[r.Name] = r
	}
	return results
}

func run(ctx context.Context, task Task) (result Result) {
	result.Name = task.Name
	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("task %s panicked: %v", task.Name, r)
		}
	}()
	result.Data, result.Err = task.Execute(ctx)
	return result
}
