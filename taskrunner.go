package canteen

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// TaskRunner runs tasks with a bounded degree of parallelism. The kitchen
// worker uses it to cap in-flight order pipelines.
type TaskRunner struct {
	maxThreadCount int
	eg             *errgroup.Group
	limiterChan    chan bool
	context        context.Context
}

func NewTaskRunner(ctx context.Context, maxThreadCount int) *TaskRunner {
	eg, ctx2 := errgroup.WithContext(ctx)
	return &TaskRunner{
		maxThreadCount: maxThreadCount,
		limiterChan:    make(chan bool, maxThreadCount),
		eg:             eg,
		context:        ctx2,
	}
}

func (tr *TaskRunner) GetContext() context.Context {
	return tr.context
}

func (tr *TaskRunner) Go(task func() error) {
	t := func() error {
		err := task()
		if err != nil {
			return err
		}
		<-tr.limiterChan
		return nil
	}
	tr.limiterChan <- true
	tr.eg.Go(t)
}

func (tr *TaskRunner) Wait() error {
	return tr.eg.Wait()
}
