package kitchen

import (
	"context"
	"fmt"
	log "log/slog"

	"github.com/canteenhq/canteen"
)

// WorkerPool runs a set of concurrent consumer loops against the task queue.
// Each loop holds at most one unacked task, so pool size bounds in-flight
// pipelines.
type WorkerPool struct {
	broker    *Broker
	processor *Processor
	size      int
}

// WorkerPoolSize reads CANTEEN_KITCHEN_WORKERS (default 4).
func WorkerPoolSize() int {
	return canteen.EnvInt("CANTEEN_KITCHEN_WORKERS", 4)
}

func NewWorkerPool(broker *Broker, processor *Processor, size int) *WorkerPool {
	if size < 1 {
		size = 1
	}
	return &WorkerPool{broker: broker, processor: processor, size: size}
}

// Run blocks until ctx is cancelled or a consumer loop fails.
func (w *WorkerPool) Run(ctx context.Context) error {
	log.Info(fmt.Sprintf("kitchen worker pool starting with %d workers", w.size))
	tr := canteen.NewTaskRunner(ctx, w.size)
	for i := 0; i < w.size; i++ {
		tr.Go(func() error {
			return w.broker.Consume(tr.GetContext(), w.processor.Process)
		})
	}
	return tr.Wait()
}
