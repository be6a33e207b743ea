// Package kitchen owns the order lifecycle: the persisted state machine and
// its durable task queue. Orders are created PENDING by the queue endpoint
// and advanced only here, each automated transition published to the
// notification hub.
package kitchen

import (
	"context"
	"fmt"
	log "log/slog"
	"math/rand"
	"time"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/metrics"
)

// OrderRepository is the kitchen store surface.
type OrderRepository interface {
	Add(ctx context.Context, order cassandra.Order, items []cassandra.OrderItem) error
	Get(ctx context.Context, orderID string) (bool, cassandra.Order, error)
	UpdateStatus(ctx context.Context, orderID string, status canteen.OrderStatus) error
}

// Notifier pushes a state change to the notification hub.
type Notifier interface {
	Publish(ctx context.Context, orderID string, status canteen.OrderStatus, studentID string) error
}

// TaskItem is one order line carried in a queued task.
type TaskItem struct {
	MenuItemID string `json:"menu_item_id"`
	Quantity   int    `json:"quantity"`
}

// Task is the kitchen work unit flowing through the broker.
type Task struct {
	OrderID      string     `json:"order_id"`
	StudentID    string     `json:"student_id"`
	Items        []TaskItem `json:"items"`
	SpecialNotes string     `json:"special_notes,omitempty"`
}

// ProcessorConfig carries the simulated prep window.
type ProcessorConfig struct {
	PrepMin time.Duration
	PrepMax time.Duration
}

// ProcessorConfigFromEnv reads the prep window (3-7s).
func ProcessorConfigFromEnv() ProcessorConfig {
	return ProcessorConfig{
		PrepMin: canteen.EnvSeconds("CANTEEN_KITCHEN_MIN_PREP_SECONDS", 3*time.Second),
		PrepMax: canteen.EnvSeconds("CANTEEN_KITCHEN_MAX_PREP_SECONDS", 7*time.Second),
	}
}

// Processor drives an order through the pipeline. It is the sole automatic
// mutator of order status.
type Processor struct {
	repo     OrderRepository
	notifier Notifier
	config   ProcessorConfig

	// sleep is stubbed in tests.
	sleep func(time.Duration)
}

func NewProcessor(repo OrderRepository, notifier Notifier, config ProcessorConfig) *Processor {
	return &Processor{repo: repo, notifier: notifier, config: config, sleep: time.Sleep}
}

// Process runs the full pipeline for one task:
// STOCK_VERIFIED -> IN_KITCHEN -> prep sleep -> READY. Any failure marks the
// order FAILED (published) before the error is surfaced for the broker's
// retry accounting.
func (p *Processor) Process(ctx context.Context, task Task) error {
	if err := p.transition(ctx, task, canteen.StatusStockVerified); err != nil {
		return p.fail(ctx, task, err)
	}
	log.Info(fmt.Sprintf("order %s: stock verified", task.OrderID))

	if err := p.transition(ctx, task, canteen.StatusInKitchen); err != nil {
		return p.fail(ctx, task, err)
	}
	log.Info(fmt.Sprintf("order %s: in kitchen", task.OrderID))

	p.sleep(p.prepTime())

	if err := p.transition(ctx, task, canteen.StatusReady); err != nil {
		return p.fail(ctx, task, err)
	}
	log.Info(fmt.Sprintf("order %s: ready for pickup", task.OrderID))
	return nil
}

// transition persists the new status then publishes it. Publish failures
// are logged and swallowed: notifications must never affect processing.
func (p *Processor) transition(ctx context.Context, task Task, status canteen.OrderStatus) error {
	if err := p.repo.UpdateStatus(ctx, task.OrderID, status); err != nil {
		return err
	}
	metrics.OrderTransitions.WithLabelValues(string(status)).Inc()
	p.notify(ctx, task, status)
	return nil
}

func (p *Processor) notify(ctx context.Context, task Task, status canteen.OrderStatus) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Publish(ctx, task.OrderID, status, task.StudentID); err != nil {
		log.Warn(fmt.Sprintf("notification hub unreachable for order %s (%s): %v", task.OrderID, status, err))
	}
}

// fail marks the order FAILED and publishes it, then returns the original
// error so the broker can account the retry.
func (p *Processor) fail(ctx context.Context, task Task, cause error) error {
	log.Error(fmt.Sprintf("order %s processing failed: %v", task.OrderID, cause))
	if err := p.repo.UpdateStatus(ctx, task.OrderID, canteen.StatusFailed); err != nil {
		log.Error(fmt.Sprintf("order %s could not be marked FAILED: %v", task.OrderID, err))
	} else {
		metrics.OrderTransitions.WithLabelValues(string(canteen.StatusFailed)).Inc()
	}
	p.notify(ctx, task, canteen.StatusFailed)
	return cause
}

func (p *Processor) prepTime() time.Duration {
	min, max := p.config.PrepMin, p.config.PrepMax
	if max <= min {
		return min
	}
	return min + time.Duration(rand.Int63n(int64(max-min)))
}

// Advance moves an order one step forward along the linear chain. Operator
// override; does not publish.
func (p *Processor) Advance(ctx context.Context, orderID string) (canteen.OrderStatus, error) {
	return p.override(ctx, orderID, canteen.OrderStatus.Next)
}

// Revert moves an order one step backward along the linear chain. Operator
// override; does not publish.
func (p *Processor) Revert(ctx context.Context, orderID string) (canteen.OrderStatus, error) {
	return p.override(ctx, orderID, canteen.OrderStatus.Prev)
}

func (p *Processor) override(ctx context.Context, orderID string, step func(canteen.OrderStatus) (canteen.OrderStatus, bool)) (canteen.OrderStatus, error) {
	found, order, err := p.repo.Get(ctx, orderID)
	if err != nil {
		return "", err
	}
	if !found {
		return "", canteen.NewError(canteen.NotFound, "Order not found.")
	}
	next, ok := step(order.Status)
	if !ok {
		return "", canteen.NewError(canteen.Validation,
			"Invalid transition from %s.", order.Status)
	}
	if err := p.repo.UpdateStatus(ctx, orderID, next); err != nil {
		return "", err
	}
	metrics.OrderTransitions.WithLabelValues(string(next)).Inc()
	return next, nil
}
