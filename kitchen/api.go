package kitchen

import (
	"context"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/api"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/metrics"
)

// Enqueuer hands a task to the durable queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, task Task) error
}

// Handlers serves the kitchen queue API.
type Handlers struct {
	repo      OrderRepository
	queue     Enqueuer
	processor *Processor
}

func NewHandlers(repo OrderRepository, queue Enqueuer, processor *Processor) *Handlers {
	return &Handlers{repo: repo, queue: queue, processor: processor}
}

// Register mounts the kitchen surface.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/", api.Root("kitchen-queue"))
	router.GET("/health", api.Health("kitchen-queue"))
	router.GET("/metrics", metrics.Handler())
	router.POST("/kitchen/queue", h.Queue)
	router.GET("/kitchen/orders/:order_id", h.GetOrder)
	router.POST("/kitchen/orders/:order_id/advance", h.Advance)
	router.POST("/kitchen/orders/:order_id/revert", h.Revert)
}

type queueRequest struct {
	OrderID      string     `json:"order_id" binding:"required"`
	StudentID    string     `json:"student_id" binding:"required"`
	Items        []TaskItem `json:"items" binding:"required,min=1"`
	SpecialNotes string     `json:"special_notes"`
}

// Queue persists the order as PENDING and hands it to the task queue. The
// row is written first so a status lookup works even before a worker picks
// the task up.
func (h *Handlers) Queue(c *gin.Context) {
	var req queueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	order := cassandra.Order{
		ID:           req.OrderID,
		StudentID:    req.StudentID,
		Status:       canteen.StatusPending,
		SpecialNotes: req.SpecialNotes,
		CreatedAt:    time.Now().UTC(),
		UpdatedAt:    time.Now().UTC(),
	}
	items := make([]cassandra.OrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, cassandra.OrderItem{
			OrderID:    req.OrderID,
			MenuItemID: it.MenuItemID,
			Quantity:   it.Quantity,
		})
	}
	if err := h.repo.Add(ctx, order, items); err != nil {
		log.Error(fmt.Sprintf("order %s could not be persisted: %v", req.OrderID, err))
		api.AbortWithError(c, err)
		return
	}
	metrics.OrderTransitions.WithLabelValues(string(canteen.StatusPending)).Inc()

	task := Task{
		OrderID:      req.OrderID,
		StudentID:    req.StudentID,
		Items:        req.Items,
		SpecialNotes: req.SpecialNotes,
	}
	if err := h.queue.Enqueue(ctx, task); err != nil {
		log.Error(fmt.Sprintf("order %s could not be enqueued: %v", req.OrderID, err))
		api.AbortWithError(c, canteen.NewError(canteen.UpstreamUnavailable,
			"Kitchen queue is unavailable. Please retry."))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"order_id": req.OrderID,
		"status":   string(canteen.StatusPending),
		"message":  "Order queued for processing.",
	})
}

// GetOrder returns the current status of an order.
func (h *Handlers) GetOrder(c *gin.Context) {
	found, order, err := h.repo.Get(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	if !found {
		api.AbortWithError(c, canteen.NewError(canteen.NotFound, "Order not found."))
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id":   order.ID,
		"status":     string(order.Status),
		"student_id": order.StudentID,
	})
}

// Advance is the operator override stepping an order forward.
func (h *Handlers) Advance(c *gin.Context) {
	h.overrideStep(c, h.processor.Advance)
}

// Revert is the operator override stepping an order backward.
func (h *Handlers) Revert(c *gin.Context) {
	h.overrideStep(c, h.processor.Revert)
}

func (h *Handlers) overrideStep(c *gin.Context, step func(ctx context.Context, orderID string) (canteen.OrderStatus, error)) {
	orderID := c.Param("order_id")
	status, err := step(c.Request.Context(), orderID)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"order_id": orderID,
		"status":   string(status),
	})
}
