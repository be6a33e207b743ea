package notify

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/api"
	"github.com/canteenhq/canteen/metrics"
)

// orderChannel names the pub/sub channel carrying one order's updates.
func orderChannel(orderID string) string {
	return "order:" + orderID
}

// Handlers serves the notification hub routes.
type Handlers struct {
	pubsub canteen.PubSub
	chaos  *Chaos
	config StreamConfig
}

func NewHandlers(pubsub canteen.PubSub, chaos *Chaos, config StreamConfig) *Handlers {
	return &Handlers{pubsub: pubsub, chaos: chaos, config: config}
}

// Register mounts the hub surface.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/", api.Root("notification-hub"))
	router.GET("/health", api.Health("notification-hub"))
	router.GET("/metrics", metrics.Handler())
	router.POST("/notifications/publish", h.Publish)
	router.GET("/notifications/stream/:order_id", h.Stream)
	router.GET("/notifications/chaos", h.ChaosStatus)
	router.POST("/notifications/chaos/enable", h.ChaosEnable)
	router.POST("/notifications/chaos/disable", h.ChaosDisable)
}

type publishRequest struct {
	OrderID   string `json:"order_id" binding:"required"`
	Status    string `json:"status" binding:"required"`
	StudentID string `json:"student_id"`
}

// Publish broadcasts a status update to the order's channel. Delivery is
// fire-and-forget: with no live subscriber the message is simply dropped.
func (h *Handlers) Publish(c *gin.Context) {
	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "order_id and status are required."})
		return
	}
	payload, err := eventPayload(req.OrderID, req.Status, req.StudentID)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	if err := h.pubsub.Publish(c.Request.Context(), orderChannel(req.OrderID), payload); err != nil {
		api.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"published": true, "channel": orderChannel(req.OrderID)})
}

// ChaosStatus reports whether chaos mode is active.
func (h *Handlers) ChaosStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"chaos_enabled": h.chaos.Enabled(c.Request.Context())})
}

// ChaosEnable turns on failure injection for the hub.
func (h *Handlers) ChaosEnable(c *gin.Context) {
	if err := h.chaos.Enable(c.Request.Context()); err != nil {
		api.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chaos_enabled": true})
}

// ChaosDisable turns off failure injection.
func (h *Handlers) ChaosDisable(c *gin.Context) {
	if err := h.chaos.Disable(c.Request.Context()); err != nil {
		api.AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"chaos_enabled": false})
}
