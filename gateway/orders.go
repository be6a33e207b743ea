package gateway

import (
	"fmt"
	log "log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/api"
	"github.com/canteenhq/canteen/inventory"
	"github.com/canteenhq/canteen/metrics"
)

// Handlers serves the gateway routes.
type Handlers struct {
	cache   canteen.Cache
	stock   *StockClient
	kitchen *KitchenClient
	config  Config
}

func NewHandlers(cache canteen.Cache, stock *StockClient, kitchen *KitchenClient, config Config) *Handlers {
	return &Handlers{cache: cache, stock: stock, kitchen: kitchen, config: config}
}

// Register mounts the gateway surface. Middleware order matters: a replayed
// fingerprint must short-circuit before auth runs.
func (h *Handlers) Register(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	router.Use(Idempotency(h.cache, h.config.IdempotencyTTL))
	router.Use(authMiddleware)
	router.GET("/", api.Root("order-gateway"))
	router.GET("/health", api.Health("order-gateway"))
	router.GET("/metrics", metrics.Handler())
	router.POST("/orders", h.CreateOrder)
	router.GET("/orders/:order_id", h.GetOrder)
}

type orderItem struct {
	MenuItemID string `json:"menu_item_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,gte=1"`
}

type orderRequest struct {
	Items        []orderItem `json:"items" binding:"required,min=1,dive"`
	SpecialNotes string      `json:"special_notes"`
}

// CreateOrder runs the admission pipeline for one order.
//
// The advisory cache check rejects hopeless orders before the system of
// record is touched: a present entry at zero means a recent writer saw the
// item exhausted. A missing entry means unknown, fall through to the stock
// service, which holds the authoritative answer.
func (h *Handlers) CreateOrder(c *gin.Context) {
	claims, ok := CurrentUser(c)
	if !ok {
		api.AbortWithError(c, canteen.NewError(canteen.Unauthenticated, "Missing authentication context."))
		return
	}

	var req orderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	ctx := c.Request.Context()
	for _, item := range req.Items {
		found, cachedStock, err := h.cache.Get(ctx, inventory.StockCacheKey(item.MenuItemID))
		if err != nil {
			log.Error(fmt.Sprintf("stock cache read failed for %s, falling through: %v", item.MenuItemID, err))
			continue
		}
		if !found {
			continue
		}
		stock, err := strconv.Atoi(cachedStock)
		if err != nil {
			// Unparseable entries don't justify a rejection.
			continue
		}
		if stock <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"detail": fmt.Sprintf("Menu item '%s' is out of stock (cache hit). Order rejected.", item.MenuItemID),
			})
			return
		}
	}

	orderID := canteen.NewUUID().String()
	fingerprint := c.GetHeader("Idempotency-Key")
	if fingerprint == "" {
		fingerprint = orderID
	}

	deductReq := stockDeductRequest{OrderID: orderID, StudentID: claims.StudentID}
	for _, item := range req.Items {
		deductReq.Items = append(deductReq.Items, stockDeductItem{MenuItemID: item.MenuItemID, Quantity: item.Quantity})
	}
	reply, err := h.stock.Deduct(ctx, deductReq, fingerprint)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	if reply.Status == http.StatusConflict {
		c.JSON(http.StatusConflict, gin.H{"detail": "Some items are out of stock."})
		return
	}
	if reply.Status < 200 || reply.Status > 299 {
		c.JSON(reply.Status, gin.H{"detail": reply.detail("Stock deduction failed.")})
		return
	}

	// Kitchen dispatch is best-effort: the order is acknowledged even when
	// the queue is down, so a failure here only costs visibility.
	queueReq := kitchenQueueRequest{
		OrderID:      orderID,
		StudentID:    claims.StudentID,
		Items:        deductReq.Items,
		SpecialNotes: req.SpecialNotes,
	}
	if kitchenReply, err := h.kitchen.Queue(ctx, queueReq); err != nil {
		log.Error(fmt.Sprintf("kitchen dispatch failed for order %s: %v", orderID, err))
	} else if kitchenReply.Status < 200 || kitchenReply.Status > 299 {
		log.Error(fmt.Sprintf("kitchen dispatch rejected order %s with status %d", orderID, kitchenReply.Status))
	}

	h.decrementCacheEstimates(c, req.Items)

	c.JSON(http.StatusAccepted, gin.H{
		"order_id":               orderID,
		"status":                 "queued",
		"message":                "Order accepted and queued for kitchen processing.",
		"estimated_wait_seconds": h.config.EstimatedWaitSecs,
	})
}

// decrementCacheEstimates lowers the cached stock by each ordered quantity,
// floored at zero. Best effort ahead of the authoritative refresh the stock
// service performs.
func (h *Handlers) decrementCacheEstimates(c *gin.Context, items []orderItem) {
	ctx := c.Request.Context()
	for _, item := range items {
		key := inventory.StockCacheKey(item.MenuItemID)
		found, current, err := h.cache.Get(ctx, key)
		if err != nil || !found {
			continue
		}
		stock, err := strconv.Atoi(current)
		if err != nil {
			continue
		}
		stock -= item.Quantity
		if stock < 0 {
			stock = 0
		}
		if err := h.cache.Set(ctx, key, strconv.Itoa(stock), h.config.StockCacheTTL); err != nil {
			log.Warn(fmt.Sprintf("stock cache estimate update failed for %s: %v", item.MenuItemID, err))
		}
	}
}

// GetOrder passes the order status through from the kitchen service.
func (h *Handlers) GetOrder(c *gin.Context) {
	reply, err := h.kitchen.GetOrder(c.Request.Context(), c.Param("order_id"))
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	c.Data(reply.Status, "application/json; charset=utf-8", reply.Body)
}
