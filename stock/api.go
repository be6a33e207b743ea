// Package stock is the stock service HTTP surface: deduction with
// optimistic-lock retry, stock reads that warm the advisory cache, and the
// inventory listing.
package stock

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/api"
	"github.com/canteenhq/canteen/cassandra"
	"github.com/canteenhq/canteen/inventory"
	"github.com/canteenhq/canteen/metrics"
)

// Reader is the read side of the inventory store used by the GET endpoints.
type Reader interface {
	Get(ctx context.Context, menuItemID string) (bool, cassandra.InventoryRow, error)
	List(ctx context.Context) ([]cassandra.InventoryRow, error)
}

// Handlers serves the /stock routes.
type Handlers struct {
	engine *inventory.Engine
	reader Reader
}

func NewHandlers(engine *inventory.Engine, reader Reader) *Handlers {
	return &Handlers{engine: engine, reader: reader}
}

// Register mounts the stock routes plus health and metrics.
func (h *Handlers) Register(router *gin.Engine) {
	router.GET("/", api.Root("stock-service"))
	router.GET("/health", api.Health("stock-service"))
	router.GET("/metrics", metrics.Handler())
	router.POST("/stock/deduct", h.Deduct)
	router.GET("/stock/:menu_item_id", h.Get)
	router.GET("/stock", h.List)
}

type deductItem struct {
	MenuItemID string `json:"menu_item_id" binding:"required"`
	Quantity   int    `json:"quantity" binding:"required,gte=1"`
}

type deductRequest struct {
	OrderID   string       `json:"order_id" binding:"required"`
	StudentID string       `json:"student_id" binding:"required"`
	Items     []deductItem `json:"items" binding:"required,min=1,dive"`
}

type stockView struct {
	MenuItemID   string `json:"menu_item_id"`
	CurrentStock int    `json:"current_stock"`
	Ver          int    `json:"version_id"`
}

// Deduct removes stock for every item of an order. Each item runs through
// the CAS engine; insufficient stock and exhausted version conflicts both
// surface as 409.
func (h *Handlers) Deduct(c *gin.Context) {
	var req deductRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"detail": err.Error()})
		return
	}

	deducted := make([]gin.H, 0, len(req.Items))
	for _, item := range req.Items {
		remaining, err := h.engine.Deduct(c.Request.Context(), req.OrderID, req.StudentID, item.MenuItemID, item.Quantity)
		if err != nil {
			api.AbortWithError(c, err)
			return
		}
		deducted = append(deducted, gin.H{"menu_item_id": item.MenuItemID, "remaining_stock": remaining})
	}

	c.JSON(http.StatusOK, gin.H{
		"order_id":       req.OrderID,
		"deducted_items": deducted,
		"status":         "success",
	})
}

// Get returns one item's stock and warms the advisory cache.
func (h *Handlers) Get(c *gin.Context) {
	menuItemID := c.Param("menu_item_id")
	found, row, err := h.reader.Get(c.Request.Context(), menuItemID)
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	if !found {
		api.AbortWithError(c, canteen.NewError(canteen.NotFound, "Menu item not found in inventory."))
		return
	}

	h.engine.RefreshCache(c.Request.Context(), menuItemID, row.CurrentStock)

	c.JSON(http.StatusOK, stockView{MenuItemID: row.MenuItemID, CurrentStock: row.CurrentStock, Ver: row.Ver})
}

// List returns all inventory rows.
func (h *Handlers) List(c *gin.Context) {
	rows, err := h.reader.List(c.Request.Context())
	if err != nil {
		api.AbortWithError(c, err)
		return
	}
	views := make([]stockView, 0, len(rows))
	for _, row := range rows {
		views = append(views, stockView{MenuItemID: row.MenuItemID, CurrentStock: row.CurrentStock, Ver: row.Ver})
	}
	c.JSON(http.StatusOK, views)
}
