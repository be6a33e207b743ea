package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/canteenhq/canteen/inventory"
	"github.com/canteenhq/canteen/redis"
)

type upstreams struct {
	stockCalls   int64
	kitchenCalls int64
	stockStatus  int
	stockBody    string
	stock        *httptest.Server
	kitchen      *httptest.Server
}

func newUpstreams() *upstreams {
	u := &upstreams{stockStatus: http.StatusOK, stockBody: `{"status": "success"}`}
	u.stock = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&u.stockCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(u.stockStatus)
		w.Write([]byte(u.stockBody))
	}))
	u.kitchen = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&u.kitchenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"order_id": "abc", "status": "IN_KITCHEN", "student_id": "S1001"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"status": "PENDING"}`))
	}))
	return u
}

func (u *upstreams) close() {
	u.stock.Close()
	u.kitchen.Close()
}

func gatewayRouter(t *testing.T, cache *redis.MockClient, u *upstreams) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config := Config{
		StockServiceURL:   u.stock.URL,
		KitchenServiceURL: u.kitchen.URL,
		HTTPTimeout:       2 * time.Second,
		StockCacheTTL:     10 * time.Second,
		IdempotencyTTL:    time.Hour,
		EstimatedWaitSecs: 7,
	}
	h := NewHandlers(cache,
		NewStockClient(config.StockServiceURL, config.HTTPTimeout),
		NewKitchenClient(config.KitchenServiceURL, config.HTTPTimeout),
		config)
	router := gin.New()
	h.Register(router, Authenticate(testTokenAuthority()))
	return router
}

func orderRequestBody() []byte {
	ba, _ := json.Marshal(gin.H{
		"items": []gin.H{{"menu_item_id": "latte", "quantity": 2}},
	})
	return ba
}

func authedOrder(t *testing.T, router *gin.Engine, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	access, err := testTokenAuthority().IssueAccess("S1001", "S1001", false)
	assert.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/orders", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateOrderHappyPath(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	cache := redis.NewMockClient()
	router := gatewayRouter(t, cache, u)

	w := authedOrder(t, router, orderRequestBody())
	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		OrderID   string `json:"order_id"`
		Status    string `json:"status"`
		Estimated int    `json:"estimated_wait_seconds"`
	}
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, "queued", resp.Status)
	assert.Equal(t, 7, resp.Estimated)
	assert.EqualValues(t, 1, atomic.LoadInt64(&u.stockCalls))
	assert.EqualValues(t, 1, atomic.LoadInt64(&u.kitchenCalls))
}

// A cached zero-stock entry rejects the order before any upstream is called.
func TestCreateOrderCacheFastReject(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	cache := redis.NewMockClient()
	cache.Set(context.Background(), inventory.StockCacheKey("latte"), "0", time.Minute)
	router := gatewayRouter(t, cache, u)

	w := authedOrder(t, router, orderRequestBody())
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Menu item 'latte' is out of stock (cache hit). Order rejected.")
	assert.EqualValues(t, 0, atomic.LoadInt64(&u.stockCalls))
	assert.EqualValues(t, 0, atomic.LoadInt64(&u.kitchenCalls))
}

// A cache miss is not a rejection: the stock service stays authoritative.
func TestCreateOrderCacheMissFallsThrough(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	router := gatewayRouter(t, redis.NewMockClient(), u)

	w := authedOrder(t, router, orderRequestBody())
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.EqualValues(t, 1, atomic.LoadInt64(&u.stockCalls))
}

func TestCreateOrderStockConflict(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	u.stockStatus = http.StatusConflict
	u.stockBody = `{"detail": "Insufficient stock for 'latte': requested=2, available=1"}`
	router := gatewayRouter(t, redis.NewMockClient(), u)

	w := authedOrder(t, router, orderRequestBody())
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Some items are out of stock.")
	assert.EqualValues(t, 0, atomic.LoadInt64(&u.kitchenCalls))
}

func TestCreateOrderStockUnreachable(t *testing.T) {
	u := newUpstreams()
	u.close()
	router := gatewayRouter(t, redis.NewMockClient(), u)

	w := authedOrder(t, router, orderRequestBody())
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// Kitchen being down does not fail the order: stock is already committed.
func TestCreateOrderKitchenDownStillAccepted(t *testing.T) {
	u := newUpstreams()
	defer u.stock.Close()
	u.kitchen.Close()
	router := gatewayRouter(t, redis.NewMockClient(), u)

	w := authedOrder(t, router, orderRequestBody())
	assert.Equal(t, http.StatusAccepted, w.Code)
}

// A successful order lowers the cached stock estimate by the ordered
// quantity.
func TestCreateOrderDecrementsCacheEstimate(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	cache := redis.NewMockClient()
	cache.Set(context.Background(), inventory.StockCacheKey("latte"), "5", time.Minute)
	router := gatewayRouter(t, cache, u)

	w := authedOrder(t, router, orderRequestBody())
	assert.Equal(t, http.StatusAccepted, w.Code)

	found, value, err := cache.Get(context.Background(), inventory.StockCacheKey("latte"))
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "3", value)
}

func TestCreateOrderValidation(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	router := gatewayRouter(t, redis.NewMockClient(), u)

	w := authedOrder(t, router, []byte(`{"items": []}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.EqualValues(t, 0, atomic.LoadInt64(&u.stockCalls))
}

func TestGetOrderPassthrough(t *testing.T) {
	u := newUpstreams()
	defer u.close()
	router := gatewayRouter(t, redis.NewMockClient(), u)

	access, err := testTokenAuthority().IssueAccess("S1001", "S1001", false)
	assert.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "IN_KITCHEN")
}
