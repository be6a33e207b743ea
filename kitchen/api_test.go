package kitchen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/canteenhq/canteen"
)

type memQueue struct {
	tasks []Task
	err   error
}

func (q *memQueue) Enqueue(ctx context.Context, task Task) error {
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func kitchenRouter(repo *memOrders, queue *memQueue) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(repo, queue, instantProcessor(repo, &recordingNotifier{}))
	router := gin.New()
	h.Register(router)
	return router
}

func postQueue(router *gin.Engine, body interface{}) *httptest.ResponseRecorder {
	ba, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/kitchen/queue", bytes.NewReader(ba))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQueuePersistsAndEnqueues(t *testing.T) {
	repo := newMemOrders()
	queue := &memQueue{}
	router := kitchenRouter(repo, queue)

	w := postQueue(router, gin.H{
		"order_id":   "o1",
		"student_id": "S1001",
		"items":      []gin.H{{"menu_item_id": "latte", "quantity": 2}},
	})
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "PENDING")

	found, order, err := repo.Get(context.Background(), "o1")
	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, canteen.StatusPending, order.Status)

	assert.Len(t, queue.tasks, 1)
	assert.Equal(t, "o1", queue.tasks[0].OrderID)
	assert.Equal(t, "S1001", queue.tasks[0].StudentID)
}

func TestQueueValidation(t *testing.T) {
	router := kitchenRouter(newMemOrders(), &memQueue{})
	w := postQueue(router, gin.H{"order_id": "o1"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestQueueBrokerDown(t *testing.T) {
	repo := newMemOrders()
	router := kitchenRouter(repo, &memQueue{err: errors.New("connection refused")})

	w := postQueue(router, gin.H{
		"order_id":   "o1",
		"student_id": "S1001",
		"items":      []gin.H{{"menu_item_id": "latte", "quantity": 1}},
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "Kitchen queue is unavailable. Please retry.")
}

func TestGetOrderStatus(t *testing.T) {
	repo := newMemOrders()
	router := kitchenRouter(repo, &memQueue{})
	seedOrder(t, repo, "o1")
	repo.UpdateStatus(context.Background(), "o1", canteen.StatusInKitchen)

	req := httptest.NewRequest(http.MethodGet, "/kitchen/orders/o1", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "IN_KITCHEN")

	req = httptest.NewRequest(http.MethodGet, "/kitchen/orders/ghost", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Order not found.")
}

func TestAdvanceEndpoint(t *testing.T) {
	repo := newMemOrders()
	router := kitchenRouter(repo, &memQueue{})
	seedOrder(t, repo, "o1")

	req := httptest.NewRequest(http.MethodPost, "/kitchen/orders/o1/advance", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "STOCK_VERIFIED")

	// Reverting from PENDING is off the chain.
	req = httptest.NewRequest(http.MethodPost, "/kitchen/orders/o1/revert", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/kitchen/orders/o1/revert", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid transition from PENDING.")
}
