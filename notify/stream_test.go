package notify

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/redis"
)

func hubServer(mock *redis.MockClient) *httptest.Server {
	gin.SetMode(gin.TestMode)
	h := NewHandlers(mock, NewChaos(mock, "chaos:notification-hub"), StreamConfig{
		PollTimeout:   20 * time.Millisecond,
		Keepalive:     50 * time.Millisecond,
		ClientRetryMS: 3000,
	})
	router := gin.New()
	h.Register(router)
	return httptest.NewServer(router)
}

func postHub(t *testing.T, base, path string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		ba, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(ba)
	}
	resp, err := http.Post(base+path, "application/json", reader)
	assert.NoError(t, err)
	return resp
}

// waitForSubscriber blocks until the stream handler has subscribed, so a
// publish cannot race ahead of the subscription.
func waitForSubscriber(t *testing.T, mock *redis.MockClient, channel string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.SubscriberCount(channel) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no subscriber appeared on %s", channel)
}

func TestPublishRequiresOrderID(t *testing.T) {
	mock := redis.NewMockClient()
	srv := hubServer(mock)
	defer srv.Close()

	resp := postHub(t, srv.URL, "/notifications/publish", gin.H{"status": "READY"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStreamDeliversUpdatesAndClosesOnTerminal(t *testing.T) {
	mock := redis.NewMockClient()
	srv := hubServer(mock)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/notifications/stream/o1")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	waitForSubscriber(t, mock, "order:o1")

	pub := postHub(t, srv.URL, "/notifications/publish", gin.H{
		"order_id": "o1", "status": string(canteen.StatusInKitchen), "student_id": "S1001",
	})
	pub.Body.Close()
	pub = postHub(t, srv.URL, "/notifications/publish", gin.H{
		"order_id": "o1", "status": string(canteen.StatusReady), "student_id": "S1001",
	})
	pub.Body.Close()

	// READY is terminal, so the server closes the stream and this read
	// terminates on EOF.
	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, ": connected to order o1")
	assert.Contains(t, text, "retry: 3000")
	assert.Contains(t, text, "event: order_update")
	assert.Contains(t, text, `"status":"IN_KITCHEN"`)
	assert.Contains(t, text, `"status":"READY"`)
}

func TestStreamKeepalive(t *testing.T) {
	mock := redis.NewMockClient()
	srv := hubServer(mock)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/notifications/stream/o2")
	assert.NoError(t, err)
	defer resp.Body.Close()

	// No events are published; after the idle interval the hub must emit a
	// keepalive comment.
	reader := bufio.NewReader(resp.Body)
	deadline := time.Now().Add(2 * time.Second)
	sawKeepalive := false
	for time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.HasPrefix(line, ": keepalive") {
			sawKeepalive = true
			break
		}
	}
	assert.True(t, sawKeepalive, "no keepalive within deadline")
}

func TestStreamChaosPreCheck(t *testing.T) {
	mock := redis.NewMockClient()
	srv := hubServer(mock)
	defer srv.Close()

	resp := postHub(t, srv.URL, "/notifications/chaos/enable", nil)
	resp.Body.Close()

	resp, err := http.Get(srv.URL + "/notifications/stream/o1")
	assert.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "Notification Hub is unavailable (chaos mode active).")

	resp2 := postHub(t, srv.URL, "/notifications/chaos/disable", nil)
	resp2.Body.Close()

	resp3, err := http.Get(srv.URL + "/notifications/chaos")
	assert.NoError(t, err)
	defer resp3.Body.Close()
	body, _ = io.ReadAll(resp3.Body)
	assert.Contains(t, string(body), `"chaos_enabled":false`)
}

func TestStreamMidStreamChaosSendsErrorEvent(t *testing.T) {
	mock := redis.NewMockClient()
	srv := hubServer(mock)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/notifications/stream/o3")
	assert.NoError(t, err)
	defer resp.Body.Close()
	waitForSubscriber(t, mock, "order:o3")

	chaos := postHub(t, srv.URL, "/notifications/chaos/enable", nil)
	chaos.Body.Close()
	defer func() {
		off := postHub(t, srv.URL, "/notifications/chaos/disable", nil)
		off.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Contains(t, string(body), "event: error")
	assert.Contains(t, string(body), "Notification Hub entered chaos mode.")
}

func TestStreamReleasesSubscriptionOnTerminal(t *testing.T) {
	mock := redis.NewMockClient()
	srv := hubServer(mock)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/notifications/stream/o4")
	assert.NoError(t, err)
	defer resp.Body.Close()
	waitForSubscriber(t, mock, "order:o4")

	pub := postHub(t, srv.URL, "/notifications/publish", gin.H{
		"order_id": "o4", "status": string(canteen.StatusFailed),
	})
	pub.Body.Close()

	io.ReadAll(resp.Body)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mock.SubscriberCount("order:o4") == 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Error("subscription not released after terminal status")
}
