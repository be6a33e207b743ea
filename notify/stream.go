package notify

import (
	"encoding/json"
	"fmt"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/api"
	"github.com/canteenhq/canteen/metrics"
)

// StreamConfig carries the SSE cadence settings.
type StreamConfig struct {
	PollTimeout   time.Duration
	Keepalive     time.Duration
	ClientRetryMS int
}

// StreamConfigFromEnv reads the stream settings (1s poll, 15s keepalive,
// 3000ms client retry hint).
func StreamConfigFromEnv() StreamConfig {
	return StreamConfig{
		PollTimeout:   canteen.EnvSeconds("CANTEEN_SSE_POLL_TIMEOUT_SECONDS", 1*time.Second),
		Keepalive:     canteen.EnvSeconds("CANTEEN_SSE_KEEPALIVE_SECONDS", 15*time.Second),
		ClientRetryMS: canteen.EnvInt("CANTEEN_SSE_RETRY_MS", 3000),
	}
}

// statusEvent is the payload flowing through an order channel.
type statusEvent struct {
	OrderID   string `json:"order_id"`
	Status    string `json:"status"`
	StudentID string `json:"student_id,omitempty"`
}

func eventPayload(orderID, status, studentID string) (string, error) {
	ba, err := json.Marshal(statusEvent{OrderID: orderID, Status: status, StudentID: studentID})
	if err != nil {
		return "", err
	}
	return string(ba), nil
}

// terminal reports whether a published status ends the stream.
func terminal(status string) bool {
	s := canteen.OrderStatus(status)
	return s == canteen.StatusReady || s == canteen.StatusFailed
}

// Stream serves the SSE feed for one order. The stream stays open until the
// order reaches a terminal status, the client disconnects, or chaos mode
// takes the hub down mid-stream.
func (h *Handlers) Stream(c *gin.Context) {
	orderID := c.Param("order_id")
	ctx := c.Request.Context()

	if h.chaos.Enabled(ctx) {
		api.AbortWithError(c, canteen.NewError(canteen.ChaosUnavailable,
			"Notification Hub is unavailable (chaos mode active)."))
		return
	}

	sub, err := h.pubsub.Subscribe(ctx, orderChannel(orderID))
	if err != nil {
		api.AbortWithError(c, canteen.NewError(canteen.UpstreamUnavailable,
			"Notification Hub could not subscribe to updates."))
		return
	}
	defer sub.Close()

	metrics.StreamsOpened.Inc()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	fmt.Fprintf(c.Writer, ": connected to order %s\n\n", orderID)
	fmt.Fprintf(c.Writer, "retry: %d\n\n", h.config.ClientRetryMS)
	c.Writer.Flush()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			log.Info(fmt.Sprintf("stream for order %s: client disconnected", orderID))
			return
		default:
		}

		if h.chaos.Enabled(ctx) {
			// Mid-stream chaos: tell the client and drop the connection so
			// its retry lands on the 503 pre-check.
			fmt.Fprintf(c.Writer, "event: error\ndata: %s\n\n",
				`{"detail": "Notification Hub entered chaos mode."}`)
			c.Writer.Flush()
			return
		}

		message, ok, err := sub.Poll(ctx, h.config.PollTimeout)
		if err != nil {
			log.Warn(fmt.Sprintf("stream for order %s: poll failed: %v", orderID, err))
			return
		}
		if !ok {
			if time.Since(lastActivity) >= h.config.Keepalive {
				fmt.Fprint(c.Writer, ": keepalive\n\n")
				c.Writer.Flush()
				lastActivity = time.Now()
			}
			continue
		}

		fmt.Fprintf(c.Writer, "event: order_update\ndata: %s\n\n", message)
		c.Writer.Flush()
		lastActivity = time.Now()

		var ev statusEvent
		if err := json.Unmarshal([]byte(message), &ev); err == nil && terminal(ev.Status) {
			log.Info(fmt.Sprintf("stream for order %s: terminal status %s, closing", orderID, ev.Status))
			return
		}
	}
}
