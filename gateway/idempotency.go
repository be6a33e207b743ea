// Package gateway is the order ingress: idempotent request replay, bearer
// token enforcement, the cached stock admission check, and the fan-out to
// the stock and kitchen services.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	log "log/slog"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/metrics"
)

const idempotencyPrefix = "idempotent:"

// idempotencyPaths are the state-mutating paths covered by replay.
var idempotencyPaths = map[string]bool{
	"/orders":  true,
	"/orders/": true,
}

// capturedResponse is the cached (status, body) pair. Body stays raw JSON so
// a replay returns it byte-identical.
type capturedResponse struct {
	Body       json.RawMessage `json:"body"`
	StatusCode int             `json:"status_code"`
}

// bodyCaptureWriter tees the handler's response body so the middleware can
// cache it after the chain completes.
type bodyCaptureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCaptureWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays cached responses for repeated fingerprints and
// captures first responses for later replay.
//
// A cache hit short-circuits the whole chain, auth included; that is safe
// only because fingerprints are unguessable UUIDs chosen by the caller who
// received the original response. Responses with status >= 500 are never
// captured, so a failed attempt can be retried under the same fingerprint.
func Idempotency(cache canteen.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case "POST", "PUT", "PATCH":
		default:
			c.Next()
			return
		}
		if !idempotencyPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		fingerprint := c.GetHeader("Idempotency-Key")
		if fingerprint == "" {
			c.Next()
			return
		}

		cacheKey := idempotencyPrefix + fingerprint
		var cached capturedResponse
		found, err := cache.GetStruct(c.Request.Context(), cacheKey, &cached)
		if err != nil {
			log.Error(fmt.Sprintf("idempotency lookup failed for %s, passing through: %v", fingerprint, err))
		}
		if found {
			metrics.IdempotentReplays.Inc()
			c.Header("X-Idempotency-Replay", "true")
			c.Data(cached.StatusCode, "application/json; charset=utf-8", cached.Body)
			c.Abort()
			return
		}

		w := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		status := c.Writer.Status()
		if status >= 500 {
			return
		}
		body := w.buf.Bytes()
		raw := json.RawMessage(body)
		if !json.Valid(body) {
			// Non-JSON bodies are stored as a JSON string.
			raw, _ = json.Marshal(string(body))
		}
		if err := cache.SetStruct(c.Request.Context(), cacheKey, capturedResponse{Body: raw, StatusCode: status}, ttl); err != nil {
			log.Error(fmt.Sprintf("idempotency capture failed for %s: %v", fingerprint, err))
		}
	}
}

// trimTrailingSlash is shared by the middlewares' path checks.
func trimTrailingSlash(p string) string {
	if len(p) > 1 {
		return strings.TrimSuffix(p, "/")
	}
	return p
}
