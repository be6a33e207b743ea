package auth

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	log "log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
	"github.com/canteenhq/canteen/metrics"
)

const rateLimitPrefix = "ratelimit:"

// RateLimitConfig carries the sliding-window parameters for the login
// endpoint.
type RateLimitConfig struct {
	Window      time.Duration
	MaxAttempts int
}

// RateLimitConfigFromEnv reads the window (60s) and attempt cap (3).
func RateLimitConfigFromEnv() RateLimitConfig {
	return RateLimitConfig{
		Window:      canteen.EnvSeconds("CANTEEN_RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),
		MaxAttempts: canteen.EnvInt("CANTEEN_RATE_LIMIT_MAX_ATTEMPTS", 3),
	}
}

// RateLimitLogin is the sliding-window rate limiter middleware for
// POST /auth/login. The tracking key is the student_id from the request
// body, falling back to the client address when the body cannot be parsed.
//
// The body is consumed to extract the key, then re-attached so the handler
// can bind it again; the socket is never read twice. The attempt count is
// read before this attempt is recorded, so the Mth legitimate request is
// allowed and the (M+1)th is denied.
func RateLimitLogin(limiter canteen.Limiter, config RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "Unreadable request body."})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		trackingKey := c.ClientIP()
		var probe struct {
			StudentID string `json:"student_id"`
		}
		if err := json.Unmarshal(body, &probe); err == nil && probe.StudentID != "" {
			trackingKey = probe.StudentID
		}

		now := float64(time.Now().UnixNano()) / float64(time.Second)
		count, err := limiter.Observe(c.Request.Context(), rateLimitPrefix+trackingKey, now, config.Window)
		if err != nil {
			// A broken limiter should not take logins down with it.
			log.Error(fmt.Sprintf("rate limiter unavailable, allowing request: %v", err))
			c.Next()
			return
		}

		if count >= int64(config.MaxAttempts) {
			metrics.RateLimitDenials.Inc()
			retryAfter := int(config.Window.Seconds())
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfter))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"detail": fmt.Sprintf("Too many login attempts. Maximum %d attempts per %d seconds.",
					config.MaxAttempts, retryAfter),
				"retry_after_seconds": retryAfter,
			})
			return
		}

		c.Next()
	}
}
