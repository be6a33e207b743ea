package gateway

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/canteenhq/canteen/auth"
)

func testTokenAuthority() *auth.TokenAuthority {
	return auth.NewTokenAuthority(auth.TokenConfig{
		Secret:     "unit-test-secret",
		Algorithm:  "HS256",
		AccessTTL:  30 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	})
}

func protectedRouter(authority *auth.TokenAuthority) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Authenticate(authority))
	router.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "healthy"}) })
	router.GET("/orders/abc", func(c *gin.Context) {
		claims, ok := CurrentUser(c)
		if !ok {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": "no claims"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"student_id": claims.StudentID})
	})
	return router
}

func TestAuthenticateMissingHeader(t *testing.T) {
	router := protectedRouter(testTokenAuthority())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/orders/abc", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Missing or invalid Authorization header. Expected: Bearer <token>")
	assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
}

func TestAuthenticateGarbageToken(t *testing.T) {
	router := protectedRouter(testTokenAuthority())
	req := httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid or expired JWT.")
}

func TestAuthenticateRefreshTokenRejected(t *testing.T) {
	authority := testTokenAuthority()
	router := protectedRouter(authority)
	refresh, err := authority.IssueRefresh("S1001")
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthenticateValidToken(t *testing.T) {
	authority := testTokenAuthority()
	router := protectedRouter(authority)
	access, err := authority.IssueAccess("S1001", "S1001", false)
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/orders/abc", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "S1001")
}

func TestAuthenticatePublicPaths(t *testing.T) {
	router := protectedRouter(testTokenAuthority())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthenticateOptionsPasses(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(Authenticate(testTokenAuthority()))
	router.OPTIONS("/orders", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/orders", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)
}
