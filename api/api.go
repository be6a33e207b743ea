// Package api contains the small gin helpers shared by all five services:
// coded-error rendering and the health endpoint.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/canteenhq/canteen"
)

// AbortWithError renders err as the boundary JSON shape {"detail": ...} with
// the status its error code maps to, and aborts the handler chain. Unknown
// errors become sanitized 500s.
func AbortWithError(c *gin.Context, err error) {
	ce := canteen.AsError(err)
	c.AbortWithStatusJSON(ce.HTTPStatus(), gin.H{"detail": ce.Detail()})
}

// Health returns the per-service health handler.
func Health(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service": service,
			"version": canteen.ServiceVersion,
			"status":  "ok",
		})
	}
}

// Root returns the banner handler mounted on "/".
func Root(service string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"service": service, "version": canteen.ServiceVersion})
	}
}
