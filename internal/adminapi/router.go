// Package adminapi is the read-only administrative HTTP surface named in
// spec.md §1/§6, grounded on dkeye-Voice's internal/adapters/http/router.go
// gin wiring.
package adminapi

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/confplane/signaling-core/internal/auth"
	"github.com/confplane/signaling-core/internal/core"
	"github.com/confplane/signaling-core/internal/domain"
)

// SetupRouter builds the admin HTTP surface: GET /admin/rooms,
// GET /admin/room/:name, GET /admin/metrics — every route requires an
// authenticated admin principal via validator.
func SetupRouter(rooms *core.RoomRegistry, engine core.MediaEngine, validator *auth.Validator) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	admin := r.Group("/admin")
	admin.Use(requireAdmin(validator))

	admin.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": rooms.Overview()})
	})

	admin.GET("/room/:name", func(c *gin.Context) {
		detail, ok := rooms.Info(domain.RoomName(c.Param("name")))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
			return
		}
		c.JSON(http.StatusOK, detail)
	})

	admin.GET("/metrics", func(c *gin.Context) {
		if engine == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "sfu not enabled"})
			return
		}
		c.JSON(http.StatusOK, engine.Metrics())
	})

	return r
}

func requireAdmin(validator *auth.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
				token = strings.TrimPrefix(h, "Bearer ")
			}
		}

		if validator == nil {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth not configured"})
			return
		}

		user, err := validator.ValidateToken(token)
		if err != nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required"})
			return
		}

		c.Set("user", user)
		c.Next()
	}
}
