package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/models"
	"github.com/contabilhub/contabil_backend/utils"
)

// CorrelationMiddleware tags every request with a correlation id, reusing
// the caller's X-Correlation-Id when present so ids survive service hops.
func CorrelationMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		correlationId := c.Request.Header.Get("X-Correlation-Id")
		if correlationId == "" {
			correlationId = uuid.NewString()
		}
		ctx := utils.SetCorrelationIdInContext(c.Request.Context(), correlationId)
		c.Request = c.Request.WithContext(ctx)
		c.Writer.Header().Set("X-Correlation-Id", correlationId)
		c.Next()
	}
}

// TenantMiddleware resolves the tenant for the request from the
// X-Client-Id header (or clientId query param) and verifies the
// authenticated user's membership before any data access. Fails closed:
// no client id or no membership means 403.
func TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientId := c.Request.Header.Get("X-Client-Id")
		if clientId == "" {
			clientId = c.Query("clientId")
		}
		if clientId == "" {
			c.JSON(http.StatusForbidden, gin.H{"error": "client id is required"})
			c.Abort()
			return
		}

		userId, ok := utils.GetUserIdFromContext(c.Request.Context())
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		hasAccess, err := models.HasClientAccess(c.Request.Context(), config.GetDB(), userId, clientId)
		if err != nil || !hasAccess {
			c.JSON(http.StatusForbidden, gin.H{"error": "access to client denied"})
			c.Abort()
			return
		}

		ctx := utils.SetClientIdInContext(c.Request.Context(), clientId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
