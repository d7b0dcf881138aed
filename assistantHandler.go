package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/contabilhub/contabil_backend/assistant"
	"github.com/contabilhub/contabil_backend/config"
	"github.com/contabilhub/contabil_backend/utils"
)

type assistantRequest struct {
	ClientId string `json:"clientId"`
	Question string `json:"question" binding:"required"`
}

// assistantHandler answers one question over SSE. The tenant comes from
// TenantMiddleware; a clientId in the body is only accepted when it matches.
// The user id always comes from the bearer token, never from the body.
func assistantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req assistantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}

		ctx := c.Request.Context()
		clientId, _ := utils.GetClientIdFromContext(ctx)
		if req.ClientId != "" && req.ClientId != clientId {
			c.JSON(http.StatusForbidden, gin.H{"error": "access to client denied"})
			return
		}

		// The runner keeps per-run state, so each request gets its own.
		runner, err := assistant.NewAgentRunner()
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		pipeline := assistant.NewPipeline(config.GetDB(), runner)

		assistant.SetSSEHeaders(c.Writer.Header())
		c.Status(http.StatusOK)
		stream := assistant.NewStreamWriter(c.Writer, assistant.ParseLastEventId(c.GetHeader("Last-Event-ID")))

		if err := pipeline.Stream(ctx, req.Question, stream); err != nil {
			// Guardrail trips and runner errors were already reported to the
			// client as error events; log the rest of the context here.
			var trip *assistant.GuardrailTrip
			if !errors.As(err, &trip) {
				config.LogError(config.GetLogger(), "server", "assistantHandler", assistant.SafePreview(req.Question, 100), nil, err)
			}
		}
	}
}
