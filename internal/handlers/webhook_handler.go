package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autoflow/internal/engine"
)

// WebhookHandler is the ingress for rule webhook triggers. The surrounding
// HTTP layer (auth middleware, rate limiting) runs before Deliver is called.
type WebhookHandler struct {
	engine *engine.Engine
}

func NewWebhookHandler(eng *engine.Engine) *WebhookHandler {
	return &WebhookHandler{engine: eng}
}

// Deliver 接收入站 webhook 并触发绑定的规则
// POST /automation/webhook/:webhookId
func (h *WebhookHandler) Deliver(c *gin.Context) {
	webhookID := c.Param("webhookId")

	var payload map[string]interface{}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid payload", Message: err.Error()})
			return
		}
	}

	secret := c.GetHeader("X-Automation-Secret")
	if err := h.engine.Deliver(webhookID, secret, payload); err != nil {
		switch {
		case errors.Is(err, engine.ErrWebhookNotFound):
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "Unknown webhook", Message: err.Error()})
		case errors.Is(err, engine.ErrWebhookSecret):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "Invalid secret", Message: err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Delivery failed", Message: err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{Message: "delivered"})
}

// RegisterWebhookRoutes 注册 webhook 入口路由
func RegisterWebhookRoutes(r *gin.RouterGroup, handler *WebhookHandler) {
	r.POST("/webhook/:webhookId", handler.Deliver)
}
