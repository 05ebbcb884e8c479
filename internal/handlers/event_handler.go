package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autoflow/internal/services"
)

// EventHandler is the ingress for the tracker's domain-event stream.
type EventHandler struct {
	service *services.EventService
}

func NewEventHandler(service *services.EventService) *EventHandler {
	return &EventHandler{service: service}
}

// DispatchRequest 领域事件分发请求
type DispatchRequest struct {
	EventType string                 `json:"event_type" binding:"required"`
	Payload   map[string]interface{} `json:"payload"`
}

// Dispatch 接收并分发领域事件
func (h *EventHandler) Dispatch(c *gin.Context) {
	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	evt, err := h.service.Dispatch(c.Request.Context(), req.EventType, req.Payload)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to dispatch event", Message: err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, evt)
}

// ListRecent 查询事件审计记录
func (h *EventHandler) ListRecent(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	events, err := h.service.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list events", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, events)
}

// RegisterEventRoutes 注册事件路由
func RegisterEventRoutes(r *gin.RouterGroup, handler *EventHandler) {
	events := r.Group("/events")
	{
		events.POST("/dispatch", handler.Dispatch)
		events.GET("", handler.ListRecent)
	}
}
