package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"autoflow/internal/models"
	"autoflow/internal/services"
)

// AutomationHandler 管理自动化规则
type AutomationHandler struct {
	service *services.RuleService
}

func NewAutomationHandler(service *services.RuleService) *AutomationHandler {
	return &AutomationHandler{service: service}
}

// ListRules 获取规则列表
func (h *AutomationHandler) ListRules(c *gin.Context) {
	rules, err := h.service.List(c.Request.Context(), c.Query("project_key"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list rules", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rules)
}

// GetRule 获取单条规则
func (h *AutomationHandler) GetRule(c *gin.Context) {
	rule, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// CreateRule 创建规则
func (h *AutomationHandler) CreateRule(c *gin.Context) {
	var req services.RuleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	rule, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		var invalid *services.ErrRuleInvalid
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Rule validation failed", "validation": invalid.Result})
			return
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Failed to create rule", Message: err.Error()})
		return
	}

	c.JSON(http.StatusCreated, rule)
}

// UpdateRule 更新规则
func (h *AutomationHandler) UpdateRule(c *gin.Context) {
	var req services.RuleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request", Message: err.Error()})
		return
	}

	rule, err := h.service.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		var invalid *services.ErrRuleInvalid
		if errors.As(err, &invalid) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Rule validation failed", "validation": invalid.Result})
			return
		}
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule 删除规则
func (h *AutomationHandler) DeleteRule(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to delete rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, SuccessResponse{Message: "deleted"})
}

// EnableRule 启用规则（布防触发器）
func (h *AutomationHandler) EnableRule(c *gin.Context) {
	h.setEnabled(c, true)
}

// DisableRule 停用规则（撤防触发器）
func (h *AutomationHandler) DisableRule(c *gin.Context) {
	h.setEnabled(c, false)
}

func (h *AutomationHandler) setEnabled(c *gin.Context, enabled bool) {
	rule, err := h.service.SetEnabled(c.Request.Context(), c.Param("id"), enabled)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to update rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, rule)
}

// RunRule 手动触发规则
func (h *AutomationHandler) RunRule(c *gin.Context) {
	var ec models.ExecutionContext
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&ec); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid context", Message: err.Error()})
			return
		}
	}

	exec, err := h.service.RunManual(c.Request.Context(), c.Param("id"), &ec)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to run rule", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// ListExecutions 查询执行历史
func (h *AutomationHandler) ListExecutions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	execs, err := h.service.ListExecutions(c.Request.Context(), c.Query("rule_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to list executions", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, execs)
}

// GetExecution 查询单条执行记录
func (h *AutomationHandler) GetExecution(c *gin.Context) {
	exec, err := h.service.GetExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, services.ErrRuleNotFound) {
			status = http.StatusNotFound
		}
		c.JSON(status, ErrorResponse{Error: "Failed to get execution", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// RegisterAutomationRoutes 注册路由
func RegisterAutomationRoutes(r *gin.RouterGroup, handler *AutomationHandler) {
	rules := r.Group("/rules")
	{
		rules.GET("", handler.ListRules)
		rules.POST("", handler.CreateRule)
		rules.GET(":id", handler.GetRule)
		rules.PUT(":id", handler.UpdateRule)
		rules.DELETE(":id", handler.DeleteRule)
		rules.POST(":id/enable", handler.EnableRule)
		rules.POST(":id/disable", handler.DisableRule)
		rules.POST(":id/run", handler.RunRule)
	}
	executions := r.Group("/executions")
	{
		executions.GET("", handler.ListExecutions)
		executions.GET(":id", handler.GetExecution)
	}
}
