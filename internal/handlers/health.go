package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"autoflow/pkg/tracker"
)

// HealthHandler 健康检查
type HealthHandler struct {
	db      *gorm.DB
	tracker tracker.Interface
	started time.Time
}

func NewHealthHandler(db *gorm.DB, trk tracker.Interface) *HealthHandler {
	return &HealthHandler{db: db, tracker: trk, started: time.Now()}
}

// Health 基础存活检查
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).String(),
	})
}

// Ready checks the database and tracker dependencies.
func (h *HealthHandler) Ready(c *gin.Context) {
	checks := gin.H{}
	healthy := true

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		checks["database"] = err.Error()
		healthy = false
	} else {
		checks["database"] = "ok"
	}

	if h.tracker != nil {
		if err := h.tracker.HealthCheck(c.Request.Context()); err != nil {
			checks["tracker"] = err.Error()
			// 工单系统暂不可用不影响进程就绪
		} else {
			checks["tracker"] = "ok"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"checks": checks})
}
