package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"autoflow/internal/engine"
	"autoflow/internal/models"
)

// EventService receives the tracker's domain-event stream, persists an audit
// row per event and hands the event to the engine's matchers.
type EventService struct {
	db     *gorm.DB
	engine *engine.Engine
	logger *logrus.Logger
}

func NewEventService(db *gorm.DB, eng *engine.Engine, logger *logrus.Logger) *EventService {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventService{db: db, engine: eng, logger: logger}
}

// Dispatch 落库并分发领域事件
func (s *EventService) Dispatch(ctx context.Context, eventType string, payload map[string]interface{}) (*models.DomainEvent, error) {
	if eventType == "" {
		return nil, fmt.Errorf("event_type is required")
	}

	evt := &models.DomainEvent{
		ID:         uuid.NewString(),
		EventType:  eventType,
		IssueKey:   stringOf(payload, "issue_key"),
		ProjectKey: stringOf(payload, "project_key"),
		Payload:    payload,
		CreatedAt:  time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(evt).Error; err != nil {
		// the audit row is best effort; matching still proceeds
		s.logger.Warnf("automation: persist domain event failed: %v", err)
	}

	s.engine.Dispatch(eventType, payload)
	return evt, nil
}

// ListRecent 查询最近的事件审计记录
func (s *EventService) ListRecent(ctx context.Context, limit int) ([]models.DomainEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var events []models.DomainEvent
	if err := s.db.WithContext(ctx).Order("created_at DESC").Limit(limit).Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func stringOf(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
