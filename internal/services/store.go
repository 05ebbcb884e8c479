package services

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"autoflow/internal/models"
)

// Store is the gorm-backed rule store consumed by the engine.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

// GetRule returns nil (not an error) when the rule does not exist, so a
// disarm racing a firing resolves to a silent skip.
func (s *Store) GetRule(ctx context.Context, id string) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rule, nil
}

// ListRules 按启用状态/项目过滤规则
func (s *Store) ListRules(ctx context.Context, enabledOnly bool) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	q := s.db.WithContext(ctx).Order("created_at DESC")
	if enabledOnly {
		q = q.Where("enabled = ?", true)
	}
	if err := q.Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

// AppendExecution persists a finalized execution record.
func (s *Store) AppendExecution(ctx context.Context, exec *models.AutomationExecution) error {
	return s.db.WithContext(ctx).Create(exec).Error
}

// IncrementCounters bumps the rule's running counters atomically in SQL.
func (s *Store) IncrementCounters(ctx context.Context, ruleID string, failed bool) error {
	updates := map[string]interface{}{
		"execution_count": gorm.Expr("execution_count + 1"),
	}
	if failed {
		updates["failure_count"] = gorm.Expr("failure_count + 1")
	}
	return s.db.WithContext(ctx).Model(&models.AutomationRule{}).
		Where("id = ?", ruleID).
		Updates(updates).Error
}
