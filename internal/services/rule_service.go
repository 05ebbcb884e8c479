package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"autoflow/internal/engine"
	"autoflow/internal/models"
)

// ErrRuleNotFound 规则不存在
var ErrRuleNotFound = errors.New("rule not found")

// ErrRuleInvalid wraps a failed validation; the Result carries the details.
type ErrRuleInvalid struct {
	Result ValidationResult
}

func (e *ErrRuleInvalid) Error() string {
	return fmt.Sprintf("rule validation failed: %v", e.Result.Errors)
}

// RuleService manages automation rule lifecycle: CRUD, validation gating and
// trigger arming. Enabled rules are armed on create/update and on startup;
// disabling or deleting disarms.
type RuleService struct {
	db        *gorm.DB
	engine    *engine.Engine
	validator *RuleValidator
	logger    *logrus.Logger
	tracer    trace.Tracer
}

func NewRuleService(db *gorm.DB, eng *engine.Engine, logger *logrus.Logger) *RuleService {
	if logger == nil {
		logger = logrus.New()
	}
	return &RuleService{
		db:        db,
		engine:    eng,
		validator: NewRuleValidator(),
		logger:    logger,
		tracer:    otel.Tracer("autoflow.rules"),
	}
}

// RuleCreateRequest 创建规则请求
type RuleCreateRequest struct {
	Name        string             `json:"name" binding:"required"`
	Description string             `json:"description"`
	Enabled     *bool              `json:"enabled"`
	ProjectKeys []string           `json:"project_keys"`
	Triggers    []models.Trigger   `json:"triggers" binding:"required"`
	Conditions  []models.Condition `json:"conditions"`
	Actions     []models.Action    `json:"actions" binding:"required"`
	CreatedBy   string             `json:"created_by"`
}

// RuleUpdateRequest 更新规则请求（空指针字段保持不变）
type RuleUpdateRequest struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	Enabled     *bool               `json:"enabled"`
	ProjectKeys *[]string           `json:"project_keys"`
	Triggers    *[]models.Trigger   `json:"triggers"`
	Conditions  *[]models.Condition `json:"conditions"`
	Actions     *[]models.Action    `json:"actions"`
}

// Create validates, persists and (when enabled) arms a new rule.
func (s *RuleService) Create(ctx context.Context, req *RuleCreateRequest) (*models.AutomationRule, error) {
	ctx, span := s.tracer.Start(ctx, "rules.create")
	defer span.End()

	if req == nil {
		return nil, errors.New("request required")
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := &models.AutomationRule{
		ID:          uuid.NewString(),
		Name:        req.Name,
		Description: req.Description,
		Enabled:     enabled,
		ProjectKeys: req.ProjectKeys,
		Triggers:    req.Triggers,
		Conditions:  req.Conditions,
		Actions:     req.Actions,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	allocateWebhookIDs(rule)
	span.SetAttributes(attribute.String("rule.id", rule.ID), attribute.String("rule.name", rule.Name))

	if res := s.validator.Validate(rule); !res.Valid {
		return nil, &ErrRuleInvalid{Result: res}
	}

	if err := s.db.WithContext(ctx).Create(rule).Error; err != nil {
		return nil, err
	}

	if rule.Enabled {
		if err := s.arm(rule); err != nil {
			// persisted but not armed is worse than not persisted
			s.db.WithContext(ctx).Delete(&models.AutomationRule{}, "id = ?", rule.ID)
			return nil, err
		}
	}
	s.logger.Infof("automation: rule %s (%s) created, enabled=%v", rule.Name, rule.ID, rule.Enabled)
	return rule, nil
}

// Get 查询单条规则
func (s *RuleService) Get(ctx context.Context, id string) (*models.AutomationRule, error) {
	var rule models.AutomationRule
	if err := s.db.WithContext(ctx).First(&rule, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

// List 查询规则列表，可按项目 key 过滤
func (s *RuleService) List(ctx context.Context, projectKey string) ([]models.AutomationRule, error) {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&rules).Error; err != nil {
		return nil, err
	}
	if projectKey == "" {
		return rules, nil
	}
	filtered := rules[:0]
	for _, r := range rules {
		if len(r.ProjectKeys) == 0 {
			filtered = append(filtered, r)
			continue
		}
		for _, key := range r.ProjectKeys {
			if key == projectKey {
				filtered = append(filtered, r)
				break
			}
		}
	}
	return filtered, nil
}

// Update applies the patch, re-validates, and re-arms: the prior trigger
// registrations are always torn down first since triggers are immutable once
// armed.
func (s *RuleService) Update(ctx context.Context, id string, req *RuleUpdateRequest) (*models.AutomationRule, error) {
	ctx, span := s.tracer.Start(ctx, "rules.update")
	defer span.End()
	span.SetAttributes(attribute.String("rule.id", id))

	if req == nil {
		return nil, errors.New("request required")
	}
	rule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		rule.Name = *req.Name
	}
	if req.Description != nil {
		rule.Description = *req.Description
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if req.ProjectKeys != nil {
		rule.ProjectKeys = *req.ProjectKeys
	}
	if req.Triggers != nil {
		rule.Triggers = *req.Triggers
	}
	if req.Conditions != nil {
		rule.Conditions = *req.Conditions
	}
	if req.Actions != nil {
		rule.Actions = *req.Actions
	}
	rule.UpdatedAt = time.Now()
	allocateWebhookIDs(rule)

	if res := s.validator.Validate(rule); !res.Valid {
		return nil, &ErrRuleInvalid{Result: res}
	}

	if err := s.db.WithContext(ctx).Save(rule).Error; err != nil {
		return nil, err
	}

	s.engine.Disarm(rule.ID)
	if rule.Enabled {
		if err := s.arm(rule); err != nil {
			return nil, err
		}
	}
	return rule, nil
}

// Delete disarms and removes the rule; its execution history is kept.
func (s *RuleService) Delete(ctx context.Context, id string) error {
	s.engine.Disarm(id)
	result := s.db.WithContext(ctx).Delete(&models.AutomationRule{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

// SetEnabled flips the enabled flag, arming or disarming accordingly.
func (s *RuleService) SetEnabled(ctx context.Context, id string, enabled bool) (*models.AutomationRule, error) {
	return s.Update(ctx, id, &RuleUpdateRequest{Enabled: &enabled})
}

// Validate runs the validation gate without persisting anything.
func (s *RuleService) Validate(rule *models.AutomationRule) ValidationResult {
	return s.validator.Validate(rule)
}

// RunManual fires the rule immediately with an operator-supplied context.
func (s *RuleService) RunManual(ctx context.Context, id string, ec *models.ExecutionContext) (*models.AutomationExecution, error) {
	exec, err := s.engine.RunManual(ctx, id, ec)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		return nil, ErrRuleNotFound
	}
	return exec, nil
}

// ListExecutions 查询规则的执行历史
func (s *RuleService) ListExecutions(ctx context.Context, ruleID string, limit int) ([]models.AutomationExecution, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var execs []models.AutomationExecution
	q := s.db.WithContext(ctx).Order("triggered_at DESC").Limit(limit)
	if ruleID != "" {
		q = q.Where("rule_id = ?", ruleID)
	}
	if err := q.Find(&execs).Error; err != nil {
		return nil, err
	}
	return execs, nil
}

// GetExecution 查询单条执行记录
func (s *RuleService) GetExecution(ctx context.Context, id string) (*models.AutomationExecution, error) {
	var exec models.AutomationExecution
	if err := s.db.WithContext(ctx).First(&exec, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &exec, nil
}

// ArmAll arms every enabled rule; called once at startup. A rule that fails
// arming is logged and skipped so one bad rule cannot block the rest.
func (s *RuleService) ArmAll(ctx context.Context) error {
	var rules []models.AutomationRule
	if err := s.db.WithContext(ctx).Where("enabled = ?", true).Find(&rules).Error; err != nil {
		return err
	}
	for i := range rules {
		if err := s.arm(&rules[i]); err != nil {
			s.logger.Errorf("automation: arming rule %s (%s) failed: %v", rules[i].Name, rules[i].ID, err)
		}
	}
	s.logger.Infof("automation: armed %d enabled rule(s)", len(rules))
	return nil
}

func (s *RuleService) arm(rule *models.AutomationRule) error {
	if _, err := s.engine.Arm(rule); err != nil {
		return fmt.Errorf("arm rule %s: %w", rule.ID, err)
	}
	return nil
}

// allocateWebhookIDs assigns stable endpoint ids to webhook triggers that do
// not have one yet.
func allocateWebhookIDs(rule *models.AutomationRule) {
	for i := range rule.Triggers {
		if rule.Triggers[i].Kind == models.TriggerWebhook && rule.Triggers[i].WebhookID == "" {
			rule.Triggers[i].WebhookID = uuid.NewString()
		}
	}
}
