package services

import (
	"fmt"

	"autoflow/internal/engine"
	"autoflow/internal/models"
)

// ValidationResult 规则校验结果
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

// RuleValidator gates arming: an invalid rule is never armed.
type RuleValidator struct{}

func NewRuleValidator() *RuleValidator { return &RuleValidator{} }

var knownActionTypes = map[string]bool{
	"add_comment":      true,
	"transition_issue": true,
	"update_field":     true,
	"assign_issue":     true,
	"notify":           true,
	"webhook":          true,
}

var knownOperators = map[string]bool{
	"equals":     true,
	"not_equals": true,
	"contains":   true,
}

// Validate performs the structural checks a rule must pass before arming.
func (v *RuleValidator) Validate(rule *models.AutomationRule) ValidationResult {
	res := ValidationResult{}

	if rule == nil {
		res.Errors = append(res.Errors, "rule is required")
		return res
	}
	if rule.Name == "" {
		res.Errors = append(res.Errors, "name is required")
	}
	if rule.Enabled {
		if len(rule.Triggers) == 0 {
			res.Errors = append(res.Errors, "an enabled rule needs at least one trigger")
		}
		if len(rule.Actions) == 0 {
			res.Errors = append(res.Errors, "an enabled rule needs at least one action")
		}
	}

	seenOrders := make(map[int]bool, len(rule.Actions))
	for i, act := range rule.Actions {
		if !knownActionTypes[act.Type] {
			res.Errors = append(res.Errors, fmt.Sprintf("action %d: unknown type %q", i, act.Type))
		}
		if seenOrders[act.Order] {
			res.Errors = append(res.Errors, fmt.Sprintf("action %d: duplicate order %d", i, act.Order))
		}
		seenOrders[act.Order] = true
	}

	for i, trig := range rule.Triggers {
		switch trig.Kind {
		case models.TriggerScheduled:
			if _, _, err := engine.ParseSchedule(trig.CronExpression, trig.Timezone); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("trigger %d: %v", i, err))
			}
		case models.TriggerWebhook:
			if trig.Secret == "" {
				res.Warnings = append(res.Warnings, fmt.Sprintf("trigger %d: webhook has no secret", i))
			}
		case models.TriggerDomainEvent:
			if trig.EventType == "" {
				res.Errors = append(res.Errors, fmt.Sprintf("trigger %d: event_type is required", i))
			} else if trig.Filter == nil {
				// a filterless event trigger is a global listener, legal but loud
				res.Warnings = append(res.Warnings, fmt.Sprintf("trigger %d: matches every %s event", i, trig.EventType))
			}
		case models.TriggerManual:
			// nothing to check
		default:
			res.Errors = append(res.Errors, fmt.Sprintf("trigger %d: unknown kind %q", i, trig.Kind))
		}
	}

	for i, cond := range rule.Conditions {
		if cond.Type != "field_value" {
			res.Errors = append(res.Errors, fmt.Sprintf("condition %d: unknown type %q", i, cond.Type))
			continue
		}
		if cond.FieldID == "" {
			res.Errors = append(res.Errors, fmt.Sprintf("condition %d: field_id is required", i))
		}
		if !knownOperators[cond.Operator] {
			res.Errors = append(res.Errors, fmt.Sprintf("condition %d: unknown operator %q", i, cond.Operator))
		}
	}

	res.Valid = len(res.Errors) == 0
	return res
}
