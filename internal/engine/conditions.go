package engine

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"autoflow/internal/models"
	"autoflow/pkg/tracker"
)

// ConditionEvaluator decides whether a rule applies to a firing. It holds no
// state; all inputs come in per call.
type ConditionEvaluator struct {
	logger *logrus.Logger
}

func NewConditionEvaluator(logger *logrus.Logger) *ConditionEvaluator {
	if logger == nil {
		logger = logrus.New()
	}
	return &ConditionEvaluator{logger: logger}
}

// EvaluateAll applies AND semantics: every condition must hold. Evaluation
// errors (unknown field, unknown operator, missing issue snapshot) resolve to
// false, never to an error: fail closed.
func (e *ConditionEvaluator) EvaluateAll(conds []models.Condition, ec *models.ExecutionContext, issue *tracker.Issue) bool {
	for _, cond := range conds {
		if !e.evaluate(cond, ec, issue) {
			return false
		}
	}
	return true
}

func (e *ConditionEvaluator) evaluate(cond models.Condition, ec *models.ExecutionContext, issue *tracker.Issue) bool {
	switch cond.Type {
	case "field_value":
		actual, ok := resolveField(issue, cond.FieldID)
		if !ok {
			e.logger.Debugf("automation: condition field %q not resolvable", cond.FieldID)
			return false
		}
		return compare(cond.Operator, actual, cond.Value)
	default:
		e.logger.Debugf("automation: unknown condition type %q", cond.Type)
		return false
	}
}

// resolveField looks a field up on the issue snapshot. Built-in fields are
// checked first, then the custom field map. Object values resolve through
// their "name" display property; primitives are compared as strings.
func resolveField(issue *tracker.Issue, fieldID string) (string, bool) {
	if issue == nil {
		return "", false
	}
	switch fieldID {
	case "status":
		return issue.Status, true
	case "priority":
		return issue.Priority, true
	case "type", "issue_type":
		return issue.Type, true
	case "summary":
		return issue.Summary, true
	case "assignee":
		return issue.Assignee, true
	case "reporter":
		return issue.Reporter, true
	case "project", "project_key":
		return issue.ProjectKey, true
	}
	v, ok := issue.Fields[fieldID]
	if !ok {
		return "", false
	}
	if obj, ok := v.(map[string]interface{}); ok {
		if name, ok := obj["name"]; ok {
			return fmt.Sprintf("%v", name), true
		}
		return "", false
	}
	return fmt.Sprintf("%v", v), true
}

func compare(op, actual, expected string) bool {
	switch op {
	case "equals":
		return actual == expected
	case "not_equals":
		return actual != expected
	case "contains":
		return strings.Contains(actual, expected)
	default:
		// unknown operator evaluates false
		return false
	}
}
