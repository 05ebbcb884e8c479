package models

import "time"

// ChannelType 通知渠道类型
type ChannelType string

const (
	ChannelEmail   ChannelType = "email"
	ChannelSlack   ChannelType = "slack"
	ChannelTeams   ChannelType = "teams"
	ChannelWebhook ChannelType = "webhook"
)

// NotificationChannel is a tagged variant: Recipients for email, URL for the
// HTTP-backed channels.
type NotificationChannel struct {
	Type       ChannelType       `json:"type"`
	Recipients []string          `json:"recipients,omitempty"`
	URL        string            `json:"url,omitempty"`
	Template   string            `json:"template,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// EscalationConditionType 升级条件类型
type EscalationConditionType string

const (
	EscalationExecutionFailed EscalationConditionType = "execution_failed"
	EscalationNoResponse      EscalationConditionType = "no_response"
	EscalationSLABreach       EscalationConditionType = "sla_breach"
	EscalationCustom          EscalationConditionType = "custom"
)

// EscalationCondition 升级前需重新成立的条件
type EscalationCondition struct {
	Type   EscalationConditionType `json:"type"`
	Params map[string]interface{}  `json:"params,omitempty"`
}

// EscalationActionType 升级动作类型
type EscalationActionType string

const (
	EscalateNotifyManager  EscalationActionType = "notify_manager"
	EscalateCreateIncident EscalationActionType = "create_incident"
	EscalatePriority       EscalationActionType = "escalate_priority"
	EscalateWebhook        EscalationActionType = "webhook"
)

// EscalationAction 升级触发的动作
type EscalationAction struct {
	Type EscalationActionType `json:"type"`
	URL  string               `json:"url,omitempty"` // webhook only
}

// EscalationRule schedules a delayed re-check of a notification payload.
type EscalationRule struct {
	ID           string                `json:"id"`
	DelayMinutes int                   `json:"delay_minutes"`
	Conditions   []EscalationCondition `json:"conditions"`
	Actions      []EscalationAction    `json:"actions"`
}

// NotificationConfig is supplied per dispatch call; it is not persisted.
type NotificationConfig struct {
	Enabled         bool                  `json:"enabled"`
	Channels        []NotificationChannel `json:"channels"`
	EscalationRules []EscalationRule      `json:"escalation_rules,omitempty"`
}

// NotificationPayload 一次通知的固定载荷
type NotificationPayload struct {
	Type        string    `json:"type"` // rule_failure, rule_success
	RuleID      string    `json:"rule_id"`
	RuleName    string    `json:"rule_name"`
	ExecutionID string    `json:"execution_id"`
	IssueKey    string    `json:"issue_key,omitempty"`
	Error       string    `json:"error,omitempty"`
	DurationMs  int64     `json:"duration_ms"`
	Timestamp   time.Time `json:"timestamp"`
}
