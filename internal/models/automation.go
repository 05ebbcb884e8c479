package models

import "time"

// TriggerKind 触发器类型
type TriggerKind string

const (
	TriggerScheduled   TriggerKind = "scheduled"
	TriggerWebhook     TriggerKind = "webhook"
	TriggerDomainEvent TriggerKind = "domain_event"
	TriggerManual      TriggerKind = "manual"
)

// EventFilter narrows which domain events a trigger reacts to. Every set
// field is AND-combined; an unset field matches anything.
type EventFilter struct {
	ProjectKeys []string `json:"project_keys,omitempty"`
	IssueTypes  []string `json:"issue_types,omitempty"`
	FieldID     string   `json:"field_id,omitempty"`
	FromValue   string   `json:"from_value,omitempty"`
	ToValue     string   `json:"to_value,omitempty"`
	FromStatus  []string `json:"from_status,omitempty"`
	ToStatus    []string `json:"to_status,omitempty"`
}

// Trigger is a tagged variant: exactly one of the kind-specific payloads is
// meaningful for a given Kind.
type Trigger struct {
	Kind TriggerKind `json:"kind"`

	// scheduled
	CronExpression string `json:"cron_expression,omitempty"`
	Timezone       string `json:"timezone,omitempty"` // default UTC

	// webhook; WebhookID is allocated at rule creation so the inbound
	// endpoint survives re-arming and restarts
	Secret    string `json:"secret,omitempty"`
	WebhookID string `json:"webhook_id,omitempty"`

	// domain_event
	EventType string       `json:"event_type,omitempty"` // issue_created, issue_updated, ...
	Filter    *EventFilter `json:"filter,omitempty"`
}

// Condition 规则条件（全部满足才执行动作）
type Condition struct {
	Type     string `json:"type"` // field_value
	FieldID  string `json:"field_id"`
	Operator string `json:"operator"` // equals, not_equals, contains
	Value    string `json:"value"`
}

// Action is one ordered side effect. Order must be unique within a rule.
type Action struct {
	Type   string                 `json:"type"` // add_comment, transition_issue, update_field, assign_issue, notify, webhook
	Order  int                    `json:"order"`
	Params map[string]interface{} `json:"params,omitempty"`
}

// AutomationRule 自动化规则定义
type AutomationRule struct {
	ID          string      `gorm:"primaryKey;size:64" json:"id"`
	Name        string      `gorm:"not null" json:"name"`
	Description string      `gorm:"type:text" json:"description"`
	Enabled     bool        `gorm:"default:true;index" json:"enabled"`
	ProjectKeys []string    `gorm:"serializer:json;type:text" json:"project_keys,omitempty"`
	Triggers    []Trigger   `gorm:"serializer:json;type:text" json:"triggers"`
	Conditions  []Condition `gorm:"serializer:json;type:text" json:"conditions"`
	Actions     []Action    `gorm:"serializer:json;type:text" json:"actions"`

	CreatedBy string    `gorm:"size:128" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ExecutionCount int64 `gorm:"default:0" json:"execution_count"`
	FailureCount   int64 `gorm:"default:0" json:"failure_count"`
}

// ExecutionStatus 执行状态
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
)

// ActionResult records the outcome of one attempted action.
type ActionResult struct {
	ActionType string `json:"action_type"`
	Order      int    `json:"order"`
	Status     string `json:"status"` // success, failed, skipped
	Message    string `json:"message,omitempty"`
}

// AutomationExecution 执行记录用于审计
type AutomationExecution struct {
	ID            string          `gorm:"primaryKey;size:64" json:"id"`
	RuleID        string          `gorm:"index;size:64" json:"rule_id"`
	IssueKey      string          `gorm:"index;size:64" json:"issue_key,omitempty"`
	Status        ExecutionStatus `gorm:"index" json:"status"`
	TriggeredBy   string          `gorm:"size:64" json:"triggered_by"` // scheduled, webhook, event:<type>, manual
	TriggeredAt   time.Time       `json:"triggered_at"`
	DurationMs    int64           `json:"duration_ms"`
	ActionResults []ActionResult  `gorm:"serializer:json;type:text" json:"action_results"`
	Error         string          `gorm:"type:text" json:"error,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ExecutionContext is the transient payload carried from a firing trigger to
// the orchestrator. It is not persisted beyond the execution record.
type ExecutionContext struct {
	IssueKey    string                 `json:"issue_key,omitempty"`
	ProjectKey  string                 `json:"project_key,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	TriggerData map[string]interface{} `json:"trigger_data,omitempty"`
	WebhookData map[string]interface{} `json:"webhook_data,omitempty"`
}

// DomainEvent 领域事件审计记录（匹配前落库，便于追溯触发来源）
type DomainEvent struct {
	ID         string                 `gorm:"primaryKey;size:64" json:"id"`
	EventType  string                 `gorm:"index" json:"event_type"`
	IssueKey   string                 `gorm:"index;size:64" json:"issue_key"`
	ProjectKey string                 `gorm:"size:64" json:"project_key"`
	Payload    map[string]interface{} `gorm:"serializer:json;type:text" json:"payload"`
	CreatedAt  time.Time              `json:"created_at"`
}
