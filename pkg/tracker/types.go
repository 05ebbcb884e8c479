package tracker

import "time"

// Config 客户端配置
type Config struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// DefaultConfig returns a config suitable for local development.
func DefaultConfig() *Config {
	return &Config{
		BaseURL:    "http://localhost:9000",
		Timeout:    15 * time.Second,
		MaxRetries: 2,
		RetryDelay: 500 * time.Millisecond,
	}
}

// Issue 工单快照
type Issue struct {
	Key        string                 `json:"key"`
	ProjectKey string                 `json:"project_key"`
	Type       string                 `json:"type"`
	Status     string                 `json:"status"`
	Summary    string                 `json:"summary"`
	Priority   string                 `json:"priority"`
	Assignee   string                 `json:"assignee,omitempty"`
	Reporter   string                 `json:"reporter,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// CommentRequest 添加评论请求
type CommentRequest struct {
	Body   string `json:"body"`
	Author string `json:"author,omitempty"`
}

// TransitionRequest 状态流转请求
type TransitionRequest struct {
	ToStatus string `json:"to_status"`
}

// FieldUpdateRequest 字段更新请求
type FieldUpdateRequest struct {
	FieldID string      `json:"field_id"`
	Value   interface{} `json:"value"`
}

// AssignRequest 指派请求
type AssignRequest struct {
	Assignee string `json:"assignee"`
}

// CreateIssueRequest 创建工单请求
type CreateIssueRequest struct {
	ProjectKey  string `json:"project_key"`
	Type        string `json:"type"`
	Summary     string `json:"summary"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
}

// SearchRequest 工单检索请求
type SearchRequest struct {
	ProjectKey string `json:"project_key,omitempty"`
	Status     string `json:"status,omitempty"`
	Limit      int    `json:"limit,omitempty"`
}

// SearchResponse 工单检索响应
type SearchResponse struct {
	Issues []Issue `json:"issues"`
	Total  int     `json:"total"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
