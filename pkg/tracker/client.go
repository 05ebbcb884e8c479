package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Client 工单系统 HTTP 客户端
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	logger     *logrus.Logger
}

// Interface defines the capabilities the automation engine needs from the
// issue-tracking system: fetch an issue snapshot and run issue-level side
// effects.
type Interface interface {
	GetIssue(ctx context.Context, issueKey string) (*Issue, error)
	CreateIssue(ctx context.Context, req *CreateIssueRequest) (*Issue, error)
	AddComment(ctx context.Context, issueKey string, req *CommentRequest) error
	TransitionIssue(ctx context.Context, issueKey string, req *TransitionRequest) error
	UpdateField(ctx context.Context, issueKey string, req *FieldUpdateRequest) error
	AssignIssue(ctx context.Context, issueKey string, req *AssignRequest) error
	SearchIssues(ctx context.Context, req *SearchRequest) (*SearchResponse, error)
	HealthCheck(ctx context.Context) error
}

// NewClient 创建工单系统客户端
func NewClient(config *Config, logger *logrus.Logger) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}

	retryDelay := config.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	return &Client{
		baseURL:  config.BaseURL,
		apiToken: config.APIToken,
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		maxRetries: config.MaxRetries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// apiError carries the HTTP status so the retry path can tell transient
// server failures from client mistakes.
type apiError struct {
	status  int
	message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("tracker error [%d]: %s", e.status, e.message)
}

// shouldRetry reports whether an attempt may be repeated. Transport errors
// and 5xx responses are transient; a 4xx means the request itself is wrong
// and retrying cannot help.
func shouldRetry(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.status >= 500
	}
	return true
}

func (c *Client) createRequest(ctx context.Context, method, endpoint string, body interface{}) (*http.Request, error) {
	reqURL := fmt.Sprintf("%s%s", c.baseURL, endpoint)

	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}
	req.Header.Set("User-Agent", "Autoflow-Tracker-Client/1.0")

	return req, nil
}

func (c *Client) doRequest(req *http.Request, result interface{}) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}

	c.logger.Debugf("Tracker API request: %s %s -> %d", req.Method, req.URL.String(), resp.StatusCode)

	if resp.StatusCode >= 400 {
		var errResp errorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return &apiError{status: resp.StatusCode, message: errResp.Error}
		}
		return &apiError{status: resp.StatusCode, message: string(body)}
	}

	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}

	return nil
}

// call issues the request with bounded retries and linear backoff. The
// request body is re-marshalled per attempt so retries never reuse a
// drained reader.
func (c *Client) call(ctx context.Context, method, endpoint string, body, result interface{}) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			}
			c.logger.Warnf("Tracker API retry attempt %d/%d: %s %s", attempt, c.maxRetries, method, endpoint)
		}

		req, err := c.createRequest(ctx, method, endpoint, body)
		if err != nil {
			return err
		}
		lastErr = c.doRequest(req, result)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// GetIssue 获取工单快照
func (c *Client) GetIssue(ctx context.Context, issueKey string) (*Issue, error) {
	var issue Issue
	endpoint := "/api/issues/" + url.PathEscape(issueKey)
	if err := c.call(ctx, http.MethodGet, endpoint, nil, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// CreateIssue 创建工单
func (c *Client) CreateIssue(ctx context.Context, req *CreateIssueRequest) (*Issue, error) {
	var issue Issue
	if err := c.call(ctx, http.MethodPost, "/api/issues", req, &issue); err != nil {
		return nil, err
	}
	return &issue, nil
}

// AddComment 添加评论
func (c *Client) AddComment(ctx context.Context, issueKey string, req *CommentRequest) error {
	endpoint := fmt.Sprintf("/api/issues/%s/comments", url.PathEscape(issueKey))
	return c.call(ctx, http.MethodPost, endpoint, req, nil)
}

// TransitionIssue 流转工单状态
func (c *Client) TransitionIssue(ctx context.Context, issueKey string, req *TransitionRequest) error {
	endpoint := fmt.Sprintf("/api/issues/%s/transitions", url.PathEscape(issueKey))
	return c.call(ctx, http.MethodPost, endpoint, req, nil)
}

// UpdateField 更新工单字段
func (c *Client) UpdateField(ctx context.Context, issueKey string, req *FieldUpdateRequest) error {
	endpoint := fmt.Sprintf("/api/issues/%s/fields", url.PathEscape(issueKey))
	return c.call(ctx, http.MethodPut, endpoint, req, nil)
}

// AssignIssue 指派工单
func (c *Client) AssignIssue(ctx context.Context, issueKey string, req *AssignRequest) error {
	endpoint := fmt.Sprintf("/api/issues/%s/assignee", url.PathEscape(issueKey))
	return c.call(ctx, http.MethodPut, endpoint, req, nil)
}

// SearchIssues 检索工单
func (c *Client) SearchIssues(ctx context.Context, req *SearchRequest) (*SearchResponse, error) {
	var resp SearchResponse
	if err := c.call(ctx, http.MethodPost, "/api/issues/search", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// HealthCheck 健康检查
func (c *Client) HealthCheck(ctx context.Context) error {
	return c.call(ctx, http.MethodGet, "/health", nil, nil)
}
