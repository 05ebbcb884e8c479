package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"autoflow/internal/models"
	"autoflow/pkg/tracker"
)

// ActionExecutor runs a single rule action against the issue tracker. Each
// action is an isolated side effect; failures are recorded per action, never
// propagated past the action.
type ActionExecutor struct {
	tracker    tracker.Interface
	httpClient *http.Client
	logger     *logrus.Logger
}

func NewActionExecutor(trk tracker.Interface, logger *logrus.Logger) *ActionExecutor {
	if logger == nil {
		logger = logrus.New()
	}
	return &ActionExecutor{
		tracker:    trk,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Execute 执行单个动作
func (x *ActionExecutor) Execute(ctx context.Context, act models.Action, ec *models.ExecutionContext) error {
	switch act.Type {
	case "add_comment":
		if ec.IssueKey == "" {
			return fmt.Errorf("add_comment: no issue in context")
		}
		body := paramString(act.Params, "body")
		if body == "" {
			return fmt.Errorf("add_comment: body param required")
		}
		return x.tracker.AddComment(ctx, ec.IssueKey, &tracker.CommentRequest{
			Body:   body,
			Author: "automation",
		})

	case "transition_issue":
		if ec.IssueKey == "" {
			return fmt.Errorf("transition_issue: no issue in context")
		}
		toStatus := paramString(act.Params, "to_status")
		if toStatus == "" {
			return fmt.Errorf("transition_issue: to_status param required")
		}
		return x.tracker.TransitionIssue(ctx, ec.IssueKey, &tracker.TransitionRequest{ToStatus: toStatus})

	case "update_field":
		if ec.IssueKey == "" {
			return fmt.Errorf("update_field: no issue in context")
		}
		fieldID := paramString(act.Params, "field_id")
		if fieldID == "" {
			return fmt.Errorf("update_field: field_id param required")
		}
		return x.tracker.UpdateField(ctx, ec.IssueKey, &tracker.FieldUpdateRequest{
			FieldID: fieldID,
			Value:   act.Params["value"],
		})

	case "assign_issue":
		if ec.IssueKey == "" {
			return fmt.Errorf("assign_issue: no issue in context")
		}
		assignee := paramString(act.Params, "assignee")
		if assignee == "" {
			return fmt.Errorf("assign_issue: assignee param required")
		}
		return x.tracker.AssignIssue(ctx, ec.IssueKey, &tracker.AssignRequest{Assignee: assignee})

	case "notify":
		msg := paramString(act.Params, "message")
		if msg == "" {
			msg = "automation rule fired"
		}
		x.logger.Infof("automation notify: %s", msg)
		return nil

	case "webhook":
		rawURL := paramString(act.Params, "url")
		if rawURL == "" {
			return fmt.Errorf("webhook: url param required")
		}
		return x.postJSON(ctx, rawURL, ec)

	default:
		return fmt.Errorf("unsupported action type: %s", act.Type)
	}
}

func (x *ActionExecutor) postJSON(ctx context.Context, url string, body interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := x.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

func paramString(params map[string]interface{}, key string) string {
	v, _ := params[key].(string)
	return v
}
