package handlers

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"autoflow/internal/engine"
	"autoflow/internal/models"
	"autoflow/pkg/tracker"
)

func newHandlerTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:automation_" + t.Name() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.AutomationRule{}, &models.AutomationExecution{}, &models.DomainEvent{}); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	return db
}

// stubTracker satisfies tracker.Interface without touching the network.
type stubTracker struct{}

func (stubTracker) GetIssue(ctx context.Context, issueKey string) (*tracker.Issue, error) {
	return &tracker.Issue{Key: issueKey, Status: "Open"}, nil
}

func (stubTracker) CreateIssue(ctx context.Context, req *tracker.CreateIssueRequest) (*tracker.Issue, error) {
	return &tracker.Issue{Key: "STUB-1"}, nil
}

func (stubTracker) AddComment(ctx context.Context, issueKey string, req *tracker.CommentRequest) error {
	return nil
}

func (stubTracker) TransitionIssue(ctx context.Context, issueKey string, req *tracker.TransitionRequest) error {
	return nil
}

func (stubTracker) UpdateField(ctx context.Context, issueKey string, req *tracker.FieldUpdateRequest) error {
	return nil
}

func (stubTracker) AssignIssue(ctx context.Context, issueKey string, req *tracker.AssignRequest) error {
	return nil
}

func (stubTracker) SearchIssues(ctx context.Context, req *tracker.SearchRequest) (*tracker.SearchResponse, error) {
	return &tracker.SearchResponse{}, nil
}

func (stubTracker) HealthCheck(ctx context.Context) error { return nil }

type noopNotifier struct{}

func (noopNotifier) NotifyFailure(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution) {
}

func (noopNotifier) NotifySuccess(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution) {
}

func newHandlerTestEngine(t *testing.T, store engine.RuleStore) *engine.Engine {
	t.Helper()
	eng := engine.New(store, stubTracker{}, noopNotifier{}, engine.NewClock(), nil)
	t.Cleanup(eng.Shutdown)
	return eng
}
