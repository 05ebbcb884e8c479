package services

import (
	"context"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"autoflow/internal/engine"
	"autoflow/internal/models"
	"autoflow/pkg/tracker"
)

func newTestDB(t *testing.T) *gorm.DB {
	// shared cache keeps the engine's pooled connections on one database
	dsn := "file:services_" + t.Name() + "?mode=memory&cache=shared"
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
type stubTracker struct {
	comments []string
}

func (s *stubTracker) GetIssue(ctx context.Context, issueKey string) (*tracker.Issue, error) {
	return &tracker.Issue{Key: issueKey, Status: "Open"}, nil
}

func (s *stubTracker) CreateIssue(ctx context.Context, req *tracker.CreateIssueRequest) (*tracker.Issue, error) {
	return &tracker.Issue{Key: "STUB-1"}, nil
}

func (s *stubTracker) AddComment(ctx context.Context, issueKey string, req *tracker.CommentRequest) error {
	s.comments = append(s.comments, issueKey)
	return nil
}

func (s *stubTracker) TransitionIssue(ctx context.Context, issueKey string, req *tracker.TransitionRequest) error {
	return nil
}

func (s *stubTracker) UpdateField(ctx context.Context, issueKey string, req *tracker.FieldUpdateRequest) error {
	return nil
}

func (s *stubTracker) AssignIssue(ctx context.Context, issueKey string, req *tracker.AssignRequest) error {
	return nil
}

func (s *stubTracker) SearchIssues(ctx context.Context, req *tracker.SearchRequest) (*tracker.SearchResponse, error) {
	return &tracker.SearchResponse{}, nil
}

func (s *stubTracker) HealthCheck(ctx context.Context) error { return nil }

type noopNotifier struct{}

func (noopNotifier) NotifyFailure(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution) {
}

func (noopNotifier) NotifySuccess(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution) {
}

func newTestEngine(t *testing.T, db *gorm.DB) *engine.Engine {
	t.Helper()
	eng := engine.New(NewStore(db), &stubTracker{}, noopNotifier{}, engine.NewClock(), nil)
	t.Cleanup(eng.Shutdown)
	return eng
}
