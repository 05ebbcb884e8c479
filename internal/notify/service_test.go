package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"autoflow/internal/config"
	"autoflow/internal/models"
	"autoflow/pkg/tracker"
)

type fakeMailer struct {
	mu    sync.Mutex
	sends []sentMail
	err   error
}

type sentMail struct {
	recipients []string
	subject    string
	body       string
}

func (m *fakeMailer) Send(recipients []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sends = append(m.sends, sentMail{recipients: recipients, subject: subject, body: body})
	return nil
}

func (m *fakeMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sends)
}

func (m *fakeMailer) last() sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends[len(m.sends)-1]
}

type stubTracker struct {
	mu      sync.Mutex
	created []*tracker.CreateIssueRequest
	updates []*tracker.FieldUpdateRequest
}

func (s *stubTracker) GetIssue(context.Context, string) (*tracker.Issue, error) {
	return nil, fmt.Errorf("not implemented")
}

func (s *stubTracker) CreateIssue(_ context.Context, req *tracker.CreateIssueRequest) (*tracker.Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, req)
	return &tracker.Issue{Key: req.ProjectKey + "-1"}, nil
}

func (s *stubTracker) AddComment(context.Context, string, *tracker.CommentRequest) error { return nil }
func (s *stubTracker) TransitionIssue(context.Context, string, *tracker.TransitionRequest) error {
	return nil
}

func (s *stubTracker) UpdateField(_ context.Context, _ string, req *tracker.FieldUpdateRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, req)
	return nil
}

func (s *stubTracker) AssignIssue(context.Context, string, *tracker.AssignRequest) error { return nil }
func (s *stubTracker) SearchIssues(context.Context, *tracker.SearchRequest) (*tracker.SearchResponse, error) {
	return &tracker.SearchResponse{}, nil
}
func (s *stubTracker) HealthCheck(context.Context) error { return nil }

func newTestService(cfg config.NotificationConfig, trk tracker.Interface, clock Clock) (*Service, *fakeMailer) {
	s := NewService(cfg, trk, clock, nil)
	m := &fakeMailer{}
	s.mailer = m
	return s, m
}

func TestDispatch_DisabledConfigSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	s, mailer := newTestService(config.NotificationConfig{}, nil, nil)
	cfg := &models.NotificationConfig{
		Enabled: false,
		Channels: []models.NotificationChannel{
			{Type: models.ChannelWebhook, URL: srv.URL},
			{Type: models.ChannelEmail, Recipients: []string{"a@example.com"}},
		},
	}
	s.Dispatch(context.Background(), cfg, models.NotificationPayload{Type: "rule_failure"})
	s.Dispatch(context.Background(), nil, models.NotificationPayload{Type: "rule_failure"})

	if atomic.LoadInt32(&hits) != 0 || mailer.count() != 0 {
		t.Fatalf("disabled dispatch delivered: hits=%d mails=%d", hits, mailer.count())
	}
}

func TestDispatch_ChannelFailureDoesNotBlockSiblings(t *testing.T) {
	received := make(chan models.NotificationPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p models.NotificationPayload
		_ = json.NewDecoder(r.Body).Decode(&p)
		received <- p
	}))
	defer srv.Close()

	s, _ := newTestService(config.NotificationConfig{}, nil, nil)
	cfg := &models.NotificationConfig{
		Enabled: true,
		Channels: []models.NotificationChannel{
			{Type: models.ChannelEmail}, // no recipients, fails locally
			{Type: models.ChannelWebhook, URL: srv.URL},
		},
	}
	payload := models.NotificationPayload{Type: "rule_failure", RuleID: "r-1", RuleName: "stale", Timestamp: time.Now()}
	s.Dispatch(context.Background(), cfg, payload)

	select {
	case got := <-received:
		if got.RuleID != "r-1" {
			t.Fatalf("webhook received %+v", got)
		}
	default:
		t.Fatalf("webhook channel did not deliver")
	}
}

func TestDispatch_SlackChannelSendsTextBody(t *testing.T) {
	bodies := make(chan map[string]string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var m map[string]string
		_ = json.NewDecoder(r.Body).Decode(&m)
		bodies <- m
	}))
	defer srv.Close()

	s, _ := newTestService(config.NotificationConfig{}, nil, nil)
	cfg := &models.NotificationConfig{
		Enabled:  true,
		Channels: []models.NotificationChannel{{Type: models.ChannelSlack, URL: srv.URL}},
	}
	s.Dispatch(context.Background(), cfg, models.NotificationPayload{
		Type: "rule_failure", RuleID: "r-1", RuleName: "stale", Error: "boom", Timestamp: time.Now(),
	})

	select {
	case m := <-bodies:
		if !strings.Contains(m["text"], "stale") || !strings.Contains(m["text"], "boom") {
			t.Fatalf("slack text = %q", m["text"])
		}
	default:
		t.Fatalf("slack channel did not deliver")
	}
}

func TestDispatch_CustomHeadersForwarded(t *testing.T) {
	headers := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers <- r.Header.Get("X-Team-Token")
	}))
	defer srv.Close()

	s, _ := newTestService(config.NotificationConfig{}, nil, nil)
	cfg := &models.NotificationConfig{
		Enabled: true,
		Channels: []models.NotificationChannel{
			{Type: models.ChannelWebhook, URL: srv.URL, Headers: map[string]string{"X-Team-Token": "tok-1"}},
		},
	}
	s.Dispatch(context.Background(), cfg, models.NotificationPayload{Type: "rule_failure", Timestamp: time.Now()})

	select {
	case h := <-headers:
		if h != "tok-1" {
			t.Fatalf("header = %q", h)
		}
	default:
		t.Fatalf("webhook channel did not deliver")
	}
}

func TestNotifyFailure_EmailsCreatorAndAdmins(t *testing.T) {
	s, mailer := newTestService(config.NotificationConfig{
		AdminRecipients: []string{"ops@example.com"},
	}, nil, nil)

	rule := &models.AutomationRule{ID: "r-1", Name: "stale", CreatedBy: "dev@example.com"}
	exec := &models.AutomationExecution{ID: "e-1", RuleID: "r-1", Error: "boom", TriggeredAt: time.Now()}
	s.NotifyFailure(context.Background(), rule, exec)

	if mailer.count() != 1 {
		t.Fatalf("mails sent = %d, want 1", mailer.count())
	}
	mail := mailer.last()
	want := map[string]bool{"dev@example.com": true, "ops@example.com": true}
	if len(mail.recipients) != 2 || !want[mail.recipients[0]] || !want[mail.recipients[1]] {
		t.Fatalf("recipients = %v", mail.recipients)
	}
	if !strings.Contains(mail.body, "boom") {
		t.Fatalf("body %q missing error", mail.body)
	}
}

func TestNotifyFailure_ArmsDefaultEscalation(t *testing.T) {
	clock := newFakeClock()
	s, mailer := newTestService(config.NotificationConfig{
		AdminRecipients:   []string{"ops@example.com"},
		ManagerRecipients: []string{"mgr@example.com"},
		Escalation:        config.EscalationConfig{Enabled: true, DelayMinutes: 15},
	}, nil, clock)
	defer s.Shutdown()

	rule := &models.AutomationRule{ID: "r-1", Name: "stale", CreatedBy: "dev@example.com"}
	exec := &models.AutomationExecution{ID: "e-1", RuleID: "r-1", Error: "boom", TriggeredAt: time.Now()}
	s.NotifyFailure(context.Background(), rule, exec)

	if mailer.count() != 1 {
		t.Fatalf("immediate mails = %d, want 1", mailer.count())
	}

	// the armed escalation fires on the delayed tick and mails the managers
	clock.fire()
	deadline := time.Now().Add(2 * time.Second)
	for mailer.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("escalation mail never sent")
		}
		time.Sleep(10 * time.Millisecond)
	}
	mail := mailer.last()
	if len(mail.recipients) != 1 || mail.recipients[0] != "mgr@example.com" {
		t.Fatalf("escalation recipients = %v", mail.recipients)
	}
	if !strings.Contains(mail.subject, "escalation") {
		t.Fatalf("escalation subject = %q", mail.subject)
	}
}

func TestNotifySuccess_NoChannelDelivery(t *testing.T) {
	s, mailer := newTestService(config.NotificationConfig{
		AdminRecipients: []string{"ops@example.com"},
	}, nil, nil)

	rule := &models.AutomationRule{ID: "r-1", Name: "stale", CreatedBy: "dev@example.com"}
	exec := &models.AutomationExecution{ID: "e-1", RuleID: "r-1", TriggeredAt: time.Now()}
	s.NotifySuccess(context.Background(), rule, exec)

	if mailer.count() != 0 {
		t.Fatalf("success must not email anyone, sent %d", mailer.count())
	}
}

func TestRunEscalationAction_CreateIncident(t *testing.T) {
	trk := &stubTracker{}
	s, _ := newTestService(config.NotificationConfig{IncidentProject: "OPS"}, trk, nil)

	err := s.runEscalationAction(context.Background(), models.EscalationAction{Type: models.EscalateCreateIncident},
		models.NotificationPayload{RuleName: "stale", Error: "boom", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(trk.created) != 1 {
		t.Fatalf("incidents created = %d", len(trk.created))
	}
	req := trk.created[0]
	if req.ProjectKey != "OPS" || req.Type != "incident" || req.Priority != "high" {
		t.Fatalf("incident request = %+v", req)
	}
}

func TestRunEscalationAction_EscalatePriority(t *testing.T) {
	trk := &stubTracker{}
	s, _ := newTestService(config.NotificationConfig{}, trk, nil)

	err := s.runEscalationAction(context.Background(), models.EscalationAction{Type: models.EscalatePriority},
		models.NotificationPayload{IssueKey: "DEMO-4"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if len(trk.updates) != 1 || trk.updates[0].FieldID != "priority" {
		t.Fatalf("updates = %+v", trk.updates)
	}

	// no issue in context is a hard error
	if err := s.runEscalationAction(context.Background(), models.EscalationAction{Type: models.EscalatePriority},
		models.NotificationPayload{}); err == nil {
		t.Fatalf("expected error without issue key")
	}
}

func TestRunEscalationAction_NotifyManagerFallsBackToAdmins(t *testing.T) {
	s, mailer := newTestService(config.NotificationConfig{
		AdminRecipients: []string{"ops@example.com"},
	}, nil, nil)

	err := s.runEscalationAction(context.Background(), models.EscalationAction{Type: models.EscalateNotifyManager},
		models.NotificationPayload{RuleName: "stale", Timestamp: time.Now()})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if mailer.count() != 1 || mailer.last().recipients[0] != "ops@example.com" {
		t.Fatalf("sends = %+v", mailer.sends)
	}
}

func TestNewSMTPMailerValidation(t *testing.T) {
	if _, err := NewSMTPMailer(config.EmailConfig{From: "a@b.c"}); err == nil {
		t.Fatalf("expected error without smtp host")
	}
	if _, err := NewSMTPMailer(config.EmailConfig{SMTPHost: "mail.local"}); err == nil {
		t.Fatalf("expected error without from address")
	}
	m, err := NewSMTPMailer(config.EmailConfig{SMTPHost: "mail.local", From: "a@b.c"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if m.port != 587 {
		t.Fatalf("default port = %d, want 587", m.port)
	}
}
