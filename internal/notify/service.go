package notify

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"autoflow/internal/config"
	"autoflow/internal/models"
	"autoflow/pkg/tracker"
)

// Publisher receives notification lifecycle events for live streaming.
// Optional.
type Publisher interface {
	PublishEngineEvent(eventType string, data interface{})
}

// Service fans notifications out to channels and arms delayed escalations on
// execution outcomes. It implements the engine's Notifier.
type Service struct {
	cfg        config.NotificationConfig
	mailer     Mailer
	tracker    tracker.Interface
	httpClient *http.Client
	clock      Clock
	logger     *logrus.Logger
	publisher  Publisher

	escalations *EscalationManager
}

// NewService 创建通知服务。SMTP 未配置时邮件渠道以本地错误方式降级。
func NewService(cfg config.NotificationConfig, trk tracker.Interface, clock Clock, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = NewClock()
	}
	s := &Service{
		cfg:        cfg,
		tracker:    trk,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		clock:      clock,
		logger:     logger,
	}
	if mailer, err := NewSMTPMailer(cfg.Email); err != nil {
		logger.Warnf("notification: email channel unavailable: %v", err)
	} else {
		s.mailer = mailer
	}
	s.escalations = NewEscalationManager(s.runEscalationAction, clock, logger)
	return s
}

// SetPublisher 注入可选的事件广播器
func (s *Service) SetPublisher(p Publisher) { s.publisher = p }

// Escalations exposes the escalation registry for cancellation and checker
// registration.
func (s *Service) Escalations() *EscalationManager { return s.escalations }

// Dispatch sends the payload to every configured channel concurrently, then
// arms one escalation per escalation rule. Per-channel failures are logged
// and never abort delivery to sibling channels; the call returns once every
// channel has finished and the escalations are armed.
func (s *Service) Dispatch(ctx context.Context, cfg *models.NotificationConfig, payload models.NotificationPayload) {
	if cfg == nil || !cfg.Enabled {
		return
	}

	var wg sync.WaitGroup
	for _, ch := range cfg.Channels {
		wg.Add(1)
		go func(ch models.NotificationChannel) {
			defer wg.Done()
			if err := s.sendChannel(ctx, ch, payload); err != nil {
				s.logger.Warnf("notification: channel %s delivery failed for rule %s: %v", ch.Type, payload.RuleID, err)
			}
		}(ch)
	}
	wg.Wait()

	for _, rule := range cfg.EscalationRules {
		s.escalations.Arm(rule, payload)
	}
}

// NotifyFailure dispatches the failure payload to the rule creator plus the
// admin distribution, and arms the default escalation when configured.
func (s *Service) NotifyFailure(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution) {
	payload := buildPayload("rule_failure", rule, exec)

	recipients := cleanRecipients(append([]string{rule.CreatedBy}, s.cfg.AdminRecipients...))
	cfg := &models.NotificationConfig{
		Enabled: true,
		Channels: []models.NotificationChannel{
			{Type: models.ChannelEmail, Recipients: recipients, Template: "rule_failure"},
		},
	}
	if s.cfg.Escalation.Enabled {
		cfg.EscalationRules = []models.EscalationRule{{
			ID:           "exec-" + exec.ID,
			DelayMinutes: s.cfg.Escalation.DelayMinutes,
			Conditions:   []models.EscalationCondition{{Type: models.EscalationExecutionFailed}},
			Actions:      []models.EscalationAction{{Type: models.EscalateNotifyManager}},
		}}
	}

	s.publish("notification_failure", payload)
	s.Dispatch(ctx, cfg, payload)
}

// NotifySuccess emits the internal success signal only; no default channel
// receives success notifications.
func (s *Service) NotifySuccess(_ context.Context, rule *models.AutomationRule, exec *models.AutomationExecution) {
	payload := buildPayload("rule_success", rule, exec)
	s.publish("notification_success", payload)
	s.logger.Debugf("notification: rule %s execution %s completed in %dms", rule.ID, exec.ID, exec.DurationMs)
}

// Shutdown cancels every outstanding escalation timer.
func (s *Service) Shutdown() { s.escalations.Shutdown() }

func (s *Service) publish(eventType string, data interface{}) {
	if s.publisher != nil {
		s.publisher.PublishEngineEvent(eventType, data)
	}
}

func buildPayload(kind string, rule *models.AutomationRule, exec *models.AutomationExecution) models.NotificationPayload {
	return models.NotificationPayload{
		Type:        kind,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		ExecutionID: exec.ID,
		IssueKey:    exec.IssueKey,
		Error:       exec.Error,
		DurationMs:  exec.DurationMs,
		Timestamp:   exec.TriggeredAt,
	}
}

// runEscalationAction executes one escalation action. Wrapped by the manager
// so an individual failure is logged without blocking siblings.
func (s *Service) runEscalationAction(ctx context.Context, act models.EscalationAction, payload models.NotificationPayload) error {
	switch act.Type {
	case models.EscalateNotifyManager:
		recipients := cleanRecipients(s.cfg.ManagerRecipients)
		if len(recipients) == 0 {
			recipients = cleanRecipients(s.cfg.AdminRecipients)
		}
		if len(recipients) == 0 {
			return fmt.Errorf("notify_manager: no manager or admin recipients configured")
		}
		if s.mailer == nil {
			return fmt.Errorf("notify_manager: email not configured")
		}
		subject := fmt.Sprintf("[autoflow] escalation: %s", payload.RuleName)
		return s.mailer.Send(recipients, subject, RenderTemplate("rule_failure", payload))

	case models.EscalateCreateIncident:
		project := s.cfg.IncidentProject
		if project == "" {
			return fmt.Errorf("create_incident: no incident project configured")
		}
		_, err := s.tracker.CreateIssue(ctx, &tracker.CreateIssueRequest{
			ProjectKey:  project,
			Type:        "incident",
			Summary:     fmt.Sprintf("Unacknowledged automation failure: %s", payload.RuleName),
			Description: RenderTemplate("rule_failure", payload),
			Priority:    "high",
		})
		return err

	case models.EscalatePriority:
		if payload.IssueKey == "" {
			return fmt.Errorf("escalate_priority: no issue associated with execution")
		}
		return s.tracker.UpdateField(ctx, payload.IssueKey, &tracker.FieldUpdateRequest{
			FieldID: "priority",
			Value:   "urgent",
		})

	case models.EscalateWebhook:
		if act.URL == "" {
			return fmt.Errorf("webhook escalation requires a url")
		}
		return s.postJSON(ctx, act.URL, nil, payload)

	default:
		return fmt.Errorf("unknown escalation action %q", act.Type)
	}
}
