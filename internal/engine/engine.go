package engine

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"autoflow/internal/models"
	"autoflow/pkg/tracker"
)

// Engine ties the trigger subsystem to the orchestrator. One Engine instance
// owns all mutable trigger state; instances are independent, so several can
// coexist (e.g. one per tenant).
type Engine struct {
	triggers *TriggerService
	orch     *Orchestrator
	logger   *logrus.Logger
	timeout  time.Duration
}

// New 创建规则引擎
func New(store RuleStore, trk tracker.Interface, notifier Notifier, clock Clock, logger *logrus.Logger) *Engine {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = NewClock()
	}
	e := &Engine{
		logger:  logger,
		timeout: 30 * time.Second,
	}
	e.orch = NewOrchestrator(store, trk, notifier, clock, logger)
	e.triggers = NewTriggerService(e.handleFired, clock, logger)
	return e
}

// SetPublisher 注入可选的事件广播器
func (e *Engine) SetPublisher(p Publisher) { e.orch.SetPublisher(p) }

// SetExecutionTimeout overrides the per-execution deadline.
func (e *Engine) SetExecutionTimeout(d time.Duration) {
	if d > 0 {
		e.timeout = d
	}
}

// handleFired runs each firing on its own goroutine so independent rule
// executions may overlap arbitrarily.
func (e *Engine) handleFired(ruleID string, trigger models.Trigger, ec *models.ExecutionContext) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()
		if _, err := e.orch.OnTriggerFired(ctx, ruleID, triggeredBy(trigger), ec); err != nil {
			e.logger.Errorf("automation: execution for rule %s failed to finalize: %v", ruleID, err)
		}
	}()
}

func triggeredBy(trigger models.Trigger) string {
	if trigger.Kind == models.TriggerDomainEvent {
		return "event:" + trigger.EventType
	}
	return string(trigger.Kind)
}

// Arm registers every trigger of the rule. Returns the webhook ids allocated
// for webhook triggers. Any trigger failing to arm aborts and tears down what
// was already registered, so a rule is never half armed.
func (e *Engine) Arm(rule *models.AutomationRule) ([]string, error) {
	var webhookIDs []string
	for _, trig := range rule.Triggers {
		id, err := e.triggers.Arm(rule.ID, trig)
		if err != nil {
			e.triggers.Disarm(rule.ID)
			return nil, err
		}
		if id != "" {
			webhookIDs = append(webhookIDs, id)
		}
	}
	return webhookIDs, nil
}

// Disarm tears down every live registration for the rule. Idempotent.
func (e *Engine) Disarm(ruleID string) { e.triggers.Disarm(ruleID) }

// Deliver routes an authenticated webhook payload to its bound rule.
func (e *Engine) Deliver(webhookID, secret string, payload map[string]interface{}) error {
	return e.triggers.Deliver(webhookID, secret, payload)
}

// Dispatch routes a domain event to every matching armed trigger.
func (e *Engine) Dispatch(eventType string, payload map[string]interface{}) {
	e.triggers.Dispatch(eventType, payload)
}

// RunManual fires a rule directly with an operator-supplied context and
// returns the finalized execution.
func (e *Engine) RunManual(ctx context.Context, ruleID string, ec *models.ExecutionContext) (*models.AutomationExecution, error) {
	return e.orch.OnTriggerFired(ctx, ruleID, string(models.TriggerManual), ec)
}

// WebhookIDs returns the live webhook ids bound to a rule.
func (e *Engine) WebhookIDs(ruleID string) []string { return e.triggers.WebhookIDs(ruleID) }

// Shutdown stops all armed schedules.
func (e *Engine) Shutdown() { e.triggers.Shutdown() }
