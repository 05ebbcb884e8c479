package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"autoflow/internal/models"
	"autoflow/pkg/tracker"
)

// RuleStore is the persistence surface the orchestrator depends on. The
// gorm-backed implementation lives in internal/services.
type RuleStore interface {
	GetRule(ctx context.Context, id string) (*models.AutomationRule, error)
	AppendExecution(ctx context.Context, exec *models.AutomationExecution) error
	IncrementCounters(ctx context.Context, ruleID string, failed bool) error
}

// Notifier consumes execution outcomes.
type Notifier interface {
	NotifyFailure(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution)
	NotifySuccess(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution)
}

// Publisher receives engine lifecycle events for live streaming. Optional.
type Publisher interface {
	PublishEngineEvent(eventType string, data interface{})
}

// Orchestrator turns a fired trigger into a finalized execution record.
type Orchestrator struct {
	store     RuleStore
	evaluator *ConditionEvaluator
	actions   *ActionExecutor
	tracker   tracker.Interface
	notifier  Notifier
	publisher Publisher
	clock     Clock
	logger    *logrus.Logger
	tracer    trace.Tracer
}

func NewOrchestrator(store RuleStore, trk tracker.Interface, notifier Notifier, clock Clock, logger *logrus.Logger) *Orchestrator {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = NewClock()
	}
	return &Orchestrator{
		store:     store,
		evaluator: NewConditionEvaluator(logger),
		actions:   NewActionExecutor(trk, logger),
		tracker:   trk,
		notifier:  notifier,
		clock:     clock,
		logger:    logger,
		tracer:    otel.Tracer("autoflow.engine"),
	}
}

// SetPublisher 注入可选的事件广播器
func (o *Orchestrator) SetPublisher(p Publisher) { o.publisher = p }

// OnTriggerFired loads the rule, evaluates its conditions and runs its
// actions in ascending order. It always finalizes an execution record unless
// the rule is missing or disabled (which is a no-op).
func (o *Orchestrator) OnTriggerFired(ctx context.Context, ruleID, triggeredBy string, ec *models.ExecutionContext) (*models.AutomationExecution, error) {
	ctx, span := o.tracer.Start(ctx, "engine.on_trigger_fired")
	defer span.End()
	span.SetAttributes(
		attribute.String("rule.id", ruleID),
		attribute.String("rule.triggered_by", triggeredBy),
	)

	rule, err := o.store.GetRule(ctx, ruleID)
	if err != nil {
		return nil, fmt.Errorf("load rule %s: %w", ruleID, err)
	}
	if rule == nil || !rule.Enabled {
		// disarm races an in-flight firing; suppressing here is the contract
		o.logger.Debugf("automation: rule %s disabled or gone, skipping firing", ruleID)
		return nil, nil
	}
	if ec == nil {
		ec = &models.ExecutionContext{}
	}

	started := o.clock.Now()
	exec := &models.AutomationExecution{
		ID:          uuid.NewString(),
		RuleID:      rule.ID,
		IssueKey:    ec.IssueKey,
		Status:      models.ExecutionPending,
		TriggeredBy: triggeredBy,
		TriggeredAt: started,
	}
	o.publish("execution_started", exec)
	exec.Status = models.ExecutionRunning

	var issue *tracker.Issue
	if ec.IssueKey != "" && len(rule.Conditions) > 0 {
		issue, err = o.tracker.GetIssue(ctx, ec.IssueKey)
		if err != nil {
			// conditions fail closed against a missing snapshot
			o.logger.Warnf("automation: fetch issue %s for rule %s: %v", ec.IssueKey, rule.ID, err)
		}
	}

	if o.evaluator.EvaluateAll(rule.Conditions, ec, issue) {
		o.runActions(ctx, rule, exec, ec)
	} else {
		// the rule simply did not apply; zero actions, not a failure
		exec.Status = models.ExecutionCompleted
		o.logger.Debugf("automation: rule %s conditions not met", rule.ID)
	}

	exec.DurationMs = o.clock.Now().Sub(started).Milliseconds()
	return exec, o.finalize(ctx, rule, exec)
}

// runActions attempts every action in ascending order. One action's failure
// never halts its siblings; the execution is Failed if any action failed.
// When the execution deadline expires mid-run the remaining actions are
// recorded as skipped and the execution finalizes as Cancelled.
func (o *Orchestrator) runActions(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution, ec *models.ExecutionContext) {
	actions := make([]models.Action, len(rule.Actions))
	copy(actions, rule.Actions)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].Order < actions[j].Order })

	failed := false
	cancelled := false
	for _, act := range actions {
		result := models.ActionResult{ActionType: act.Type, Order: act.Order, Status: "success"}
		if cancelled || ctx.Err() != nil {
			cancelled = true
			result.Status = "skipped"
			result.Message = "execution aborted"
			exec.ActionResults = append(exec.ActionResults, result)
			continue
		}
		if err := o.executeIsolated(ctx, act, ec); err != nil {
			result.Status = "failed"
			result.Message = err.Error()
			failed = true
			o.logger.Warnf("automation: rule %s action %s (order %d) failed: %v", rule.ID, act.Type, act.Order, err)
		}
		exec.ActionResults = append(exec.ActionResults, result)
	}

	switch {
	case cancelled:
		exec.Status = models.ExecutionCancelled
		exec.Error = "execution aborted: " + ctx.Err().Error()
		o.logger.Warnf("automation: rule %s execution %s aborted: %v", rule.ID, exec.ID, ctx.Err())
	case failed:
		exec.Status = models.ExecutionFailed
		exec.Error = "one or more actions failed"
	default:
		exec.Status = models.ExecutionCompleted
	}
}

// executeIsolated runs one action and converts panics into action errors so
// a misbehaving action cannot abort its siblings.
func (o *Orchestrator) executeIsolated(ctx context.Context, act models.Action, ec *models.ExecutionContext) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()
	return o.actions.Execute(ctx, act, ec)
}

// finalize persists the execution record, bumps rule counters and hands the
// outcome to the notification subsystem. An aborted execution still gets its
// record written, so persistence detaches from the expired deadline.
func (o *Orchestrator) finalize(ctx context.Context, rule *models.AutomationRule, exec *models.AutomationExecution) error {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	exec.CreatedAt = time.Now()
	if err := o.store.AppendExecution(ctx, exec); err != nil {
		return fmt.Errorf("persist execution %s: %w", exec.ID, err)
	}
	// an aborted execution counts as a failure for counters and alerting
	unhappy := exec.Status == models.ExecutionFailed || exec.Status == models.ExecutionCancelled
	if err := o.store.IncrementCounters(ctx, rule.ID, unhappy); err != nil {
		o.logger.Warnf("automation: increment counters for rule %s: %v", rule.ID, err)
	}

	o.publish("execution_finished", exec)

	if o.notifier != nil {
		if unhappy {
			o.notifier.NotifyFailure(ctx, rule, exec)
		} else {
			o.notifier.NotifySuccess(ctx, rule, exec)
		}
	}
	return nil
}

func (o *Orchestrator) publish(eventType string, data interface{}) {
	if o.publisher != nil {
		o.publisher.PublishEngineEvent(eventType, data)
	}
}
