package notify

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autoflow/internal/models"
)

// EscalationStatus is the terminal outcome of one armed escalation.
type EscalationStatus string

const (
	EscalationSkipped    EscalationStatus = "skipped"
	EscalationActionsRun EscalationStatus = "actions_run"
	EscalationCancelled  EscalationStatus = "cancelled"
)

type timerState int

const (
	stateArmed timerState = iota
	stateFired
	stateCancelled
)

// CheckerFunc decides whether an escalation condition still holds when the
// timer fires.
type CheckerFunc func(cond models.EscalationCondition, payload models.NotificationPayload) bool

// ActionRunner executes one escalation action.
type ActionRunner func(ctx context.Context, act models.EscalationAction, payload models.NotificationPayload) error

// escalationTimer is one armed delayed check. The fire-vs-cancel race is
// resolved by a single guarded state transition, never by timer-handle
// nullness.
type escalationTimer struct {
	id      string
	rule    models.EscalationRule
	payload models.NotificationPayload

	mu    sync.Mutex
	state timerState

	stop   chan struct{}
	done   chan struct{}
	status EscalationStatus
}

// transition moves the timer out of Armed. Returns false if it already left.
func (t *escalationTimer) transition(to timerState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != stateArmed {
		return false
	}
	t.state = to
	return true
}

// EscalationHandle lets callers observe one escalation's resolution.
type EscalationHandle struct {
	ID   string
	Done <-chan struct{}

	timer *escalationTimer
}

// Status is only meaningful after Done is closed.
func (h *EscalationHandle) Status() EscalationStatus {
	h.timer.mu.Lock()
	defer h.timer.mu.Unlock()
	return h.timer.status
}

// EscalationManager owns every armed escalation timer for one notification
// service instance. All mutations of the registry are atomic with respect to
// concurrent firings.
type EscalationManager struct {
	mu     sync.Mutex
	timers map[string]*escalationTimer

	checkers map[models.EscalationConditionType]CheckerFunc
	runner   ActionRunner
	clock    Clock
	logger   *logrus.Logger
}

func NewEscalationManager(runner ActionRunner, clock Clock, logger *logrus.Logger) *EscalationManager {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = NewClock()
	}
	m := &EscalationManager{
		timers:   make(map[string]*escalationTimer),
		checkers: make(map[models.EscalationConditionType]CheckerFunc),
		runner:   runner,
		clock:    clock,
		logger:   logger,
	}
	m.checkers[models.EscalationExecutionFailed] = func(_ models.EscalationCondition, p models.NotificationPayload) bool {
		return p.Type == "rule_failure"
	}
	m.checkers[models.EscalationCustom] = func(models.EscalationCondition, models.NotificationPayload) bool {
		return true
	}
	return m
}

// RegisterChecker installs or replaces the checker for a condition type.
// no_response and sla_breach have no built-in semantics; they evaluate false
// until a checker is registered.
func (m *EscalationManager) RegisterChecker(t models.EscalationConditionType, fn CheckerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[t] = fn
}

// Arm schedules a one-shot delayed check of the escalation rule against the
// payload. The returned handle resolves when the escalation reaches a
// terminal state.
func (m *EscalationManager) Arm(rule models.EscalationRule, payload models.NotificationPayload) *EscalationHandle {
	id := rule.ID
	if id == "" {
		id = uuid.NewString()
	}
	t := &escalationTimer{
		id:      id,
		rule:    rule,
		payload: payload,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if prev, ok := m.timers[id]; ok {
		// re-arming replaces the prior registration
		m.mu.Unlock()
		m.cancelTimer(prev)
		m.mu.Lock()
	}
	m.timers[id] = t
	m.mu.Unlock()

	go m.runTimer(t)
	m.logger.Debugf("escalation %s armed with %dm delay", id, rule.DelayMinutes)

	return &EscalationHandle{ID: id, Done: t.done, timer: t}
}

// Cancel removes a still-pending escalation. Cancelling twice, or cancelling
// one that already fired, is a no-op.
func (m *EscalationManager) Cancel(id string) {
	m.mu.Lock()
	t, ok := m.timers[id]
	m.mu.Unlock()
	if !ok {
		return
	}
	m.cancelTimer(t)
}

func (m *EscalationManager) cancelTimer(t *escalationTimer) {
	if !t.transition(stateCancelled) {
		return
	}
	close(t.stop)
	m.finish(t, EscalationCancelled)
	m.logger.Debugf("escalation %s cancelled", t.id)
}

// Shutdown cancels every outstanding timer.
func (m *EscalationManager) Shutdown() {
	m.mu.Lock()
	all := make([]*escalationTimer, 0, len(m.timers))
	for _, t := range m.timers {
		all = append(all, t)
	}
	m.mu.Unlock()

	for _, t := range all {
		m.cancelTimer(t)
	}
}

func (m *EscalationManager) runTimer(t *escalationTimer) {
	delay := time.Duration(t.rule.DelayMinutes) * time.Minute
	select {
	case <-t.stop:
		return
	case <-m.clock.After(delay):
	}

	// firing races cancellation; the state transition decides the winner
	if !t.transition(stateFired) {
		return
	}

	if !m.conditionsHold(t.rule.Conditions, t.payload) {
		m.finish(t, EscalationSkipped)
		m.logger.Debugf("escalation %s skipped, conditions no longer hold", t.id)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, act := range t.rule.Actions {
		if err := m.runner(ctx, act, t.payload); err != nil {
			// one action's failure never blocks the remaining actions
			m.logger.Warnf("escalation %s action %s failed: %v", t.id, act.Type, err)
		}
	}
	m.finish(t, EscalationActionsRun)
}

func (m *EscalationManager) conditionsHold(conds []models.EscalationCondition, payload models.NotificationPayload) bool {
	m.mu.Lock()
	checkers := make(map[models.EscalationConditionType]CheckerFunc, len(m.checkers))
	for k, v := range m.checkers {
		checkers[k] = v
	}
	m.mu.Unlock()

	for _, cond := range conds {
		fn, ok := checkers[cond.Type]
		if !ok {
			m.logger.Debugf("escalation condition %q has no checker, evaluating false", cond.Type)
			return false
		}
		if !fn(cond, payload) {
			return false
		}
	}
	return true
}

func (m *EscalationManager) finish(t *escalationTimer, status EscalationStatus) {
	t.mu.Lock()
	t.status = status
	t.mu.Unlock()

	m.mu.Lock()
	if cur, ok := m.timers[t.id]; ok && cur == t {
		delete(m.timers, t.id)
	}
	m.mu.Unlock()

	close(t.done)
}
