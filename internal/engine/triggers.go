package engine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"autoflow/internal/models"
)

// FireFunc receives every trigger firing. Implementations must not block;
// the engine runs each firing on its own goroutine.
type FireFunc func(ruleID string, trigger models.Trigger, ec *models.ExecutionContext)

type webhookBinding struct {
	ruleID  string
	trigger models.Trigger
}

type eventMatcher struct {
	ruleID  string
	trigger models.Trigger
}

// TriggerService owns every live trigger registration: cron schedules,
// webhook bindings and domain-event matchers. All registries are instance
// fields so multiple engines can coexist; every mutation is atomic with
// respect to the firing paths.
type TriggerService struct {
	mu        sync.RWMutex
	schedules map[string][]*scheduleEntry          // ruleID -> armed schedules
	webhooks  map[string][]webhookBinding          // webhookID -> bindings
	byRule    map[string][]string                  // ruleID -> webhookIDs
	matchers  map[string]map[string][]eventMatcher // eventType -> ruleID -> matchers

	fire   FireFunc
	clock  Clock
	logger *logrus.Logger
}

// NewTriggerService 创建触发器子系统
func NewTriggerService(fire FireFunc, clock Clock, logger *logrus.Logger) *TriggerService {
	if logger == nil {
		logger = logrus.New()
	}
	if clock == nil {
		clock = NewClock()
	}
	return &TriggerService{
		schedules: make(map[string][]*scheduleEntry),
		webhooks:  make(map[string][]webhookBinding),
		byRule:    make(map[string][]string),
		matchers:  make(map[string]map[string][]eventMatcher),
		fire:      fire,
		clock:     clock,
		logger:    logger,
	}
}

// Arm registers one trigger for a rule. For webhook triggers the allocated
// webhook id is returned so the HTTP layer can expose it. A malformed
// scheduled trigger fails arming immediately; it never silently goes inert.
func (s *TriggerService) Arm(ruleID string, trig models.Trigger) (string, error) {
	switch trig.Kind {
	case models.TriggerScheduled:
		sched, _, err := ParseSchedule(trig.CronExpression, trig.Timezone)
		if err != nil {
			return "", fmt.Errorf("arm scheduled trigger: %w", err)
		}
		entry := &scheduleEntry{
			ruleID:  ruleID,
			trigger: trig,
			sched:   sched,
			stop:    make(chan struct{}),
		}
		s.mu.Lock()
		s.schedules[ruleID] = append(s.schedules[ruleID], entry)
		s.mu.Unlock()
		go s.run(entry)
		s.logger.Infof("automation: armed schedule %q for rule %s", trig.CronExpression, ruleID)
		return "", nil

	case models.TriggerWebhook:
		webhookID := trig.WebhookID
		if webhookID == "" {
			webhookID = uuid.NewString()
		}
		s.mu.Lock()
		s.webhooks[webhookID] = append(s.webhooks[webhookID], webhookBinding{ruleID: ruleID, trigger: trig})
		s.byRule[ruleID] = append(s.byRule[ruleID], webhookID)
		s.mu.Unlock()
		s.logger.Infof("automation: armed webhook %s for rule %s", webhookID, ruleID)
		return webhookID, nil

	case models.TriggerDomainEvent:
		if trig.EventType == "" {
			return "", fmt.Errorf("arm event trigger: event_type is required")
		}
		s.mu.Lock()
		byRule := s.matchers[trig.EventType]
		if byRule == nil {
			byRule = make(map[string][]eventMatcher)
			s.matchers[trig.EventType] = byRule
		}
		byRule[ruleID] = append(byRule[ruleID], eventMatcher{ruleID: ruleID, trigger: trig})
		s.mu.Unlock()
		s.logger.Infof("automation: armed event matcher %s for rule %s", trig.EventType, ruleID)
		return "", nil

	case models.TriggerManual:
		// manual triggers are fired directly by callers; nothing to register
		return "", nil

	default:
		return "", fmt.Errorf("arm trigger: unknown kind %q", trig.Kind)
	}
}

// Deliver fires every rule bound to webhookID with the inbound payload.
// Several rules may share one id; each binding checks the presented secret
// independently, and one rejection does not block its siblings. The call
// fails only when no binding accepted the delivery.
func (s *TriggerService) Deliver(webhookID, secret string, payload map[string]interface{}) error {
	s.mu.RLock()
	bindings := make([]webhookBinding, len(s.webhooks[webhookID]))
	copy(bindings, s.webhooks[webhookID])
	s.mu.RUnlock()
	if len(bindings) == 0 {
		return ErrWebhookNotFound
	}

	ec := &models.ExecutionContext{WebhookData: payload}
	if key, ok := payload["issue_key"].(string); ok {
		ec.IssueKey = key
	}

	delivered := false
	for _, binding := range bindings {
		if binding.trigger.Secret != "" && binding.trigger.Secret != secret {
			continue
		}
		s.fire(binding.ruleID, binding.trigger, ec)
		delivered = true
	}
	if !delivered {
		return ErrWebhookSecret
	}
	return nil
}

// Dispatch evaluates every matcher registered under eventType against the
// payload and fires the ones whose filters hold.
func (s *TriggerService) Dispatch(eventType string, payload map[string]interface{}) {
	s.mu.RLock()
	var matched []eventMatcher
	for _, ms := range s.matchers[eventType] {
		for _, m := range ms {
			if matchEvent(m.trigger.Filter, payload) {
				matched = append(matched, m)
			}
		}
	}
	s.mu.RUnlock()

	for _, m := range matched {
		s.fire(m.ruleID, m.trigger, contextFromEvent(eventType, payload))
	}
}

// Disarm tears down every registration belonging to ruleID. Idempotent and
// safe to call concurrently with an in-flight firing of the same rule: the
// in-flight execution completes, only future firings are suppressed.
func (s *TriggerService) Disarm(ruleID string) {
	s.mu.Lock()
	entries := s.schedules[ruleID]
	delete(s.schedules, ruleID)
	for _, id := range s.byRule[ruleID] {
		// the id may be shared with other rules; drop only this rule's bindings
		kept := s.webhooks[id][:0]
		for _, b := range s.webhooks[id] {
			if b.ruleID != ruleID {
				kept = append(kept, b)
			}
		}
		if len(kept) == 0 {
			delete(s.webhooks, id)
		} else {
			s.webhooks[id] = kept
		}
	}
	delete(s.byRule, ruleID)
	for eventType, byRule := range s.matchers {
		delete(byRule, ruleID)
		if len(byRule) == 0 {
			delete(s.matchers, eventType)
		}
	}
	s.mu.Unlock()

	for _, e := range entries {
		close(e.stop)
	}
	if len(entries) > 0 {
		s.logger.Infof("automation: disarmed %d schedule(s) for rule %s", len(entries), ruleID)
	}
}

// WebhookIDs returns the live webhook ids bound to a rule.
func (s *TriggerService) WebhookIDs(ruleID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, len(s.byRule[ruleID]))
	copy(ids, s.byRule[ruleID])
	return ids
}

// Shutdown stops every armed schedule.
func (s *TriggerService) Shutdown() {
	s.mu.Lock()
	var all []*scheduleEntry
	for _, entries := range s.schedules {
		all = append(all, entries...)
	}
	s.schedules = make(map[string][]*scheduleEntry)
	s.mu.Unlock()

	for _, e := range all {
		close(e.stop)
	}
}
