package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"autoflow/internal/models"
)

func newTestRuleService(t *testing.T) (*RuleService, *Store) {
	t.Helper()
	db := newTestDB(t)
	eng := newTestEngine(t, db)
	return NewRuleService(db, eng, nil), NewStore(db)
}

func eventRuleRequest(name string) *RuleCreateRequest {
	return &RuleCreateRequest{
		Name: name,
		Triggers: []models.Trigger{
			{Kind: models.TriggerDomainEvent, EventType: "issue_transitioned"},
		},
		Actions: []models.Action{
			{Type: "add_comment", Order: 1, Params: map[string]interface{}{"body": "hi"}},
		},
		CreatedBy: "ops@example.com",
	}
}

func TestRuleService_CreateAssignsIDAndWebhookEndpoints(t *testing.T) {
	svc, _ := newTestRuleService(t)

	req := eventRuleRequest("webhook rule")
	req.Triggers = []models.Trigger{{Kind: models.TriggerWebhook, Secret: "s3cret"}}

	rule, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if rule.ID == "" {
		t.Fatalf("expected generated rule id")
	}
	if !rule.Enabled {
		t.Fatalf("expected enabled by default")
	}
	if rule.Triggers[0].WebhookID == "" {
		t.Fatalf("expected webhook id to be allocated at create")
	}

	// the allocated endpoint must already be routable
	ids := svc.engine.WebhookIDs(rule.ID)
	if len(ids) != 1 || ids[0] != rule.Triggers[0].WebhookID {
		t.Fatalf("expected armed webhook %s, got %v", rule.Triggers[0].WebhookID, ids)
	}
}

func TestRuleService_CreateInvalidRuleNotPersisted(t *testing.T) {
	svc, _ := newTestRuleService(t)

	req := eventRuleRequest("dup orders")
	req.Actions = []models.Action{
		{Type: "add_comment", Order: 1},
		{Type: "notify", Order: 1},
	}

	_, err := svc.Create(context.Background(), req)
	var invalid *ErrRuleInvalid
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrRuleInvalid, got %v", err)
	}
	if len(invalid.Result.Errors) == 0 {
		t.Fatalf("expected validation errors")
	}

	rules, err := svc.List(context.Background(), "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("invalid rule must not be persisted, got %d", len(rules))
	}
}

func TestRuleService_CreateRejectsBadSchedule(t *testing.T) {
	svc, _ := newTestRuleService(t)

	req := eventRuleRequest("bad tz")
	req.Triggers = []models.Trigger{
		{Kind: models.TriggerScheduled, CronExpression: "0 9 * * *", Timezone: "Not/AZone"},
	}

	_, err := svc.Create(context.Background(), req)
	var invalid *ErrRuleInvalid
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrRuleInvalid, got %v", err)
	}
	rules, _ := svc.List(context.Background(), "")
	if len(rules) != 0 {
		t.Fatalf("rejected rule must not be persisted, got %d", len(rules))
	}
}

func TestRuleService_GetNotFound(t *testing.T) {
	svc, _ := newTestRuleService(t)

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestRuleService_ListFiltersByProject(t *testing.T) {
	svc, _ := newTestRuleService(t)

	demo := eventRuleRequest("demo only")
	demo.ProjectKeys = []string{"DEMO"}
	if _, err := svc.Create(context.Background(), demo); err != nil {
		t.Fatalf("create demo rule: %v", err)
	}

	ops := eventRuleRequest("ops only")
	ops.ProjectKeys = []string{"OPS"}
	if _, err := svc.Create(context.Background(), ops); err != nil {
		t.Fatalf("create ops rule: %v", err)
	}

	global := eventRuleRequest("everywhere")
	if _, err := svc.Create(context.Background(), global); err != nil {
		t.Fatalf("create global rule: %v", err)
	}

	got, err := svc.List(context.Background(), "DEMO")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	// project-scoped match plus the rule with no project restriction
	if len(got) != 2 {
		t.Fatalf("expected 2 rules for DEMO, got %d", len(got))
	}
	for _, r := range got {
		if r.Name == "ops only" {
			t.Fatalf("ops rule must not match DEMO filter")
		}
	}
}

func TestRuleService_UpdatePatchesAndRearms(t *testing.T) {
	svc, _ := newTestRuleService(t)

	rule, err := svc.Create(context.Background(), eventRuleRequest("original"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	name := "renamed"
	newTriggers := []models.Trigger{{Kind: models.TriggerWebhook, Secret: "s"}}
	updated, err := svc.Update(context.Background(), rule.ID, &RuleUpdateRequest{
		Name:     &name,
		Triggers: &newTriggers,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "renamed" {
		t.Fatalf("expected patched name, got %q", updated.Name)
	}
	if updated.Description != rule.Description {
		t.Fatalf("unpatched fields must be preserved")
	}
	if updated.Triggers[0].WebhookID == "" {
		t.Fatalf("expected webhook id allocated on update")
	}
	if ids := svc.engine.WebhookIDs(rule.ID); len(ids) != 1 {
		t.Fatalf("expected re-armed webhook trigger, got %v", ids)
	}
}

func TestRuleService_UpdateInvalidKeepsStoredRule(t *testing.T) {
	svc, _ := newTestRuleService(t)

	rule, err := svc.Create(context.Background(), eventRuleRequest("keep me"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	empty := ""
	_, err = svc.Update(context.Background(), rule.ID, &RuleUpdateRequest{Name: &empty})
	var invalid *ErrRuleInvalid
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrRuleInvalid, got %v", err)
	}

	got, err := svc.Get(context.Background(), rule.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "keep me" {
		t.Fatalf("stored rule must be untouched, got %q", got.Name)
	}
}

func TestRuleService_DeleteDisarms(t *testing.T) {
	svc, _ := newTestRuleService(t)

	req := eventRuleRequest("short lived")
	req.Triggers = []models.Trigger{{Kind: models.TriggerWebhook, Secret: "s"}}
	rule, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.Delete(context.Background(), rule.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected rule gone, got %v", err)
	}
	if ids := svc.engine.WebhookIDs(rule.ID); len(ids) != 0 {
		t.Fatalf("expected webhook endpoints disarmed, got %v", ids)
	}
	if err := svc.Delete(context.Background(), rule.ID); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound on second delete, got %v", err)
	}
}

func TestRuleService_SetEnabledTogglesArming(t *testing.T) {
	svc, _ := newTestRuleService(t)

	req := eventRuleRequest("toggle")
	req.Triggers = []models.Trigger{{Kind: models.TriggerWebhook, Secret: "s"}}
	rule, err := svc.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	disabled, err := svc.SetEnabled(context.Background(), rule.ID, false)
	if err != nil {
		t.Fatalf("disable: %v", err)
	}
	if disabled.Enabled {
		t.Fatalf("expected disabled")
	}
	if ids := svc.engine.WebhookIDs(rule.ID); len(ids) != 0 {
		t.Fatalf("disabled rule must be disarmed, got %v", ids)
	}

	enabled, err := svc.SetEnabled(context.Background(), rule.ID, true)
	if err != nil {
		t.Fatalf("enable: %v", err)
	}
	if !enabled.Enabled {
		t.Fatalf("expected enabled")
	}
	if ids := svc.engine.WebhookIDs(rule.ID); len(ids) != 1 {
		t.Fatalf("re-enabled rule must re-arm, got %v", ids)
	}
}

func TestRuleService_RunManualUnknownRule(t *testing.T) {
	svc, _ := newTestRuleService(t)

	_, err := svc.RunManual(context.Background(), "missing", &models.ExecutionContext{IssueKey: "DEMO-1"})
	if !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
}

func TestRuleService_RunManualRecordsExecution(t *testing.T) {
	svc, _ := newTestRuleService(t)

	rule, err := svc.Create(context.Background(), eventRuleRequest("manual run"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	exec, err := svc.RunManual(context.Background(), rule.ID, &models.ExecutionContext{IssueKey: "DEMO-1"})
	if err != nil {
		t.Fatalf("run manual: %v", err)
	}
	if exec.TriggeredBy != "manual" {
		t.Fatalf("expected manual trigger source, got %q", exec.TriggeredBy)
	}

	got, err := svc.GetExecution(context.Background(), exec.ID)
	if err != nil {
		t.Fatalf("get execution: %v", err)
	}
	if got.RuleID != rule.ID {
		t.Fatalf("execution bound to wrong rule: %q", got.RuleID)
	}
}

func TestRuleService_ListExecutionsNewestFirst(t *testing.T) {
	svc, store := newTestRuleService(t)

	base := time.Now().Add(-time.Hour)
	for i, id := range []string{"old", "mid", "new"} {
		exec := &models.AutomationExecution{
			ID:          id,
			RuleID:      "r1",
			Status:      models.ExecutionCompleted,
			TriggeredBy: "manual",
			TriggeredAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := store.AppendExecution(context.Background(), exec); err != nil {
			t.Fatalf("seed execution: %v", err)
		}
	}

	execs, err := svc.ListExecutions(context.Background(), "r1", 2)
	if err != nil {
		t.Fatalf("list executions: %v", err)
	}
	if len(execs) != 2 {
		t.Fatalf("expected limit of 2, got %d", len(execs))
	}
	if execs[0].ID != "new" || execs[1].ID != "mid" {
		t.Fatalf("expected newest first, got %s, %s", execs[0].ID, execs[1].ID)
	}
}

func TestRuleService_ArmAllSkipsBrokenRules(t *testing.T) {
	db := newTestDB(t)
	eng := newTestEngine(t, db)
	svc := NewRuleService(db, eng, nil)

	good := models.AutomationRule{
		ID:      "good",
		Name:    "good",
		Enabled: true,
		Triggers: []models.Trigger{
			{Kind: models.TriggerWebhook, Secret: "s", WebhookID: "hook-good"},
		},
		Actions:   []models.Action{{Type: "notify", Order: 1}},
		CreatedAt: time.Now(),
	}
	// persisted before validation existed; the cron is garbage
	bad := models.AutomationRule{
		ID:      "bad",
		Name:    "bad",
		Enabled: true,
		Triggers: []models.Trigger{
			{Kind: models.TriggerScheduled, CronExpression: "not cron"},
		},
		Actions:   []models.Action{{Type: "notify", Order: 1}},
		CreatedAt: time.Now(),
	}
	for _, r := range []models.AutomationRule{good, bad} {
		rule := r
		if err := db.Create(&rule).Error; err != nil {
			t.Fatalf("seed rule: %v", err)
		}
	}

	if err := svc.ArmAll(context.Background()); err != nil {
		t.Fatalf("ArmAll failed: %v", err)
	}
	if ids := eng.WebhookIDs("good"); len(ids) != 1 || ids[0] != "hook-good" {
		t.Fatalf("good rule must be armed, got %v", ids)
	}
}
