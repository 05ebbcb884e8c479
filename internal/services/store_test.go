package services

import (
	"context"
	"testing"
	"time"

	"autoflow/internal/models"
)

func TestStore_GetRule_MissingIsNil(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	rule, err := store.GetRule(context.Background(), "no-such-rule")
	if err != nil {
		t.Fatalf("GetRule failed: %v", err)
	}
	if rule != nil {
		t.Fatalf("expected nil rule for missing id, got %+v", rule)
	}
}

func TestStore_ListRules_EnabledOnly(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	seed := []models.AutomationRule{
		{ID: "r1", Name: "on", Enabled: true, CreatedAt: time.Now()},
		{ID: "r2", Name: "off", Enabled: false, CreatedAt: time.Now()},
	}
	for i := range seed {
		if err := db.Create(&seed[i]).Error; err != nil {
			t.Fatalf("seed rule: %v", err)
		}
	}

	all, err := store.ListRules(context.Background(), false)
	if err != nil {
		t.Fatalf("ListRules failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(all))
	}

	enabled, err := store.ListRules(context.Background(), true)
	if err != nil {
		t.Fatalf("ListRules enabled only failed: %v", err)
	}
	if len(enabled) != 1 || enabled[0].ID != "r1" {
		t.Fatalf("expected only r1, got %+v", enabled)
	}
}

func TestStore_IncrementCounters(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	rule := models.AutomationRule{ID: "r1", Name: "counter", CreatedAt: time.Now()}
	if err := db.Create(&rule).Error; err != nil {
		t.Fatalf("seed rule: %v", err)
	}

	if err := store.IncrementCounters(context.Background(), "r1", false); err != nil {
		t.Fatalf("IncrementCounters success: %v", err)
	}
	if err := store.IncrementCounters(context.Background(), "r1", true); err != nil {
		t.Fatalf("IncrementCounters failure: %v", err)
	}

	var got models.AutomationRule
	if err := db.First(&got, "id = ?", "r1").Error; err != nil {
		t.Fatalf("reload rule: %v", err)
	}
	if got.ExecutionCount != 2 {
		t.Fatalf("expected execution_count 2, got %d", got.ExecutionCount)
	}
	if got.FailureCount != 1 {
		t.Fatalf("expected failure_count 1, got %d", got.FailureCount)
	}
}

func TestStore_AppendExecution(t *testing.T) {
	db := newTestDB(t)
	store := NewStore(db)

	exec := &models.AutomationExecution{
		ID:          "e1",
		RuleID:      "r1",
		Status:      models.ExecutionCompleted,
		TriggeredBy: "manual",
		TriggeredAt: time.Now(),
	}
	if err := store.AppendExecution(context.Background(), exec); err != nil {
		t.Fatalf("AppendExecution failed: %v", err)
	}

	var got models.AutomationExecution
	if err := db.First(&got, "id = ?", "e1").Error; err != nil {
		t.Fatalf("reload execution: %v", err)
	}
	if got.RuleID != "r1" || got.Status != models.ExecutionCompleted {
		t.Fatalf("unexpected execution: %+v", got)
	}
}
