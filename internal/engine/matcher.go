package engine

import (
	"autoflow/internal/models"
)

// Domain event payloads are flat JSON objects produced by the tracker's event
// stream. The matcher reads these well-known keys:
//
//	issue_key, project_key, issue_type, user_id
//	field_id, from_value, to_value      (field-change events)
//	from_status, to_status              (transition events)
//
// All configured filters on a trigger are AND-combined; an absent filter
// always matches. A trigger with no filters at all is a global listener for
// its event type, which is intentional.
func matchEvent(filter *models.EventFilter, payload map[string]interface{}) bool {
	if filter == nil {
		return true
	}
	if len(filter.ProjectKeys) > 0 && !containsString(filter.ProjectKeys, stringField(payload, "project_key")) {
		return false
	}
	if len(filter.IssueTypes) > 0 && !containsString(filter.IssueTypes, stringField(payload, "issue_type")) {
		return false
	}
	if filter.FieldID != "" {
		if stringField(payload, "field_id") != filter.FieldID {
			return false
		}
		if filter.FromValue != "" && stringField(payload, "from_value") != filter.FromValue {
			return false
		}
		if filter.ToValue != "" && stringField(payload, "to_value") != filter.ToValue {
			return false
		}
	}
	if len(filter.FromStatus) > 0 && !containsString(filter.FromStatus, stringField(payload, "from_status")) {
		return false
	}
	if len(filter.ToStatus) > 0 && !containsString(filter.ToStatus, stringField(payload, "to_status")) {
		return false
	}
	return true
}

// contextFromEvent builds an execution context from the payload's issue and
// user identifiers.
func contextFromEvent(eventType string, payload map[string]interface{}) *models.ExecutionContext {
	data := make(map[string]interface{}, len(payload)+1)
	for k, v := range payload {
		data[k] = v
	}
	data["type"] = "event:" + eventType
	return &models.ExecutionContext{
		IssueKey:    stringField(payload, "issue_key"),
		ProjectKey:  stringField(payload, "project_key"),
		UserID:      stringField(payload, "user_id"),
		TriggerData: data,
	}
}

func stringField(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func containsString(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
