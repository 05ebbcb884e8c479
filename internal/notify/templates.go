package notify

import (
	"fmt"
	"strings"
	"time"

	"autoflow/internal/models"
)

// Message bodies are rendered by substituting fixed placeholders into a named
// template. An unknown template name falls back to "default".
var messageTemplates = map[string]string{
	"default":      "Automation rule {{rule}} ({{ruleId}}) reported at {{timestamp}}. Duration: {{duration}}.",
	"rule_failure": "Automation rule {{rule}} ({{ruleId}}) FAILED at {{timestamp}}: {{error}}. Duration: {{duration}}.",
	"rule_success": "Automation rule {{rule}} ({{ruleId}}) completed at {{timestamp}}. Duration: {{duration}}.",
}

// RenderTemplate 渲染通知正文
func RenderTemplate(name string, payload models.NotificationPayload) string {
	tpl, ok := messageTemplates[name]
	if !ok {
		tpl = messageTemplates["default"]
	}
	r := strings.NewReplacer(
		"{{rule}}", payload.RuleName,
		"{{ruleId}}", payload.RuleID,
		"{{timestamp}}", payload.Timestamp.UTC().Format(time.RFC3339),
		"{{error}}", payload.Error,
		"{{duration}}", fmt.Sprintf("%dms", payload.DurationMs),
	)
	return r.Replace(tpl)
}

// templateFor picks the channel's configured template, defaulting to the
// payload type so failure and success bodies differ out of the box.
func templateFor(ch models.NotificationChannel, payload models.NotificationPayload) string {
	if ch.Template != "" {
		return ch.Template
	}
	return payload.Type
}
