package engine

import "errors"

var (
	// ErrRuleNotFound 规则不存在
	ErrRuleNotFound = errors.New("rule not found")
	// ErrWebhookNotFound is returned by Deliver for an unknown webhook id.
	ErrWebhookNotFound = errors.New("webhook not found")
	// ErrWebhookSecret is returned when a webhook trigger's secret does not
	// match the presented one.
	ErrWebhookSecret = errors.New("webhook secret mismatch")
)
