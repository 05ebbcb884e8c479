package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"autoflow/internal/models"
)

// sendChannel delivers one payload to one channel. Channel contract
// violations (email without recipients, HTTP channels without a URL) are
// local errors for that channel only.
func (s *Service) sendChannel(ctx context.Context, ch models.NotificationChannel, payload models.NotificationPayload) error {
	body := RenderTemplate(templateFor(ch, payload), payload)

	switch ch.Type {
	case models.ChannelEmail:
		recipients := cleanRecipients(ch.Recipients)
		if len(recipients) == 0 {
			return fmt.Errorf("email channel requires at least one recipient")
		}
		if s.mailer == nil {
			return fmt.Errorf("email channel not configured (no smtp settings)")
		}
		subject := fmt.Sprintf("[autoflow] %s: %s", payload.Type, payload.RuleName)
		return s.mailer.Send(recipients, subject, body)

	case models.ChannelSlack, models.ChannelTeams:
		if ch.URL == "" {
			return fmt.Errorf("%s channel requires a target url", ch.Type)
		}
		// both accept a simple text payload on their inbound webhooks
		return s.postJSON(ctx, ch.URL, ch.Headers, map[string]string{"text": body})

	case models.ChannelWebhook:
		if ch.URL == "" {
			return fmt.Errorf("webhook channel requires a target url")
		}
		return s.postJSON(ctx, ch.URL, ch.Headers, payload)

	default:
		return fmt.Errorf("unknown channel type %q", ch.Type)
	}
}

func (s *Service) postJSON(ctx context.Context, url string, headers map[string]string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

func cleanRecipients(recipients []string) []string {
	var cleaned []string
	for _, r := range recipients {
		if r = strings.TrimSpace(r); r != "" {
			cleaned = append(cleaned, r)
		}
	}
	return cleaned
}
