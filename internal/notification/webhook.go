package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"regime-seeker/internal/regime"
)

// EventRegimeChange is the event name carried by webhook payloads.
const EventRegimeChange = "regime_change"

// webhookPayload is the alert plus the fields a dashboard needs to render
// it without knowing the regime palette.
type webhookPayload struct {
	Event string `json:"event"`
	Alert
	Color     string `json:"color"`
	ShortName string `json:"short_name"`
}

// WebhookNotifier POSTs regime alerts as JSON to an HTTP endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Name() string { return "webhook" }

// Send delivers alert. Any non-2xx answer is an error carrying the status
// and the start of the response body.
func (w *WebhookNotifier) Send(ctx context.Context, alert Alert) error {
	state := regime.ParseState(alert.State)
	body, err := json.Marshal(webhookPayload{
		Event:     EventRegimeChange,
		Alert:     alert,
		Color:     regime.Color(state),
		ShortName: regime.ShortName(state),
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Alert-ID", alert.ID)
	req.Header.Set("X-Alert-Event", EventRegimeChange)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send %s: %w", alert.Instrument.Key(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("webhook: %s: status %d: %s",
			alert.Instrument.Key(), resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	slog.Debug("[webhook] alert delivered",
		slog.String("instrument", alert.Instrument.Key()),
		slog.String("state", alert.State),
		slog.String("id", alert.ID))
	return nil
}
