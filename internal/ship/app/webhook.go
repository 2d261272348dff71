package app

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ship/internal/async"
	"ship/internal/config"
	"ship/internal/logging"
	"ship/internal/ship/ports"
	"ship/internal/utils"
)

// Webhook event names sent on terminal session states.
const (
	WebhookShipCompleted = "ship.completed"
	WebhookShipFailed    = "ship.failed"
	WebhookCodegenReady  = "codegen.ready"
	WebhookCodegenFailed = "codegen.failed"
)

const signatureHeader = "X-Ship-Signature"

// WebhookNotifier delivers terminal-state notifications to registered
// endpoints. Delivery is best-effort: failures are logged and never touch
// session state.
type WebhookNotifier struct {
	endpoints  []config.WebhookConfig
	httpClient *http.Client
	logger     logging.Logger
}

// NewWebhookNotifier returns a notifier for the configured endpoints.
func NewWebhookNotifier(endpoints []config.WebhookConfig) *WebhookNotifier {
	return &WebhookNotifier{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     utils.NewComponentLogger("WebhookNotifier"),
	}
}

type webhookPayload struct {
	Event     string              `json:"event"`
	SessionID string              `json:"session_id"`
	Status    ports.SessionStatus `json:"status"`
	Error     *ports.SessionError `json:"error,omitempty"`
	Timestamp time.Time           `json:"timestamp"`
}

// NotifyTerminal fans the terminal events for a session out to every
// endpoint subscribed to them. It returns immediately; deliveries run in
// background goroutines.
func (n *WebhookNotifier) NotifyTerminal(session *ports.Session) {
	if len(n.endpoints) == 0 {
		return
	}
	for _, event := range terminalEvents(session) {
		payload := webhookPayload{
			Event:     event,
			SessionID: session.ID,
			Status:    session.Status,
			Error:     session.Error,
			Timestamp: time.Now(),
		}
		body, err := json.Marshal(payload)
		if err != nil {
			n.logger.Error("Failed to marshal webhook payload: %v", err)
			continue
		}
		for _, endpoint := range n.endpoints {
			if !endpoint.Subscribed(event) {
				continue
			}
			endpoint := endpoint
			async.Go(n.logger, "webhook-"+event, func() {
				n.deliver(endpoint, event, body)
			})
		}
	}
}

// terminalEvents maps the session's final state onto webhook event names.
// A completed session that produced code gets both the ship and codegen
// events.
func terminalEvents(session *ports.Session) []string {
	switch session.Status {
	case ports.SessionCompleted:
		events := []string{WebhookShipCompleted}
		if session.CodeResult != nil {
			events = append(events, WebhookCodegenReady)
		}
		return events
	case ports.SessionFailed:
		events := []string{WebhookShipFailed}
		if session.Phase == ports.PhaseCode {
			events = append(events, WebhookCodegenFailed)
		}
		return events
	default:
		return nil
	}
}

func (n *WebhookNotifier) deliver(endpoint config.WebhookConfig, event string, body []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(body))
	if err != nil {
		n.logger.Error("Webhook %s: bad request for %s: %v", event, endpoint.URL, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(signatureHeader, Sign(endpoint.Secret, body))

	resp, err := n.httpClient.Do(req)
	if err != nil {
		n.logger.Warn("Webhook %s delivery to %s failed: %v", event, endpoint.URL, err)
		return
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		n.logger.Warn("Webhook %s delivery to %s returned status %d", event, endpoint.URL, resp.StatusCode)
		return
	}
	n.logger.Info("Webhook %s delivered to %s", event, endpoint.URL)
}

// Sign computes the hex HMAC-SHA256 of the body under the shared secret, the
// value carried in the X-Ship-Signature header.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return fmt.Sprintf("sha256=%s", hex.EncodeToString(mac.Sum(nil)))
}
