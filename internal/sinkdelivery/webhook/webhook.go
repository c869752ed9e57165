// Package webhook is the HTTP concrete System Sink delivery target:
// it POSTs the event schema JSON to the sink's URL.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jaxxstorm/smokestack/internal/domain"
)

// Deliverer POSTs events to an HTTP(S) delivery_target.
type Deliverer struct {
	client *http.Client
}

// New returns a webhook Deliverer using client, or http.DefaultClient
// if nil.
func New(client *http.Client) *Deliverer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Deliverer{client: client}
}

type eventPayload struct {
	Kind      domain.EventKind  `json:"kind"`
	Timestamp string            `json:"timestamp"`
	Actor     string            `json:"actor"`
	Operation *domain.Operation `json:"operation"`
	From      domain.Status     `json:"from,omitempty"`
	To        domain.Status     `json:"to,omitempty"`
}

// Deliver POSTs ev to sink.DeliveryTarget as JSON.
func (d *Deliverer) Deliver(ctx context.Context, sink *domain.SystemSink, ev *domain.Event) error {
	payload := eventPayload{
		Kind:      ev.Kind,
		Timestamp: ev.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
		Actor:     ev.Actor,
		Operation: ev.Operation,
		From:      ev.From,
		To:        ev.To,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sink.DeliveryTarget, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
