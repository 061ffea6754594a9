package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/CDeX-Labs/CDeX-Balloon-Service/pkg/events"
)

const (
	defaultWebhookTimeout = 10 * time.Second

	// Max retries for rate limiting
	maxRetries = 3
)

// PrintJob is the body posted to the print server.
type PrintJob struct {
	Kind  string                `json:"kind"`
	Title string                `json:"title"`
	Event events.DeliveredEvent `json:"event"`
}

func NewPrintJob(event events.DeliveredEvent) PrintJob {
	title := fmt.Sprintf("Balloon %s for %s", event.ProblemLetter, event.Team)
	if event.Notes != "" {
		title += " (" + event.Notes + ")"
	}
	return PrintJob{
		Kind:  "balloon",
		Title: title,
		Event: event,
	}
}

// WebhookSink posts print jobs to an HTTP print server.
type WebhookSink struct {
	url        string
	httpClient *http.Client
}

func NewWebhookSink(url string, timeout time.Duration) *WebhookSink {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &WebhookSink{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (w *WebhookSink) Name() string { return "print" }

// Send posts the job, retrying when the print server asks to slow down.
func (w *WebhookSink) Send(ctx context.Context, event events.DeliveredEvent) error {
	data, err := json.Marshal(NewPrintJob(event))
	if err != nil {
		return fmt.Errorf("failed to marshal print job: %w", err)
	}

	for attempt := 0; attempt < maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := w.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := time.Second
			if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
				wait = time.Duration(s) * time.Second
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}
		}

		return fmt.Errorf("print server responded with status %d", resp.StatusCode)
	}

	return fmt.Errorf("print request failed after %d retries", maxRetries)
}
