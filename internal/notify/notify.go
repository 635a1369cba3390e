package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Message is a field-named notification request: a recipient, a
// template reference, and the variables bound into it.
type Message struct {
	Recipient string         `json:"recipient"`
	Template  string         `json:"template"`
	Vars      map[string]any `json:"vars,omitempty"`
}

// Dispatcher hands messages to the external notification capability.
// Delivery is fire-and-forget from the core's perspective; the
// dispatcher owns retries and delivery failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg Message) error
}

type HTTPDispatcher struct {
	base string
	http *http.Client
}

func NewHTTPDispatcher(base string, timeout time.Duration) *HTTPDispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPDispatcher{base: base, http: &http.Client{Timeout: timeout}}
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, d.base+"/notifications", bytes.NewReader(b))
	if err != nil {
		return err
	}
	r.Header.Set("Content-Type", "application/json")

	resp, err := d.http.Do(r)
	if err != nil {
		return fmt.Errorf("notification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
