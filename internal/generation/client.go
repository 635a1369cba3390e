package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Client talks to the external text-generation capability. The
// collaborator returns schema-validated structured payloads; free-text
// parsing stays on its side of the boundary.
type Client struct {
	apiKey string
	base   string
	http   *http.Client
}

func NewClient(base, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiKey: apiKey,
		base:   base,
		http:   &http.Client{Timeout: timeout},
	}
}

// Prompt is a structured, field-named request; nothing positional
// crosses the boundary.
type Prompt struct {
	Kind         string         `json:"kind"`
	Context      map[string]any `json:"context,omitempty"`
	Instructions string         `json:"instructions,omitempty"`
}

type Section struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

type Result struct {
	Kind     string    `json:"kind"`
	Summary  string    `json:"summary,omitempty"`
	Items    []string  `json:"items,omitempty"`
	Sections []Section `json:"sections,omitempty"`
}

func (c *Client) Generate(ctx context.Context, prompt Prompt) (*Result, error) {
	b, err := json.Marshal(prompt)
	if err != nil {
		return nil, fmt.Errorf("marshal prompt: %w", err)
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/generate", bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	r.Header.Set("Authorization", "Bearer "+c.apiKey)
	r.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(r)
	if err != nil {
		return nil, fmt.Errorf("generation request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("generation service returned %d", resp.StatusCode)
	}

	var res Result
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode generation response: %w", err)
	}
	return &res, nil
}
