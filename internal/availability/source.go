package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/romiteld/eva-assistant-sub006/internal/scheduling"
)

// Source returns a party's open windows over a requested horizon. The
// core does not know how windows are sourced (calendar, stated
// preference); requester and approvers query it independently.
type Source interface {
	Windows(ctx context.Context, partyID string, horizonDays int) ([]scheduling.Window, error)
}

// HTTPSource queries the external availability capability.
type HTTPSource struct {
	base string
	http *http.Client
}

func NewHTTPSource(base string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSource{base: base, http: &http.Client{Timeout: timeout}}
}

func (s *HTTPSource) Windows(ctx context.Context, partyID string, horizonDays int) ([]scheduling.Window, error) {
	q := url.Values{}
	q.Set("party_id", partyID)
	q.Set("horizon_days", strconv.Itoa(horizonDays))

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, s.base+"/availability?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.http.Do(r)
	if err != nil {
		return nil, fmt.Errorf("availability request for %q: %w", partyID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("availability service returned %d for %q", resp.StatusCode, partyID)
	}

	var payload struct {
		Windows []scheduling.Window `json:"windows"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode availability response: %w", err)
	}
	return payload.Windows, nil
}
