package scheduling

import (
	"fmt"
	"sort"
	"time"
)

// Window is a half-open availability interval [Start, End), normalized
// to UTC internally regardless of the caller's presentation timezone.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Validate rejects malformed windows before any scoring runs.
func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return &InvalidIntervalError{Window: w}
	}
	return nil
}

func (w Window) utc() Window {
	return Window{Start: w.Start.UTC(), End: w.End.UTC()}
}

// InvalidIntervalError marks a window whose end does not follow its
// start.
type InvalidIntervalError struct {
	Party  string
	Window Window
}

func (e *InvalidIntervalError) Error() string {
	if e.Party != "" {
		return fmt.Sprintf("invalid interval for party %q: end %s is not after start %s", e.Party, e.Window.End, e.Window.Start)
	}
	return fmt.Sprintf("invalid interval: end %s is not after start %s", e.Window.End, e.Window.Start)
}

// PartyWindows pairs a participant (or participant role) with its open
// windows. For approver entries the windows may come from any
// qualifying approver for that role.
type PartyWindows struct {
	PartyID string   `json:"party_id"`
	Windows []Window `json:"windows"`
}

// Slot is a scored, duration-exact candidate meeting time. Slots are
// never mutated after creation; a new search supersedes old results.
type Slot struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Parties   []string  `json:"parties"`
	Score     int       `json:"score"`
	Conflicts []string  `json:"conflicts,omitempty"`
}

// ScorePolicy holds the tunable bonus magnitudes. The structure of the
// heuristic is fixed: scoring is a pure function of (slot, now).
type ScorePolicy struct {
	Base int

	// PreferredHourBonus applies when the slot starts in a preferred
	// hour (late morning or mid afternoon), evaluated in Location.
	PreferredHourBonus int
	PreferredHours     map[int]bool
	Location           *time.Location

	// LeadTimeBonus applies when the slot starts between LeadTimeMin
	// and LeadTimeMax after now. Same-day and far-out slots miss it.
	LeadTimeBonus int
	LeadTimeMin   time.Duration
	LeadTimeMax   time.Duration

	// MidweekBonus applies on Tuesday through Thursday.
	MidweekBonus int
}

// DefaultPolicy returns the standard scoring policy evaluated in loc
// (UTC when nil).
func DefaultPolicy(loc *time.Location) ScorePolicy {
	if loc == nil {
		loc = time.UTC
	}
	return ScorePolicy{
		Base:               50,
		PreferredHourBonus: 15,
		PreferredHours:     map[int]bool{10: true, 11: true, 14: true, 15: true},
		Location:           loc,
		LeadTimeBonus:      10,
		LeadTimeMin:        48 * time.Hour,
		LeadTimeMax:        120 * time.Hour,
		MidweekBonus:       5,
	}
}

// Score computes the heuristic value of a slot relative to now. Pure:
// identical inputs always produce identical scores.
func (p ScorePolicy) Score(slot Window, now time.Time) int {
	score := p.Base

	local := slot.Start.In(p.Location)
	if p.PreferredHours[local.Hour()] {
		score += p.PreferredHourBonus
	}

	lead := slot.Start.Sub(now)
	if lead >= p.LeadTimeMin && lead <= p.LeadTimeMax {
		score += p.LeadTimeBonus
	}

	switch local.Weekday() {
	case time.Tuesday, time.Wednesday, time.Thursday:
		score += p.MidweekBonus
	}

	return score
}

// Resolver computes candidate slots from independently sourced
// availability. It is pure and synchronous; callers may share one
// resolver across concurrent searches.
type Resolver struct {
	Policy ScorePolicy
}

func NewResolver(policy ScorePolicy) *Resolver {
	return &Resolver{Policy: policy}
}

// FindSlots intersects the requester's windows with every approver
// entry and emits one duration-exact slot per intersection region that
// can hold the duration, sorted by score descending with earliest
// start breaking ties. Zero qualifying windows yields an empty list,
// not an error; a malformed window fails fast before scoring.
func (r *Resolver) FindSlots(now time.Time, requester PartyWindows, approvers []PartyWindows, duration time.Duration) ([]Slot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("duration must be positive, got %s", duration)
	}
	if err := validateParty(requester); err != nil {
		return nil, err
	}
	for _, ap := range approvers {
		if err := validateParty(ap); err != nil {
			return nil, err
		}
	}

	// Each party's windows act as a union; coalesce them so one region
	// never surfaces twice, then narrow the regions one approver role
	// at a time. A slot survives only if a qualifying intersection
	// exists against every required role.
	regions := coalesce(toUTC(requester.Windows))
	for _, ap := range approvers {
		regions = intersect(regions, coalesce(toUTC(ap.Windows)))
		if len(regions) == 0 {
			return []Slot{}, nil
		}
	}

	parties := make([]string, 0, len(approvers)+1)
	parties = append(parties, requester.PartyID)
	for _, ap := range approvers {
		parties = append(parties, ap.PartyID)
	}

	slots := make([]Slot, 0, len(regions))
	for _, region := range regions {
		if region.End.Sub(region.Start) < duration {
			continue
		}
		w := Window{Start: region.Start, End: region.Start.Add(duration)}
		slots = append(slots, Slot{
			Start:   w.Start,
			End:     w.End,
			Parties: parties,
			Score:   r.Policy.Score(w, now),
		})
	}

	sort.SliceStable(slots, func(i, j int) bool {
		if slots[i].Score != slots[j].Score {
			return slots[i].Score > slots[j].Score
		}
		return slots[i].Start.Before(slots[j].Start)
	})
	return slots, nil
}

func validateParty(p PartyWindows) error {
	for _, w := range p.Windows {
		if !w.End.After(w.Start) {
			return &InvalidIntervalError{Party: p.PartyID, Window: w}
		}
	}
	return nil
}

func toUTC(ws []Window) []Window {
	out := make([]Window, len(ws))
	for i, w := range ws {
		out[i] = w.utc()
	}
	return out
}

// coalesce sorts windows by start and merges overlapping or touching
// ones, so a party's list behaves as a set union.
func coalesce(ws []Window) []Window {
	if len(ws) == 0 {
		return nil
	}
	sorted := make([]Window, len(ws))
	copy(sorted, ws)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start.Before(sorted[j].Start) })

	merged := []Window{sorted[0]}
	for _, w := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !w.Start.After(last.End) {
			if w.End.After(last.End) {
				last.End = w.End
			}
			continue
		}
		merged = append(merged, w)
	}
	return merged
}

// intersect computes all pairwise overlaps between two coalesced
// window lists: {max(start), min(end)} kept when start < end.
func intersect(a, b []Window) []Window {
	var out []Window
	for _, wa := range a {
		for _, wb := range b {
			start := maxTime(wa.Start, wb.Start)
			end := minTime(wa.End, wb.End)
			if start.Before(end) {
				out = append(out, Window{Start: start, End: end})
			}
		}
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
