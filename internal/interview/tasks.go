package interview

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/romiteld/eva-assistant-sub006/internal/availability"
	"github.com/romiteld/eva-assistant-sub006/internal/generation"
	"github.com/romiteld/eva-assistant-sub006/internal/notify"
	"github.com/romiteld/eva-assistant-sub006/internal/scheduling"
	"github.com/romiteld/eva-assistant-sub006/internal/workflow"
	"github.com/romiteld/eva-assistant-sub006/pkg/model"
)

// ScheduleExecutor runs schedule-kind tasks: it pulls availability for
// the requester and every panel role, intersects and scores, and
// commits the resulting candidate slots to the interview record. An
// empty result is a valid outcome, not a failure; the workflow decides
// what to do with zero slots.
type ScheduleExecutor struct {
	Store       Store
	Source      availability.Source
	HorizonDays int
	Logger      *zap.Logger
}

func (e *ScheduleExecutor) Execute(ctx context.Context, task workflow.Task) (any, error) {
	interviewID, err := uuidParam(task.Params, "interview_id")
	if err != nil {
		return nil, err
	}
	requesterID, err := stringParam(task.Params, "requester_id")
	if err != nil {
		return nil, err
	}
	panelIDs, err := stringsParam(task.Params, "panel_ids")
	if err != nil {
		return nil, err
	}
	durationMin, err := intParam(task.Params, "duration_minutes")
	if err != nil {
		return nil, err
	}
	tz, err := stringParam(task.Params, "timezone")
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", tz, err)
	}

	requesterWindows, err := e.Source.Windows(ctx, requesterID, e.HorizonDays)
	if err != nil {
		return nil, fmt.Errorf("requester availability: %w", err)
	}
	requester := scheduling.PartyWindows{PartyID: requesterID, Windows: requesterWindows}

	approvers := make([]scheduling.PartyWindows, 0, len(panelIDs))
	for _, panelID := range panelIDs {
		windows, err := e.Source.Windows(ctx, panelID, e.HorizonDays)
		if err != nil {
			return nil, fmt.Errorf("approver availability for %q: %w", panelID, err)
		}
		approvers = append(approvers, scheduling.PartyWindows{PartyID: panelID, Windows: windows})
	}

	resolver := scheduling.NewResolver(scheduling.DefaultPolicy(loc))
	slots, err := resolver.FindSlots(time.Now(), requester, approvers, time.Duration(durationMin)*time.Minute)
	if err != nil {
		return nil, err
	}

	candidates := make([]model.CandidateSlot, len(slots))
	for i, s := range slots {
		candidates[i] = model.CandidateSlot{
			Start:     s.Start,
			End:       s.End,
			Parties:   s.Parties,
			Score:     s.Score,
			Conflicts: s.Conflicts,
		}
	}
	if err := e.Store.SetCandidateSlots(ctx, interviewID, candidates); err != nil {
		return nil, fmt.Errorf("store candidate slots: %w", err)
	}

	e.Logger.Info("candidate slots resolved",
		zap.String("interview_id", interviewID.String()),
		zap.Int("slot_count", len(candidates)),
	)
	return map[string]any{
		"interview_id": interviewID.String(),
		"slots":        candidates,
		"count":        len(candidates),
	}, nil
}

// GenerateExecutor runs generate-kind tasks against the external
// text-generation capability.
type GenerateExecutor struct {
	Client *generation.Client
}

func (e *GenerateExecutor) Execute(ctx context.Context, task workflow.Task) (any, error) {
	kind, err := stringParam(task.Params, "prompt_kind")
	if err != nil {
		return nil, err
	}
	promptCtx, _ := task.Params["context"].(map[string]any)
	instructions, _ := task.Params["instructions"].(string)

	res, err := e.Client.Generate(ctx, generation.Prompt{
		Kind:         kind,
		Context:      promptCtx,
		Instructions: instructions,
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"kind":     res.Kind,
		"summary":  res.Summary,
		"items":    res.Items,
		"sections": res.Sections,
	}, nil
}

// NotifyExecutor runs notify-kind tasks. Dispatch is fire-and-forget:
// a delivery failure is logged and recorded in the task output but
// never fails the workflow branch.
type NotifyExecutor struct {
	Dispatcher notify.Dispatcher
	Logger     *zap.Logger
}

func (e *NotifyExecutor) Execute(ctx context.Context, task workflow.Task) (any, error) {
	recipient, err := stringParam(task.Params, "recipient")
	if err != nil {
		return nil, err
	}
	template, err := stringParam(task.Params, "template")
	if err != nil {
		return nil, err
	}
	vars, _ := task.Params["vars"].(map[string]any)

	if err := e.Dispatcher.Dispatch(ctx, notify.Message{
		Recipient: recipient,
		Template:  template,
		Vars:      vars,
	}); err != nil {
		e.Logger.Warn("notification dispatch failed",
			zap.String("recipient", recipient),
			zap.String("template", template),
			zap.Error(err),
		)
		return map[string]any{"dispatched": false, "error": err.Error()}, nil
	}
	return map[string]any{"dispatched": true}, nil
}

func stringParam(params map[string]any, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing param %q", name)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("param %q: expected string, got %T", name, v)
	}
	return s, nil
}

func uuidParam(params map[string]any, name string) (uuid.UUID, error) {
	s, err := stringParam(params, name)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("param %q: %w", name, err)
	}
	return id, nil
}

func intParam(params map[string]any, name string) (int, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("missing param %q", name)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return 0, fmt.Errorf("param %q: %w", name, err)
		}
		return i, nil
	default:
		return 0, fmt.Errorf("param %q: expected number, got %T", name, v)
	}
}

func stringsParam(params map[string]any, name string) ([]string, error) {
	v, ok := params[name]
	if !ok {
		return nil, fmt.Errorf("missing param %q", name)
	}
	switch s := v.(type) {
	case []string:
		return s, nil
	case []any:
		out := make([]string, len(s))
		for i, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("param %q: element %d is %T, not string", name, i, item)
			}
			out[i] = str
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %q: expected string list, got %T", name, v)
	}
}
