package interview

import (
	"time"

	"github.com/romiteld/eva-assistant-sub006/internal/workflow"
)

// GraphInterviewPrep is the built-in scheduling workflow: slot finding
// and content generation fan out in parallel, converge into a prep
// packet, and end with a notification once both branches are in.
const GraphInterviewPrep = "interview_prep"

// InterviewPrepGraph builds the static interview preparation graph.
// Placeholders reference launch inputs and upstream task outputs; the
// graph is registered once at startup and validated there.
func InterviewPrepGraph(taskTimeout time.Duration) *workflow.Graph {
	return &workflow.Graph{
		ID:   GraphInterviewPrep,
		Name: "Interview preparation",
		Nodes: map[string]*workflow.Node{
			"find_slots": {
				ID:   "find_slots",
				Kind: workflow.TaskKindSchedule,
				Params: map[string]any{
					"interview_id":     "{{input.interview_id}}",
					"requester_id":     "{{input.applicant_id}}",
					"panel_ids":        "{{input.panel_ids}}",
					"duration_minutes": "{{input.duration_minutes}}",
					"timezone":         "{{input.timezone}}",
				},
				Timeout: taskTimeout,
			},
			"gen_questions": {
				ID:   "gen_questions",
				Kind: workflow.TaskKindGenerate,
				Params: map[string]any{
					"prompt_kind": "question_set",
					"context": map[string]any{
						"job_id": "{{input.job_id}}",
						"kind":   "{{input.kind}}",
						"round":  "{{input.round}}",
					},
				},
				Timeout: taskTimeout,
			},
			"gen_guide": {
				ID:   "gen_guide",
				Kind: workflow.TaskKindGenerate,
				Params: map[string]any{
					"prompt_kind": "interview_guide",
					"context": map[string]any{
						"job_id": "{{input.job_id}}",
						"kind":   "{{input.kind}}",
					},
				},
				Timeout: taskTimeout,
			},
			"compose_packet": {
				ID:        "compose_packet",
				Kind:      workflow.TaskKindGenerate,
				DependsOn: []string{"gen_questions", "gen_guide"},
				Params: map[string]any{
					"prompt_kind": "prep_packet",
					"context": map[string]any{
						"questions": "{{gen_questions}}",
						"guide":     "{{gen_guide}}",
					},
				},
				Timeout: taskTimeout,
			},
			"notify_scheduler": {
				ID:        "notify_scheduler",
				Kind:      workflow.TaskKindNotify,
				DependsOn: []string{"find_slots", "compose_packet"},
				Params: map[string]any{
					"recipient": "{{input.notify_recipient}}",
					"template":  "slots_ready",
					"vars": map[string]any{
						"interview_id": "{{input.interview_id}}",
						"slot_count":   "{{find_slots.count}}",
					},
				},
				Timeout: taskTimeout,
			},
		},
	}
}
