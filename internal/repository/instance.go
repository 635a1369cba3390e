package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/romiteld/eva-assistant-sub006/internal/workflow"
)

// ArchiveInstance stores a terminal workflow instance snapshot,
// including partial outputs of failed runs, for later diagnosis.
// Archiving the same instance twice overwrites the earlier row.
func (r *Repository) ArchiveInstance(ctx context.Context, snap workflow.Snapshot) error {
	tasks, err := json.Marshal(snap.Tasks)
	if err != nil {
		return fmt.Errorf("marshal task states: %w", err)
	}
	outputs, err := json.Marshal(snap.Outputs)
	if err != nil {
		return fmt.Errorf("marshal task outputs: %w", err)
	}

	const q = `
INSERT INTO workflow_instances (id, graph_id, status, tasks, outputs, error, started_at, archived_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status, tasks = EXCLUDED.tasks, outputs = EXCLUDED.outputs,
    error = EXCLUDED.error, archived_at = now()
`
	_, err = r.db.Exec(ctx, q, snap.ID, snap.GraphID, snap.Status, tasks, outputs, snap.Error, snap.StartedAt)
	if err != nil {
		return fmt.Errorf("archive instance: %w", err)
	}
	return nil
}

// GetInstance loads an archived instance snapshot.
func (r *Repository) GetInstance(ctx context.Context, id uuid.UUID) (*workflow.Snapshot, error) {
	const q = `
SELECT id, graph_id, status, tasks, outputs, error, started_at
FROM workflow_instances WHERE id = $1
`
	var snap workflow.Snapshot
	var tasks, outputs []byte
	err := r.db.QueryRow(ctx, q, id).Scan(
		&snap.ID, &snap.GraphID, &snap.Status, &tasks, &outputs, &snap.Error, &snap.StartedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &workflow.Error{Code: workflow.CodeNotFound, Message: fmt.Sprintf("instance %s not archived", id)}
	}
	if err != nil {
		return nil, fmt.Errorf("get instance: %w", err)
	}
	if err := json.Unmarshal(tasks, &snap.Tasks); err != nil {
		return nil, fmt.Errorf("unmarshal task states: %w", err)
	}
	if err := json.Unmarshal(outputs, &snap.Outputs); err != nil {
		return nil, fmt.Errorf("unmarshal task outputs: %w", err)
	}
	return &snap, nil
}
