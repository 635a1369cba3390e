package handler

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/romiteld/eva-assistant-sub006/internal/interview"
	"github.com/romiteld/eva-assistant-sub006/internal/workflow"
)

// InstanceArchive reads archived workflow instance snapshots. Evicted
// and pre-restart instances are served from here when the engine no
// longer holds them.
type InstanceArchive interface {
	GetInstance(ctx context.Context, id uuid.UUID) (*workflow.Snapshot, error)
}

type Handler struct {
	Logger  *zap.Logger
	Service *interview.Service
	Engine  *workflow.Engine
	Archive InstanceArchive
}
