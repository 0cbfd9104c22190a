package hooks

import (
	"context"

	"github.com/logpost-sh/agent/internal/model"
)

// EventPublisher receives workload lifecycle events from the reconciler.
type EventPublisher interface {
	Publish(ctx context.Context, event model.WorkloadEvent) error
}

// HeartbeatPublisher receives periodic agent liveness payloads.
type HeartbeatPublisher interface {
	PublishHeartbeat(ctx context.Context, payload model.HeartbeatPayload) error
}
