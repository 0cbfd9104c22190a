package heartbeat

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/logpost-sh/agent/internal/hooks"
	"github.com/logpost-sh/agent/internal/model"
	"github.com/logpost-sh/agent/internal/snapshot"
)

// Config holds configuration for the heartbeat sender.
type Config struct {
	Interval     time.Duration
	HostID       string
	AgentVersion string
}

// DefaultConfig returns the default heartbeat configuration.
func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
	}
}

// Sender periodically reports agent liveness and the set of mirrored
// workloads to the registered publishers.
type Sender struct {
	config     Config
	state      *snapshot.State
	publishers []hooks.HeartbeatPublisher
}

// NewSender creates a new heartbeat sender reading from the shared snapshot.
func NewSender(config Config, state *snapshot.State, publishers []hooks.HeartbeatPublisher) *Sender {
	return &Sender{
		config:     config,
		state:      state,
		publishers: publishers,
	}
}

// Start runs the heartbeat loop until the context is cancelled.
func (s *Sender) Start(ctx context.Context) {
	logger := logr.FromContextOrDiscard(ctx).WithName("heartbeat-sender")

	logger.Info("Starting heartbeat sender",
		"interval", s.config.Interval,
		"hostID", s.config.HostID,
		"publishers", len(s.publishers),
	)

	// Send initial heartbeat immediately
	s.sendHeartbeat(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sendHeartbeat(ctx)
		case <-ctx.Done():
			logger.Info("Heartbeat sender stopped")
			return
		}
	}
}

func (s *Sender) sendHeartbeat(ctx context.Context) {
	logger := logr.FromContextOrDiscard(ctx).WithName("heartbeat-sender")

	workloadIDs := s.state.IDs()
	payload := model.NewHeartbeatPayload(s.config.HostID, s.config.AgentVersion, workloadIDs)

	logger.Info("Sending heartbeat",
		"eventID", payload.EventID,
		"workloadCount", len(workloadIDs),
	)

	for _, publisher := range s.publishers {
		if err := publisher.PublishHeartbeat(ctx, payload); err != nil {
			logger.Error(err, "Failed to publish heartbeat")
		}
	}
}
