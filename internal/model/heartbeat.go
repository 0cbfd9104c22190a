package model

import (
	"time"

	"github.com/google/uuid"
)

// HeartbeatPayload is sent periodically to indicate the agent is alive and
// report the set of workloads it is currently mirroring.
type HeartbeatPayload struct {
	EventID     string         `json:"eventId"`
	OccurredAt  time.Time      `json:"occurredAt"`
	Source      SourceMetadata `json:"source"`
	MessageType string         `json:"messageType"`
	WorkloadIDs []string       `json:"workloadIds,omitempty"`
}

// NewHeartbeatPayload creates a new heartbeat payload.
func NewHeartbeatPayload(hostID, agentVersion string, workloadIDs []string) HeartbeatPayload {
	return HeartbeatPayload{
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Source: SourceMetadata{
			HostID:       hostID,
			AgentVersion: agentVersion,
		},
		MessageType: "HEARTBEAT",
		WorkloadIDs: workloadIDs,
	}
}
