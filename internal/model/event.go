package model

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventWorkloadCreated       EventType = "WORKLOAD_CREATED"
	EventWorkloadRemoved       EventType = "WORKLOAD_REMOVED"
	EventWorkloadStatusChanged EventType = "WORKLOAD_STATUS_CHANGED"
)

// SourceMetadata identifies the agent instance that produced an event.
type SourceMetadata struct {
	HostID       string `json:"hostId"`
	AgentVersion string `json:"agentVersion"`
}

// WorkloadEvent is a lifecycle event emitted by the reconciler when a mirrored
// workload appears, disappears, or changes status.
type WorkloadEvent struct {
	EventID        string            `json:"eventId"`
	OccurredAt     time.Time         `json:"occurredAt"`
	Type           EventType         `json:"type"`
	Source         SourceMetadata    `json:"source"`
	WorkloadID     string            `json:"workloadId"`
	WorkloadName   string            `json:"workloadName"`
	Image          string            `json:"image,omitempty"`
	Status         string            `json:"status,omitempty"`
	PreviousStatus string            `json:"previousStatus,omitempty"`
	Labels         map[string]string `json:"labels,omitempty"`
}

// NewWorkloadEvent builds an event for the given workload with a fresh event id.
func NewWorkloadEvent(eventType EventType, w Workload, previousStatus, hostID, agentVersion string) WorkloadEvent {
	return WorkloadEvent{
		EventID:    uuid.New().String(),
		OccurredAt: time.Now().UTC(),
		Type:       eventType,
		Source: SourceMetadata{
			HostID:       hostID,
			AgentVersion: agentVersion,
		},
		WorkloadID:     w.ID,
		WorkloadName:   w.Name,
		Image:          w.Image,
		Status:         w.Status,
		PreviousStatus: previousStatus,
		Labels:         w.Labels,
	}
}
