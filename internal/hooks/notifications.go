package hooks

import (
	"context"

	"github.com/go-logr/logr"

	"github.com/logpost-sh/agent/internal/model"
)

// EventPublisherQueue drains workload events from a channel and fans them out
// to all registered publishers. A failing publisher is logged and skipped;
// publishing never feeds back into reconciliation.
type EventPublisherQueue struct {
	EventChan  <-chan model.WorkloadEvent
	publishers []EventPublisher
}

func NewEventPublisherQueue(eventChan <-chan model.WorkloadEvent, publishers []EventPublisher) *EventPublisherQueue {
	return &EventPublisherQueue{
		EventChan:  eventChan,
		publishers: publishers,
	}
}

func (eq *EventPublisherQueue) Loop(ctx context.Context) {
	logger := logr.FromContextOrDiscard(ctx).WithName("publisher-queue")

	logger.Info("Event publisher queue started", "publishers", len(eq.publishers))

	for {
		select {
		case event, ok := <-eq.EventChan:
			if !ok {
				return
			}
			logger.Info("Received workload event",
				"type", event.Type,
				"workload", event.WorkloadName,
				"id", event.WorkloadID,
			)
			for _, publisher := range eq.publishers {
				if err := publisher.Publish(ctx, event); err != nil {
					logger.Error(err, "failed to publish event",
						"type", event.Type,
						"workload", event.WorkloadName,
					)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}
