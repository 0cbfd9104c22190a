package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"resty.dev/v3"

	"github.com/logpost-sh/agent/internal/model"
)

// Publisher sends workload events and heartbeats to an operator-supplied HTTP
// endpoint as JSON.
type Publisher struct {
	client   *resty.Client
	endpoint string
}

// NewPublisher creates a new webhook publisher for the given endpoint.
func NewPublisher(endpoint string) *Publisher {
	client := resty.New().
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second).
		SetRetryMaxWaitTime(5 * time.Second)

	return &Publisher{
		client:   client,
		endpoint: endpoint,
	}
}

// Publish sends a workload event to the webhook endpoint.
func (p *Publisher) Publish(ctx context.Context, event model.WorkloadEvent) error {
	logger := logr.FromContextOrDiscard(ctx)

	var errorResponse map[string]interface{}
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(event).
		SetError(&errorResponse).
		Post(p.endpoint)

	if err != nil {
		logger.Error(err, "Failed to send event to webhook",
			"endpoint", p.endpoint,
			"eventID", event.EventID,
		)
		return fmt.Errorf("failed to send event to webhook: %w", err)
	}

	if !resp.IsSuccess() {
		logger.Error(nil, "Webhook returned error",
			"statusCode", resp.StatusCode(),
			"status", resp.Status(),
			"error", errorResponse,
			"endpoint", p.endpoint,
			"eventID", event.EventID,
		)
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode(), resp.String())
	}

	logger.Info("Event published to webhook",
		"endpoint", p.endpoint,
		"eventID", event.EventID,
		"type", event.Type,
		"workload", event.WorkloadName,
	)

	return nil
}

// PublishHeartbeat sends a heartbeat payload to the webhook endpoint.
func (p *Publisher) PublishHeartbeat(ctx context.Context, payload model.HeartbeatPayload) error {
	resp, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(p.endpoint)

	if err != nil {
		return fmt.Errorf("failed to send heartbeat to webhook: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("webhook returned error status %d: %s", resp.StatusCode(), resp.String())
	}
	return nil
}
