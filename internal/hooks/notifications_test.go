package hooks

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/logpost-sh/agent/internal/model"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.WorkloadEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, event model.WorkloadEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestQueueFansOutToAllPublishers(t *testing.T) {
	eventChan := make(chan model.WorkloadEvent, 4)
	first := &recordingPublisher{}
	second := &recordingPublisher{}

	queue := NewEventPublisherQueue(eventChan, []EventPublisher{first, second})

	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Loop(context.Background())
	}()

	eventChan <- model.WorkloadEvent{Type: model.EventWorkloadCreated, WorkloadID: "id-1"}
	eventChan <- model.WorkloadEvent{Type: model.EventWorkloadRemoved, WorkloadID: "id-1"}
	close(eventChan)
	<-done

	if first.count() != 2 || second.count() != 2 {
		t.Errorf("fan-out incomplete: first=%d second=%d", first.count(), second.count())
	}
}

func TestQueueContinuesPastFailingPublisher(t *testing.T) {
	eventChan := make(chan model.WorkloadEvent, 2)
	failing := &recordingPublisher{err: errors.New("endpoint down")}
	healthy := &recordingPublisher{}

	queue := NewEventPublisherQueue(eventChan, []EventPublisher{failing, healthy})

	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Loop(context.Background())
	}()

	eventChan <- model.WorkloadEvent{Type: model.EventWorkloadCreated, WorkloadID: "id-1"}
	close(eventChan)
	<-done

	if healthy.count() != 1 {
		t.Errorf("healthy publisher got %d events, want 1", healthy.count())
	}
}

func TestQueueStopsOnContextCancel(t *testing.T) {
	eventChan := make(chan model.WorkloadEvent)
	queue := NewEventPublisherQueue(eventChan, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		queue.Loop(ctx)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after context cancellation")
	}
}
