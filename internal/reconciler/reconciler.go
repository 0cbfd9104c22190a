package reconciler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/logpost-sh/agent/internal/format"
	"github.com/logpost-sh/agent/internal/model"
	"github.com/logpost-sh/agent/internal/sink"
	"github.com/logpost-sh/agent/internal/snapshot"
)

var (
	mirroredWorkloads = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logpost_mirrored_workloads",
		Help: "Number of workloads with a live notification resource",
	})

	sinkOpsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logpost_sink_operations_total",
		Help: "Notification sink calls by operation and outcome",
	}, []string{"operation", "outcome"})

	reconcileCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logpost_reconcile_cycles_total",
		Help: "Reconcile cycles by outcome",
	}, []string{"outcome"})

	metricsRegistered = false
)

// ResourceHandle links a workload id to its notification resource. MessageID
// stays empty until the first message create succeeds.
type ResourceHandle struct {
	WorkloadID string
	Name       string
	ChannelID  string
	MessageID  string
}

// Config holds configuration for the reconciler.
type Config struct {
	// Interval between reconcile cycles.
	Interval time.Duration
	// WarmupDelay postpones the first cycle so the poller has likely
	// published a snapshot by then.
	WarmupDelay time.Duration
	// GuildID and CategoryID locate the notification resources.
	GuildID    string
	CategoryID string
	// AdoptExisting makes the first cycle adopt name-matching channels that
	// already exist in the category instead of creating duplicates after a
	// restart.
	AdoptExisting bool

	AgentName    string
	AgentVersion string
	HostID       string
}

// DefaultConfig returns the default reconciler configuration.
func DefaultConfig() Config {
	return Config{
		Interval:      30 * time.Second,
		WarmupDelay:   10 * time.Second,
		AdoptExisting: true,
	}
}

// Reconciler converges notification resources to match the shared snapshot.
// It owns the resource handle map exclusively; no other goroutine touches it.
type Reconciler struct {
	config Config
	state  *snapshot.State
	sink   sink.Sink

	handles  map[string]ResourceHandle
	statuses map[string]string

	// pending holds removal ids drained from the snapshot that have not
	// been fully processed yet, so a failed cycle retries them instead of
	// losing them.
	pending []string

	// orphans maps channel names to ids of pre-existing channels in the
	// category, available for adoption. Populated once at startup.
	orphans map[string]string
	adopted bool

	eventChan chan<- model.WorkloadEvent
}

// New creates a reconciler. eventChan may be nil to disable lifecycle events.
func New(config Config, state *snapshot.State, s sink.Sink, eventChan chan<- model.WorkloadEvent) *Reconciler {
	if !metricsRegistered {
		prometheus.MustRegister(mirroredWorkloads, sinkOpsTotal, reconcileCyclesTotal)
		metricsRegistered = true
	}
	return &Reconciler{
		config:    config,
		state:     state,
		sink:      s,
		handles:   make(map[string]ResourceHandle),
		statuses:  make(map[string]string),
		orphans:   make(map[string]string),
		eventChan: eventChan,
	}
}

// Start runs the reconcile loop until the context is cancelled. Any sink
// failure aborts the remainder of that cycle, is logged here, and the loop
// sleeps and retries; no error escapes.
func (r *Reconciler) Start(ctx context.Context) {
	logger := logr.FromContextOrDiscard(ctx).WithName("reconciler")
	logger.Info("Starting reconciler",
		"interval", r.config.Interval,
		"warmup", r.config.WarmupDelay,
		"category", r.config.CategoryID,
	)

	select {
	case <-time.After(r.config.WarmupDelay):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(r.config.Interval)
	defer ticker.Stop()

	for {
		if err := r.Cycle(ctx); err != nil {
			reconcileCyclesTotal.WithLabelValues("error").Inc()
			if errors.Is(err, sink.ErrUnauthorized) {
				logger.Error(err, "sink credential rejected; operator intervention required")
			} else {
				logger.Error(err, "reconcile cycle failed, retrying next interval")
			}
		} else {
			reconcileCyclesTotal.WithLabelValues("ok").Inc()
		}
		mirroredWorkloads.Set(float64(len(r.handles)))

		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.Info("Reconciler stopped")
			return
		}
	}
}

// Cycle performs one reconciliation pass: removals first, then creates and
// updates. Exported so tests can drive cycles directly.
func (r *Reconciler) Cycle(ctx context.Context) error {
	if r.config.AdoptExisting && !r.adopted {
		if err := r.adoptExisting(ctx); err != nil {
			return err
		}
	}

	if err := r.processRemovals(ctx); err != nil {
		return err
	}
	return r.processUpserts(ctx)
}

// adoptExisting records the channels already present in the category so
// workloads can reattach to them by name instead of creating duplicates.
func (r *Reconciler) adoptExisting(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx).WithName("reconciler")

	channels, err := r.sink.ListChannelsInCategory(ctx, r.config.CategoryID)
	if err != nil {
		sinkOpsTotal.WithLabelValues("list", "error").Inc()
		return fmt.Errorf("listing existing channels for adoption: %w", err)
	}
	sinkOpsTotal.WithLabelValues("list", "ok").Inc()

	for _, ch := range channels {
		r.orphans[ch.Name] = ch.ID
	}
	r.adopted = true
	if len(r.orphans) > 0 {
		logger.Info("found adoptable channels", "count", len(r.orphans))
	}
	return nil
}

// processRemovals deletes the notification resources of workloads that
// disappeared. Removals carried over from a failed cycle are retried before
// anything newly drained. A removal with no matching handle is a no-op.
func (r *Reconciler) processRemovals(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx).WithName("reconciler")

	drained := r.state.DrainRemovals()
	sort.Strings(drained)
	r.pending = append(r.pending, drained...)

	for len(r.pending) > 0 {
		id := r.pending[0]

		handle, ok := r.handles[id]
		if !ok {
			r.pending = r.pending[1:]
			continue
		}

		if err := r.deleteResource(ctx, handle); err != nil {
			return err
		}

		delete(r.handles, id)
		prev := r.statuses[id]
		delete(r.statuses, id)
		r.pending = r.pending[1:]

		logger.Info("removed notification resource", "workload", handle.Name, "id", id)
		r.emit(logger, model.NewWorkloadEvent(model.EventWorkloadRemoved, model.Workload{
			ID:     id,
			Name:   handle.Name,
			Status: prev,
		}, prev, r.config.HostID, r.config.AgentVersion))
	}
	return nil
}

// deleteResource looks the channel up by name in the category and deletes the
// match. A missing match means the channel already vanished externally, which
// counts as done.
func (r *Reconciler) deleteResource(ctx context.Context, handle ResourceHandle) error {
	channels, err := r.sink.ListChannelsInCategory(ctx, r.config.CategoryID)
	if err != nil {
		sinkOpsTotal.WithLabelValues("list", "error").Inc()
		return fmt.Errorf("listing channels for removal of %s: %w", handle.Name, err)
	}
	sinkOpsTotal.WithLabelValues("list", "ok").Inc()

	want := sink.ChannelName(handle.Name)
	for _, ch := range channels {
		if ch.Name != want {
			continue
		}
		if err := r.sink.DeleteChannel(ctx, ch.ID); err != nil {
			if errors.Is(err, sink.ErrNotFound) {
				sinkOpsTotal.WithLabelValues("delete", "ok").Inc()
				return nil
			}
			sinkOpsTotal.WithLabelValues("delete", "error").Inc()
			return fmt.Errorf("deleting channel for %s: %w", handle.Name, err)
		}
		sinkOpsTotal.WithLabelValues("delete", "ok").Inc()
		return nil
	}
	return nil
}

// processUpserts creates missing notification resources and refreshes the
// message of existing ones, in stable name order.
func (r *Reconciler) processUpserts(ctx context.Context) error {
	workloads := r.state.Workloads()

	ordered := make([]model.Workload, 0, len(workloads))
	for _, w := range workloads {
		ordered = append(ordered, w)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].Name != ordered[j].Name {
			return ordered[i].Name < ordered[j].Name
		}
		return ordered[i].ID < ordered[j].ID
	})

	for _, w := range ordered {
		if err := r.reconcileWorkload(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) reconcileWorkload(ctx context.Context, w model.Workload) error {
	logger := logr.FromContextOrDiscard(ctx).WithName("reconciler")

	handle, ok := r.handles[w.ID]
	if !ok {
		created, err := r.ensureChannel(ctx, w)
		if err != nil {
			return err
		}
		handle = created
	}

	if handle.MessageID == "" {
		text := format.BuildPlainText(w)
		messageID, err := r.sink.CreateMessage(ctx, handle.ChannelID, sink.Text(text))
		if err != nil {
			sinkOpsTotal.WithLabelValues("create_message", "error").Inc()
			return fmt.Errorf("creating message for %s: %w", w.Name, err)
		}
		sinkOpsTotal.WithLabelValues("create_message", "ok").Inc()
		handle.MessageID = messageID
		r.handles[w.ID] = handle
	}

	embed := format.BuildEmbed(w, r.config.AgentName, r.config.AgentVersion)
	if err := r.sink.UpdateMessage(ctx, handle.ChannelID, handle.MessageID, sink.Rich(embed)); err != nil {
		if errors.Is(err, sink.ErrNotFound) {
			// The channel or message vanished externally; drop the
			// stale handle so the next cycle recreates the resource.
			sinkOpsTotal.WithLabelValues("update_message", "stale").Inc()
			delete(r.handles, w.ID)
			logger.Info("notification resource vanished, dropping handle", "workload", w.Name)
			return nil
		}
		sinkOpsTotal.WithLabelValues("update_message", "error").Inc()
		return fmt.Errorf("updating message for %s: %w", w.Name, err)
	}
	sinkOpsTotal.WithLabelValues("update_message", "ok").Inc()

	if prev, seen := r.statuses[w.ID]; seen && prev != w.Status {
		r.emit(logger, model.NewWorkloadEvent(model.EventWorkloadStatusChanged, w, prev, r.config.HostID, r.config.AgentVersion))
	}
	r.statuses[w.ID] = w.Status

	return nil
}

// ensureChannel finds or creates the channel for a workload and stores the
// handle. The handle map only mutates after the corresponding sink call
// succeeded, so a failed cycle never records a resource that does not exist.
func (r *Reconciler) ensureChannel(ctx context.Context, w model.Workload) (ResourceHandle, error) {
	logger := logr.FromContextOrDiscard(ctx).WithName("reconciler")

	name := sink.ChannelName(w.Name)
	if channelID, ok := r.orphans[name]; ok {
		delete(r.orphans, name)
		handle := ResourceHandle{WorkloadID: w.ID, Name: w.Name, ChannelID: channelID}
		r.handles[w.ID] = handle
		logger.Info("adopted existing channel", "workload", w.Name, "channel", channelID)
		return handle, nil
	}

	channelID, err := r.sink.CreateChannel(ctx, r.config.GuildID, r.config.CategoryID, w.Name)
	if err != nil {
		sinkOpsTotal.WithLabelValues("create_channel", "error").Inc()
		return ResourceHandle{}, fmt.Errorf("creating channel for %s: %w", w.Name, err)
	}
	sinkOpsTotal.WithLabelValues("create_channel", "ok").Inc()

	handle := ResourceHandle{WorkloadID: w.ID, Name: w.Name, ChannelID: channelID}
	r.handles[w.ID] = handle
	logger.Info("created channel", "workload", w.Name, "channel", channelID)

	r.emit(logger, model.NewWorkloadEvent(model.EventWorkloadCreated, w, "", r.config.HostID, r.config.AgentVersion))
	return handle, nil
}

// emit sends a lifecycle event without ever blocking reconciliation; if the
// queue is full the event is dropped and logged.
func (r *Reconciler) emit(logger logr.Logger, event model.WorkloadEvent) {
	if r.eventChan == nil {
		return
	}
	select {
	case r.eventChan <- event:
	default:
		logger.Info("event queue full, dropping event", "type", event.Type, "workload", event.WorkloadName)
	}
}

// Handles returns a copy of the resource handle map. Intended for tests and
// introspection only; the reconciler goroutine remains the sole writer.
func (r *Reconciler) Handles() map[string]ResourceHandle {
	out := make(map[string]ResourceHandle, len(r.handles))
	for id, h := range r.handles {
		out[id] = h
	}
	return out
}
