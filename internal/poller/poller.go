package poller

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/logpost-sh/agent/internal/filter"
	"github.com/logpost-sh/agent/internal/model"
	"github.com/logpost-sh/agent/internal/snapshot"
	"github.com/logpost-sh/agent/internal/source"
)

var (
	pollCyclesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "logpost_poll_cycles_total",
		Help: "Poll cycles by outcome",
	}, []string{"outcome"})

	workloadsObserved = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "logpost_workloads_observed",
		Help: "Number of workloads in the most recently published snapshot",
	})

	metricsRegistered = false
)

// Config holds configuration for the poller.
type Config struct {
	// Interval between poll cycles.
	Interval time.Duration
	// TailLines is the log tail length requested per workload.
	TailLines int
	// CallTimeout bounds each individual call to the workload source.
	CallTimeout time.Duration
}

// DefaultConfig returns the default poller configuration.
func DefaultConfig() Config {
	return Config{
		Interval:    30 * time.Second,
		TailLines:   40,
		CallTimeout: 20 * time.Second,
	}
}

// Poller periodically reads the full workload set plus per-workload log tails
// from the source and publishes a complete replacement snapshot. It is the
// only writer of the shared workload map.
type Poller struct {
	config Config
	src    source.Source
	state  *snapshot.State
	filter *filter.WorkloadFilter
}

// New creates a poller. A nil filter mirrors everything.
func New(config Config, src source.Source, state *snapshot.State, f *filter.WorkloadFilter) *Poller {
	if !metricsRegistered {
		prometheus.MustRegister(pollCyclesTotal, workloadsObserved)
		metricsRegistered = true
	}
	if f == nil {
		f = filter.New(filter.Config{})
	}
	return &Poller{
		config: config,
		src:    src,
		state:  state,
		filter: f,
	}
}

// Start runs the poll loop until the context is cancelled. A failed cycle is
// logged and leaves the shared snapshot unchanged; the loop always sleeps and
// retries. No error escapes the loop.
func (p *Poller) Start(ctx context.Context) {
	logger := logr.FromContextOrDiscard(ctx).WithName("poller")
	logger.Info("Starting poller", "interval", p.config.Interval, "tail", p.config.TailLines)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		if err := p.cycle(ctx); err != nil {
			pollCyclesTotal.WithLabelValues("error").Inc()
			logger.Error(err, "poll cycle failed, retrying next interval")
		} else {
			pollCyclesTotal.WithLabelValues("ok").Inc()
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			logger.Info("Poller stopped")
			return
		}
	}
}

// cycle builds one brand-new workload map and publishes it. A log-fetch
// failure for a single workload is logged and that workload keeps an empty
// tail; only a listing failure aborts the cycle.
func (p *Poller) cycle(ctx context.Context) error {
	logger := logr.FromContextOrDiscard(ctx).WithName("poller")

	listCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
	workloads, err := p.src.ListWorkloads(listCtx)
	cancel()
	if err != nil {
		return err
	}

	current := make(map[string]model.Workload, len(workloads))
	for _, w := range workloads {
		if !p.filter.MatchName(w.Name) || !p.filter.MatchLabels(w.Labels) {
			continue
		}

		logCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout)
		tail, err := p.src.FetchLogTail(logCtx, w.ID, p.config.TailLines)
		cancel()
		if err != nil {
			logger.Info("log fetch failed, mirroring without tail",
				"workload", w.Name, "id", w.ID, "reason", err.Error())
		}
		w.LogTail = tail

		current[w.ID] = w
	}

	p.state.Publish(current)
	workloadsObserved.Set(float64(len(current)))

	names := make([]string, 0, len(current))
	for _, w := range current {
		names = append(names, w.Name)
	}
	logger.Info("published snapshot", "workloads", names)

	return nil
}
