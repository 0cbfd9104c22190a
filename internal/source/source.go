package source

import (
	"context"
	"errors"

	"github.com/logpost-sh/agent/internal/model"
)

// Source is the workload inventory and log provider the poller reads from.
type Source interface {
	// ListWorkloads returns all current workloads. Entries with missing
	// required fields are skipped, not returned as errors.
	ListWorkloads(ctx context.Context) ([]model.Workload, error)

	// FetchLogTail returns the most recent tail of the workload's log
	// output, at most tail lines, in original order.
	FetchLogTail(ctx context.Context, id string, tail int) ([]model.LogChunk, error)
}

var (
	// ErrSourceUnavailable means the backing runtime cannot be reached;
	// the whole poll cycle is aborted and retried on the next interval.
	ErrSourceUnavailable = errors.New("workload source unavailable")

	// ErrWorkloadNotFound means the workload disappeared between listing
	// and the log fetch; treated as a non-fatal per-item failure.
	ErrWorkloadNotFound = errors.New("workload not found")
)
