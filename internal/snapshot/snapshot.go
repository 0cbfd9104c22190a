package snapshot

import (
	"sync"

	"github.com/logpost-sh/agent/internal/model"
)

// State is the single piece of mutable state shared between the poller and the
// reconciler: the most recently published workload map plus the set of workload
// ids that disappeared since an earlier publish and still await cleanup.
//
// The lock guards in-memory map operations only; callers never hold it across
// network calls. The poller is the sole writer of the workload map; the
// reconciler is the sole consumer of pending removals.
type State struct {
	mu              sync.Mutex
	workloads       map[string]model.Workload
	pendingRemovals map[string]struct{}
}

func New() *State {
	return &State{
		workloads:       make(map[string]model.Workload),
		pendingRemovals: make(map[string]struct{}),
	}
}

// Publish installs a full replacement workload map. Ids present in the previous
// map but absent from the new one are unioned into the pending removal set, so
// removals survive across publishes until the reconciler drains them. An id
// that reappears before being drained is pruned from the set: the pending
// removal set only ever holds ids absent from the map just installed.
func (s *State) Publish(workloads map[string]model.Workload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.workloads {
		if _, ok := workloads[id]; !ok {
			s.pendingRemovals[id] = struct{}{}
		}
	}
	for id := range s.pendingRemovals {
		if _, ok := workloads[id]; ok {
			delete(s.pendingRemovals, id)
		}
	}
	s.workloads = workloads
}

// Workloads returns a point-in-time copy of the current workload map. The copy
// is safe to iterate while the poller publishes new snapshots.
func (s *State) Workloads() map[string]model.Workload {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]model.Workload, len(s.workloads))
	for id, w := range s.workloads {
		out[id] = w
	}
	return out
}

// DrainRemovals returns the pending removal ids and clears the set. A second
// call without an intervening Publish returns nothing.
func (s *State) DrainRemovals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pendingRemovals) == 0 {
		return nil
	}
	ids := make([]string, 0, len(s.pendingRemovals))
	for id := range s.pendingRemovals {
		ids = append(ids, id)
	}
	s.pendingRemovals = make(map[string]struct{})
	return ids
}

// IDs returns the ids of the current workload map.
func (s *State) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.workloads))
	for id := range s.workloads {
		ids = append(ids, id)
	}
	return ids
}
