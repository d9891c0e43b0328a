// Package workers tracks worker liveness through self-reported
// activity. Workers never run a server or accept health checks; a
// worker is alive iff it called the orchestrator recently. This suits
// workers behind NAT or in ephemeral containers.
package workers

import (
	"sync"
	"time"

	"github.com/fentz26/dispatch/internal/models"
	"github.com/rs/zerolog"
)

// DefaultTimeout is how long a worker stays "active" after its last call.
const DefaultTimeout = 5 * time.Minute

// Tracker records self-registered workers and their last activity.
type Tracker struct {
	mu      sync.Mutex
	workers map[string]*models.TrackedWorker
	timeout time.Duration
	now     func() time.Time // swapped in tests
	log     zerolog.Logger
}

// New creates a worker tracker. A non-positive timeout falls back to
// DefaultTimeout.
func New(timeout time.Duration, log zerolog.Logger) *Tracker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Tracker{
		workers: make(map[string]*models.TrackedWorker),
		timeout: timeout,
		now:     time.Now,
		log:     log,
	}
}

// UpdateActivity is the only write operation. It auto-registers unknown
// workers, refreshes lastSeen unconditionally, and tracks the current
// task. taskNumber 0 means the worker reports itself idle. TotalTasks
// counts distinct task assignments, not calls.
func (t *Tracker) UpdateActivity(workerID string, taskNumber int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	w, ok := t.workers[workerID]
	if !ok {
		w = &models.TrackedWorker{
			WorkerID:  workerID,
			FirstSeen: now,
		}
		t.workers[workerID] = w
		t.log.Info().Str("worker", workerID).Msg("new worker registered")
	}

	w.LastSeen = now

	if taskNumber != 0 {
		if w.CurrentTask != taskNumber {
			w.CurrentTask = taskNumber
			w.TotalTasks++
		}
	} else {
		w.CurrentTask = 0
	}
}

// Active returns workers seen within the timeout window.
func (t *Tracker) Active() map[string]models.TrackedWorker {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	active := make(map[string]models.TrackedWorker)
	for id, w := range t.workers {
		if now.Sub(w.LastSeen) < t.timeout {
			active[id] = *w
		}
	}
	return active
}

// ActiveCount returns the number of active workers.
func (t *Tracker) ActiveCount() int {
	return len(t.Active())
}

// AvailableCount returns the number of active workers with no current task.
func (t *Tracker) AvailableCount() int {
	n := 0
	for _, w := range t.Active() {
		if w.CurrentTask == 0 {
			n++
		}
	}
	return n
}

// All returns every worker ever seen, including inactive ones. Stale
// workers are kept for reporting until CleanupStale is invoked.
func (t *Tracker) All() map[string]models.TrackedWorker {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]models.TrackedWorker, len(t.workers))
	for id, w := range t.workers {
		out[id] = *w
	}
	return out
}

// CleanupStale removes workers not seen in the given number of days and
// returns how many were removed. Operator-invoked, never automatic.
func (t *Tracker) CleanupStale(days int) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := time.Duration(days) * 24 * time.Hour
	now := t.now()

	removed := 0
	for id, w := range t.workers {
		if now.Sub(w.LastSeen) > cutoff {
			delete(t.workers, id)
			removed++
			t.log.Info().Str("worker", id).Msg("removed stale worker")
		}
	}
	return removed
}
