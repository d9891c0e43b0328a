// Package audit records state-mutating orchestrator actions to the
// event log.
package audit

import (
	"github.com/fentz26/dispatch/internal/store"
	"github.com/rs/zerolog"
)

// Recorder writes audit events for state-mutating actions. A nil
// Recorder or a Recorder without a store drops events silently, so
// callers never need to guard their Record calls.
type Recorder struct {
	store *store.Store
	log   zerolog.Logger
}

// NewRecorder creates a recorder backed by the given store. The store
// may be nil when auditing is disabled.
func NewRecorder(s *store.Store, log zerolog.Logger) *Recorder {
	return &Recorder{store: s, log: log}
}

// Record appends one event. Write failures are logged, never
// propagated: the audit trail must not break request handling.
func (r *Recorder) Record(action, repository string, issueNumber int, workerID, details string) {
	if r == nil || r.store == nil {
		return
	}
	if _, err := r.store.WriteEvent(action, repository, issueNumber, workerID, details); err != nil {
		r.log.Error().Err(err).Str("action", action).Msg("failed to write audit event")
	}
}
