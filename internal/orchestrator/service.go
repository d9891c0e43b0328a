// Package orchestrator composes the work queue, worker liveness
// tracker and PR review tracker into the request handlers workers and
// reviewers call. Components are constructed once at startup and
// injected; there is no global state.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/fentz26/dispatch/internal/audit"
	"github.com/fentz26/dispatch/internal/models"
	"github.com/fentz26/dispatch/internal/queue"
	"github.com/fentz26/dispatch/internal/review"
	"github.com/fentz26/dispatch/internal/store"
	"github.com/fentz26/dispatch/internal/workers"
	"github.com/rs/zerolog"
)

// IssueTracker is the slice of the upstream tracker the service uses
// for best-effort issue updates. A nil tracker disables them.
type IssueTracker interface {
	AddLabel(ctx context.Context, repo string, issueNumber int, label string) error
	RemoveLabel(ctx context.Context, repo string, issueNumber int, label string) error
	AddComment(ctx context.Context, repo string, issueNumber int, body string) error
}

// Labels names the upstream labels the service maintains on issues.
type Labels struct {
	InProgress string
	Completed  string
	Failed     string
}

// DefaultLabels returns the conventional label set.
func DefaultLabels() Labels {
	return Labels{
		InProgress: "ai-in-progress",
		Completed:  "ai-completed",
		Failed:     "ai-failed",
	}
}

// Service provides the orchestrator business logic.
type Service struct {
	queue   *queue.Queue
	workers *workers.Tracker
	review  *review.Tracker
	tracker IssueTracker
	events  *store.Store
	rec     *audit.Recorder
	labels  Labels
	log     zerolog.Logger
}

// NewService wires the orchestrator facade. tracker and events may be
// nil (no upstream updates, no audit log).
func NewService(q *queue.Queue, w *workers.Tracker, r *review.Tracker, tracker IssueTracker, events *store.Store, rec *audit.Recorder, labels Labels, log zerolog.Logger) *Service {
	return &Service{
		queue:   q,
		workers: w,
		review:  r,
		tracker: tracker,
		events:  events,
		rec:     rec,
		labels:  labels,
		log:     log,
	}
}

// WorkResponse is the answer to a worker's poll for work.
type WorkResponse struct {
	Available bool             `json:"work_available"`
	Blocked   bool             `json:"blocked"`
	Reason    string           `json:"reason,omitempty"`
	Item      *models.WorkItem `json:"item,omitempty"`
}

// RequestWork hands the calling worker the next pending item, unless
// the review tracker blocks the queue. Liveness is updated first, and
// blocking is checked before dequeue so an item is never handed out
// only to violate the backpressure policy.
func (s *Service) RequestWork(workerID string) WorkResponse {
	s.workers.UpdateActivity(workerID, 0)

	if s.review.ShouldBlock("") {
		reason := s.review.BlockingReason("")
		s.log.Debug().Str("worker", workerID).Str("reason", reason).Msg("queue blocked, no work handed out")
		return WorkResponse{Blocked: true, Reason: reason}
	}

	item := s.queue.Next(workerID)
	if item == nil {
		return WorkResponse{}
	}

	s.workers.UpdateActivity(workerID, item.IssueNumber)
	s.rec.Record("work.assigned", item.Repository, item.IssueNumber, workerID, item.Title)
	return WorkResponse{Available: true, Item: item}
}

// ReportComplete records a worker's completion report. Successful
// completions register the new PR with the review tracker and update
// the upstream issue best-effort. A success=false report goes through
// the queue's retry policy like ReportFailed.
func (s *Service) ReportComplete(ctx context.Context, workerID string, issueNumber int, prURL string, success bool, errMsg string) bool {
	item, ok := s.queue.Complete(issueNumber, workerID, success, prURL, errMsg)
	if !ok {
		return false
	}

	s.workers.UpdateActivity(workerID, 0)

	if !success {
		s.afterFailure(ctx, item, workerID, errMsg)
		return true
	}

	s.review.AddPending(issueNumber, prURL, item.Repository, workerID, nil)
	s.rec.Record("work.completed", item.Repository, issueNumber, workerID, prURL)

	if s.tracker != nil {
		comment := fmt.Sprintf("Implementation completed.\n\nPull request: %s\nCompleted by: %s", prURL, workerID)
		if err := s.tracker.AddComment(ctx, item.Repository, issueNumber, comment); err != nil {
			s.log.Error().Err(err).Str("repository", item.Repository).Int("issue", issueNumber).Msg("failed to comment on issue")
		}
		if err := s.tracker.AddLabel(ctx, item.Repository, issueNumber, s.labels.Completed); err != nil {
			s.log.Error().Err(err).Str("repository", item.Repository).Int("issue", issueNumber).Msg("failed to add completed label")
		}
		if err := s.tracker.RemoveLabel(ctx, item.Repository, issueNumber, s.labels.InProgress); err != nil {
			s.log.Error().Err(err).Str("repository", item.Repository).Int("issue", issueNumber).Msg("failed to remove in-progress label")
		}
	}
	return true
}

// ReportFailed records a worker's failure report and runs the retry
// policy.
func (s *Service) ReportFailed(ctx context.Context, workerID string, issueNumber int, errMsg string) bool {
	item, ok := s.queue.Fail(issueNumber, workerID, errMsg)
	if !ok {
		return false
	}

	s.workers.UpdateActivity(workerID, 0)
	s.afterFailure(ctx, item, workerID, errMsg)
	return true
}

// afterFailure records the failure and, on a terminal failure, flags
// the upstream issue for manual intervention.
func (s *Service) afterFailure(ctx context.Context, item *models.WorkItem, workerID, errMsg string) {
	s.rec.Record("work.failed", item.Repository, item.IssueNumber, workerID, errMsg)

	if item.Status != models.WorkStatusFailed || s.tracker == nil {
		return
	}

	comment := fmt.Sprintf("Implementation failed after %d attempts.\n\nLast error: %s\nWorker: %s\n\nManual intervention required.", item.RetryCount, errMsg, workerID)
	if err := s.tracker.AddComment(ctx, item.Repository, item.IssueNumber, comment); err != nil {
		s.log.Error().Err(err).Str("repository", item.Repository).Int("issue", item.IssueNumber).Msg("failed to comment on issue")
	}
	if err := s.tracker.AddLabel(ctx, item.Repository, item.IssueNumber, s.labels.Failed); err != nil {
		s.log.Error().Err(err).Str("repository", item.Repository).Int("issue", item.IssueNumber).Msg("failed to add failed label")
	}
	if err := s.tracker.RemoveLabel(ctx, item.Repository, item.IssueNumber, s.labels.InProgress); err != nil {
		s.log.Error().Err(err).Str("repository", item.Repository).Int("issue", item.IssueNumber).Msg("failed to remove in-progress label")
	}
}

// ReleaseWork drops the item from the queue entirely (the
// needs-clarification path). The issue returns once a human re-labels
// it upstream.
func (s *Service) ReleaseWork(workerID string, issueNumber int) bool {
	item, ok := s.queue.Release(issueNumber, workerID)
	if !ok {
		return false
	}

	s.workers.UpdateActivity(workerID, 0)
	s.rec.Record("work.released", item.Repository, issueNumber, workerID, "needs clarification")
	return true
}

// ReviewApproved handles an external reviewer approving a PR.
func (s *Service) ReviewApproved(issueNumber int) {
	s.review.MarkApproved(issueNumber)
	s.rec.Record("pr.approved", "", issueNumber, "", "")
}

// ReviewChangesRequested handles an external reviewer requesting changes.
func (s *Service) ReviewChangesRequested(issueNumber int) {
	s.review.MarkChangesRequested(issueNumber)
	s.rec.Record("pr.changes_requested", "", issueNumber, "", "")
}

// ReviewMerged handles a PR merge notification.
func (s *Service) ReviewMerged(issueNumber int) {
	s.review.MarkMerged(issueNumber)
	s.rec.Record("pr.merged", "", issueNumber, "", "")
}

// WorkerCounts summarizes worker liveness.
type WorkerCounts struct {
	Total     int `json:"total"`
	Available int `json:"available"`
}

// QueueCounts summarizes queue occupancy.
type QueueCounts struct {
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
}

// HealthStatus is the aggregate view across all components.
type HealthStatus struct {
	Status         string       `json:"status"`
	Audit          string       `json:"audit"`
	Workers        WorkerCounts `json:"workers"`
	Queue          QueueCounts  `json:"queue"`
	Blocked        bool         `json:"blocked"`
	BlockingReason string       `json:"blocking_reason,omitempty"`
}

// Health reports the aggregate service state, including whether the
// audit event log is reachable.
func (s *Service) Health(ctx context.Context) HealthStatus {
	status := "healthy"
	auditState := "disabled"
	if s.events != nil {
		auditState = "ok"
		if err := s.events.Ping(ctx); err != nil {
			s.log.Error().Err(err).Msg("audit store unreachable")
			auditState = "unavailable"
			status = "degraded"
		}
	}

	reviewStatus := s.review.CurrentStatus()
	return HealthStatus{
		Status: status,
		Audit:  auditState,
		Workers: WorkerCounts{
			Total:     s.workers.ActiveCount(),
			Available: s.workers.AvailableCount(),
		},
		Queue: QueueCounts{
			Pending:    s.queue.PendingCount(),
			InProgress: s.queue.InProgressCount(),
			Completed:  s.queue.CompletedCount(),
		},
		Blocked:        reviewStatus.Blocked,
		BlockingReason: reviewStatus.BlockingReason,
	}
}

// QueueSnapshot lists queue contents for observability.
type QueueSnapshot struct {
	Pending    []models.WorkItem `json:"pending"`
	InProgress []models.WorkItem `json:"in_progress"`
	Finished   []models.WorkItem `json:"finished"`
}

// Queue returns a read-only snapshot of the queue.
func (s *Service) Queue() QueueSnapshot {
	return QueueSnapshot{
		Pending:    s.queue.Pending(),
		InProgress: s.queue.InProgress(),
		Finished:   s.queue.Finished(10),
	}
}

// WorkerInfo is one worker's tracked state plus the liveness verdict.
type WorkerInfo struct {
	models.TrackedWorker
	Active bool `json:"active"`
}

// Workers lists every tracked worker with its liveness flag.
func (s *Service) Workers() []WorkerInfo {
	active := s.workers.Active()
	all := s.workers.All()

	out := make([]WorkerInfo, 0, len(all))
	for id, w := range all {
		_, isActive := active[id]
		out = append(out, WorkerInfo{TrackedWorker: w, Active: isActive})
	}
	return out
}

// CleanupWorkers purges workers unseen for the given number of days.
func (s *Service) CleanupWorkers(days int) int {
	removed := s.workers.CleanupStale(days)
	if removed > 0 {
		s.rec.Record("workers.cleanup", "", 0, "", fmt.Sprintf("removed %d stale workers", removed))
	}
	return removed
}

// PRStatus combines the review tracker summary with pending PR details.
type PRStatus struct {
	review.Status
	Pending []models.PendingPR `json:"pending"`
}

// PendingPRs returns the review tracker view.
func (s *Service) PendingPRs() PRStatus {
	return PRStatus{
		Status:  s.review.CurrentStatus(),
		Pending: s.review.PendingDetails(),
	}
}

// Events returns recent audit events, newest first. Returns nil when
// auditing is disabled.
func (s *Service) Events(action string, limit int) ([]models.Event, error) {
	if s.events == nil {
		return nil, nil
	}
	return s.events.RecentEvents(action, limit)
}

// RequeueOrphans releases items stuck in progress because their worker
// vanished without reporting. An item is orphaned when its assignment
// is older than olderThan and the assigned worker has aged out of the
// liveness tracker. Requeueing goes through the failure path so the
// retry budget still bounds total attempts.
func (s *Service) RequeueOrphans(olderThan time.Duration) int {
	active := s.workers.Active()
	cutoff := time.Now().Add(-olderThan)

	requeued := 0
	for _, item := range s.queue.InProgress() {
		if item.AssignedAt == nil || item.AssignedAt.After(cutoff) {
			continue
		}
		if _, ok := active[item.AssignedTo]; ok {
			continue
		}
		if _, ok := s.queue.Fail(item.IssueNumber, item.AssignedTo, "worker lost: assignment orphaned"); ok {
			s.rec.Record("work.orphan_requeued", item.Repository, item.IssueNumber, item.AssignedTo, "")
			s.log.Warn().Str("repository", item.Repository).Int("issue", item.IssueNumber).Str("worker", item.AssignedTo).Msg("requeued orphaned assignment")
			requeued++
		}
	}
	return requeued
}
