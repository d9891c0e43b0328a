// Package queue implements the in-memory work queue: the single source
// of truth for what needs doing and who is doing it. Assignment is
// first-come-first-served with a bounded retry policy. State lives in
// process memory only and is lost on restart.
package queue

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/fentz26/dispatch/internal/models"
	"github.com/rs/zerolog"
)

// MaxRetries is the number of failure reports after which an item is
// permanently failed.
const MaxRetries = 2

type itemKey struct {
	repository  string
	issueNumber int
}

// Queue manages work items for distributed workers. All methods are
// safe for concurrent use; a single mutex serializes mutations so the
// scan-then-assign in Next is atomic.
type Queue struct {
	mu    sync.Mutex
	items map[itemKey]*models.WorkItem
	order []itemKey // insertion order, drives FIFO assignment
	log   zerolog.Logger
}

// New creates an empty work queue.
func New(log zerolog.Logger) *Queue {
	return &Queue{
		items: make(map[itemKey]*models.WorkItem),
		log:   log,
	}
}

// Add inserts a new pending work item. Returns false without touching
// existing state when the (repository, issueNumber) key is already
// tracked, which makes repeated poll cycles idempotent.
func (q *Queue) Add(issueNumber int, title, body string, labels []string, repository string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	key := itemKey{repository: repository, issueNumber: issueNumber}
	if _, ok := q.items[key]; ok {
		q.log.Debug().Str("repository", repository).Int("issue", issueNumber).Msg("issue already in queue")
		return false
	}

	item := &models.WorkItem{
		IssueNumber: issueNumber,
		Repository:  repository,
		Title:       title,
		Body:        body,
		Labels:      append([]string(nil), labels...),
		BranchName:  models.BranchName(issueNumber),
		Status:      models.WorkStatusPending,
	}

	q.items[key] = item
	q.order = append(q.order, key)
	q.log.Info().Str("repository", repository).Int("issue", issueNumber).Str("title", title).Msg("added issue to work queue")
	return true
}

// Next returns the earliest-inserted pending item and atomically
// assigns it to workerID. Returns nil when no pending work exists;
// that is not an error.
func (q *Queue) Next(workerID string) *models.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, key := range q.order {
		item := q.items[key]
		if item == nil || item.Status != models.WorkStatusPending {
			continue
		}

		now := time.Now()
		item.Status = models.WorkStatusInProgress
		item.AssignedTo = workerID
		item.AssignedAt = &now

		q.log.Info().Str("repository", item.Repository).Int("issue", item.IssueNumber).Str("worker", workerID).Msg("assigned issue to worker")
		return copyItem(item)
	}
	return nil
}

// Complete records the outcome reported by a worker. On success the
// item becomes completed with its PR URL recorded; on failure the
// report is handled by the retry policy (see Fail). Returns a snapshot
// of the item after the transition, or false if the item is unknown or
// held by a different worker.
func (q *Queue) Complete(issueNumber int, workerID string, success bool, prURL, errMsg string) (*models.WorkItem, bool) {
	if !success {
		if errMsg == "" {
			errMsg = "worker reported failure"
		}
		return q.Fail(issueNumber, workerID, errMsg)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.owned(issueNumber, workerID, "complete")
	if !ok {
		return nil, false
	}

	now := time.Now()
	item.Status = models.WorkStatusCompleted
	item.CompletedAt = &now
	item.PRURL = prURL
	item.Error = ""

	q.log.Info().Str("repository", item.Repository).Int("issue", issueNumber).Str("worker", workerID).Str("pr_url", prURL).Msg("issue completed")
	return copyItem(item), true
}

// Fail records a failure report. The retry counter increments; once it
// reaches MaxRetries the item is permanently failed, otherwise it is
// released back to pending for the next Next call. No backoff at this
// layer: retries happen as fast as workers poll.
func (q *Queue) Fail(issueNumber int, workerID string, errMsg string) (*models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.owned(issueNumber, workerID, "fail")
	if !ok {
		return nil, false
	}

	item.RetryCount++

	if item.RetryCount >= MaxRetries {
		now := time.Now()
		item.Status = models.WorkStatusFailed
		item.CompletedAt = &now
		item.Error = fmt.Sprintf("max retries exceeded, last error: %s", errMsg)
		q.log.Warn().Str("repository", item.Repository).Int("issue", issueNumber).Int("retries", item.RetryCount).Msg("issue permanently failed")
		return copyItem(item), true
	}

	item.Status = models.WorkStatusPending
	item.AssignedTo = ""
	item.AssignedAt = nil
	item.Error = fmt.Sprintf("retry %d: %s", item.RetryCount, errMsg)
	q.log.Info().Str("repository", item.Repository).Int("issue", issueNumber).Int("retry", item.RetryCount).Int("max", MaxRetries).Msg("issue released for retry")
	return copyItem(item), true
}

// Release removes the item from the queue entirely, without a retry
// increment or terminal state. Used when the pipeline decides the
// issue needs human clarification; the poller re-adds it if the issue
// gets the trigger label again.
func (q *Queue) Release(issueNumber int, workerID string) (*models.WorkItem, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	item, ok := q.owned(issueNumber, workerID, "release")
	if !ok {
		return nil, false
	}

	key := itemKey{repository: item.Repository, issueNumber: item.IssueNumber}
	delete(q.items, key)
	for i, k := range q.order {
		if k == key {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}

	q.log.Info().Str("repository", item.Repository).Int("issue", issueNumber).Str("worker", workerID).Msg("issue removed from queue for clarification")
	return copyItem(item), true
}

// owned locates an item by issue number and verifies the caller holds
// it. The ownership check keeps a stale or duplicate reporter from
// overwriting another worker's in-flight result. Caller must hold the
// lock.
func (q *Queue) owned(issueNumber int, workerID, op string) (*models.WorkItem, bool) {
	var found *models.WorkItem
	for _, key := range q.order {
		item := q.items[key]
		if item == nil || item.IssueNumber != issueNumber {
			continue
		}
		found = item
		if item.AssignedTo == workerID {
			return item, true
		}
	}

	if found == nil {
		q.log.Error().Int("issue", issueNumber).Str("op", op).Msg("issue not found in queue")
		return nil, false
	}

	q.log.Warn().
		Int("issue", issueNumber).
		Str("worker", workerID).
		Str("assigned_to", found.AssignedTo).
		Str("op", op).
		Msg("rejected report from worker that does not hold the issue")
	return nil, false
}

// Has reports whether the (repository, issueNumber) key is tracked.
func (q *Queue) Has(repository string, issueNumber int) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.items[itemKey{repository: repository, issueNumber: issueNumber}]
	return ok
}

// PendingCount returns the number of pending items.
func (q *Queue) PendingCount() int {
	return q.countByStatus(models.WorkStatusPending)
}

// InProgressCount returns the number of assigned items.
func (q *Queue) InProgressCount() int {
	return q.countByStatus(models.WorkStatusInProgress)
}

// CompletedCount returns the number of successfully completed items.
func (q *Queue) CompletedCount() int {
	return q.countByStatus(models.WorkStatusCompleted)
}

func (q *Queue) countByStatus(status models.WorkStatus) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, item := range q.items {
		if item.Status == status {
			n++
		}
	}
	return n
}

// Pending returns a snapshot of pending items in insertion order.
func (q *Queue) Pending() []models.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []models.WorkItem
	for _, key := range q.order {
		if item := q.items[key]; item != nil && item.Status == models.WorkStatusPending {
			out = append(out, *copyItem(item))
		}
	}
	return out
}

// InProgress returns a snapshot of assigned items in insertion order.
func (q *Queue) InProgress() []models.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []models.WorkItem
	for _, key := range q.order {
		if item := q.items[key]; item != nil && item.Status == models.WorkStatusInProgress {
			out = append(out, *copyItem(item))
		}
	}
	return out
}

// Finished returns up to limit completed or permanently failed items,
// most recently finished first.
func (q *Queue) Finished(limit int) []models.WorkItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []models.WorkItem
	for _, item := range q.items {
		if item.Status == models.WorkStatusCompleted || item.Status == models.WorkStatusFailed {
			out = append(out, *copyItem(item))
		}
	}

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CompletedAt, out[j].CompletedAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// copyItem returns a defensive copy so callers never share the
// queue's internal pointers.
func copyItem(item *models.WorkItem) *models.WorkItem {
	cp := *item
	cp.Labels = append([]string(nil), item.Labels...)
	if item.AssignedAt != nil {
		t := *item.AssignedAt
		cp.AssignedAt = &t
	}
	if item.CompletedAt != nil {
		t := *item.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
