package queue

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fentz26/dispatch/internal/models"
	"github.com/rs/zerolog"
)

func newTestQueue() *Queue {
	return New(zerolog.Nop())
}

func TestAdd(t *testing.T) {
	q := newTestQueue()

	if !q.Add(42, "Add dark mode", "body", []string{"ai-ready"}, "org/app") {
		t.Fatal("Add should return true for a new item")
	}
	if q.PendingCount() != 1 {
		t.Errorf("Expected 1 pending item, got %d", q.PendingCount())
	}
	if !q.Has("org/app", 42) {
		t.Error("Has should report the item as tracked")
	}
}

func TestAdd_DuplicateIsNoOp(t *testing.T) {
	q := newTestQueue()

	q.Add(42, "original title", "original body", []string{"ai-ready"}, "org/app")
	if q.Add(42, "new title", "new body", nil, "org/app") {
		t.Error("Add should return false for an existing key")
	}
	if q.PendingCount() != 1 {
		t.Errorf("Expected 1 pending item after duplicate add, got %d", q.PendingCount())
	}

	// Only the first call's attributes are retained.
	item := q.Next("w1")
	if item.Title != "original title" {
		t.Errorf("Expected original title to be retained, got %q", item.Title)
	}
}

func TestAdd_SameIssueDifferentRepos(t *testing.T) {
	q := newTestQueue()

	if !q.Add(7, "a", "", nil, "org/app") {
		t.Fatal("Add to org/app failed")
	}
	if !q.Add(7, "b", "", nil, "org/lib") {
		t.Error("same issue number in another repository should be a distinct key")
	}
	if q.PendingCount() != 2 {
		t.Errorf("Expected 2 pending items, got %d", q.PendingCount())
	}
}

func TestNext_FIFO(t *testing.T) {
	q := newTestQueue()

	q.Add(1, "A", "", nil, "org/app")
	q.Add(2, "B", "", nil, "org/app")
	q.Add(3, "C", "", nil, "org/app")

	for _, want := range []int{1, 2, 3} {
		item := q.Next("w1")
		if item == nil {
			t.Fatalf("Expected item #%d, got nil", want)
		}
		if item.IssueNumber != want {
			t.Errorf("Expected issue #%d, got #%d", want, item.IssueNumber)
		}
	}

	if item := q.Next("w1"); item != nil {
		t.Errorf("Expected nil when queue is drained, got #%d", item.IssueNumber)
	}
}

func TestNext_AssignsAndTransitions(t *testing.T) {
	q := newTestQueue()
	q.Add(5, "title", "", nil, "org/app")

	item := q.Next("w1")
	if item == nil {
		t.Fatal("Expected an item")
	}
	if item.Status != models.WorkStatusInProgress {
		t.Errorf("Expected in_progress, got %s", item.Status)
	}
	if item.AssignedTo != "w1" {
		t.Errorf("Expected assigned to w1, got %q", item.AssignedTo)
	}
	if item.AssignedAt == nil {
		t.Error("Expected AssignedAt to be set")
	}
	if item.BranchName != "ai-feature/issue-5" {
		t.Errorf("Unexpected branch name %q", item.BranchName)
	}
	if q.PendingCount() != 0 || q.InProgressCount() != 1 {
		t.Errorf("Expected 0 pending / 1 in progress, got %d / %d", q.PendingCount(), q.InProgressCount())
	}
}

func TestNext_NoDoubleDequeue(t *testing.T) {
	q := newTestQueue()

	const n = 50
	for i := 1; i <= n; i++ {
		q.Add(i, fmt.Sprintf("issue %d", i), "", nil, "org/app")
	}

	var mu sync.Mutex
	seen := make(map[int]string)

	var wg sync.WaitGroup
	for w := 0; w < n; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			workerID := fmt.Sprintf("w%d", w)
			item := q.Next(workerID)
			if item == nil {
				return
			}
			mu.Lock()
			if prev, dup := seen[item.IssueNumber]; dup {
				t.Errorf("issue #%d handed to both %s and %s", item.IssueNumber, prev, workerID)
			}
			seen[item.IssueNumber] = workerID
			mu.Unlock()
		}(w)
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("Expected %d distinct assignments, got %d", n, len(seen))
	}
	if q.InProgressCount() != n {
		t.Errorf("Expected %d in progress, got %d", n, q.InProgressCount())
	}
}

func TestComplete_Success(t *testing.T) {
	q := newTestQueue()
	q.Add(42, "t", "", nil, "org/app")
	q.Next("w1")

	if _, ok := q.Complete(42, "w1", true, "https://github.com/org/app/pull/9", ""); !ok {
		t.Fatal("Complete should succeed for the assigned worker")
	}
	if q.CompletedCount() != 1 {
		t.Errorf("Expected 1 completed, got %d", q.CompletedCount())
	}

	finished := q.Finished(10)
	if len(finished) != 1 {
		t.Fatalf("Expected 1 finished item, got %d", len(finished))
	}
	if finished[0].PRURL != "https://github.com/org/app/pull/9" {
		t.Errorf("Unexpected PR URL %q", finished[0].PRURL)
	}
	if finished[0].CompletedAt == nil {
		t.Error("Expected CompletedAt to be set")
	}
}

func TestComplete_OwnershipEnforced(t *testing.T) {
	q := newTestQueue()
	q.Add(42, "t", "", nil, "org/app")
	q.Next("w1")

	if _, ok := q.Complete(42, "w2", true, "https://example.com/pr/1", ""); ok {
		t.Error("Complete should reject a worker that does not hold the item")
	}
	if q.InProgressCount() != 1 {
		t.Error("State should be unchanged after a rejected report")
	}
	if q.CompletedCount() != 0 {
		t.Error("Nothing should be completed after a rejected report")
	}
}

func TestComplete_NotFound(t *testing.T) {
	q := newTestQueue()
	if _, ok := q.Complete(999, "w1", true, "", ""); ok {
		t.Error("Complete should return false for an unknown issue")
	}
}

func TestFail_ReleasesForRetry(t *testing.T) {
	q := newTestQueue()
	q.Add(42, "t", "", nil, "org/app")
	q.Next("w1")

	// MaxRetries-1 failures leave the item pending and re-dequeueable.
	if _, ok := q.Fail(42, "w1", "boom"); !ok {
		t.Fatal("Fail should succeed for the assigned worker")
	}
	if q.PendingCount() != 1 {
		t.Errorf("Expected item back in pending, got %d pending", q.PendingCount())
	}

	item := q.Next("w2")
	if item == nil {
		t.Fatal("Expected item to be re-dequeueable")
	}
	if item.RetryCount != 1 {
		t.Errorf("Expected retry count 1, got %d", item.RetryCount)
	}
}

func TestFail_TerminalAfterMaxRetries(t *testing.T) {
	q := newTestQueue()
	q.Add(42, "t", "", nil, "org/app")

	for i := 0; i < MaxRetries; i++ {
		item := q.Next("w1")
		if item == nil {
			t.Fatalf("Expected item on attempt %d", i+1)
		}
		if _, ok := q.Fail(42, "w1", "boom"); !ok {
			t.Fatalf("Fail %d should succeed", i+1)
		}
	}

	if q.PendingCount() != 0 {
		t.Error("Permanently failed item should not be pending")
	}

	finished := q.Finished(10)
	if len(finished) != 1 {
		t.Fatalf("Expected 1 finished item, got %d", len(finished))
	}
	got := finished[0]
	if got.Status != models.WorkStatusFailed {
		t.Errorf("Expected failed status, got %s", got.Status)
	}
	if got.RetryCount != MaxRetries {
		t.Errorf("Expected retry count %d, got %d", MaxRetries, got.RetryCount)
	}
	if got.Error == "" {
		t.Error("Expected a composed error message")
	}
}

func TestComplete_FailureDelegatesToRetryPolicy(t *testing.T) {
	q := newTestQueue()
	q.Add(42, "t", "", nil, "org/app")
	q.Next("w1")

	if _, ok := q.Complete(42, "w1", false, "", "pipeline rejected"); !ok {
		t.Fatal("Complete with success=false should be accepted")
	}
	// One failure with MaxRetries=2 releases the item, not terminal.
	if q.PendingCount() != 1 {
		t.Errorf("Expected item released to pending, got %d pending", q.PendingCount())
	}
}

func TestRelease_RemovesEntirely(t *testing.T) {
	q := newTestQueue()
	q.Add(42, "t", "", nil, "org/app")
	q.Next("w1")

	if _, ok := q.Release(42, "w1"); !ok {
		t.Fatal("Release should succeed for the assigned worker")
	}
	if q.Has("org/app", 42) {
		t.Error("Released item should no longer be tracked")
	}
	if q.PendingCount() != 0 || q.InProgressCount() != 0 {
		t.Error("Released item should not appear in any count")
	}

	// The poller can re-add it later.
	if !q.Add(42, "t", "", nil, "org/app") {
		t.Error("Re-adding a released issue should succeed")
	}
}

func TestRelease_OwnershipEnforced(t *testing.T) {
	q := newTestQueue()
	q.Add(42, "t", "", nil, "org/app")
	q.Next("w1")

	if _, ok := q.Release(42, "w2"); ok {
		t.Error("Release should reject a worker that does not hold the item")
	}
	if !q.Has("org/app", 42) {
		t.Error("Item should still be tracked after rejected release")
	}
}

func TestSnapshotsDoNotAliasInternalState(t *testing.T) {
	q := newTestQueue()
	q.Add(1, "t", "", []string{"ai-ready"}, "org/app")

	pending := q.Pending()
	pending[0].Title = "mutated"
	pending[0].Labels[0] = "mutated"

	item := q.Next("w1")
	if item.Title != "t" || item.Labels[0] != "ai-ready" {
		t.Error("Mutating a snapshot should not affect queue state")
	}
}
