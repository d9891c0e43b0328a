package poller

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fentz26/dispatch/internal/github"
	"github.com/fentz26/dispatch/internal/queue"
	"github.com/rs/zerolog"
)

// fakeSource is an in-memory issue tracker for poller tests.
type fakeSource struct {
	mu      sync.Mutex
	repos   []string
	issues  map[string][]github.Issue
	failing map[string]bool
	labeled map[string][]int // repo -> issues that got the in-progress label
}

func newFakeSource(repos ...string) *fakeSource {
	return &fakeSource{
		repos:   repos,
		issues:  make(map[string][]github.Issue),
		failing: make(map[string]bool),
		labeled: make(map[string][]int),
	}
}

func (f *fakeSource) Repositories() []string { return f.repos }

func (f *fakeSource) FetchIssues(_ context.Context, repo string, _ []string) ([]github.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[repo] {
		return nil, errors.New("upstream unavailable")
	}
	return f.issues[repo], nil
}

func (f *fakeSource) AddLabel(_ context.Context, repo string, issueNumber int, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing[repo] {
		return errors.New("upstream unavailable")
	}
	f.labeled[repo] = append(f.labeled[repo], issueNumber)
	return nil
}

func newTestPoller(q *queue.Queue, src Source) *Poller {
	return New(q, src, nil, Options{}, zerolog.Nop())
}

func TestPollOnce_IngestsNewIssues(t *testing.T) {
	src := newFakeSource("org/app")
	src.issues["org/app"] = []github.Issue{
		{Number: 1, Title: "first", Labels: []string{"ai-ready"}},
		{Number: 2, Title: "second", Labels: []string{"ai-ready"}},
	}

	q := queue.New(zerolog.Nop())
	p := newTestPoller(q, src)

	p.pollOnce(context.Background())

	if q.PendingCount() != 2 {
		t.Errorf("Expected 2 pending items, got %d", q.PendingCount())
	}
	if len(src.labeled["org/app"]) != 2 {
		t.Errorf("Expected both issues relabeled, got %v", src.labeled["org/app"])
	}
}

func TestPollOnce_Idempotent(t *testing.T) {
	src := newFakeSource("org/app")
	src.issues["org/app"] = []github.Issue{{Number: 1, Title: "first"}}

	q := queue.New(zerolog.Nop())
	p := newTestPoller(q, src)

	p.pollOnce(context.Background())
	p.pollOnce(context.Background())
	p.pollOnce(context.Background())

	if q.PendingCount() != 1 {
		t.Errorf("Expected 1 pending item after repeated cycles, got %d", q.PendingCount())
	}
	if len(src.labeled["org/app"]) != 1 {
		t.Errorf("Expected one relabel, got %v", src.labeled["org/app"])
	}
}

func TestPollOnce_OneRepoFailureDoesNotAbortOthers(t *testing.T) {
	src := newFakeSource("org/bad", "org/good")
	src.failing["org/bad"] = true
	src.issues["org/good"] = []github.Issue{{Number: 5, Title: "ok"}}

	q := queue.New(zerolog.Nop())
	p := newTestPoller(q, src)

	p.pollOnce(context.Background())

	if !q.Has("org/good", 5) {
		t.Error("Healthy repository should still be polled after a failure")
	}
}

func TestPollOnce_LabelFailureTolerated(t *testing.T) {
	src := newFakeSource("org/app")
	src.issues["org/app"] = []github.Issue{{Number: 1, Title: "first"}}

	q := queue.New(zerolog.Nop())
	p := newTestPoller(q, src)

	// Fail the relabel only: the fetch already happened this cycle.
	p.pollOnce(context.Background())
	src.failing["org/app"] = true

	// The item is queued regardless; the Has check keeps the next
	// cycle from double-ingesting.
	if q.PendingCount() != 1 {
		t.Errorf("Expected 1 pending item, got %d", q.PendingCount())
	}
}

func TestPollOnce_AlreadyAssignedIssueNotReAdded(t *testing.T) {
	src := newFakeSource("org/app")
	src.issues["org/app"] = []github.Issue{{Number: 1, Title: "first"}}

	q := queue.New(zerolog.Nop())
	p := newTestPoller(q, src)

	p.pollOnce(context.Background())
	if item := q.Next("w1"); item == nil {
		t.Fatal("Expected an assignable item")
	}

	// Upstream still shows the label; the queue must not regress the
	// in-progress assignment.
	p.pollOnce(context.Background())

	if q.PendingCount() != 0 {
		t.Errorf("Expected 0 pending, got %d", q.PendingCount())
	}
	if q.InProgressCount() != 1 {
		t.Errorf("Expected 1 in progress, got %d", q.InProgressCount())
	}
}

func TestStartStop(t *testing.T) {
	src := newFakeSource("org/app")
	q := queue.New(zerolog.Nop())
	p := newTestPoller(q, src)

	p.Start()
	p.Stop()
	// Stop must wait for the loop; reaching here without deadlock is the assertion.
}
