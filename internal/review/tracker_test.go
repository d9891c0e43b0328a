package review

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func newTestTracker(opts Options) *Tracker {
	return New(opts, zerolog.Nop())
}

func addPRs(t *Tracker, repo string, nums ...int) {
	for _, n := range nums {
		t.AddPending(n, fmt.Sprintf("https://github.com/%s/pull/%d", repo, n), repo, "w1", nil)
	}
}

func TestShouldBlock_PendingLimit(t *testing.T) {
	tr := newTestTracker(Options{MaxPendingPRs: 3, BlockOnChangesRequested: true, AllowParallelIndependent: true})

	addPRs(tr, "org/app", 1, 2)
	if tr.ShouldBlock("") {
		t.Error("Should not block below the pending limit")
	}

	addPRs(tr, "org/app", 3)
	if !tr.ShouldBlock("") {
		t.Error("Should block once the limit-th PR is added")
	}

	// Resolving any one pending PR unblocks immediately.
	tr.MarkApproved(2)
	if tr.ShouldBlock("") {
		t.Error("Should unblock after an approval")
	}

	addPRs(tr, "org/app", 4)
	if !tr.ShouldBlock("") {
		t.Error("Should block again at the limit")
	}
	tr.MarkMerged(1)
	if tr.ShouldBlock("") {
		t.Error("Should unblock after a merge")
	}
}

func TestShouldBlock_PerRepositoryScope(t *testing.T) {
	tr := newTestTracker(Options{MaxPendingPRs: 2, BlockOnChangesRequested: true, AllowParallelIndependent: true})

	addPRs(tr, "org/app", 1, 2)
	addPRs(tr, "org/lib", 10)

	if !tr.ShouldBlock("org/app") {
		t.Error("org/app should be blocked at its pending cap")
	}
	if tr.ShouldBlock("org/lib") {
		t.Error("org/lib is below the cap and should not be blocked")
	}
}

func TestShouldBlock_ChangesRequestedVeto(t *testing.T) {
	tr := newTestTracker(DefaultOptions())

	addPRs(tr, "org/app", 7)
	tr.MarkChangesRequested(7)

	// Pending count is 0 but the veto blocks everything.
	if !tr.ShouldBlock("") {
		t.Error("A single changes-requested PR should block the queue")
	}
	if !tr.ShouldBlock("org/other") {
		t.Error("The veto applies regardless of repository scope")
	}

	reason := tr.BlockingReason("")
	if !strings.Contains(reason, "#7") {
		t.Errorf("Blocking reason should name the issue, got %q", reason)
	}

	// Merge clears the veto even from the changes-requested state.
	tr.MarkMerged(7)
	if tr.ShouldBlock("") {
		t.Error("Merging the changes-requested PR should clear the block")
	}
}

func TestShouldBlock_ChangesRequestedDisabled(t *testing.T) {
	tr := newTestTracker(Options{MaxPendingPRs: 5, BlockOnChangesRequested: false, AllowParallelIndependent: true})

	addPRs(tr, "org/app", 7)
	tr.MarkChangesRequested(7)

	if tr.ShouldBlock("") {
		t.Error("Changes requested should not block when the option is off")
	}
}

func TestResubmissionClearsVeto(t *testing.T) {
	tr := newTestTracker(DefaultOptions())

	addPRs(tr, "org/app", 7)
	tr.MarkChangesRequested(7)
	if !tr.ShouldBlock("") {
		t.Fatal("Expected veto before resubmission")
	}

	// The pipeline resubmits: the issue moves back into pending.
	addPRs(tr, "org/app", 7)
	if tr.ShouldBlock("") {
		t.Error("Resubmitting the PR should clear the changes-requested veto")
	}
	st := tr.CurrentStatus()
	if st.Pending != 1 || st.ChangesRequested != 0 {
		t.Errorf("Expected 1 pending / 0 changes requested, got %d / %d", st.Pending, st.ChangesRequested)
	}
}

func TestCanWorkOn_DependencyGating(t *testing.T) {
	tr := newTestTracker(DefaultOptions())

	addPRs(tr, "org/app", 10)

	if tr.CanWorkOn(20, []int{10}) {
		t.Error("Should not work on an issue whose dependency has an unmerged PR")
	}
	if !tr.CanWorkOn(21, []int{99}) {
		t.Error("An untracked dependency counts as resolved")
	}
	if !tr.CanWorkOn(22, nil) {
		t.Error("Independent work should proceed while below the pending limit")
	}

	tr.MarkChangesRequested(10)
	// Global veto now blocks everything.
	if tr.CanWorkOn(21, nil) {
		t.Error("Nothing can proceed while the queue is vetoed")
	}

	tr.MarkMerged(10)
	if !tr.CanWorkOn(20, []int{10}) {
		t.Error("A merged dependency frees its dependents")
	}
}

func TestCanWorkOn_NoParallelWork(t *testing.T) {
	tr := newTestTracker(Options{MaxPendingPRs: 5, BlockOnChangesRequested: true, AllowParallelIndependent: false})

	if !tr.CanWorkOn(20, nil) {
		t.Error("Empty tracker should allow work")
	}

	addPRs(tr, "org/app", 10)
	if tr.CanWorkOn(20, nil) {
		t.Error("Any pending PR blocks all new work when parallel work is off")
	}
}

func TestApprovedDoesNotCountAsPending(t *testing.T) {
	tr := newTestTracker(Options{MaxPendingPRs: 2, BlockOnChangesRequested: true, AllowParallelIndependent: true})

	addPRs(tr, "org/app", 1, 2)
	tr.MarkApproved(1)

	if tr.ShouldBlock("") {
		t.Error("Approved PRs should not count toward the pending cap")
	}

	st := tr.CurrentStatus()
	if st.Approved != 1 || st.Pending != 1 {
		t.Errorf("Expected 1 approved / 1 pending, got %d / %d", st.Approved, st.Pending)
	}
}

func TestMarkApproved_UnknownIssueIsNoOp(t *testing.T) {
	tr := newTestTracker(DefaultOptions())

	tr.MarkApproved(99)
	tr.MarkChangesRequested(99)

	st := tr.CurrentStatus()
	if st.Approved != 0 || st.ChangesRequested != 0 {
		t.Error("Signals for untracked issues should not create state")
	}
}

func TestBlockingReason_PendingCap(t *testing.T) {
	tr := newTestTracker(Options{MaxPendingPRs: 2, BlockOnChangesRequested: true, AllowParallelIndependent: true})

	addPRs(tr, "org/app", 5, 6)

	reason := tr.BlockingReason("")
	if !strings.Contains(reason, "#5") || !strings.Contains(reason, "#6") {
		t.Errorf("Reason should list pending issues, got %q", reason)
	}

	repoReason := tr.BlockingReason("org/app")
	if !strings.Contains(repoReason, "org/app") {
		t.Errorf("Repo-scoped reason should name the repository, got %q", repoReason)
	}
	if tr.BlockingReason("org/other") != "" {
		t.Error("No reason expected for a repository below its cap")
	}
}

func TestCurrentStatus_BlockedAlwaysCarriesReason(t *testing.T) {
	tr := newTestTracker(Options{MaxPendingPRs: 1, BlockOnChangesRequested: true, AllowParallelIndependent: true})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			tr.AddPending(1, "https://github.com/org/app/pull/1", "org/app", "w1", nil)
			tr.MarkMerged(1)
		}
	}()

	// The flag and its reason are one snapshot and must never disagree,
	// even while another goroutine flips the blocked state.
	for i := 0; i < 500; i++ {
		st := tr.CurrentStatus()
		if st.Blocked && st.BlockingReason == "" {
			t.Fatal("Blocked status must carry a reason")
		}
		if !st.Blocked && st.BlockingReason != "" {
			t.Fatalf("Unblocked status should carry no reason, got %q", st.BlockingReason)
		}
	}
	<-done
}

func TestPendingDetails(t *testing.T) {
	tr := newTestTracker(DefaultOptions())

	tr.AddPending(2, "https://github.com/org/app/pull/2", "org/app", "w2", []int{1})
	tr.AddPending(1, "https://github.com/org/app/pull/1", "org/app", "w1", nil)

	details := tr.PendingDetails()
	if len(details) != 2 {
		t.Fatalf("Expected 2 pending PRs, got %d", len(details))
	}
	if details[0].IssueNumber != 1 || details[1].IssueNumber != 2 {
		t.Error("Details should be ordered by issue number")
	}
	if len(details[1].Dependencies) != 1 || details[1].Dependencies[0] != 1 {
		t.Error("Dependencies should round-trip")
	}
}
