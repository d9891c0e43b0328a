// Package review gates the work queue on outstanding pull-request
// review state. It is a circuit breaker over the review pipeline:
// ingestion slows once reviewer capacity (approximated by the pending
// PR count) is saturated, and halts entirely on negative review signal
// so mistakes do not compound across dependent issues.
package review

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fentz26/dispatch/internal/models"
	"github.com/rs/zerolog"
)

// Options configures the blocking policy.
type Options struct {
	// MaxPendingPRs is the ceiling on simultaneously unreviewed PRs,
	// applied globally or per repository depending on scope.
	MaxPendingPRs int `yaml:"max_pending_prs"`
	// BlockOnChangesRequested blocks the entire queue while any PR has
	// outstanding change requests.
	BlockOnChangesRequested bool `yaml:"block_on_changes_requested"`
	// AllowParallelIndependent lets work proceed on issues whose
	// declared dependencies are all merged, even near the pending limit.
	AllowParallelIndependent bool `yaml:"allow_parallel_independent"`
}

// DefaultOptions returns the policy defaults.
func DefaultOptions() Options {
	return Options{
		MaxPendingPRs:            5,
		BlockOnChangesRequested:  true,
		AllowParallelIndependent: true,
	}
}

// Tracker tracks PRs awaiting review and decides when new work must be
// blocked. State machine per issue:
// (not tracked) -> pending -> {approved | changes requested} -> removed on merge.
// A changes-requested issue re-enters pending only via AddPending (the
// pipeline resubmitted); the tracker never auto-transitions.
type Tracker struct {
	mu       sync.Mutex
	opts     Options
	pending  map[int]*models.PendingPR
	changes  map[int]struct{}
	approved map[int]struct{}
	deps     map[int][]int
	log      zerolog.Logger
}

// New creates a review tracker with the given policy.
func New(opts Options, log zerolog.Logger) *Tracker {
	if opts.MaxPendingPRs <= 0 {
		opts.MaxPendingPRs = DefaultOptions().MaxPendingPRs
	}
	return &Tracker{
		opts:     opts,
		pending:  make(map[int]*models.PendingPR),
		changes:  make(map[int]struct{}),
		approved: make(map[int]struct{}),
		deps:     make(map[int][]int),
		log:      log,
	}
}

// AddPending registers a newly created PR as awaiting review. Re-adding
// an issue that previously had changes requested moves it back to
// pending: that is the resubmission path.
func (t *Tracker) AddPending(issueNumber int, prURL, repository, workerID string, dependencies []int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.changes, issueNumber)
	delete(t.approved, issueNumber)

	t.pending[issueNumber] = &models.PendingPR{
		IssueNumber:  issueNumber,
		PRURL:        prURL,
		Repository:   repository,
		CreatedAt:    time.Now(),
		WorkerID:     workerID,
		Dependencies: append([]int(nil), dependencies...),
	}
	if len(dependencies) > 0 {
		t.deps[issueNumber] = append([]int(nil), dependencies...)
	}

	t.log.Info().Str("repository", repository).Int("issue", issueNumber).Int("pending", len(t.pending)).Msg("added pending PR")
}

// MarkApproved moves a pending PR into the approved set. Driven by an
// external reviewer action, not by this service.
func (t *Tracker) MarkApproved(issueNumber int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[issueNumber]; !ok {
		return
	}
	delete(t.pending, issueNumber)
	t.approved[issueNumber] = struct{}{}
	t.log.Info().Int("issue", issueNumber).Msg("PR approved")
}

// MarkChangesRequested moves a pending PR into the changes-requested set.
func (t *Tracker) MarkChangesRequested(issueNumber int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.pending[issueNumber]; !ok {
		return
	}
	delete(t.pending, issueNumber)
	t.changes[issueNumber] = struct{}{}
	t.log.Warn().Int("issue", issueNumber).Bool("blocking", t.opts.BlockOnChangesRequested).Msg("PR needs changes")
}

// MarkMerged removes the issue from every tracking set and the
// dependency graph. Terminal: a merged dependency no longer holds up
// its dependents.
func (t *Tracker) MarkMerged(issueNumber int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.pending, issueNumber)
	delete(t.approved, issueNumber)
	delete(t.changes, issueNumber)
	delete(t.deps, issueNumber)
	t.log.Info().Int("issue", issueNumber).Msg("PR merged and cleared from tracking")
}

// ShouldBlock reports whether new work must be held back. Scope is the
// given repository when non-empty, otherwise global.
func (t *Tracker) ShouldBlock(repository string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.shouldBlockLocked(repository)
}

func (t *Tracker) shouldBlockLocked(repository string) bool {
	if t.opts.BlockOnChangesRequested && len(t.changes) > 0 {
		return true
	}
	return t.pendingCountLocked(repository) >= t.opts.MaxPendingPRs
}

func (t *Tracker) pendingCountLocked(repository string) int {
	if repository == "" {
		return len(t.pending)
	}
	n := 0
	for _, pr := range t.pending {
		if pr.Repository == repository {
			n++
		}
	}
	return n
}

// CanWorkOn reports whether work may proceed on an issue given its
// declared dependencies. A dependency must be merged (or never tracked)
// before dependents proceed.
func (t *Tracker) CanWorkOn(issueNumber int, dependencies []int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.shouldBlockLocked("") {
		return false
	}

	if t.opts.AllowParallelIndependent {
		for _, dep := range dependencies {
			if _, ok := t.pending[dep]; ok {
				return false
			}
			if _, ok := t.changes[dep]; ok {
				return false
			}
		}
		return true
	}

	return len(t.pending) == 0
}

// BlockingReason returns a human-readable explanation of why the queue
// is blocked, or "" when it is not. Surfaced to workers so operators
// can diagnose a stalled queue without extra tooling.
func (t *Tracker) BlockingReason(repository string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockingReasonLocked(repository)
}

func (t *Tracker) blockingReasonLocked(repository string) string {
	if t.opts.BlockOnChangesRequested && len(t.changes) > 0 {
		nums := make([]int, 0, len(t.changes))
		for n := range t.changes {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		return fmt.Sprintf("changes requested on PRs: %s; address review feedback before proceeding", joinIssues(nums))
	}

	if repository != "" {
		var nums []int
		for n, pr := range t.pending {
			if pr.Repository == repository {
				nums = append(nums, n)
			}
		}
		if len(nums) >= t.opts.MaxPendingPRs {
			sort.Ints(nums)
			return fmt.Sprintf("too many pending PRs for %s: %s; review and merge before proceeding (max %d)",
				repository, joinIssues(nums), t.opts.MaxPendingPRs)
		}
		return ""
	}

	if len(t.pending) >= t.opts.MaxPendingPRs {
		nums := make([]int, 0, len(t.pending))
		for n := range t.pending {
			nums = append(nums, n)
		}
		sort.Ints(nums)
		return fmt.Sprintf("too many pending PRs: %s; review and merge before proceeding (max %d)",
			joinIssues(nums), t.opts.MaxPendingPRs)
	}

	return ""
}

// Status is a point-in-time summary of the tracker, exposed for
// observability endpoints.
type Status struct {
	Pending          int     `json:"pending_prs"`
	ChangesRequested int     `json:"changes_requested"`
	Approved         int     `json:"approved"`
	Blocked          bool    `json:"queue_blocked"`
	BlockingReason   string  `json:"blocking_reason,omitempty"`
	Options          Options `json:"-"`
}

// CurrentStatus returns a consistent snapshot of counts and blocking
// state. Counts, the blocked flag and its reason are read under one
// lock so they can never disagree.
func (t *Tracker) CurrentStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()

	reason := ""
	blocked := t.shouldBlockLocked("")
	if blocked {
		reason = t.blockingReasonLocked("")
	}

	return Status{
		Pending:          len(t.pending),
		ChangesRequested: len(t.changes),
		Approved:         len(t.approved),
		Blocked:          blocked,
		BlockingReason:   reason,
		Options:          t.opts,
	}
}

// PendingDetails returns the pending PRs ordered by issue number.
func (t *Tracker) PendingDetails() []models.PendingPR {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]models.PendingPR, 0, len(t.pending))
	for _, pr := range t.pending {
		cp := *pr
		cp.Dependencies = append([]int(nil), pr.Dependencies...)
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IssueNumber < out[j].IssueNumber })
	return out
}

func joinIssues(nums []int) string {
	parts := make([]string, len(nums))
	for i, n := range nums {
		parts[i] = fmt.Sprintf("#%d", n)
	}
	return strings.Join(parts, ", ")
}
