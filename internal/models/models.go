// Package models defines the core domain types for Dispatch.
package models

import (
	"fmt"
	"time"
)

// WorkStatus represents the current state of a work item.
type WorkStatus string

const (
	WorkStatusPending    WorkStatus = "pending"
	WorkStatusInProgress WorkStatus = "in_progress"
	WorkStatusCompleted  WorkStatus = "completed"
	WorkStatusFailed     WorkStatus = "failed"
)

// WorkItem represents one GitHub issue tracked for automated handling.
// It is uniquely keyed by (Repository, IssueNumber).
type WorkItem struct {
	IssueNumber int        `json:"issue_number"`
	Repository  string     `json:"repository"` // "owner/repo"
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Labels      []string   `json:"labels"`
	BranchName  string     `json:"branch_name"`
	Status      WorkStatus `json:"status"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	AssignedAt  *time.Time `json:"assigned_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	PRURL       string     `json:"pr_url,omitempty"`
	Error       string     `json:"error,omitempty"`
	RetryCount  int        `json:"retry_count"`
}

// BranchName derives the working branch for an issue. Deterministic so
// workers and reviewers can find the branch without extra coordination.
func BranchName(issueNumber int) string {
	return fmt.Sprintf("ai-feature/issue-%d", issueNumber)
}

// TrackedWorker represents a self-registered worker. Liveness is
// inferred from LastSeen; workers never receive push-based health checks.
type TrackedWorker struct {
	WorkerID    string    `json:"worker_id"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	CurrentTask int       `json:"current_task,omitempty"` // issue number, 0 when idle
	TotalTasks  int       `json:"total_tasks"`
}

// PendingPR represents a pull request awaiting human review. Tracked
// independently of the WorkItem that produced it so it survives queue
// cleanup and can be queried by review tooling.
type PendingPR struct {
	IssueNumber  int       `json:"issue_number"`
	PRURL        string    `json:"pr_url"`
	Repository   string    `json:"repository"`
	CreatedAt    time.Time `json:"created_at"`
	WorkerID     string    `json:"worker_id"`
	Dependencies []int     `json:"dependencies,omitempty"`
}

// Event is one entry in the append-only audit log. The log records
// what happened operationally; it never backs queue state.
type Event struct {
	ID          string    `json:"id"`
	Action      string    `json:"action"`
	Repository  string    `json:"repository,omitempty"`
	IssueNumber int       `json:"issue_number,omitempty"`
	WorkerID    string    `json:"worker_id,omitempty"`
	Details     string    `json:"details,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
