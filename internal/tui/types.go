package tui

// HealthSummary is the aggregate daemon state shown in the header.
type HealthSummary struct {
	Status         string `json:"status"`
	Blocked        bool   `json:"blocked"`
	BlockingReason string `json:"blocking_reason"`
	Workers        struct {
		Total     int `json:"total"`
		Available int `json:"available"`
	} `json:"workers"`
	Queue struct {
		Pending    int `json:"pending"`
		InProgress int `json:"in_progress"`
		Completed  int `json:"completed"`
	} `json:"queue"`
}

// QueueRow is one work item in the queue view.
type QueueRow struct {
	IssueNumber int    `json:"issue_number"`
	Repository  string `json:"repository"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	AssignedTo  string `json:"assigned_to"`
	RetryCount  int    `json:"retry_count"`
}

// WorkerRow is one worker in the workers view.
type WorkerRow struct {
	WorkerID    string `json:"worker_id"`
	CurrentTask int    `json:"current_task"`
	TotalTasks  int    `json:"total_tasks"`
	Active      bool   `json:"active"`
}

// PRRow is one pending pull request in the review view.
type PRRow struct {
	IssueNumber int    `json:"issue_number"`
	PRURL       string `json:"pr_url"`
	Repository  string `json:"repository"`
	WorkerID    string `json:"worker_id"`
}

// EventRow is one audit log entry.
type EventRow struct {
	Action      string `json:"action"`
	Repository  string `json:"repository"`
	IssueNumber int    `json:"issue_number"`
	WorkerID    string `json:"worker_id"`
	Details     string `json:"details"`
}
