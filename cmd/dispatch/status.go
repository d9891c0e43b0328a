package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon health and queue summary",
	RunE:  runStatus,
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List queued work items",
	RunE:  runQueue,
}

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List tracked workers",
	RunE:  runWorkers,
}

var prsCmd = &cobra.Command{
	Use:   "prs",
	Short: "List pull requests awaiting review",
	RunE:  runPRs,
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent audit events",
	RunE:  runEvents,
}

var (
	eventsAction string
	eventsLimit  int
	cleanupDays  int
)

func init() {
	eventsCmd.Flags().StringVar(&eventsAction, "action", "", "Filter by action (e.g. work.assigned)")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "Maximum events to show")
	workersCmd.Flags().IntVar(&cleanupDays, "cleanup", 0, "Remove workers unseen for this many days before listing")
}

func runStatus(cmd *cobra.Command, args []string) error {
	var health struct {
		Status  string `json:"status"`
		Audit   string `json:"audit"`
		Blocked bool   `json:"blocked"`
		Reason  string `json:"blocking_reason"`
		Workers struct {
			Total     int `json:"total"`
			Available int `json:"available"`
		} `json:"workers"`
		Queue struct {
			Pending    int `json:"pending"`
			InProgress int `json:"in_progress"`
			Completed  int `json:"completed"`
		} `json:"queue"`
	}
	if err := apiGet("/health", &health); err != nil {
		return err
	}

	fmt.Printf("Status:      %s\n", health.Status)
	fmt.Printf("Audit log:   %s\n", health.Audit)
	fmt.Printf("Workers:     %d active, %d available\n", health.Workers.Total, health.Workers.Available)
	fmt.Printf("Queue:       %d pending, %d in progress, %d completed\n",
		health.Queue.Pending, health.Queue.InProgress, health.Queue.Completed)
	if health.Blocked {
		fmt.Printf("BLOCKED:     %s\n", health.Reason)
	}
	return nil
}

func runQueue(cmd *cobra.Command, args []string) error {
	type item struct {
		IssueNumber int    `json:"issue_number"`
		Repository  string `json:"repository"`
		Title       string `json:"title"`
		Status      string `json:"status"`
		AssignedTo  string `json:"assigned_to"`
		RetryCount  int    `json:"retry_count"`
	}
	var snap struct {
		Pending    []item `json:"pending"`
		InProgress []item `json:"in_progress"`
		Finished   []item `json:"finished"`
	}
	if err := apiGet("/queue", &snap); err != nil {
		return err
	}

	all := append(append(snap.InProgress, snap.Pending...), snap.Finished...)
	if len(all) == 0 {
		fmt.Println("Queue is empty.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ISSUE\tREPOSITORY\tSTATUS\tASSIGNED\tRETRIES\tTITLE")
	for _, it := range all {
		fmt.Fprintf(w, "#%d\t%s\t%s\t%s\t%d\t%s\n",
			it.IssueNumber, it.Repository, it.Status, it.AssignedTo, it.RetryCount, it.Title)
	}
	return w.Flush()
}

func runWorkers(cmd *cobra.Command, args []string) error {
	if cleanupDays > 0 {
		var result struct {
			Removed int `json:"removed"`
		}
		if err := apiPost("/workers/cleanup", map[string]int{"days": cleanupDays}, &result); err != nil {
			return err
		}
		fmt.Printf("Removed %d stale workers.\n\n", result.Removed)
	}

	var list []struct {
		WorkerID    string `json:"worker_id"`
		LastSeen    string `json:"last_seen"`
		CurrentTask int    `json:"current_task"`
		TotalTasks  int    `json:"total_tasks"`
		Active      bool   `json:"active"`
	}
	if err := apiGet("/workers", &list); err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No workers have registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "WORKER\tACTIVE\tCURRENT\tCOMPLETED\tLAST SEEN")
	for _, wk := range list {
		current := "-"
		if wk.CurrentTask != 0 {
			current = fmt.Sprintf("#%d", wk.CurrentTask)
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%d\t%s\n",
			wk.WorkerID, wk.Active, current, wk.TotalTasks, wk.LastSeen)
	}
	return w.Flush()
}

func runPRs(cmd *cobra.Command, args []string) error {
	var status struct {
		PendingCount   int    `json:"pending_prs"`
		Blocked        bool   `json:"queue_blocked"`
		BlockingReason string `json:"blocking_reason"`
		Pending        []struct {
			IssueNumber int    `json:"issue_number"`
			PRURL       string `json:"pr_url"`
			Repository  string `json:"repository"`
			WorkerID    string `json:"worker_id"`
		} `json:"pending"`
	}
	if err := apiGet("/prs", &status); err != nil {
		return err
	}

	if len(status.Pending) == 0 {
		fmt.Println("No pull requests awaiting review.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ISSUE\tREPOSITORY\tWORKER\tPR")
	for _, pr := range status.Pending {
		fmt.Fprintf(w, "#%d\t%s\t%s\t%s\n", pr.IssueNumber, pr.Repository, pr.WorkerID, pr.PRURL)
	}
	w.Flush()

	if status.Blocked {
		fmt.Printf("\nQueue is BLOCKED: %s\n", status.BlockingReason)
	}
	return nil
}

func runEvents(cmd *cobra.Command, args []string) error {
	path := fmt.Sprintf("/events?limit=%d", eventsLimit)
	if eventsAction != "" {
		path += "&action=" + eventsAction
	}
	var events []struct {
		Action      string `json:"action"`
		Repository  string `json:"repository"`
		IssueNumber int    `json:"issue_number"`
		WorkerID    string `json:"worker_id"`
		Details     string `json:"details"`
		CreatedAt   string `json:"created_at"`
	}
	if err := apiGet(path, &events); err != nil {
		return err
	}

	if len(events) == 0 {
		fmt.Println("No events recorded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tISSUE\tWORKER\tDETAILS")
	for _, e := range events {
		issue := "-"
		if e.IssueNumber != 0 {
			issue = fmt.Sprintf("%s#%d", e.Repository, e.IssueNumber)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", e.CreatedAt, e.Action, issue, e.WorkerID, e.Details)
	}
	return w.Flush()
}
