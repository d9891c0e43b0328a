// Package runner executes the configured implementation pipeline for
// one work item inside an isolated per-issue workspace.
package runner

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fentz26/dispatch/internal/models"
)

// ExitNeedsClarification is the exit code a pipeline uses to signal
// that the issue is too ambiguous to implement. The worker releases
// the item instead of reporting failure.
const ExitNeedsClarification = 3

var prURLPattern = regexp.MustCompile(`https://github\.com/[\w.-]+/[\w.-]+/pull/\d+`)

// Result holds the outcome of one pipeline run.
type Result struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	PRURL    string `json:"pr_url,omitempty"`
}

// Succeeded reports whether the pipeline finished and produced a PR.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0 && r.PRURL != ""
}

// NeedsClarification reports whether the pipeline gave up on an
// ambiguous issue.
func (r *Result) NeedsClarification() bool {
	return r.ExitCode == ExitNeedsClarification
}

// Runner invokes one external command per work item. The command
// receives the item context through DISPATCH_* environment variables
// and reports the pull request it opened by printing its URL to stdout.
type Runner struct {
	command       string
	args          []string
	workspaceBase string
	log           zerolog.Logger
}

// New creates a runner for the given pipeline command. workspaceBase
// is where per-issue working directories are created.
func New(command string, args []string, workspaceBase string, log zerolog.Logger) (*Runner, error) {
	if command == "" {
		return nil, fmt.Errorf("pipeline command required")
	}
	if workspaceBase == "" {
		workspaceBase = filepath.Join(os.TempDir(), "dispatch-workspace")
	}
	return &Runner{
		command:       command,
		args:          args,
		workspaceBase: workspaceBase,
		log:           log,
	}, nil
}

// Run executes the pipeline for item. A non-zero exit code is not an
// error: it is part of the Result. Errors mean the command could not
// be started or the workspace could not be prepared.
func (r *Runner) Run(ctx context.Context, item *models.WorkItem) (*Result, error) {
	workspace, err := r.setupWorkspace(item.IssueNumber)
	if err != nil {
		return nil, err
	}

	cmd := exec.CommandContext(ctx, r.command, r.args...)
	cmd.Dir = workspace
	cmd.Env = append(os.Environ(), itemEnv(item, workspace)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.log.Info().Int("issue", item.IssueNumber).Str("repository", item.Repository).Str("command", r.command).Msg("starting pipeline")

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		exitError, ok := runErr.(*exec.ExitError)
		if !ok {
			return nil, fmt.Errorf("exec %s: %w", r.command, runErr)
		}
		exitCode = exitError.ExitCode()
	}

	result := &Result{
		ExitCode: exitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		PRURL:    extractPRURL(stdout.String()),
	}

	r.log.Info().Int("issue", item.IssueNumber).Int("exit_code", exitCode).Str("pr_url", result.PRURL).Msg("pipeline finished")
	return result, nil
}

// setupWorkspace creates a clean per-issue directory. A leftover
// directory from a previous attempt is removed first.
func (r *Runner) setupWorkspace(issueNumber int) (string, error) {
	workspace := filepath.Join(r.workspaceBase, fmt.Sprintf("issue-%d", issueNumber))

	if err := os.RemoveAll(workspace); err != nil {
		return "", fmt.Errorf("clean workspace %s: %w", workspace, err)
	}
	if err := os.MkdirAll(workspace, 0o755); err != nil {
		return "", fmt.Errorf("create workspace %s: %w", workspace, err)
	}
	return workspace, nil
}

// Cleanup removes the workspace for an issue after the outcome has
// been reported.
func (r *Runner) Cleanup(issueNumber int) {
	workspace := filepath.Join(r.workspaceBase, fmt.Sprintf("issue-%d", issueNumber))
	if err := os.RemoveAll(workspace); err != nil {
		r.log.Warn().Err(err).Str("workspace", workspace).Msg("failed to clean up workspace")
	}
}

func itemEnv(item *models.WorkItem, workspace string) []string {
	return []string{
		"DISPATCH_ISSUE_NUMBER=" + strconv.Itoa(item.IssueNumber),
		"DISPATCH_ISSUE_TITLE=" + item.Title,
		"DISPATCH_ISSUE_BODY=" + item.Body,
		"DISPATCH_ISSUE_LABELS=" + strings.Join(item.Labels, ","),
		"DISPATCH_REPOSITORY=" + item.Repository,
		"DISPATCH_BRANCH=" + item.BranchName,
		"DISPATCH_WORKSPACE=" + workspace,
	}
}

// extractPRURL returns the last GitHub pull request URL printed to
// stdout, or "" when the pipeline printed none.
func extractPRURL(stdout string) string {
	matches := prURLPattern.FindAllString(stdout, -1)
	if len(matches) == 0 {
		return ""
	}
	return matches[len(matches)-1]
}
