package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/fentz26/dispatch/internal/logging"
	"github.com/fentz26/dispatch/internal/models"
	"github.com/fentz26/dispatch/internal/runner"
)

var (
	workerID       string
	workerCommand  string
	workerArgs     []string
	workspaceDir   string
	idlePollPeriod time.Duration
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a worker that polls the daemon and executes a pipeline per issue",
	Long: `Polls the daemon for work and runs the configured pipeline command for
each assigned issue. The pipeline receives the issue through DISPATCH_*
environment variables and reports its pull request by printing the URL
to stdout. Exit code 3 releases the issue for human clarification.`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerID, "id", defaultWorkerID(), "Worker identifier")
	workerCmd.Flags().StringVar(&workerCommand, "command", "", "Pipeline command to run per issue (required)")
	workerCmd.Flags().StringSliceVar(&workerArgs, "arg", nil, "Argument for the pipeline command (repeatable)")
	workerCmd.Flags().StringVar(&workspaceDir, "workspace", "", "Base directory for per-issue workspaces")
	workerCmd.Flags().DurationVar(&idlePollPeriod, "poll", 30*time.Second, "Wait between polls when no work is available")
	workerCmd.MarkFlagRequired("command")
}

func defaultWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%s", hostname, uuid.NewString()[:8])
}

func runWorker(cmd *cobra.Command, args []string) error {
	log := logging.Component("worker").With().Str("worker", workerID).Logger()

	run, err := runner.New(workerCommand, workerArgs, workspaceDir, log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutting down after current item")
		cancel()
	}()

	log.Info().Str("api", apiAddr).Msg("worker started")

	for {
		item, blocked, err := fetchWork()
		if err != nil {
			log.Error().Err(err).Msg("poll failed")
		}

		if item == nil {
			if blocked {
				log.Debug().Msg("queue blocked, waiting")
			}
			select {
			case <-ctx.Done():
				log.Info().Msg("worker stopped")
				return nil
			case <-time.After(idlePollPeriod):
			}
			continue
		}

		handleItem(ctx, run, item, log)

		select {
		case <-ctx.Done():
			log.Info().Msg("worker stopped")
			return nil
		default:
		}
	}
}

func fetchWork() (*models.WorkItem, bool, error) {
	var resp struct {
		Available bool             `json:"work_available"`
		Blocked   bool             `json:"blocked"`
		Item      *models.WorkItem `json:"item"`
	}
	if err := apiGet("/work/next?worker_id="+url.QueryEscape(workerID), &resp); err != nil {
		return nil, false, err
	}
	if !resp.Available {
		return nil, resp.Blocked, nil
	}
	return resp.Item, false, nil
}

func handleItem(ctx context.Context, run *runner.Runner, item *models.WorkItem, log zerolog.Logger) {
	defer run.Cleanup(item.IssueNumber)

	log.Info().Int("issue", item.IssueNumber).Str("repository", item.Repository).Str("title", item.Title).Msg("picked up work")

	result, err := run.Run(ctx, item)
	if err != nil {
		reportFailed(item.IssueNumber, err.Error(), log)
		return
	}

	switch {
	case result.Succeeded():
		body := map[string]any{
			"worker_id":    workerID,
			"issue_number": item.IssueNumber,
			"pr_url":       result.PRURL,
			"success":      true,
		}
		if err := apiPost("/work/complete", body, nil); err != nil {
			log.Error().Err(err).Int("issue", item.IssueNumber).Msg("failed to report completion")
			return
		}
		log.Info().Int("issue", item.IssueNumber).Str("pr_url", result.PRURL).Msg("completed")

	case result.NeedsClarification():
		body := map[string]any{
			"worker_id":    workerID,
			"issue_number": item.IssueNumber,
		}
		if err := apiPost("/work/release", body, nil); err != nil {
			log.Error().Err(err).Int("issue", item.IssueNumber).Msg("failed to release work")
			return
		}
		log.Info().Int("issue", item.IssueNumber).Msg("released for clarification")

	default:
		reportFailed(item.IssueNumber, failureMessage(result), log)
	}
}

func reportFailed(issueNumber int, errMsg string, log zerolog.Logger) {
	body := map[string]any{
		"worker_id":    workerID,
		"issue_number": issueNumber,
		"error":        errMsg,
	}
	if err := apiPost("/work/failed", body, nil); err != nil {
		log.Error().Err(err).Int("issue", issueNumber).Msg("failed to report failure")
		return
	}
	log.Warn().Int("issue", issueNumber).Str("error", errMsg).Msg("reported failure")
}

// failureMessage condenses a failed pipeline run into the error string
// sent to the daemon.
func failureMessage(result *runner.Result) string {
	if result.ExitCode == 0 {
		return "pipeline exited cleanly without opening a pull request"
	}

	msg := fmt.Sprintf("pipeline exited with code %d", result.ExitCode)
	if tail := lastLine(result.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
