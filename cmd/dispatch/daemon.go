package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/dispatch/internal/audit"
	"github.com/fentz26/dispatch/internal/config"
	"github.com/fentz26/dispatch/internal/github"
	"github.com/fentz26/dispatch/internal/logging"
	"github.com/fentz26/dispatch/internal/orchestrator"
	"github.com/fentz26/dispatch/internal/poller"
	"github.com/fentz26/dispatch/internal/queue"
	"github.com/fentz26/dispatch/internal/review"
	"github.com/fentz26/dispatch/internal/store"
	"github.com/fentz26/dispatch/internal/workers"
)

var (
	configPath string
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the dispatch daemon",
	Long:  `Starts the dispatch daemon: the HTTP API, the GitHub issue poller and the orphan-requeue sweep.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&configPath, "config", "", "Path to YAML config file")
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address (overrides config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite event log (overrides config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	log := logging.Component("daemon")
	log.Info().Str("listen", cfg.Listen).Msg("starting dispatch daemon")

	// Event log
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}
	rec := audit.NewRecorder(s, logging.Component("audit"))

	// Core components
	q := queue.New(logging.Component("queue"))
	tracker := workers.New(cfg.Workers.Timeout(), logging.Component("workers"))
	reviews := review.New(cfg.Review, logging.Component("review"))

	// Upstream issue tracker. Without a token the daemon still serves
	// the API; discovery and issue updates are disabled.
	var upstream *github.MultiRepo
	if cfg.GitHub.Token != "" && len(cfg.GitHub.Repositories) > 0 {
		upstream, err = github.NewMultiRepo(cfg.GitHub.Token, cfg.GitHub.Repositories, logging.Component("github"))
		if err != nil {
			return err
		}
	} else {
		log.Warn().Msg("GITHUB_TOKEN or repositories missing: issue polling disabled")
	}

	labels := orchestrator.Labels{
		InProgress: cfg.Poll.InProgressLabel,
		Completed:  cfg.Poll.CompletedLabel,
		Failed:     cfg.Poll.FailedLabel,
	}

	var issueTracker orchestrator.IssueTracker
	if upstream != nil {
		issueTracker = upstream
	}

	service := orchestrator.NewService(q, tracker, reviews, issueTracker, s, rec, labels, logging.Component("service"))
	server := orchestrator.NewServer(service, cfg.Listen, logging.Component("http"))

	if upstream != nil {
		p := poller.New(q, upstream, rec, poller.Options{
			Interval:        cfg.Poll.Interval(),
			TriggerLabel:    cfg.Poll.TriggerLabel,
			InProgressLabel: cfg.Poll.InProgressLabel,
		}, logging.Component("poller"))
		p.Start()
		defer p.Stop()
	}

	if cfg.Janitor.RequeueOrphans {
		j := orchestrator.NewJanitor(service, time.Minute, cfg.Janitor.OrphanTimeout(), logging.Component("janitor"))
		j.Start()
		defer j.Stop()
	}

	// Signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("server error")
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server shutdown error")
	}
	if err := s.Close(); err != nil {
		log.Error().Err(err).Msg("event log close error")
	}

	log.Info().Msg("shutdown complete")
	return nil
}
