// Package poller bridges the upstream issue tracker into the work
// queue, fetching labeled issues across every configured repository on
// a fixed interval.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/fentz26/dispatch/internal/audit"
	"github.com/fentz26/dispatch/internal/github"
	"github.com/fentz26/dispatch/internal/queue"
	"github.com/rs/zerolog"
)

// Source is the slice of the issue tracker the poller needs.
type Source interface {
	Repositories() []string
	FetchIssues(ctx context.Context, repo string, labels []string) ([]github.Issue, error)
	AddLabel(ctx context.Context, repo string, issueNumber int, label string) error
}

// Options configures a Poller.
type Options struct {
	Interval        time.Duration
	TriggerLabel    string
	InProgressLabel string
}

// Poller periodically discovers labeled issues and feeds them into the
// work queue. Per-repository fetch failures are logged and never stop
// the loop; the repository's new issues simply appear one cycle later.
type Poller struct {
	queue  *queue.Queue
	source Source
	rec    *audit.Recorder
	opts   Options
	log    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a poller. Zero option fields fall back to the documented
// defaults (60s interval, "ai-ready" trigger, "ai-in-progress" marker).
func New(q *queue.Queue, source Source, rec *audit.Recorder, opts Options, log zerolog.Logger) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = 60 * time.Second
	}
	if opts.TriggerLabel == "" {
		opts.TriggerLabel = "ai-ready"
	}
	if opts.InProgressLabel == "" {
		opts.InProgressLabel = "ai-in-progress"
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		queue:  q,
		source: source,
		rec:    rec,
		opts:   opts,
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins the polling loop.
func (p *Poller) Start() {
	p.wg.Add(1)
	go p.loop()
	p.log.Info().Dur("interval", p.opts.Interval).Str("label", p.opts.TriggerLabel).Msg("poller started")
}

// Stop cancels the loop and waits for the in-flight cycle to finish.
func (p *Poller) Stop() {
	p.cancel()
	p.wg.Wait()
	p.log.Info().Msg("poller stopped")
}

func (p *Poller) loop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.opts.Interval)
	defer ticker.Stop()

	// First cycle runs immediately so a fresh daemon picks up work
	// without waiting a full interval.
	p.pollOnce(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(p.ctx)
		}
	}
}

// pollOnce runs one discovery cycle across every repository.
func (p *Poller) pollOnce(ctx context.Context) {
	for _, repo := range p.source.Repositories() {
		issues, err := p.source.FetchIssues(ctx, repo, []string{p.opts.TriggerLabel})
		if err != nil {
			p.log.Error().Err(err).Str("repository", repo).Msg("failed to poll repository")
			continue
		}

		for _, issue := range issues {
			if p.queue.Has(repo, issue.Number) {
				continue
			}
			if !p.queue.Add(issue.Number, issue.Title, issue.Body, issue.Labels, repo) {
				continue
			}

			p.rec.Record("work.discovered", repo, issue.Number, "", issue.Title)

			// Best-effort and not transactional with the queue insert:
			// the Has check above keeps ingestion idempotent even when
			// the upstream label never lands.
			if err := p.source.AddLabel(ctx, repo, issue.Number, p.opts.InProgressLabel); err != nil {
				p.log.Error().Err(err).Str("repository", repo).Int("issue", issue.Number).Msg("failed to mark issue in progress upstream")
			}
		}
	}
}
