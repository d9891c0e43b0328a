package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Janitor periodically requeues orphaned in-progress assignments.
// This sweep is an operational addition on top of the queue's own
// semantics: without it an item whose worker died silently would stay
// in progress forever.
type Janitor struct {
	service  *Service
	interval time.Duration
	maxAge   time.Duration
	log      zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor sweeping every interval for assignments
// older than maxAge.
func NewJanitor(service *Service, interval, maxAge time.Duration, log zerolog.Logger) *Janitor {
	if interval <= 0 {
		interval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Janitor{
		service:  service,
		interval: interval,
		maxAge:   maxAge,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins the sweep loop.
func (j *Janitor) Start() {
	j.wg.Add(1)
	go j.loop()
	j.log.Info().Dur("interval", j.interval).Dur("max_age", j.maxAge).Msg("janitor started")
}

// Stop cancels the loop and waits for it to exit.
func (j *Janitor) Stop() {
	j.cancel()
	j.wg.Wait()
	j.log.Info().Msg("janitor stopped")
}

func (j *Janitor) loop() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			if n := j.service.RequeueOrphans(j.maxAge); n > 0 {
				j.log.Info().Int("requeued", n).Msg("janitor sweep requeued orphaned work")
			}
		}
	}
}
