package orchestrator

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/fentz26/dispatch/internal/queue"
	"github.com/fentz26/dispatch/internal/review"
	"github.com/fentz26/dispatch/internal/workers"
)

func TestJanitorRequeuesOrphans(t *testing.T) {
	log := zerolog.Nop()
	svc := NewService(
		queue.New(log),
		workers.New(workers.DefaultTimeout, log),
		review.New(review.DefaultOptions(), log),
		nil, nil, nil,
		DefaultLabels(),
		log,
	)

	svc.queue.Add(7, "Fix login", "", nil, "acme/app")
	svc.RequestWork("worker-1")

	// Drop worker-1 from the liveness tracker so the assignment looks
	// orphaned, and use a negative max age so it counts as expired.
	svc.workers = workers.New(workers.DefaultTimeout, log)

	j := NewJanitor(svc, 10*time.Millisecond, -time.Hour, log)
	j.Start()

	deadline := time.After(2 * time.Second)
	for svc.queue.PendingCount() == 0 {
		select {
		case <-deadline:
			j.Stop()
			t.Fatal("janitor never requeued the orphaned item")
		case <-time.After(10 * time.Millisecond):
		}
	}
	j.Stop()

	if got := svc.queue.InProgressCount(); got != 0 {
		t.Errorf("in-progress after sweep = %d, want 0", got)
	}
}

func TestJanitorStartStop(t *testing.T) {
	log := zerolog.Nop()
	svc := NewService(
		queue.New(log),
		workers.New(workers.DefaultTimeout, log),
		review.New(review.DefaultOptions(), log),
		nil, nil, nil,
		DefaultLabels(),
		log,
	)

	j := NewJanitor(svc, time.Hour, time.Hour, log)
	j.Start()
	j.Stop()
}
