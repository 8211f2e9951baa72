package backend

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/unkn0wn-root/querysync"
)

// Brewer advances every unfinished order one status per step, so clients that
// poll see QUEUED turn into READY.
type Brewer struct {
	svc   *Service
	clock clockwork.Clock
	step  time.Duration
	log   querysync.Logger

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewBrewer(svc *Service, step time.Duration, clock clockwork.Clock, log querysync.Logger) *Brewer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = querysync.NopLogger{}
	}
	return &Brewer{
		svc:   svc,
		clock: clock,
		step:  step,
		log:   log,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run blocks until ctx is done or Stop is called. A step of 0 disables brewing.
func (b *Brewer) Run(ctx context.Context) {
	defer close(b.done)
	if b.step <= 0 {
		b.log.Info("brewer disabled", nil)
		select {
		case <-ctx.Done():
		case <-b.stop:
		}
		return
	}

	t := b.clock.NewTicker(b.step)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-b.stop:
			return
		case <-t.Chan():
			n, err := b.svc.AdvanceAll(ctx)
			if err != nil {
				b.log.Warn("brew step failed", querysync.Fields{"err": err, "advanced": n})
				continue
			}
			if n > 0 {
				b.log.Debug("brew step", querysync.Fields{"advanced": n})
			}
		}
	}
}

// Stop ends Run and waits for it to return. Run must have been started.
func (b *Brewer) Stop() {
	b.stopOnce.Do(func() { close(b.stop) })
	<-b.done
}
