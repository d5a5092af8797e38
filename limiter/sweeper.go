package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/txix-open/isp-kit/log"
)

const DefaultSweepInterval = 5 * time.Minute

type Sweepable interface {
	Sweep(now time.Time) int
}

type Sweeper struct {
	interval time.Duration
	clock    func() time.Time
	logger   log.Logger
	targets  []Sweepable

	stop     chan struct{}
	stopOnce *sync.Once
}

func NewSweeper(interval time.Duration, clock func() time.Time, logger log.Logger, targets ...Sweepable) Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	if clock == nil {
		clock = time.Now
	}
	return Sweeper{
		interval: interval,
		clock:    clock,
		logger:   logger,
		targets:  targets,
		stop:     make(chan struct{}),
		stopOnce: &sync.Once{},
	}
}

// Run blocks until ctx is done or Close is called.
func (s Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stop:
			return nil
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s Sweeper) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	return nil
}

func (s Sweeper) sweep(ctx context.Context) {
	now := s.clock()
	removed := 0
	for _, target := range s.targets {
		removed += target.Sweep(now)
	}
	if removed > 0 {
		s.logger.Debug(ctx, "sweeper: stale entries removed", log.Int("removed", removed))
	}
}
