// Package limiter keeps per-client request counters in fixed-reset windows.
//
// The table lives in memory for the process lifetime: it is constructed empty at startup,
// mutated by every admission check and trimmed by the periodic sweep. Nothing is persisted.
package limiter

import (
	"sync"
	"time"

	"download-gate-service/domain"

	"github.com/cespare/xxhash/v2"
)

const (
	DefaultWindow      = 60 * time.Second
	DefaultMaxRequests = 10
	DefaultIdleWindows = 5
	DefaultShards      = 32
)

type Config struct {
	Window      time.Duration
	MaxRequests int
	IdleWindows int
	Shards      int
}

type windowCounter struct {
	count       int
	windowStart time.Time
}

type shard struct {
	lock     sync.Mutex
	counters map[domain.ClientKey]*windowCounter
}

type Limiter struct {
	window      time.Duration
	maxRequests int
	idleTtl     time.Duration
	shards      []*shard
}

func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultMaxRequests
	}
	if cfg.IdleWindows <= 0 {
		cfg.IdleWindows = DefaultIdleWindows
	}
	if cfg.Shards <= 0 {
		cfg.Shards = DefaultShards
	}

	shards := make([]*shard, cfg.Shards)
	for i := range shards {
		shards[i] = &shard{counters: make(map[domain.ClientKey]*windowCounter)}
	}
	return &Limiter{
		window:      cfg.Window,
		maxRequests: cfg.MaxRequests,
		idleTtl:     time.Duration(cfg.IdleWindows) * cfg.Window,
		shards:      shards,
	}
}

// Check counts the request against the key's window.
// The whole read-modify-write happens under the shard lock, so concurrent
// requests from one key never observe the same count.
func (l *Limiter) Check(key domain.ClientKey, now time.Time) domain.Admission {
	s := l.shard(key)
	s.lock.Lock()
	defer s.lock.Unlock()

	counter, ok := s.counters[key]
	if !ok {
		s.counters[key] = &windowCounter{count: 1, windowStart: now}
		return domain.Allowed()
	}

	if now.Sub(counter.windowStart) > l.window {
		counter.count = 1
		counter.windowStart = now
		return domain.Allowed()
	}

	counter.count++
	if counter.count > l.maxRequests {
		return domain.RateLimited(l.retryAfterSeconds(counter.windowStart, now))
	}
	return domain.Allowed()
}

// Sweep removes counters idle for more than IdleWindows windows and returns how many were removed.
// Shards are locked one at a time; a key inserted into an already swept shard survives until the next run.
func (l *Limiter) Sweep(now time.Time) int {
	removed := 0
	for _, s := range l.shards {
		s.lock.Lock()
		for key, counter := range s.counters {
			if now.Sub(counter.windowStart) > l.idleTtl {
				delete(s.counters, key)
				removed++
			}
		}
		s.lock.Unlock()
	}
	return removed
}

func (l *Limiter) Len() int {
	total := 0
	for _, s := range l.shards {
		s.lock.Lock()
		total += len(s.counters)
		s.lock.Unlock()
	}
	return total
}

func (l *Limiter) Window() time.Duration {
	return l.window
}

func (l *Limiter) MaxRequests() int {
	return l.maxRequests
}

func (l *Limiter) count(key domain.ClientKey) (int, bool) {
	s := l.shard(key)
	s.lock.Lock()
	defer s.lock.Unlock()

	counter, ok := s.counters[key]
	if !ok {
		return 0, false
	}
	return counter.count, true
}

func (l *Limiter) shard(key domain.ClientKey) *shard {
	idx := xxhash.Sum64String(string(key)) % uint64(len(l.shards))
	return l.shards[idx]
}

func (l *Limiter) retryAfterSeconds(windowStart time.Time, now time.Time) int {
	remaining := windowStart.Add(l.window).Sub(now)
	seconds := int((remaining + time.Second - 1) / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
