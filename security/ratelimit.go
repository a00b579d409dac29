package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultMaxEntries      = 10000
	defaultCleanupInterval = 5 * time.Minute
	defaultIdleTimeout     = 30 * time.Minute
)

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// Rate is the sustained number of events per second per identifier.
	Rate float64

	// Burst is the bucket size per identifier.
	Burst int

	// MaxEntries bounds the number of tracked identifiers (default 10000).
	MaxEntries int

	// CleanupInterval is how often idle identifiers are swept (default 5m).
	CleanupInterval time.Duration

	// IdleTimeout is how long an identifier may stay unused before it is swept (default 30m).
	IdleTimeout time.Duration
}

type bucket struct {
	key      string
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter provides per-identifier token bucket rate limiting.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*list.Element
	order   *list.List // front = most recently used

	limit       rate.Limit
	burst       int
	maxEntries  int
	idleTimeout time.Duration

	evictions int64
	logger    *slog.Logger
	stop      chan struct{}
	stopOnce  sync.Once
}

// NewRateLimiter creates a rate limiter and starts its idle sweeper.
// Call Stop to release the sweeper goroutine.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanupInterval
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}

	rl := &RateLimiter{
		buckets:     make(map[string]*list.Element),
		order:       list.New(),
		limit:       rate.Limit(cfg.Rate),
		burst:       cfg.Burst,
		maxEntries:  cfg.MaxEntries,
		idleTimeout: cfg.IdleTimeout,
		logger:      logger,
		stop:        make(chan struct{}),
	}

	go rl.sweepLoop(cfg.CleanupInterval)

	return rl
}

// Allow reports whether one more event for key fits in its bucket.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if elem, ok := rl.buckets[key]; ok {
		rl.order.MoveToFront(elem)
		b := elem.Value.(*bucket)
		b.lastSeen = now
		return b.limiter.AllowN(now, 1)
	}

	if len(rl.buckets) >= rl.maxEntries {
		rl.evictOldest()
	}

	b := &bucket{
		key:      key,
		limiter:  rate.NewLimiter(rl.limit, rl.burst),
		lastSeen: now,
	}
	rl.buckets[key] = rl.order.PushFront(b)
	return b.limiter.AllowN(now, 1)
}

// evictOldest drops the least recently used bucket. Caller holds mu.
func (rl *RateLimiter) evictOldest() {
	elem := rl.order.Back()
	if elem == nil {
		return
	}
	b := elem.Value.(*bucket)
	rl.order.Remove(elem)
	delete(rl.buckets, b.key)
	rl.evictions++
	rl.logger.Debug("Rate limiter evicted bucket",
		"entries", len(rl.buckets),
		"total_evictions", rl.evictions)
}

func (rl *RateLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.Cleanup(rl.idleTimeout)
		case <-rl.stop:
			return
		}
	}
}

// Cleanup removes buckets unused for longer than maxIdle.
func (rl *RateLimiter) Cleanup(maxIdle time.Duration) {
	cutoff := time.Now().Add(-maxIdle)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	// oldest entries sit at the back; stop at the first recent one
	for elem := rl.order.Back(); elem != nil; {
		b := elem.Value.(*bucket)
		if b.lastSeen.After(cutoff) {
			break
		}
		prev := elem.Prev()
		rl.order.Remove(elem)
		delete(rl.buckets, b.key)
		removed++
		elem = prev
	}

	if removed > 0 {
		rl.logger.Debug("Rate limiter cleanup completed",
			"removed", removed,
			"remaining", len(rl.buckets))
	}
}

// Len returns the number of tracked identifiers.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// Stop terminates the sweeper goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}
