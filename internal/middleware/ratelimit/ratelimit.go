// Package ratelimit throttles callers with a fixed request budget per
// window. Budgets are keyed by an arbitrary string so the same limiter can
// charge anonymous requests to an IP and authenticated ones to a user.
package ratelimit

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type Config struct {
	// Limit is the number of requests a key may make per Window.
	Limit  int
	Window time.Duration

	// SweepInterval is how often expired windows are dropped.
	SweepInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		Limit:         60,
		Window:        time.Minute,
		SweepInterval: 5 * time.Minute,
	}
}

// Limiter tracks one window per key. Stop must be called to end the
// sweeper goroutine.
type Limiter struct {
	limit  int
	window time.Duration
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket

	rejected atomic.Int64
	done     chan struct{}
	stopOnce sync.Once
}

type bucket struct {
	opened time.Time
	used   int
}

func NewLimiter(cfg Config) *Limiter {
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = def.SweepInterval
	}

	l := &Limiter{
		limit:   cfg.Limit,
		window:  cfg.Window,
		now:     time.Now,
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	go l.sweepEvery(cfg.SweepInterval)
	return l
}

// Take charges one request to key. When the budget is spent it returns
// false and how long until the window reopens.
func (l *Limiter) Take(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || now.Sub(b.opened) >= l.window {
		l.buckets[key] = &bucket{opened: now, used: 1}
		return true, 0
	}
	if b.used >= l.limit {
		l.rejected.Add(1)
		return false, l.window - now.Sub(b.opened)
	}
	b.used++
	return true, 0
}

func (l *Limiter) sweepEvery(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.done:
			return
		}
	}
}

// sweep drops windows that have run out; they carry no state a later
// Take would need.
func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		if now.Sub(b.opened) >= l.window {
			delete(l.buckets, key)
		}
	}
}

func (l *Limiter) Stop() {
	l.stopOnce.Do(func() { close(l.done) })
}

// Stats is a point in time view of the limiter.
type Stats struct {
	Rejected int64
	Tracked  int
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	tracked := len(l.buckets)
	l.mu.Unlock()
	return Stats{Rejected: l.rejected.Load(), Tracked: tracked}
}

// KeyFunc names the budget a request is charged to.
type KeyFunc func(*http.Request) string

// Middleware rejects requests whose key is over budget. Retry-After is set
// before reject runs; a nil reject writes a plain 429.
func (l *Limiter) Middleware(key KeyFunc, reject http.HandlerFunc) func(http.Handler) http.Handler {
	if reject == nil {
		reject = func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, wait := l.Take(key(r)); !ok {
				w.Header().Set("Retry-After", strconv.Itoa(retrySeconds(wait)))
				reject(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// retrySeconds rounds up so clients never retry early.
func retrySeconds(d time.Duration) int {
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}
