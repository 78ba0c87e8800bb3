// Package throttle caps how often one origin may hit an endpoint.
package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type visitor struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// Limiter is a per-key token bucket holding Requests tokens that refill over
// Window. A key idle for a whole Window is indistinguishable from a new one,
// which is what lets Sweep drop it.
type Limiter struct {
	limit rate.Limit
	burst int
	idle  time.Duration
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
}

func NewLimiter(r Rule) *Limiter {
	return &Limiter{
		limit:    rate.Every(r.Window / time.Duration(r.Requests)),
		burst:    r.Requests,
		idle:     r.Window,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

func (l *Limiter) Allow(_ context.Context, key string) (bool, error) {
	return l.AllowAt(key, l.now()), nil
}

func (l *Limiter) AllowAt(key string, now time.Time) bool {
	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{lim: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[key] = v
	}
	v.lastSeen = now
	l.mu.Unlock()

	return v.lim.AllowN(now, 1)
}

func (l *Limiter) Sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.visitors {
		if now.Sub(v.lastSeen) >= l.idle {
			delete(l.visitors, k)
		}
	}
}

func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.visitors)
}

// Run sweeps idle keys every interval until ctx is done.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			l.Sweep(l.now())
		}
	}
}
