// Package ratelimit enforces the API request budget shared by every
// concurrent path of a crawl run. It combines a steady-state token bucket
// with a forced-delay gate fed from live response headers, and an
// exponential backoff that engages on explicit throttling signals.
package ratelimit

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/jamesprial/go-reddit-crawler/pkg/crawlerr"
	"github.com/jamesprial/go-reddit-crawler/pkg/types"
)

const (
	// DefaultRequestsPerMinute matches Reddit's documented OAuth quota.
	DefaultRequestsPerMinute = 60
	// DefaultBurst allows short spikes above the steady-state rate.
	DefaultBurst = 10

	defaultInitialBackoff = 2 * time.Second
	defaultMaxBackoff     = 60 * time.Second
	defaultJitterFrac     = 0.5
)

// Config controls throttling and backoff behavior.
type Config struct {
	// RequestsPerMinute caps steady-state throughput. Defaults to 60 if zero.
	RequestsPerMinute float64
	// Burst is the token bucket capacity. Defaults to 10 if zero.
	Burst int
	// InitialBackoff is the first delay after a throttling signal.
	InitialBackoff time.Duration
	// MaxBackoff caps the doubling delay.
	MaxBackoff time.Duration
	// JitterFrac randomizes each backoff delay by up to this fraction, to
	// avoid thundering-herd re-entry. Clamped to [0, 1].
	JitterFrac float64
	// BackoffCeiling bounds the cumulative wait of a single Acquire call.
	// When exceeded, Acquire returns crawlerr.ErrBackoffCeiling and the
	// caller decides what to do; the limiter itself stays usable. Zero
	// means no ceiling.
	BackoffCeiling time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestsPerMinute <= 0 {
		c.RequestsPerMinute = DefaultRequestsPerMinute
	}
	if c.Burst <= 0 {
		c.Burst = DefaultBurst
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.JitterFrac < 0 {
		c.JitterFrac = 0
	}
	if c.JitterFrac > 1 {
		c.JitterFrac = defaultJitterFrac
	}
	return c
}

// Limiter is safe for concurrent use. One instance is shared by every
// walker and hydrator of a run.
type Limiter struct {
	cfg     Config
	limiter *rate.Limiter

	mu         sync.Mutex
	forceUntil time.Time
	backoff    time.Duration

	// now and sleep are injectable so tests drive a fake clock instead of
	// wall-clock sleeps.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a limiter with the given configuration.
func New(cfg Config) *Limiter {
	cfg = cfg.withDefaults()
	perSecond := rate.Limit(cfg.RequestsPerMinute / 60.0)
	l := &Limiter{
		cfg:     cfg,
		limiter: rate.NewLimiter(perSecond, cfg.Burst),
		now:     time.Now,
	}
	l.sleep = l.timerSleep
	return l
}

// Acquire blocks until issuing cost requests would not exceed the quota.
// It returns nil once budget is available, ctx.Err() on cancellation, or
// crawlerr.ErrBackoffCeiling when the cumulative wait for this call passed
// the configured hard ceiling.
func (l *Limiter) Acquire(ctx context.Context, cost int) error {
	if cost < 1 {
		cost = 1
	}
	if cost > l.cfg.Burst {
		cost = l.cfg.Burst
	}

	var waited time.Duration
	for {
		if d := l.pendingDelay(); d > 0 {
			waited += d
			if l.cfg.BackoffCeiling > 0 && waited > l.cfg.BackoffCeiling {
				return crawlerr.ErrBackoffCeiling
			}
			if err := l.sleep(ctx, d); err != nil {
				return err
			}
			continue
		}

		now := l.now()
		res := l.limiter.ReserveN(now, cost)
		if !res.OK() {
			// Unreachable after the cost clamp above, but never stall.
			return crawlerr.ErrBackoffCeiling
		}
		d := res.DelayFrom(now)
		if d == 0 {
			return nil
		}
		waited += d
		if l.cfg.BackoffCeiling > 0 && waited > l.cfg.BackoffCeiling {
			res.CancelAt(now)
			return crawlerr.ErrBackoffCeiling
		}
		if err := l.sleep(ctx, d); err != nil {
			res.CancelAt(l.now())
			return err
		}
		return nil
	}
}

// Report feeds quota headers from the most recent response back into the
// limiter. When the remaining budget is nearly spent, all callers are held
// until the window resets.
func (l *Limiter) Report(info types.RateInfo) {
	if !info.Known() {
		return
	}
	if info.Remaining <= 1 {
		l.deferUntil(info.ResetAt)
	}
}

// ReportThrottled records an explicit rate-limited signal (HTTP 429). The
// backoff delay starts at InitialBackoff and doubles per consecutive signal
// up to MaxBackoff, with jitter. retryAfter, when positive, sets a floor
// from the server's Retry-After header.
func (l *Limiter) ReportThrottled(retryAfter time.Duration) {
	l.mu.Lock()
	if l.backoff == 0 {
		l.backoff = l.cfg.InitialBackoff
	} else {
		l.backoff *= 2
		if l.backoff > l.cfg.MaxBackoff {
			l.backoff = l.cfg.MaxBackoff
		}
	}
	delay := l.jittered(l.backoff)
	if retryAfter > delay {
		delay = retryAfter
	}
	until := l.now().Add(delay)
	if until.After(l.forceUntil) {
		l.forceUntil = until
	}
	l.mu.Unlock()
}

// ReportSuccess resets the backoff ladder after one successful call.
func (l *Limiter) ReportSuccess() {
	l.mu.Lock()
	l.backoff = 0
	l.mu.Unlock()
}

func (l *Limiter) pendingDelay() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.forceUntil.IsZero() {
		return 0
	}
	d := l.forceUntil.Sub(l.now())
	if d <= 0 {
		l.forceUntil = time.Time{}
		return 0
	}
	return d
}

func (l *Limiter) deferUntil(t time.Time) {
	l.mu.Lock()
	if t.After(l.forceUntil) {
		l.forceUntil = t
	}
	l.mu.Unlock()
}

// jittered spreads d by up to JitterFrac in either direction. Must hold mu.
func (l *Limiter) jittered(d time.Duration) time.Duration {
	if l.cfg.JitterFrac == 0 {
		return d
	}
	spread := (rand.Float64()*2 - 1) * l.cfg.JitterFrac
	return time.Duration(float64(d) * (1 + spread))
}

func (l *Limiter) timerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
