// Package ratelimit paces page visits so the crawler stays polite.
// Two mechanisms compose: a fixed delay each worker observes between
// its own visits, and an optional token bucket shared by the whole
// pool when a requests-per-second cap is configured.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/sitehawk/sitehawk/pkg/defaults"
)

// Config holds pacing configuration.
type Config struct {
	// Delay is the fixed pause before each page visit. Every worker
	// observes it independently.
	Delay time.Duration

	// RequestsPerSecond caps the pool-wide visit rate when > 0.
	RequestsPerSecond float64

	// Burst allows short bursts above the cap (default 1).
	Burst int

	// PerHost gives each host its own token bucket.
	PerHost bool
}

// DefaultConfig returns the standard polite pacing.
func DefaultConfig() *Config {
	return &Config{Delay: defaults.PolitenessDelay}
}

// Limiter applies the configured pacing. It is safe for concurrent
// use by all workers.
type Limiter struct {
	cfg    *Config
	bucket *rate.Limiter

	mu    sync.RWMutex
	hosts map[string]*Limiter
}

// New creates a limiter. A nil config uses DefaultConfig.
func New(cfg *Config) *Limiter {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Limiter{
		cfg:   cfg,
		hosts: make(map[string]*Limiter),
	}
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.bucket = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return l
}

// Wait blocks until pacing allows another visit.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.WaitForHost(ctx, "")
}

// WaitForHost blocks until pacing allows another visit to host.
func (l *Limiter) WaitForHost(ctx context.Context, host string) error {
	if l.cfg.PerHost && host != "" {
		return l.hostLimiter(host).wait(ctx)
	}
	return l.wait(ctx)
}

func (l *Limiter) wait(ctx context.Context) error {
	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			return err
		}
	}
	if l.cfg.Delay > 0 {
		timer := time.NewTimer(l.cfg.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return nil
}

func (l *Limiter) hostLimiter(host string) *Limiter {
	l.mu.RLock()
	hl, ok := l.hosts[host]
	l.mu.RUnlock()
	if ok {
		return hl
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if hl, ok = l.hosts[host]; ok {
		return hl
	}

	hostCfg := *l.cfg
	hostCfg.PerHost = false
	hl = New(&hostCfg)
	l.hosts[host] = hl
	return hl
}

// ClearAllHosts drops all per-host buckets. Long crawls across many
// subdomains call this to keep the map bounded.
func (l *Limiter) ClearAllHosts() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hosts = make(map[string]*Limiter)
}

// NewWithDelay creates a limiter with only a fixed delay between visits.
func NewWithDelay(delay time.Duration) *Limiter {
	return New(&Config{Delay: delay})
}

// NewPerSecond creates a limiter with a pool-wide N visits/sec cap.
func NewPerSecond(rps float64) *Limiter {
	return New(&Config{RequestsPerSecond: rps})
}
