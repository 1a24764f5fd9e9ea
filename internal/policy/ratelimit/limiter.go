// Package ratelimit throttles document loads per remote host with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/catalog-linker/internal/linker"
	"github.com/JakeFAU/catalog-linker/internal/metrics"
)

// Config holds rate limiter configuration. A non-positive RPS disables limiting.
type Config struct {
	RPS   float64
	Burst int
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Wait blocks until a token is available for the URL's host.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)
	l.mu.Lock()
	limiter, exists := l.limiters[host]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Provider decorates a DocumentProvider so every load waits for a token first.
type Provider struct {
	next    linker.DocumentProvider
	limiter *Limiter
}

// Wrap returns next throttled by limiter.
func Wrap(next linker.DocumentProvider, limiter *Limiter) *Provider {
	return &Provider{next: next, limiter: limiter}
}

// Load waits for the host's limiter and delegates to the wrapped provider.
func (p *Provider) Load(ctx context.Context, target string) (*goquery.Document, error) {
	if err := p.limiter.Wait(ctx, target); err != nil {
		return nil, &linker.FetchError{URL: target, Err: err}
	}
	return p.next.Load(ctx, target)
}
