// Package netcheck answers "is the upload endpoint reachable" for the batch
// orchestrator without probing the network on every upload attempt.
package netcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Probe returns nil when the endpoint is reachable.
type Probe func(ctx context.Context) error

// Cached remembers a successful probe for TTL. Offline answers are never
// cached, so every caller after a failure probes again. Concurrent callers
// share a single in-flight probe and its answer.
type Cached struct {
	probe   Probe
	ttl     time.Duration
	timeout time.Duration
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	onlineAt time.Time
	inflight *flight
}

type flight struct {
	done   chan struct{}
	online bool
	valid  bool
}

func NewCached(probe Probe, ttl, timeout time.Duration, logger *slog.Logger) *Cached {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{
		probe:   probe,
		ttl:     ttl,
		timeout: timeout,
		logger:  logger,
		now:     time.Now,
	}
}

func (c *Cached) Online(ctx context.Context) bool {
	for {
		c.mu.Lock()
		if !c.onlineAt.IsZero() && c.now().Sub(c.onlineAt) < c.ttl {
			c.mu.Unlock()
			return true
		}
		if f := c.inflight; f != nil {
			c.mu.Unlock()
			select {
			case <-f.done:
				if f.valid {
					return f.online
				}
				continue
			case <-ctx.Done():
				return false
			}
		}
		f := &flight{done: make(chan struct{})}
		c.inflight = f
		c.mu.Unlock()

		online := c.check(ctx)

		c.mu.Lock()
		c.inflight = nil
		if ctx.Err() == nil {
			f.online, f.valid = online, true
			if online {
				c.onlineAt = c.now()
			} else {
				c.onlineAt = time.Time{}
			}
		}
		c.mu.Unlock()
		close(f.done)
		return online
	}
}

// Invalidate drops a remembered online answer so the next Online call probes.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	c.onlineAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cached) check(ctx context.Context) bool {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()
	if err := c.probe(ctx); err != nil {
		c.logger.Warn("Connectivity check failed", "error", err, "duration", time.Since(start))
		return false
	}
	c.logger.Debug("Connectivity check passed", "duration", time.Since(start))
	return true
}
