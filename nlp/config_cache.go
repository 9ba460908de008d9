package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Loader fetches the current configuration from wherever it is persisted.
type Loader func(ctx context.Context) (Config, error)

// ConfigCache keeps a compiled Parser and reloads it once the ttl window
// has passed or Invalidate is called.
type ConfigCache struct {
	load   Loader
	ttl    time.Duration
	now    func() time.Time
	logger *slog.Logger

	mu       sync.Mutex
	parser   *Parser
	loadedAt time.Time
}

// NewConfigCache wraps load with a reload window of ttl.
func NewConfigCache(load Loader, ttl time.Duration, logger *slog.Logger) *ConfigCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConfigCache{
		load:   load,
		ttl:    ttl,
		now:    time.Now,
		logger: logger,
	}
}

// Parser returns the compiled parser, reloading it when stale. A failed
// reload keeps serving the previous parser; with nothing cached yet it
// falls back to DefaultConfig.
func (c *ConfigCache) Parser(ctx context.Context) (*Parser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.parser != nil && c.now().Sub(c.loadedAt) < c.ttl {
		return c.parser, nil
	}

	p, err := c.reload(ctx)
	if err == nil {
		c.parser, c.loadedAt = p, c.now()
		return p, nil
	}

	if c.parser != nil {
		c.logger.Warn("nlp config reload failed, keeping previous config", "error", err)
		// retry after another window instead of on every request
		c.loadedAt = c.now()
		return c.parser, nil
	}

	c.logger.Warn("nlp config unavailable, using built-in defaults", "error", err)
	p, derr := NewParser(DefaultConfig())
	if derr != nil {
		return nil, fmt.Errorf("compiling default nlp config: %w", derr)
	}
	c.parser, c.loadedAt = p, c.now()
	return p, nil
}

func (c *ConfigCache) reload(ctx context.Context) (*Parser, error) {
	cfg, err := c.load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading nlp config: %w", err)
	}
	return NewParser(cfg)
}

// Invalidate forces the next Parser call to reload.
func (c *ConfigCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loadedAt = time.Time{}
}
