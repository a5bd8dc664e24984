// Package catalog caches the model lists advertised by each LLM provider.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"docsearch/internal/domain"
	"docsearch/internal/provider"
)

const DefaultTTL = 30 * time.Minute

// Entry is the cached model list of one provider.
type Entry struct {
	Provider    string    `json:"provider"`
	Models      []string  `json:"models"`
	RefreshedAt time.Time `json:"refreshed_at"`
	// Fallback is set when the list came from the provider defaults.
	Fallback bool `json:"fallback"`
}

type Options struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *slog.Logger
}

type snapshot struct {
	takenAt time.Time
	entries []Entry
}

// Cache serves provider model lists, refreshing them at most once per TTL.
// Readers never block on a fresh snapshot; a stale one is refreshed by a
// single caller while concurrent callers wait for its result.
type Cache struct {
	providers []provider.Adapter
	ttl       time.Duration
	now       func() time.Time
	logger    *slog.Logger

	current atomic.Pointer[snapshot]
	mu      sync.Mutex
}

func New(providers []provider.Adapter, opts Options) *Cache {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Cache{
		providers: providers,
		ttl:       opts.TTL,
		now:       opts.Now,
		logger:    opts.Logger,
	}
}

// Get returns provider name -> model names. Every known provider is present.
func (c *Cache) Get(ctx context.Context) map[string][]string {
	snap := c.load(ctx)
	out := make(map[string][]string, len(snap.entries))
	for _, e := range snap.entries {
		out[e.Provider] = slices.Clone(e.Models)
	}
	return out
}

// Entries returns the cached entries in provider registration order.
func (c *Cache) Entries(ctx context.Context) []Entry {
	snap := c.load(ctx)
	out := make([]Entry, len(snap.entries))
	for i, e := range snap.entries {
		e.Models = slices.Clone(e.Models)
		out[i] = e
	}
	return out
}

// Invalidate forces the next Get to refresh.
func (c *Cache) Invalidate() { c.current.Store(nil) }

func (c *Cache) load(ctx context.Context) *snapshot {
	if snap := c.current.Load(); !c.stale(snap) {
		return snap
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	// another caller may have refreshed while we waited for the lock
	if snap := c.current.Load(); !c.stale(snap) {
		return snap
	}
	// the refresh outlives the caller that triggered it; adapters bound their own listing time
	snap := c.refresh(context.WithoutCancel(ctx), c.current.Load())
	c.current.Store(snap)
	return snap
}

func (s *snapshot) entry(name string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	for _, e := range s.entries {
		if e.Provider == name {
			return e, true
		}
	}
	return Entry{}, false
}

func (c *Cache) stale(s *snapshot) bool {
	return s == nil || c.now().Sub(s.takenAt) > c.ttl
}

// refresh lists every provider. A provider that fails keeps its entry from prev
// when that entry was a real listing, otherwise it falls back to its defaults.
func (c *Cache) refresh(ctx context.Context, prev *snapshot) *snapshot {
	entries := make([]Entry, len(c.providers))
	var g errgroup.Group
	for i, p := range c.providers {
		g.Go(func() error {
			e := c.fetch(ctx, p)
			if old, ok := prev.entry(p.Name()); ok && e.Fallback && !old.Fallback {
				e = old
			}
			entries[i] = e
			return nil
		})
	}
	_ = g.Wait()
	return &snapshot{takenAt: c.now(), entries: entries}
}

func (c *Cache) fetch(ctx context.Context, p provider.Adapter) Entry {
	models, err := p.ListModels(ctx)
	if err != nil {
		c.logger.Warn("model catalog refresh failed, using defaults",
			"provider", p.Name(), "error", fmt.Errorf("%w: %w", domain.ErrCatalogRefresh, err))
		return Entry{Provider: p.Name(), Models: p.DefaultModels(), RefreshedAt: c.now(), Fallback: true}
	}
	return Entry{Provider: p.Name(), Models: models, RefreshedAt: c.now()}
}
