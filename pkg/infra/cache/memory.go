package cache

import (
	"context"
	"sync"

	"github.com/m-mizutani/ctxlog"
	"github.com/m-mizutani/goerr/v2"

	"github.com/m-mizutani/relwatch/pkg/domain/interfaces"
	"github.com/m-mizutani/relwatch/pkg/domain/model"
)

// Memory is a process-wide result cache keyed by owner/name. Entries never
// expire and the last write wins. Values are copied on the way in and out.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*model.RepositoryResult
	store   interfaces.ResultStore
}

var _ interfaces.ResultCache = (*Memory)(nil)

// Option is a functional option for Memory
type Option func(*Memory)

// WithStore writes every put through to store
func WithStore(store interfaces.ResultStore) Option {
	return func(m *Memory) {
		m.store = store
	}
}

// NewMemory creates an empty cache
func NewMemory(opts ...Option) *Memory {
	m := &Memory{
		entries: make(map[string]*model.RepositoryResult),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Get returns the cached result of repo
func (m *Memory) Get(ctx context.Context, repo model.RepositoryRef) (*model.RepositoryResult, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result, ok := m.entries[repo.Key()]
	if !ok {
		return nil, false
	}
	return result.Clone(), true
}

// Put replaces the cached result of the result's repository. A failure of the
// backing store is logged and does not affect the in-memory entry.
func (m *Memory) Put(ctx context.Context, result *model.RepositoryResult) {
	if result == nil {
		return
	}

	m.mu.Lock()
	m.entries[result.Ref().Key()] = result.Clone()
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.Save(ctx, result); err != nil {
			ctxlog.From(ctx).Warn("Failed to persist cached result",
				"repo", result.Ref().Key(),
				"error", err,
			)
		}
	}
}

// Len returns the number of cached repositories
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Load fills the cache from the backing store. Entries already in memory are
// kept, since they are newer than anything persisted.
func (m *Memory) Load(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}

	results, err := m.store.LoadAll(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to load cached results")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loaded := 0
	for _, r := range results {
		if r == nil || r.IsError() {
			continue
		}
		key := r.Ref().Key()
		if _, exists := m.entries[key]; exists {
			continue
		}
		m.entries[key] = r.Clone()
		loaded++
	}

	return loaded, nil
}
