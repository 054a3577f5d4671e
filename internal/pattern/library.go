package pattern

import (
	"context"
	"sync"

	logx "telekinesis/pkg/logx"
)

// Library resolves names through a Store and caches the sanitized result.
// Cached patterns are immutable and shared by every task referencing them.
type Library struct {
	store Store
	log   logx.Logger

	mu    sync.RWMutex
	cache map[string]*Pattern
}

func NewLibrary(store Store, log logx.Logger) *Library {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Library{store: store, log: log, cache: map[string]*Pattern{}}
}

// Get returns the named pattern, loading it on first use.
func (l *Library) Get(ctx context.Context, name string) (*Pattern, error) {
	l.mu.RLock()
	p := l.cache[name]
	l.mu.RUnlock()
	if p != nil {
		return p, nil
	}
	if l.store == nil {
		return nil, ErrNotFound
	}

	pts, err := l.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	p, err = New(name, pts)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if cached := l.cache[name]; cached != nil {
		p = cached
	} else {
		l.cache[name] = p
	}
	l.mu.Unlock()
	l.log.Debug("pattern loaded", logx.String("pattern", name), logx.Int("points", len(p.points)), logx.Duration("period", p.Period()))
	return p, nil
}

func (l *Library) Names(ctx context.Context, kind Kind) ([]string, error) {
	if l.store == nil {
		return nil, nil
	}
	return l.store.Names(ctx, kind)
}

// Invalidate drops cached patterns so edits on disk are picked up.
// Tasks already holding a pattern keep their copy.
func (l *Library) Invalidate() {
	l.mu.Lock()
	l.cache = map[string]*Pattern{}
	l.mu.Unlock()
}
