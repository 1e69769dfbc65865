// Package settings supplies string-valued configuration by key, the way the
// host platform stores plugin settings, plus typed parse helpers that make
// the fallback behaviour explicit.
package settings

import (
	"context"
	"sync"
)

// Provider looks up a stored setting. ok is false when the key is unset;
// err reports transport failures only, never missing keys.
type Provider interface {
	Lookup(ctx context.Context, key string) (value string, ok bool, err error)
}

// MemoryProvider is a mutex-guarded in-process Provider used by tests and by
// standalone runs without a settings store.
type MemoryProvider struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemoryProvider seeds an in-memory provider with the given values.
func NewMemoryProvider(values map[string]string) *MemoryProvider {
	copied := make(map[string]string, len(values))
	for key, value := range values {
		copied[key] = value
	}
	return &MemoryProvider{values: copied}
}

func (p *MemoryProvider) Lookup(_ context.Context, key string) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	value, ok := p.values[key]
	return value, ok, nil
}

// Set stores or replaces a value.
func (p *MemoryProvider) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[key] = value
}

// Delete removes a key.
func (p *MemoryProvider) Delete(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.values, key)
}
