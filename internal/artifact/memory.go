package artifact

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryBackend keeps envelopes in process memory. Used by tests and dry runs.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]Envelope
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]Envelope)}
}

func (b *MemoryBackend) Save(ctx context.Context, env *Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	env.Version = b.items[env.Path].Version + 1
	stored := *env
	stored.Payload = append([]byte(nil), env.Payload...)
	stored.Tags = make(Tags, len(env.Tags))
	for k, v := range env.Tags {
		stored.Tags[k] = v
	}
	b.items[env.Path] = stored
	return nil
}

func (b *MemoryBackend) Load(ctx context.Context, path string) (*Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	env, ok := b.items[path]
	if !ok {
		return nil, fmt.Errorf("artifact %s: %w", path, ErrNotFound)
	}
	env.Payload = append([]byte(nil), env.Payload...)
	return &env, nil
}

func (b *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []string
	for path := range b.items {
		if prefix == "" || path == prefix || strings.HasPrefix(path, prefix+"/") {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out, nil
}
