// Package cache stores measure results keyed by the content of the event
// table they were computed from.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/rpaflow/rpaflow/pkg/measures"
)

// Cache stores measure results.
type Cache interface {
	// Get returns the cached result for key. A miss is not an error.
	Get(ctx context.Context, key string) (*measures.Result, bool, error)
	Set(ctx context.Context, key string, res *measures.Result) error
	// Invalidate drops every result computed from the table with digest.
	Invalidate(ctx context.Context, digest string) error
	Close() error
}

// Key identifies the result of one measure over one table. Options that
// change the output are part of the key.
func Key(digest, measure string, opts measures.Options) string {
	return fmt.Sprintf("%s:%s:r%d", digest, measure, opts.RoundDecimals)
}

func encode(res *measures.Result) ([]byte, error) {
	return json.Marshal(res)
}

func decode(data []byte) (*measures.Result, error) {
	var res measures.Result
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Nop never stores anything.
type Nop struct{}

func (Nop) Get(context.Context, string) (*measures.Result, bool, error) { return nil, false, nil }
func (Nop) Set(context.Context, string, *measures.Result) error         { return nil }
func (Nop) Invalidate(context.Context, string) error                    { return nil }
func (Nop) Close() error                                                { return nil }

// Memory keeps encoded results in process memory. It is used by the watch
// loop when no Redis server is configured.
type Memory struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemory creates an empty in-process cache.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key string) (*measures.Result, bool, error) {
	m.mu.RLock()
	data, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	res, err := decode(data)
	if err != nil {
		return nil, false, err
	}
	return res, true, nil
}

func (m *Memory) Set(_ context.Context, key string, res *measures.Result) error {
	data, err := encode(res)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.entries[key] = data
	m.mu.Unlock()
	return nil
}

func (m *Memory) Invalidate(_ context.Context, digest string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if strings.HasPrefix(k, digest+":") {
			delete(m.entries, k)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Len returns the number of stored results.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
