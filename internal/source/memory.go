package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
)

// MemorySource serves frames from memory. It records how many times each
// path was opened, which makes it handy for preloaded assets and tests.
type MemorySource struct {
	mu     sync.Mutex
	frames map[string][]byte
	opens  map[string]int
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		frames: make(map[string][]byte),
		opens:  make(map[string]int),
	}
}

func (m *MemorySource) Put(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames[path] = data
}

func (m *MemorySource) Open(ctx context.Context, path string, _ Priority) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opens[path]++
	data, ok := m.frames[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Opens reports how many times path was requested.
func (m *MemorySource) Opens(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens[path]
}
