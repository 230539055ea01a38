package storage

import (
	"context"
	"fmt"
	"io"
	"sync"
)

// Memory keeps uploads in process. It is used when STORAGE_DRIVER=none.
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) Upload(ctx context.Context, obj Object) (string, error) {
	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return "", fmt.Errorf("read upload: %w", err)
	}
	key := ObjectKey(obj.Folder, obj.Name)

	m.mu.Lock()
	m.objects[key] = data
	m.mu.Unlock()

	return "memory://" + key, nil
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok
}
