package securestore

import (
	"context"
	"sync"
)

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]Record)}
}

func (m *MemoryBackend) Load(name string) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	return rec, ok, nil
}

func (m *MemoryBackend) Save(records map[string]Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, rec := range records {
		m.records[name] = rec
	}
	return nil
}

func (m *MemoryBackend) Names() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.records))
	for name := range m.records {
		out = append(out, name)
	}
	return out, nil
}

func (m *MemoryBackend) Delete(names ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		delete(m.records, name)
	}
	return nil
}

// NewMemory returns an ungated in-memory Store; every entry reads as PolicyNone
// would. Intended for tests and for shells that gate reads themselves.
func NewMemory() *Vault {
	return NewVault(NewMemoryBackend(), allowAll{})
}

type allowAll struct{}

func (allowAll) Unlock(_ context.Context, _ AccessPolicy) error { return nil }

func (allowAll) EnrollmentID(_ context.Context) (string, error) { return "static", nil }
