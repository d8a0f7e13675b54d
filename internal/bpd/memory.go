package bpd

import (
	"context"
	"sync"

	"fjacquet/ebics-mt940/internal/logging"
)

type key struct{ country, code int }

// MemoryStore keeps BPD for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[key]string
	logger logging.Logger
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(logger logging.Logger) *MemoryStore {
	return &MemoryStore{data: make(map[key]string), logger: logging.OrDefault(logger)}
}

func (s *MemoryStore) Version(ctx context.Context, country, code int) (int, bool, error) {
	return versionOf(ctx, s, country, code, s.logger)
}

func (s *MemoryStore) Get(_ context.Context, country, code int) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bpd, ok := s.data[key{country, code}]
	return bpd, ok, nil
}

func (s *MemoryStore) Save(_ context.Context, country, code int, bpd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key{country, code}] = bpd
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, country, code int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key{country, code})
	return nil
}
