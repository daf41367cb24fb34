package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/wsdtool/wsdtool/internal/wsd"
)

// MemoryStore is a Store that lives only as long as the process. Records
// go through the same encoding as SQLiteStore.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string][]byte
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte)}
}

func (s *MemoryStore) Upsert(ctx context.Context, t wsd.TargetService) error {
	data, err := encodeRecord(t)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[t.EpRefAddr] = data
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, epRefAddr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, epRefAddr)
	return nil
}

func (s *MemoryStore) List(ctx context.Context) ([]wsd.TargetService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addrs := make([]string, 0, len(s.records))
	for a := range s.records {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)

	out := make([]wsd.TargetService, 0, len(addrs))
	for _, a := range addrs {
		t, err := decodeRecord(a, s.records[a])
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
