package blob

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const DefaultMemoryEntries = 64

// MemoryStore keeps the most recent exports in process memory. Older
// entries are evicted once the size limit is reached.
type MemoryStore struct {
	cache *lru.Cache[string, []byte]
}

func NewMemoryStore(size int) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMemoryEntries
	}
	cache, err := lru.New[string, []byte](size)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{cache: cache}, nil
}

func (m *MemoryStore) PutObject(_ context.Context, key string, data []byte, _ string) (int64, error) {
	cp := make([]byte, len(data))
	copy(cp, data)
	m.cache.Add(key, cp)
	return int64(len(cp)), nil
}

func (m *MemoryStore) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := m.cache.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// PresignGet always fails; exports in memory are streamed by the API.
func (m *MemoryStore) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", ErrPresignUnsupported
}

func (m *MemoryStore) DeleteObject(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}

func (m *MemoryStore) Len() int {
	return m.cache.Len()
}
