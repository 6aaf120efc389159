package state

import (
	"context"
	"time"

	"github.com/gofiber/storage/memory/v2"
)

// MemoryStore implements Store on top of the fiber in-memory storage.
// State does not survive the process.
type MemoryStore struct {
	storage *memory.Storage
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		storage: memory.New(memory.Config{
			GCInterval: 10 * time.Minute,
		}),
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := s.storage.Get(key)
	if err != nil || len(value) == 0 {
		return nil, err
	}
	// the storage hands out its own slice
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	return s.storage.Set(key, stored, 0)
}

func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(key)
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Close() error {
	return s.storage.Close()
}
