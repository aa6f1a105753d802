package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
)

var _ Store = (*MemoryStore)(nil)

// memoryEntry is what the MemoryStore keeps per key.
type memoryEntry struct {
	data    []byte
	modTime time.Time
}

// MemoryStore is an in-process Store backed by go-cache. Entries live for
// the store's TTL, or forever when the TTL is zero.
type MemoryStore struct {
	items *gocache.Cache
	now   func() time.Time
}

// NewMemoryStore creates a MemoryStore whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &MemoryStore{
		items: gocache.New(ttl, constants.MemoryCleanupInterval),
		now:   time.Now,
	}
}

// SetClock overrides the time source used to stamp writes.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.now = now
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	return s.items.ItemCount()
}

func (s *MemoryStore) get(key Key) (memoryEntry, bool) {
	v, ok := s.items.Get(string(key))
	if !ok {
		return memoryEntry{}, false
	}
	return v.(memoryEntry), true
}

// Stat implements Store.
func (s *MemoryStore) Stat(_ context.Context, key Key) (time.Time, bool, error) {
	e, ok := s.get(key)
	return e.modTime, ok, nil
}

// Read implements Store.
func (s *MemoryStore) Read(_ context.Context, key Key) ([]byte, error) {
	e, ok := s.get(key)
	if !ok {
		return nil, errors.NewNotFoundError("cache entry", string(key))
	}
	return append([]byte(nil), e.data...), nil
}

// Write implements Store.
func (s *MemoryStore) Write(_ context.Context, key Key, data []byte) error {
	s.items.SetDefault(string(key), memoryEntry{
		data:    append([]byte(nil), data...),
		modTime: s.now(),
	})
	return nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, key Key) error {
	s.items.Delete(string(key))
	return nil
}
