package intentstore

import (
	"context"
	"sync"
	"time"

	"github.com/seaside-charters/api/internal/domain"
)

// MemoryStore is an in-process Store for local runs and tests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	clock   func() time.Time
}

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		clock:   time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *MemoryStore) WithClock(clock func() time.Time) *MemoryStore {
	if clock != nil {
		s.clock = clock
	}
	return s
}

func (s *MemoryStore) Put(_ context.Context, orderID string, intent domain.BookingIntent, ttl time.Duration) error {
	payload, err := encode(orderID, intent)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[orderID] = memoryEntry{payload: payload, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) Take(_ context.Context, orderID string) (domain.BookingIntent, error) {
	s.mu.Lock()
	entry, ok := s.live(orderID)
	delete(s.entries, orderID)
	s.mu.Unlock()
	if !ok {
		return domain.BookingIntent{}, ErrNotFound
	}
	return decode(orderID, entry.payload, nil)
}

func (s *MemoryStore) Restore(_ context.Context, orderID string, intent domain.BookingIntent, ttl time.Duration) error {
	payload, err := encode(orderID, intent)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(orderID); ok {
		return nil
	}
	s.entries[orderID] = memoryEntry{payload: payload, expiresAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orderID string) (domain.BookingIntent, error) {
	s.mu.Lock()
	entry, ok := s.live(orderID)
	s.mu.Unlock()
	if !ok {
		return domain.BookingIntent{}, ErrNotFound
	}
	return decode(orderID, entry.payload, nil)
}

// live must be called with mu held.
func (s *MemoryStore) live(orderID string) (memoryEntry, bool) {
	entry, ok := s.entries[orderID]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !s.clock().Before(entry.expiresAt) {
		delete(s.entries, orderID)
		return memoryEntry{}, false
	}
	return entry, true
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.clock().Add(ttl)
}
