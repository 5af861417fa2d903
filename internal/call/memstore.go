package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/callsim/internal/domain"
	"github.com/gosuda/callsim/internal/syncutil"
)

// MemoryContextStore is a process-local ContextStore. Contexts are kept
// serialized so callers never share memory with the store.
type MemoryContextStore struct {
	mu      sync.RWMutex
	entries map[uuid.UUID]memEntry
	locks   syncutil.KeyedMutex[uuid.UUID]
	ttl     time.Duration
	now     func() time.Time
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

var _ domain.ContextStore = (*MemoryContextStore)(nil)

func NewMemoryContextStore(ttl time.Duration) *MemoryContextStore {
	return &MemoryContextStore{
		entries: make(map[uuid.UUID]memEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// load returns the live entry for id, dropping it if it has expired.
func (s *MemoryContextStore) load(id uuid.UUID, now time.Time) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	if !now.Before(e.expiresAt) {
		delete(s.entries, id)
		return nil, false
	}
	return e.data, true
}

func (s *MemoryContextStore) store(id uuid.UUID, data []byte, now time.Time) {
	s.mu.Lock()
	s.entries[id] = memEntry{data: data, expiresAt: now.Add(s.ttl)}
	s.mu.Unlock()
}

func (s *MemoryContextStore) Create(_ context.Context, id uuid.UUID, scenario domain.ScenarioSnapshot, profile domain.CallerProfile) (*domain.SessionContext, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now()
	if _, ok := s.load(id, now); ok {
		return nil, fmt.Errorf("call.MemoryContextStore.Create: %w", domain.ErrAlreadyExists)
	}

	c := domain.NewSessionContext(id, scenario, profile, now.UTC())
	data, err := domain.MarshalContext(c)
	if err != nil {
		return nil, fmt.Errorf("call.MemoryContextStore.Create: %w", err)
	}
	s.store(id, data, now)

	return c, nil
}

func (s *MemoryContextStore) Get(_ context.Context, id uuid.UUID) (*domain.SessionContext, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now()
	data, ok := s.load(id, now)
	if !ok {
		return nil, fmt.Errorf("call.MemoryContextStore.Get: %w", domain.ErrNotFound)
	}
	s.store(id, data, now)

	c, err := domain.UnmarshalContext(data)
	if err != nil {
		return nil, fmt.Errorf("call.MemoryContextStore.Get: %w", err)
	}
	return c, nil
}

func (s *MemoryContextStore) Update(_ context.Context, id uuid.UUID, mutate domain.ContextMutator) (*domain.SessionContext, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	now := s.now()
	data, ok := s.load(id, now)
	if !ok {
		return nil, fmt.Errorf("call.MemoryContextStore.Update: %w", domain.ErrNotFound)
	}

	c, err := domain.UnmarshalContext(data)
	if err != nil {
		return nil, fmt.Errorf("call.MemoryContextStore.Update: %w", err)
	}
	if err := mutate(c); err != nil {
		return nil, fmt.Errorf("call.MemoryContextStore.Update: %w", err)
	}
	c.Revision++
	c.LastActivityAt = now.UTC()

	out, err := domain.MarshalContext(c)
	if err != nil {
		return nil, fmt.Errorf("call.MemoryContextStore.Update: %w", err)
	}
	s.store(id, out, now)

	return c, nil
}

func (s *MemoryContextStore) Delete(_ context.Context, id uuid.UUID) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}
