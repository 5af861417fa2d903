package call

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/callsim/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestMemoryStore(ttl time.Duration) (*MemoryContextStore, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	s := NewMemoryContextStore(ttl)
	s.now = clock.Now
	return s, clock
}

func testProfile() domain.CallerProfile {
	return domain.CallerProfile{Name: "Riley", InitialEmotionalState: domain.EmotionAnxious}
}

func TestMemoryContextStore_CreateGet(t *testing.T) {
	t.Parallel()

	s, _ := newTestMemoryStore(time.Hour)
	ctx := context.Background()
	id := uuid.New()

	created, err := s.Create(ctx, id, domain.ScenarioSnapshot{Name: "Burglary"}, testProfile())
	require.NoError(t, err)
	assert.Equal(t, domain.EmotionAnxious, created.CurrentEmotionalState)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, got.SessionID)
	assert.Equal(t, "Burglary", got.Scenario.Name)
	assert.Equal(t, "Riley", got.CallerProfile.Name)

	_, err = s.Create(ctx, id, domain.ScenarioSnapshot{}, testProfile())
	require.ErrorIs(t, err, domain.ErrAlreadyExists)

	_, err = s.Get(ctx, uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryContextStore_ReturnedContextIsDetached(t *testing.T) {
	t.Parallel()

	s, _ := newTestMemoryStore(time.Hour)
	ctx := context.Background()
	id := uuid.New()
	_, err := s.Create(ctx, id, domain.ScenarioSnapshot{}, testProfile())
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	got.AppendTurn(domain.Turn{Role: domain.RoleOperator, Text: "not stored"})

	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 0, again.TurnCount())
}

func TestMemoryContextStore_Update(t *testing.T) {
	t.Parallel()

	s, clock := newTestMemoryStore(time.Hour)
	ctx := context.Background()
	id := uuid.New()
	_, err := s.Create(ctx, id, domain.ScenarioSnapshot{}, testProfile())
	require.NoError(t, err)

	clock.Advance(time.Minute)
	updated, err := s.Update(ctx, id, func(c *domain.SessionContext) error {
		c.AppendTurn(domain.Turn{Role: domain.RoleOperator, Text: "Where are you?"})
		c.AddEntity("LOCATION", "Elm Street")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), updated.Revision)
	assert.Equal(t, clock.Now(), updated.LastActivityAt)

	_, err = s.Update(ctx, id, func(*domain.SessionContext) error {
		return errors.New("rejected")
	})
	require.Error(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, got.TurnCount())
	assert.Equal(t, int64(1), got.Revision)
	assert.Equal(t, []string{"Elm Street"}, got.ExtractedEntities["LOCATION"])

	_, err = s.Update(ctx, uuid.New(), func(*domain.SessionContext) error { return nil })
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryContextStore_SlidingTTL(t *testing.T) {
	t.Parallel()

	s, clock := newTestMemoryStore(10 * time.Minute)
	ctx := context.Background()
	id := uuid.New()
	_, err := s.Create(ctx, id, domain.ScenarioSnapshot{}, testProfile())
	require.NoError(t, err)

	// Each access pushes expiry out by the full TTL.
	for range 3 {
		clock.Advance(9 * time.Minute)
		_, err := s.Get(ctx, id)
		require.NoError(t, err)
	}

	clock.Advance(10 * time.Minute)
	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)

	// An expired id can be created again.
	_, err = s.Create(ctx, id, domain.ScenarioSnapshot{}, testProfile())
	require.NoError(t, err)
}

func TestMemoryContextStore_Delete(t *testing.T) {
	t.Parallel()

	s, _ := newTestMemoryStore(time.Hour)
	ctx := context.Background()
	id := uuid.New()
	_, err := s.Create(ctx, id, domain.ScenarioSnapshot{}, testProfile())
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, id))
	require.NoError(t, s.Delete(ctx, id))

	_, err = s.Get(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func TestMemoryContextStore_ConcurrentUpdates(t *testing.T) {
	t.Parallel()

	s, _ := newTestMemoryStore(time.Hour)
	ctx := context.Background()
	id := uuid.New()
	_, err := s.Create(ctx, id, domain.ScenarioSnapshot{}, testProfile())
	require.NoError(t, err)

	const writers = 50
	var wg sync.WaitGroup
	for i := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, id, func(c *domain.SessionContext) error {
				c.AppendTurn(domain.Turn{Role: domain.RoleOperator})
				c.AddEntity("N", uuid.NewString())
				return nil
			})
			assert.NoError(t, err, "writer %d", i)
		}()
	}
	wg.Wait()

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, writers, got.TurnCount())
	assert.Equal(t, writers, got.EntityCount())
	assert.Equal(t, int64(writers), got.Revision)
}
