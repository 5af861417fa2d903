package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/callsim/internal/domain"
	"github.com/gosuda/callsim/internal/syncutil"
)

// maxUpdateAttempts bounds optimistic retries when another writer touches the
// key between WATCH and EXEC.
const maxUpdateAttempts = 16

// ContextStore keeps session contexts as JSON blobs with a sliding TTL.
//
// Update is a WATCH/MULTI/EXEC compare-and-swap. Writers in the same process
// are additionally serialized per session so they do not burn retries on each
// other; writers in other processes are handled by the CAS.
type ContextStore struct {
	client *redis.Client
	ttl    time.Duration
	locks  syncutil.KeyedMutex[uuid.UUID]
	now    func() time.Time
}

var _ domain.ContextStore = (*ContextStore)(nil)

func NewContextStore(client *redis.Client, ttl time.Duration) *ContextStore {
	return &ContextStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (s *ContextStore) Create(ctx context.Context, id uuid.UUID, scenario domain.ScenarioSnapshot, profile domain.CallerProfile) (*domain.SessionContext, error) {
	c := domain.NewSessionContext(id, scenario, profile, s.now().UTC())

	data, err := domain.MarshalContext(c)
	if err != nil {
		return nil, fmt.Errorf("redis.ContextStore.Create: %w", err)
	}

	ok, err := s.client.SetNX(ctx, ContextKey(id), data, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis.ContextStore.Create: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("redis.ContextStore.Create: %w", domain.ErrAlreadyExists)
	}

	return c, nil
}

func (s *ContextStore) Get(ctx context.Context, id uuid.UUID) (*domain.SessionContext, error) {
	data, err := s.client.GetEx(ctx, ContextKey(id), s.ttl).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("redis.ContextStore.Get: %w", domain.ErrNotFound)
		}
		return nil, fmt.Errorf("redis.ContextStore.Get: %w", err)
	}

	c, err := domain.UnmarshalContext(data)
	if err != nil {
		return nil, fmt.Errorf("redis.ContextStore.Get: %w", err)
	}

	return c, nil
}

func (s *ContextStore) Update(ctx context.Context, id uuid.UUID, mutate domain.ContextMutator) (*domain.SessionContext, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	key := ContextKey(id)

	for attempt := 1; attempt <= maxUpdateAttempts; attempt++ {
		var updated *domain.SessionContext

		err := s.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return domain.ErrNotFound
				}
				return err
			}

			c, err := domain.UnmarshalContext(data)
			if err != nil {
				return err
			}
			if err := mutate(c); err != nil {
				return err
			}
			c.Revision++
			c.LastActivityAt = s.now().UTC()

			out, err := domain.MarshalContext(c)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, out, s.ttl)
				return nil
			})
			if err != nil {
				return err
			}

			updated = c
			return nil
		}, key)

		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return nil, fmt.Errorf("redis.ContextStore.Update: %w", err)
		}

		log.Debug().Str("session_id", id.String()).Int("attempt", attempt).Msg("context update raced, retrying")
	}

	return nil, fmt.Errorf("redis.ContextStore.Update: %d attempts: %w", maxUpdateAttempts, domain.ErrConflict)
}

func (s *ContextStore) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, ContextKey(id)).Err(); err != nil {
		return fmt.Errorf("redis.ContextStore.Delete: %w", err)
	}
	return nil
}

// Ping checks that Redis is reachable.
func (s *ContextStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.ContextStore.Ping: %w", err)
	}
	return nil
}
