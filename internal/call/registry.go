package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Channel is one open bidirectional connection for a session.
type Channel interface {
	// Receive blocks for the next client frame. It returns ErrChannelClosed
	// once the peer has gone away.
	Receive(ctx context.Context) ([]byte, error)
	Send(ctx context.Context, msg OutboundMessage) error
	Close(reason string) error
}

// Registry tracks the open channel of every connected session. A session has
// at most one channel; registering again replaces the previous one.
type Registry struct {
	mu       sync.RWMutex
	channels map[uuid.UUID]Channel
}

func NewRegistry() *Registry {
	return &Registry{
		channels: make(map[uuid.UUID]Channel),
	}
}

// Register makes ch the session's channel. A channel it replaces is left open;
// its own lane closes it when it notices.
func (r *Registry) Register(sessionID uuid.UUID, ch Channel) {
	r.mu.Lock()
	_, replaced := r.channels[sessionID]
	r.channels[sessionID] = ch
	r.mu.Unlock()

	ev := log.Info().Str("session_id", sessionID.String())
	if replaced {
		ev = ev.Bool("replaced", true)
	}
	ev.Msg("channel registered")
}

// UnregisterChannel removes ch only if it is still the session's channel, so a
// lane shutting down does not evict the connection that replaced it.
func (r *Registry) UnregisterChannel(sessionID uuid.UUID, ch Channel) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.channels[sessionID]; ok && cur == ch {
		delete(r.channels, sessionID)
		return true
	}
	return false
}

func (r *Registry) lookup(sessionID uuid.UUID) (Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[sessionID]
	return ch, ok
}

// Send delivers msg to the session's channel. Delivery failures are logged and
// swallowed; only a missing or closed channel is reported, as ErrChannelClosed.
func (r *Registry) Send(ctx context.Context, sessionID uuid.UUID, msg OutboundMessage) error {
	ch, ok := r.lookup(sessionID)
	if !ok {
		log.Warn().Str("session_id", sessionID.String()).
			Str("type", string(msg.MessageType())).
			Msg("send to disconnected session dropped")
		return fmt.Errorf("call.Registry.Send: %w", ErrChannelClosed)
	}

	if err := ch.Send(ctx, msg); err != nil {
		log.Warn().Err(err).Str("session_id", sessionID.String()).
			Str("type", string(msg.MessageType())).
			Msg("send failed")
		if errors.Is(err, ErrChannelClosed) {
			r.UnregisterChannel(sessionID, ch)
			return fmt.Errorf("call.Registry.Send: %w", ErrChannelClosed)
		}
	}

	return nil
}

// Broadcast sends every connected session the message build returns for it.
func (r *Registry) Broadcast(ctx context.Context, build func(sessionID uuid.UUID) OutboundMessage) {
	r.mu.RLock()
	ids := make([]uuid.UUID, 0, len(r.channels))
	for id := range r.channels {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	for _, id := range ids {
		_ = r.Send(ctx, id, build(id))
	}
}

// Close unregisters and closes the session's channel, if any.
func (r *Registry) Close(sessionID uuid.UUID, reason string) {
	r.mu.Lock()
	ch, ok := r.channels[sessionID]
	delete(r.channels, sessionID)
	r.mu.Unlock()

	if !ok {
		return
	}
	if err := ch.Close(reason); err != nil {
		log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("channel close")
	}
}

// CloseAll closes every registered channel. Used at shutdown.
func (r *Registry) CloseAll(reason string) {
	r.mu.Lock()
	channels := r.channels
	r.channels = make(map[uuid.UUID]Channel)
	r.mu.Unlock()

	for id, ch := range channels {
		if err := ch.Close(reason); err != nil {
			log.Debug().Err(err).Str("session_id", id.String()).Msg("channel close")
		}
	}
}

func (r *Registry) IsConnected(sessionID uuid.UUID) bool {
	_, ok := r.lookup(sessionID)
	return ok
}

// Count returns the number of connected sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}
