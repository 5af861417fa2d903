package call

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/gosuda/callsim/internal/domain"
)

type MessageType string

// Inbound message types.
const (
	MessageAudioChunk MessageType = "audio_chunk"
	MessageControl    MessageType = "control"
	MessageTranscript MessageType = "transcript"
)

// Outbound message types. Outbound audio reuses MessageAudioChunk.
const (
	MessageTranscriptUpdate MessageType = "transcript_update"
	MessageEntityUpdate     MessageType = "entity_update"
	MessageEmotionalState   MessageType = "emotional_state"
	MessageControlAck       MessageType = "control_ack"
	MessageError            MessageType = "error"
)

// Control actions. Only ActionTerminate changes state; the rest are acknowledged.
const (
	ActionMute      = "mute"
	ActionUnmute    = "unmute"
	ActionHold      = "hold"
	ActionResume    = "resume"
	ActionTerminate = "terminate"
)

// Control acknowledgement statuses.
const (
	AckSuccess = "success"
	AckError   = "error"
)

type ErrorCode string

const (
	CodeSessionNotFound ErrorCode = "SESSION_NOT_FOUND"
	CodeContextNotFound ErrorCode = "CONTEXT_NOT_FOUND"
	CodeInvalidAudio    ErrorCode = "INVALID_AUDIO"
	CodeProcessingError ErrorCode = "PROCESSING_ERROR"
	CodeInternalError   ErrorCode = "INTERNAL_ERROR"
	CodeServerShutdown  ErrorCode = "SERVER_SHUTDOWN"
)

// InboundMessage is the union of everything a client may send. Fields not
// used by Type are left at their zero value.
type InboundMessage struct {
	Type        MessageType `json:"type"`
	AudioData   string      `json:"audio_data,omitempty"`
	TimestampMs int64       `json:"timestamp_ms,omitempty"`
	Action      string      `json:"action,omitempty"`
	Text        string      `json:"text,omitempty"`
}

// DecodeInbound parses one client frame.
func DecodeInbound(data []byte) (InboundMessage, error) {
	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return InboundMessage{}, fmt.Errorf("call.DecodeInbound: %w: %w", ErrInvalidMessage, err)
	}
	if msg.Type == "" {
		return InboundMessage{}, fmt.Errorf("call.DecodeInbound: missing type: %w", ErrInvalidMessage)
	}
	return msg, nil
}

// OutboundMessage is any server-to-client frame.
type OutboundMessage interface {
	MessageType() MessageType
}

// Envelope carries the discriminator and the session every outbound frame belongs to.
type Envelope struct {
	Type      MessageType `json:"type"`
	SessionID uuid.UUID   `json:"session_id"`
}

func (e Envelope) MessageType() MessageType { return e.Type }

type TranscriptUpdate struct {
	Envelope
	TranscriptID    uuid.UUID      `json:"transcript_id"`
	Speaker         domain.Speaker `json:"speaker"`
	Text            string         `json:"text"`
	TimestampMs     int64          `json:"timestamp_ms"`
	ConfidenceScore float64        `json:"confidence_score"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

type AudioChunk struct {
	Envelope
	AudioData   string `json:"audio_data"`
	TimestampMs int64  `json:"timestamp_ms"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
}

type EntityUpdate struct {
	Envelope
	EntityID        uuid.UUID `json:"entity_id"`
	EntityType      string    `json:"entity_type"`
	EntityValue     string    `json:"entity_value"`
	ConfidenceScore float64   `json:"confidence_score"`
}

type EmotionalStateUpdate struct {
	Envelope
	State       domain.EmotionalState `json:"state"`
	Intensity   float64               `json:"intensity"`
	TimestampMs int64                 `json:"timestamp_ms"`
}

type ControlAck struct {
	Envelope
	Action string `json:"action"`
	Status string `json:"status"`
}

type ErrorMessage struct {
	Envelope
	ErrorCode    ErrorCode `json:"error_code"`
	ErrorMessage string    `json:"error_message"`
}

func newEnvelope(t MessageType, sessionID uuid.UUID) Envelope {
	return Envelope{Type: t, SessionID: sessionID}
}

// NewErrorMessage builds an error frame for a session.
func NewErrorMessage(sessionID uuid.UUID, code ErrorCode, message string) ErrorMessage {
	return ErrorMessage{
		Envelope:     newEnvelope(MessageError, sessionID),
		ErrorCode:    code,
		ErrorMessage: message,
	}
}

// NewControlAck builds a control acknowledgement.
func NewControlAck(sessionID uuid.UUID, action, status string) ControlAck {
	return ControlAck{
		Envelope: newEnvelope(MessageControlAck, sessionID),
		Action:   action,
		Status:   status,
	}
}

func newEntityUpdate(e *domain.ExtractedEntity, sessionID uuid.UUID) EntityUpdate {
	return EntityUpdate{
		Envelope:        newEnvelope(MessageEntityUpdate, sessionID),
		EntityID:        e.ID,
		EntityType:      e.EntityType,
		EntityValue:     e.EntityValue,
		ConfidenceScore: e.ConfidenceScore,
	}
}
