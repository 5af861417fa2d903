package call

import "errors"

var (
	// ErrChannelClosed is returned when a message cannot be delivered because
	// the session has no open channel.
	ErrChannelClosed = errors.New("call: channel closed") //nolint:gochecknoglobals // sentinel error

	// ErrInvalidAudio is returned for audio chunks that are not valid base64 or
	// exceed MaxAudioChunkBytes.
	ErrInvalidAudio = errors.New("call: invalid audio chunk") //nolint:gochecknoglobals // sentinel error

	// ErrInvalidMessage is returned for inbound payloads that cannot be decoded.
	ErrInvalidMessage = errors.New("call: invalid message") //nolint:gochecknoglobals // sentinel error

	// ErrCollaborator marks a failed or unusable result from the generation,
	// synthesis, or extraction backends.
	ErrCollaborator = errors.New("call: collaborator failure") //nolint:gochecknoglobals // sentinel error

	// ErrSessionNotActive is returned when a call session is missing or already ended.
	ErrSessionNotActive = errors.New("call: session not active") //nolint:gochecknoglobals // sentinel error
)
