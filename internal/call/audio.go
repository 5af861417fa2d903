package call

import (
	"encoding/base64"
	"fmt"
)

// MaxAudioChunkBytes is the largest decoded audio chunk accepted from a client.
const MaxAudioChunkBytes = 512 * 1024

// ValidateAudioChunk decodes a base64 audio payload and enforces the size limit.
// Audio is not transcribed; a valid chunk is accepted and otherwise ignored.
func ValidateAudioChunk(data string) ([]byte, error) {
	if data == "" {
		return nil, fmt.Errorf("call.ValidateAudioChunk: empty payload: %w", ErrInvalidAudio)
	}
	if base64.StdEncoding.DecodedLen(len(data)) > MaxAudioChunkBytes+2 {
		return nil, fmt.Errorf("call.ValidateAudioChunk: payload too large: %w", ErrInvalidAudio)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("call.ValidateAudioChunk: %w: %w", ErrInvalidAudio, err)
	}
	if len(raw) > MaxAudioChunkBytes {
		return nil, fmt.Errorf("call.ValidateAudioChunk: %d bytes exceeds %d: %w", len(raw), MaxAudioChunkBytes, ErrInvalidAudio)
	}

	return raw, nil
}
