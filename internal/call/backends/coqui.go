package backends

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/gosuda/callsim/internal/call"
	"github.com/gosuda/callsim/internal/domain"
)

// wordsPerMinute is the speaking rate used to estimate clip length.
const wordsPerMinute = 150

// maxAudioBytes bounds a synthesized clip.
const maxAudioBytes = 8 << 20

// CoquiSynthesizer voices caller lines through a Coqui TTS server.
type CoquiSynthesizer struct {
	baseURL    string
	model      string
	vocoder    string
	httpClient *http.Client
}

var _ call.Synthesizer = (*CoquiSynthesizer)(nil)

func NewCoquiSynthesizer(baseURL, model, vocoder string, httpClient *http.Client) *CoquiSynthesizer {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &CoquiSynthesizer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		vocoder:    vocoder,
		httpClient: httpClient,
	}
}

// Synthesize returns base64 WAV audio for text spoken in the given state.
func (s *CoquiSynthesizer) Synthesize(ctx context.Context, text string, state domain.EmotionalState) (call.Speech, error) {
	q := url.Values{}
	q.Set("text", ShapeProsody(text, state))
	if s.model != "" {
		q.Set("model_name", s.model)
	}
	if s.vocoder != "" {
		q.Set("vocoder_name", s.vocoder)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/api/tts?"+q.Encode(), nil)
	if err != nil {
		return call.Speech{}, fmt.Errorf("backends.CoquiSynthesizer.Synthesize: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return call.Speech{}, fmt.Errorf("backends.CoquiSynthesizer.Synthesize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return call.Speech{}, fmt.Errorf("backends.CoquiSynthesizer.Synthesize: status %d: %w", resp.StatusCode, call.ErrCollaborator)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes+1))
	if err != nil {
		return call.Speech{}, fmt.Errorf("backends.CoquiSynthesizer.Synthesize: read: %w", err)
	}
	if len(audio) > maxAudioBytes {
		return call.Speech{}, fmt.Errorf("backends.CoquiSynthesizer.Synthesize: clip exceeds %d bytes: %w", maxAudioBytes, call.ErrCollaborator)
	}

	return call.Speech{
		AudioBase64: base64.StdEncoding.EncodeToString(audio),
		DurationMs:  EstimateDurationMs(text),
	}, nil
}

// Healthy reports whether the TTS server answers its model listing.
func (s *CoquiSynthesizer) Healthy(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/models", nil)
	if err != nil {
		return fmt.Errorf("backends.CoquiSynthesizer.Healthy: %w", err)
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backends.CoquiSynthesizer.Healthy: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backends.CoquiSynthesizer.Healthy: status %d", resp.StatusCode)
	}
	return nil
}

// ShapeProsody adjusts text so the voice carries the caller's state: panicked
// speech gets trailing pauses and, when short, shouting; anxious speech gets
// a hesitation in the middle.
func ShapeProsody(text string, state domain.EmotionalState) string {
	switch state {
	case domain.EmotionPanicked:
		text = strings.ReplaceAll(text, ". ", "... ")
		if len(text) < 50 {
			text = strings.ToUpper(text)
		}
		return text
	case domain.EmotionAnxious:
		words := strings.Fields(text)
		if len(words) <= 3 {
			return strings.Join(words, " ")
		}
		mid := len(words) / 2
		words = append(words[:mid], append([]string{"um,"}, words[mid:]...)...)
		return strings.Join(words, " ")
	default:
		return text
	}
}

// EstimateDurationMs approximates how long text takes to speak.
func EstimateDurationMs(text string) int64 {
	words := len(strings.Fields(text))
	return int64(words) * 60_000 / wordsPerMinute
}
