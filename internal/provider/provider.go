package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/irregularchat/speech-memorization/internal/config"
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// Request carries one audio chunk to a transcription backend
type Request struct {
	WAV        []byte // Complete RIFF container, 16-bit PCM
	SampleRate int
	Language   string
	Prompt     string // Optional context hint, e.g. the expected phrase
}

// Transcript is a backend's answer for one chunk
type Transcript struct {
	Text       string
	Confidence float64 // Backend-reported, or estimated from the text when absent
	ProviderID string
	Elapsed    time.Duration
}

// Provider is a transcription backend
type Provider interface {
	// ID returns the configured identifier for this backend instance
	ID() string
	// Transcribe sends one chunk and blocks until the backend answers
	// or ctx expires
	Transcribe(ctx context.Context, req Request) (*Transcript, error)
}

// ErrEmptyTranscript is returned when a backend answered successfully
// but produced no usable text
var ErrEmptyTranscript = errors.New("provider returned empty transcript")

// New builds a provider from its configuration
func New(cfg config.ProviderConfig, log *logger.Logger) (Provider, error) {
	switch cfg.Type {
	case "openai":
		return NewOpenAIProvider(cfg, log), nil
	case "gemini":
		return NewGeminiProvider(cfg, log), nil
	case "mock":
		return NewMockProvider(cfg.ID), nil
	default:
		return nil, fmt.Errorf("unknown provider type: %s", cfg.Type)
	}
}
