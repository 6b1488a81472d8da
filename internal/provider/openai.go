package provider

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/irregularchat/speech-memorization/internal/config"
	"github.com/irregularchat/speech-memorization/internal/scoring"
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// OpenAIProvider transcribes chunks with the OpenAI audio transcription
// API (Whisper family)
type OpenAIProvider struct {
	id          string
	client      *openai.Client
	model       string
	language    string
	temperature float32
	logger      *logger.Logger
}

// NewOpenAIProvider creates a provider backed by the OpenAI API
func NewOpenAIProvider(cfg config.ProviderConfig, log *logger.Logger) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIProvider{
		id:          cfg.ID,
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		language:    cfg.Language,
		temperature: float32(cfg.Temperature),
		logger:      log.Named("openai").With(logger.String("provider_id", cfg.ID)),
	}
}

func (p *OpenAIProvider) ID() string { return p.id }

func (p *OpenAIProvider) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:       p.model,
		Reader:      bytes.NewReader(req.WAV),
		FilePath:    "chunk.wav",
		Language:    p.language,
		Prompt:      req.Prompt,
		Temperature: p.temperature,
		Format:      openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("openai transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	return &Transcript{
		Text:       text,
		Confidence: scoring.ConfidenceFor(text),
	}, nil
}
