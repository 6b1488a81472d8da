package provider

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/irregularchat/speech-memorization/internal/config"
	"github.com/irregularchat/speech-memorization/internal/scoring"
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider transcribes chunks with the Gemini API by sending WAV
// audio inline with a transcription instruction
type GeminiProvider struct {
	id          string
	apiKey      string
	model       string
	language    string
	temperature float32
	logger      *logger.Logger

	mu     sync.Mutex
	client *genai.Client // Created lazily on first use
}

// NewGeminiProvider creates a provider backed by the Gemini API
func NewGeminiProvider(cfg config.ProviderConfig, log *logger.Logger) *GeminiProvider {
	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}
	return &GeminiProvider{
		id:          cfg.ID,
		apiKey:      cfg.APIKey,
		model:       model,
		language:    cfg.Language,
		temperature: float32(cfg.Temperature),
		logger:      log.Named("gemini").With(logger.String("provider_id", cfg.ID)),
	}
}

func (p *GeminiProvider) ID() string { return p.id }

func (p *GeminiProvider) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	client, err := p.getClient(ctx)
	if err != nil {
		return nil, err
	}

	instruction := fmt.Sprintf(
		"Transcribe this audio verbatim in %s. Reply with only the spoken words, no commentary.",
		p.language)
	if req.Prompt != "" {
		instruction += " Context for ambiguous words: " + req.Prompt
	}

	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(req.WAV, "audio/wav"),
			genai.NewPartFromText(instruction),
		}, genai.RoleUser),
	}

	resp, err := client.Models.GenerateContent(ctx, p.model, contents, &genai.GenerateContentConfig{
		Temperature: genai.Ptr(p.temperature),
	})
	if err != nil {
		return nil, fmt.Errorf("gemini transcription: %w", err)
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, ErrEmptyTranscript
	}

	return &Transcript{
		Text:       text,
		Confidence: scoring.ConfidenceFor(text),
	}, nil
}

func (p *GeminiProvider) getClient(ctx context.Context) (*genai.Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil {
		return p.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	p.client = client
	return client, nil
}
