package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irregularchat/speech-memorization/internal/audio"
	"github.com/irregularchat/speech-memorization/internal/config"
	"github.com/irregularchat/speech-memorization/internal/provider"
	"github.com/irregularchat/speech-memorization/internal/scoring"
	"github.com/irregularchat/speech-memorization/internal/storage/sqlite"
	"github.com/irregularchat/speech-memorization/internal/websocket"
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// Manager owns the live practice sessions. It builds a fresh audio
// pipeline per session around the shared dispatcher and storage, and
// routes websocket traffic to the right coordinator.
type Manager struct {
	cfg        *config.Config
	dispatcher *provider.Dispatcher
	scorer     *scoring.Scorer
	attempts   *sqlite.AttemptStorage
	missed     *sqlite.MissedWordStorage
	publisher  Publisher
	logger     *logger.Logger

	mu           sync.Mutex
	coordinators map[string]*Coordinator
	cancels      map[string]context.CancelFunc
}

// NewManager creates a session manager. attempts and missed may be nil
// when persistence is disabled.
func NewManager(
	cfg *config.Config,
	dispatcher *provider.Dispatcher,
	scorer *scoring.Scorer,
	attempts *sqlite.AttemptStorage,
	missed *sqlite.MissedWordStorage,
	publisher Publisher,
	log *logger.Logger,
) *Manager {
	return &Manager{
		cfg:          cfg,
		dispatcher:   dispatcher,
		scorer:       scorer,
		attempts:     attempts,
		missed:       missed,
		publisher:    publisher,
		logger:       log.Named("session-manager"),
		coordinators: make(map[string]*Coordinator),
		cancels:      make(map[string]context.CancelFunc),
	}
}

// Start creates a session over the given text and begins its run loop.
// Sessions outlive the request that created them; Shutdown ends them.
func (m *Manager) Start(text string) (Snapshot, error) {
	id := uuid.NewString()
	sess, err := New(id, text, m.cfg.Session.PhraseWordCount, Rules{
		GoodThreshold:     m.cfg.Scoring.GoodThreshold,
		PartialThreshold:  m.cfg.Scoring.PartialThreshold,
		RetryThreshold:    m.cfg.Scoring.RetryThreshold,
		MaxSkippableWords: m.cfg.Scoring.MaxSkippableWords,
		MaxAttempts:       m.cfg.Session.MaxAttemptsPerLine,
	}, time.Now())
	if err != nil {
		return Snapshot{}, err
	}

	analyzer := audio.NewFrameAnalyzer(audio.AnalyzerConfig{
		SampleRate:          m.cfg.Audio.SampleRate,
		Threshold:           m.cfg.VAD.Threshold,
		EnergyThreshold:     m.cfg.VAD.EnergyThreshold,
		ZCRMin:              m.cfg.VAD.ZCRMin,
		ZCRMax:              m.cfg.VAD.ZCRMax,
		SpectralCentroidHz:  m.cfg.VAD.SpectralCentroidHz,
		SpectralWindowLimit: m.cfg.VAD.SpectralWindowLimit,
	}, m.logger)

	chunker := audio.NewChunker(audio.ChunkerConfig{
		SampleRate:         m.cfg.Audio.SampleRate,
		ChunkDurationMs:    m.cfg.Chunking.ChunkDurationMs,
		MinChunkDurationMs: m.cfg.Chunking.MinChunkDurationMs,
		OverlapDurationMs:  m.cfg.Chunking.OverlapDurationMs,
		MaxSilenceMs:       m.cfg.Chunking.MaxSilenceMs,
		SilenceFramesLimit: m.cfg.VAD.SilenceFramesLimit,
		NaturalSpeechMode:  m.cfg.Chunking.NaturalSpeechMode,
	}, m.logger)

	var enhancer audio.Enhancer = audio.NopEnhancer{}
	if m.cfg.Audio.EnhancerEnabled {
		enhancer = audio.NewNormalizeEnhancer()
	}

	language := "en"
	if len(m.cfg.Providers) > 0 && m.cfg.Providers[0].Language != "" {
		language = m.cfg.Providers[0].Language
	}

	coordinator := NewCoordinator(
		sess, analyzer, chunker, enhancer,
		m.dispatcher, m.scorer, m.attempts, m.missed,
		m.publisher,
		CoordinatorConfig{
			SampleRate:   m.cfg.Audio.SampleRate,
			FrameSamples: m.cfg.Audio.FrameSamples,
			Language:     language,
		},
		m.logger,
	)

	runCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	m.coordinators[id] = coordinator
	m.cancels[id] = cancel
	m.mu.Unlock()

	go coordinator.Run(runCtx)
	go func() {
		<-coordinator.Done()
		cancel()
		m.mu.Lock()
		delete(m.coordinators, id)
		delete(m.cancels, id)
		m.mu.Unlock()
	}()

	m.logger.Info("Started session",
		logger.String("session_id", id),
		logger.Int("phrases", len(sess.Phrases)))
	return coordinator.Snapshot(), nil
}

// Get returns the coordinator for a live session
func (m *Manager) Get(id string) (*Coordinator, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.coordinators[id]
	return c, ok
}

// Stop ends a live session
func (m *Manager) Stop(id string) error {
	c, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("unknown session: %s", id)
	}
	c.Stop()
	return nil
}

// Skip advances a live session past its current phrase
func (m *Manager) Skip(id string) error {
	c, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("unknown session: %s", id)
	}
	c.Skip()
	return nil
}

// PushAudio feeds one encoded audio message to a live session. This is
// the HTTP upload path; websocket clients send binary frames instead.
func (m *Manager) PushAudio(id string, message []byte) error {
	c, ok := m.Get(id)
	if !ok {
		return fmt.Errorf("unknown session: %s", id)
	}
	if !c.PushAudio(message) {
		return fmt.Errorf("session %s not accepting audio", id)
	}
	return nil
}

// Snapshot returns the state of a live session
func (m *Manager) Snapshot(id string) (Snapshot, error) {
	c, ok := m.Get(id)
	if !ok {
		return Snapshot{}, fmt.Errorf("unknown session: %s", id)
	}
	return c.Snapshot(), nil
}

// Shutdown stops every live session
func (m *Manager) Shutdown() {
	m.mu.Lock()
	coordinators := make([]*Coordinator, 0, len(m.coordinators))
	for _, c := range m.coordinators {
		coordinators = append(coordinators, c)
	}
	m.mu.Unlock()

	for _, c := range coordinators {
		c.Stop()
		<-c.Done()
	}
}

// HandleMessage implements websocket.MessageHandler for session control
func (m *Manager) HandleMessage(client *websocket.Client, messageType string, data map[string]any) error {
	sessionID := client.SessionID()
	if sessionID == "" {
		if id, ok := data["session_id"].(string); ok {
			sessionID = id
		}
	}

	switch messageType {
	case "skip_phrase":
		return m.Skip(sessionID)
	case "stop_session":
		return m.Stop(sessionID)
	default:
		return fmt.Errorf("unknown message type: %s", messageType)
	}
}

// HandleBinary implements websocket.BinaryHandler; binary frames are
// audio for the client's subscribed session
func (m *Manager) HandleBinary(client *websocket.Client, data []byte) error {
	sessionID := client.SessionID()
	if sessionID == "" {
		return fmt.Errorf("audio received before subscribe")
	}
	c, ok := m.Get(sessionID)
	if !ok {
		return fmt.Errorf("unknown session: %s", sessionID)
	}
	c.PushAudio(data)
	return nil
}
