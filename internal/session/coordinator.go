package session

import (
	"context"
	"errors"
	"time"

	"github.com/irregularchat/speech-memorization/internal/audio"
	"github.com/irregularchat/speech-memorization/internal/provider"
	"github.com/irregularchat/speech-memorization/internal/scoring"
	"github.com/irregularchat/speech-memorization/internal/storage/sqlite"
	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// Publisher delivers practice events to connected clients
type Publisher interface {
	Publish(sessionID, eventType string, data map[string]any)
}

// Event types published over the websocket
const (
	EventSpeechDetected    = "speech_detected"
	EventSilenceDetected   = "silence_detected"
	EventVolumeLevel       = "volume_level"
	EventChunkDispatched   = "chunk_dispatched"
	EventPhraseOutcome     = "phrase_outcome"
	EventDispatchExhausted = "dispatch_exhausted"
	EventSessionComplete   = "session_complete"
	EventSessionStopped    = "session_stopped"
	EventLowQualityAudio   = "low_quality_audio"
)

// CoordinatorConfig wires a coordinator to its audio format and
// transcription hints
type CoordinatorConfig struct {
	SampleRate   int
	FrameSamples int
	Language     string
}

// Snapshot is a point-in-time view of a coordinator's session
type Snapshot struct {
	Stats     Stats  `json:"stats"`
	Phrase    Phrase `json:"current_phrase"`
	HasPhrase bool   `json:"has_phrase"`
	Status    Status `json:"status"`
}

type dispatchResult struct {
	phrase     Phrase
	sequence   int
	transcript *provider.Transcript
	err        error
}

type command int

const (
	cmdSkip command = iota
	cmdStop
)

// Coordinator runs one practice session: it feeds incoming audio
// through analysis and chunking, dispatches chunks for transcription,
// scores transcripts against the current phrase and advances the
// session. All state is owned by the Run loop; the exported methods
// only pass messages to it.
type Coordinator struct {
	session    *Session
	analyzer   *audio.FrameAnalyzer
	chunker    *audio.Chunker
	enhancer   audio.Enhancer
	dispatcher *provider.Dispatcher
	scorer     *scoring.Scorer
	attempts   *sqlite.AttemptStorage
	missed     *sqlite.MissedWordStorage
	publisher  Publisher
	cfg        CoordinatorConfig
	logger     *logger.Logger

	audioIn  chan []byte
	commands chan command
	results  chan dispatchResult
	queries  chan chan Snapshot
	done     chan struct{}

	pending  []float32 // Samples left over when a message does not fill a whole frame
	inFlight int       // Dispatch goroutines whose results are still owed to the loop
}

// NewCoordinator assembles a coordinator for the given session.
// attempts and missed may be nil when persistence is disabled.
func NewCoordinator(
	sess *Session,
	analyzer *audio.FrameAnalyzer,
	chunker *audio.Chunker,
	enhancer audio.Enhancer,
	dispatcher *provider.Dispatcher,
	scorer *scoring.Scorer,
	attempts *sqlite.AttemptStorage,
	missed *sqlite.MissedWordStorage,
	publisher Publisher,
	cfg CoordinatorConfig,
	log *logger.Logger,
) *Coordinator {
	return &Coordinator{
		session:    sess,
		analyzer:   analyzer,
		chunker:    chunker,
		enhancer:   enhancer,
		dispatcher: dispatcher,
		scorer:     scorer,
		attempts:   attempts,
		missed:     missed,
		publisher:  publisher,
		cfg:        cfg,
		logger:     log.Named("coordinator").With(logger.String("session_id", sess.ID)),
		audioIn:    make(chan []byte, 32),
		commands:   make(chan command, 4),
		results:    make(chan dispatchResult, 4),
		queries:    make(chan chan Snapshot),
		done:       make(chan struct{}),
	}
}

// PushAudio hands one binary audio message to the session. Messages are
// dropped when the loop is backed up; live practice prefers fresh audio
// over complete audio.
func (c *Coordinator) PushAudio(message []byte) bool {
	select {
	case c.audioIn <- message:
		return true
	case <-c.done:
		return false
	default:
		c.logger.Warn("Dropping audio message, loop backed up")
		return false
	}
}

// Skip asks the session to move past the current phrase
func (c *Coordinator) Skip() {
	select {
	case c.commands <- cmdSkip:
	case <-c.done:
	}
}

// Stop ends the session, flushing any remaining audio first
func (c *Coordinator) Stop() {
	select {
	case c.commands <- cmdStop:
	case <-c.done:
	}
}

// Snapshot returns the current session state, or a zero snapshot if the
// loop has exited
func (c *Coordinator) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case c.queries <- reply:
		return <-reply
	case <-c.done:
		return Snapshot{Status: c.session.Status}
	}
}

// Done is closed when the run loop exits
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Run drives the session until it completes, is stopped, or ctx ends
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)

	c.logger.Info("Session started",
		logger.Int("phrases", len(c.session.Phrases)))

	for {
		select {
		case <-ctx.Done():
			c.session.Stop(time.Now())
			return

		case message := <-c.audioIn:
			c.handleAudio(message)

		case result := <-c.results:
			c.inFlight--
			c.handleResult(result)
			if c.session.Status != StatusActive {
				return
			}

		case cmd := <-c.commands:
			switch cmd {
			case cmdSkip:
				c.handleSkip()
			case cmdStop:
				c.handleStop()
			}
			if c.session.Status != StatusActive {
				return
			}

		case reply := <-c.queries:
			phrase, hasPhrase := c.session.CurrentPhrase()
			reply <- Snapshot{
				Stats:     c.session.Stats(time.Now()),
				Phrase:    phrase,
				HasPhrase: hasPhrase,
				Status:    c.session.Status,
			}
		}
	}
}

func (c *Coordinator) handleAudio(message []byte) {
	hdr, samples, err := audio.DecodeStream(message)
	if err != nil {
		c.logger.Warn("Discarding malformed audio message", logger.Error(err))
		return
	}
	if int(hdr.SampleRate) != c.cfg.SampleRate {
		c.logger.Warn("Discarding audio with unexpected sample rate",
			logger.Int("got", int(hdr.SampleRate)),
			logger.Int("want", c.cfg.SampleRate))
		return
	}

	c.pending = append(c.pending, samples...)
	now := time.Now()

	var levelSum float64
	frames := 0
	for len(c.pending) >= c.cfg.FrameSamples {
		frame := c.pending[:c.cfg.FrameSamples]
		c.pending = c.pending[c.cfg.FrameSamples:]

		verdict := c.analyzer.Analyze(frame)
		levelSum += verdict.Energy
		frames++

		for _, event := range c.chunker.Push(frame, verdict, now) {
			c.handleChunkerEvent(event)
		}
	}

	if frames > 0 {
		c.publisher.Publish(c.session.ID, EventVolumeLevel, map[string]any{
			"level": levelSum / float64(frames),
		})
	}
}

func (c *Coordinator) handleChunkerEvent(event audio.Event) {
	switch event.Type {
	case audio.EventSpeechDetected:
		c.publisher.Publish(c.session.ID, EventSpeechDetected, nil)
	case audio.EventSilence:
		c.publisher.Publish(c.session.ID, EventSilenceDetected, map[string]any{
			"kind": string(event.Silence),
		})
	case audio.EventChunkReady:
		c.dispatchChunk(event.Chunk)
	}
}

func (c *Coordinator) dispatchChunk(chunk *audio.Chunk) {
	phrase, ok := c.session.CurrentPhrase()
	if !ok {
		return
	}

	if err := audio.CheckQuality(chunk.Samples, c.cfg.SampleRate); err != nil {
		c.logger.Debug("Skipping low-quality chunk", logger.Error(err))
		c.publisher.Publish(c.session.ID, EventLowQualityAudio, map[string]any{
			"reason": err.Error(),
		})
		return
	}

	samples := c.enhancer.Enhance(chunk.Samples)
	wav := audio.EncodeWAV(samples, c.cfg.SampleRate, 1)
	req := provider.Request{
		WAV:        wav,
		SampleRate: c.cfg.SampleRate,
		Language:   c.cfg.Language,
		Prompt:     phrase.Text,
	}

	c.publisher.Publish(c.session.ID, EventChunkDispatched, map[string]any{
		"sequence":    chunk.Sequence,
		"duration_ms": chunk.Duration.Milliseconds(),
		"final":       chunk.Final,
	})

	// The dispatcher allows one request in flight; a chunk arriving
	// while another is out gets ErrBusy and is dropped. The result is
	// delivered either way so the loop can balance its in-flight count.
	c.inFlight++
	go func() {
		transcript, err := c.dispatcher.Dispatch(context.Background(), req)
		select {
		case c.results <- dispatchResult{phrase: phrase, sequence: chunk.Sequence, transcript: transcript, err: err}:
		case <-c.done:
		}
	}()
}

func (c *Coordinator) handleResult(result dispatchResult) {
	now := time.Now()

	if errors.Is(result.err, provider.ErrBusy) {
		c.logger.Debug("Chunk dropped, dispatch in flight")
		return
	}

	if result.err != nil {
		var exhausted *provider.ExhaustedError
		if errors.As(result.err, &exhausted) {
			c.logger.Error("All providers failed", logger.Error(result.err))
			c.publisher.Publish(c.session.ID, EventDispatchExhausted, map[string]any{
				"attempts": exhausted.Attempts,
				"error":    exhausted.Error(),
			})
		} else if !errors.Is(result.err, provider.ErrNoProviders) {
			c.logger.Error("Dispatch failed", logger.Error(result.err))
		} else {
			c.publisher.Publish(c.session.ID, EventDispatchExhausted, map[string]any{
				"attempts": 0,
				"error":    result.err.Error(),
			})
		}
		return
	}

	// A phrase advance may have raced the dispatch; score against the
	// phrase the chunk was captured for only if it is still current.
	current, ok := c.session.CurrentPhrase()
	if !ok || current.Index != result.phrase.Index {
		c.logger.Debug("Discarding transcript for superseded phrase",
			logger.Int("phrase_index", result.phrase.Index))
		return
	}

	scored := c.scorer.Score(result.phrase.Text, result.transcript.Text)
	decision, err := c.session.RecordAttempt(scored, now)
	if err != nil {
		c.logger.Warn("Attempt not recorded", logger.Error(err))
		return
	}

	c.persistAttempt(result, scored, now)

	if decision.Advancement != AdvanceNone {
		c.analyzer.Reset()
	}

	c.publisher.Publish(c.session.ID, EventPhraseOutcome, map[string]any{
		"phrase":      result.phrase,
		"sequence":    result.sequence,
		"transcript":  result.transcript.Text,
		"provider_id": result.transcript.ProviderID,
		"result":      scored,
		"decision":    decision,
	})

	if decision.Completed {
		c.finishSession(now, EventSessionComplete)
	}
}

func (c *Coordinator) handleSkip() {
	now := time.Now()
	decision, err := c.session.Skip(now)
	if err != nil {
		c.logger.Debug("Skip rejected", logger.Error(err))
		return
	}
	c.analyzer.Reset()
	phrase, _ := c.session.CurrentPhrase()
	c.publisher.Publish(c.session.ID, EventPhraseOutcome, map[string]any{
		"decision": decision,
		"phrase":   phrase,
	})
	if decision.Completed {
		c.finishSession(now, EventSessionComplete)
	}
}

func (c *Coordinator) handleStop() {
	// Let any outstanding dispatch land first, otherwise the final
	// flush below would bounce off the single-flight guard and the
	// last audio of the session would be lost.
	for c.inFlight > 0 {
		result := <-c.results
		c.inFlight--
		c.handleResult(result)
	}

	// Flush whatever audio is still buffered; the remaining partial
	// chunk is scored like any other if it survives the quality gate.
	// This dispatch is synchronous so the last words still count.
	if chunk := c.chunker.Flush(); chunk != nil {
		if phrase, ok := c.session.CurrentPhrase(); ok {
			if err := audio.CheckQuality(chunk.Samples, c.cfg.SampleRate); err != nil {
				c.publisher.Publish(c.session.ID, EventLowQualityAudio, map[string]any{
					"reason": err.Error(),
				})
			} else {
				wav := audio.EncodeWAV(c.enhancer.Enhance(chunk.Samples), c.cfg.SampleRate, 1)
				transcript, err := c.dispatcher.Dispatch(context.Background(), provider.Request{
					WAV:        wav,
					SampleRate: c.cfg.SampleRate,
					Language:   c.cfg.Language,
					Prompt:     phrase.Text,
				})
				c.handleResult(dispatchResult{phrase: phrase, sequence: chunk.Sequence, transcript: transcript, err: err})
			}
		}
	}

	now := time.Now()
	if c.session.Status == StatusActive {
		c.session.Stop(now)
		c.finishSession(now, EventSessionStopped)
	}
}

func (c *Coordinator) finishSession(now time.Time, eventType string) {
	stats := c.session.Stats(now)

	if c.missed != nil {
		if err := c.missed.RecordMissed(c.session.MissedWords(), now); err != nil {
			c.logger.Error("Failed to persist missed words", logger.Error(err))
		}
	}

	c.publisher.Publish(c.session.ID, eventType, map[string]any{
		"stats": stats,
	})
	c.logger.Info("Session finished",
		logger.String("status", string(c.session.Status)),
		logger.Float64("accuracy", stats.Accuracy),
		logger.Int("attempts", stats.TotalAttempts))
}

func (c *Coordinator) persistAttempt(result dispatchResult, scored scoring.Result, now time.Time) {
	if c.attempts == nil {
		return
	}
	_, err := c.attempts.StoreAttempt(&sqlite.AttemptRecord{
		SessionID:     c.session.ID,
		PositionIndex: result.phrase.Index,
		ChunkSequence: result.sequence,
		Phrase:        result.phrase.Text,
		Transcript:    result.transcript.Text,
		ProviderID:    result.transcript.ProviderID,
		Accuracy:      scored.Accuracy,
		Outcome:       string(scored.Outcome),
		CorrectWords:  scored.CorrectWords,
		TotalWords:    scored.TotalWords,
		Confidence:    result.transcript.Confidence,
		ElapsedMs:     result.transcript.Elapsed.Milliseconds(),
		CreatedAt:     now,
	})
	if err != nil {
		c.logger.Error("Failed to persist attempt", logger.Error(err))
	}
}
