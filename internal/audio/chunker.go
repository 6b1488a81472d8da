package audio

import (
	"time"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// ChunkerConfig contains the tuning parameters for adaptive chunking
type ChunkerConfig struct {
	SampleRate         int  // Audio sample rate in Hz
	ChunkDurationMs    int  // Period of the flush timer
	MinChunkDurationMs int  // Minimum accumulated audio before a timer flush is allowed
	OverlapDurationMs  int  // Overlap prepended from the rolling buffer to each chunk
	MaxSilenceMs       int  // Volume-based silence duration before a silence event
	SilenceFramesLimit int  // Consecutive non-speaking frames before a VAD silence event
	NaturalSpeechMode  bool // Accumulate every frame rather than only speaking frames
}

// SilenceKind distinguishes the two silence detectors
type SilenceKind string

const (
	SilenceVolume SilenceKind = "volume" // No frame crossed the energy threshold for MaxSilenceMs
	SilenceVAD    SilenceKind = "vad"    // SilenceFramesLimit consecutive frames judged non-speaking
)

// EventType identifies a chunker event
type EventType string

const (
	EventChunkReady     EventType = "chunk_ready"
	EventSilence        EventType = "silence_detected"
	EventSpeechDetected EventType = "speech_detected"
)

// Chunk is a flushed span of accumulated audio ready for transcription
type Chunk struct {
	Sequence int           // Flush order within the session, starting at 1
	Samples  []float32     // Overlap samples followed by the accumulated audio
	Duration time.Duration // Duration of the accumulated part, excluding overlap
	Final    bool          // Whether this chunk came from a final flush
}

// Event is emitted by the chunker as frames are pushed through it
type Event struct {
	Type    EventType
	Chunk   *Chunk      // Set when Type is EventChunkReady
	Silence SilenceKind // Set when Type is EventSilence
}

// Chunker accumulates analyzed frames into transcription-sized chunks.
// Flushes happen on a duration timer once enough audio has accumulated;
// silence events fire from two independent detectors. Like the analyzer
// it expects frames from a single goroutine.
type Chunker struct {
	cfg ChunkerConfig

	accumulated []float32
	recent      []float32 // Rolling tail of all audio seen, capped at twice the overlap length
	carry       []float32 // Tail of the previous chunk, prepended to the next one

	lastFlush     time.Time
	lastVoice     time.Time
	sequence      int
	silentFrames  int
	wasSpeaking   bool
	volumeSilent  bool
	started       bool
	overlapLimit  int
	overlapLength int

	logger *logger.Logger
}

// NewChunker creates a chunker with the given configuration
func NewChunker(cfg ChunkerConfig, log *logger.Logger) *Chunker {
	overlapLength := cfg.SampleRate * cfg.OverlapDurationMs / 1000
	return &Chunker{
		cfg:           cfg,
		overlapLength: overlapLength,
		overlapLimit:  overlapLength * 2,
		logger:        log.Named("chunker"),
	}
}

// Push feeds one analyzed frame into the chunker and returns any events
// it produced. The caller supplies the current time so that flush timing
// stays deterministic under test.
func (c *Chunker) Push(frame []float32, verdict FrameVerdict, now time.Time) []Event {
	if !c.started {
		c.started = true
		c.lastFlush = now
		c.lastVoice = now
	}

	var events []Event

	// Rolling buffer of recent audio sees every frame regardless of mode.
	if c.overlapLength > 0 {
		c.recent = append(c.recent, frame...)
		if len(c.recent) > c.overlapLimit {
			c.recent = c.recent[len(c.recent)-c.overlapLimit:]
		}
	}

	if c.cfg.NaturalSpeechMode || verdict.Speaking {
		c.accumulated = append(c.accumulated, frame...)
	}

	// Volume silence detector.
	if verdict.HasVolume {
		c.lastVoice = now
		c.volumeSilent = false
	} else if !c.volumeSilent && now.Sub(c.lastVoice) >= time.Duration(c.cfg.MaxSilenceMs)*time.Millisecond {
		c.volumeSilent = true
		events = append(events, Event{Type: EventSilence, Silence: SilenceVolume})
	}

	// VAD silence detector and speech onset.
	if verdict.Speaking {
		if !c.wasSpeaking {
			events = append(events, Event{Type: EventSpeechDetected})
		}
		c.silentFrames = 0
		c.wasSpeaking = true
	} else {
		c.silentFrames++
		c.wasSpeaking = false
		if c.cfg.SilenceFramesLimit > 0 && c.silentFrames >= c.cfg.SilenceFramesLimit {
			c.silentFrames = 0
			events = append(events, Event{Type: EventSilence, Silence: SilenceVAD})
		}
	}

	// Timer flush once enough audio has accumulated.
	if now.Sub(c.lastFlush) >= time.Duration(c.cfg.ChunkDurationMs)*time.Millisecond {
		minSamples := c.cfg.SampleRate * c.cfg.MinChunkDurationMs / 1000
		if len(c.accumulated) >= minSamples {
			events = append(events, Event{Type: EventChunkReady, Chunk: c.flush(false)})
		}
		c.lastFlush = now
	}

	return events
}

// Flush returns the remaining accumulated audio as a final chunk, or nil
// if nothing has accumulated. Used when a capture session stops.
func (c *Chunker) Flush() *Chunk {
	if len(c.accumulated) == 0 {
		return nil
	}
	return c.flush(true)
}

func (c *Chunker) flush(final bool) *Chunk {
	duration := time.Duration(len(c.accumulated)) * time.Second / time.Duration(c.cfg.SampleRate)

	// Prepend the tail of the previous chunk so words split across a
	// flush boundary survive transcription.
	samples := make([]float32, 0, len(c.carry)+len(c.accumulated))
	samples = append(samples, c.carry...)
	samples = append(samples, c.accumulated...)

	if c.overlapLength > 0 {
		tail := c.recent
		if len(tail) > c.overlapLength {
			tail = tail[len(tail)-c.overlapLength:]
		}
		c.carry = append([]float32(nil), tail...)
	}
	c.accumulated = nil
	c.sequence++

	c.logger.Debug("Flushed chunk",
		logger.Int("sequence", c.sequence),
		logger.Int("samples", len(samples)),
		logger.Duration("duration", duration),
		logger.Bool("final", final))

	return &Chunk{Sequence: c.sequence, Samples: samples, Duration: duration, Final: final}
}
