package audio

import (
	"testing"
	"time"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

func testChunkerConfig() ChunkerConfig {
	return ChunkerConfig{
		SampleRate:         16000,
		ChunkDurationMs:    3000,
		MinChunkDurationMs: 1500,
		OverlapDurationMs:  500,
		MaxSilenceMs:       5000,
		SilenceFramesLimit: 100,
		NaturalSpeechMode:  true,
	}
}

func speakingVerdict() FrameVerdict {
	return FrameVerdict{Speaking: true, HasVolume: true, Probability: 0.8}
}

func silentVerdict() FrameVerdict {
	return FrameVerdict{Speaking: false, HasVolume: false, Probability: 0.1}
}

// feedFrames pushes n frames of frameSamples each, advancing time by
// frame duration per push, and collects every event.
func feedFrames(c *Chunker, n, frameSamples int, verdict FrameVerdict, start time.Time) ([]Event, time.Time) {
	var events []Event
	now := start
	frameDur := time.Duration(frameSamples) * time.Second / 16000
	frame := make([]float32, frameSamples)
	for i := range frame {
		frame[i] = 0.1
	}
	for i := 0; i < n; i++ {
		now = now.Add(frameDur)
		events = append(events, c.Push(frame, verdict, now)...)
	}
	return events, now
}

func chunksOf(events []Event) []*Chunk {
	var chunks []*Chunk
	for _, e := range events {
		if e.Type == EventChunkReady {
			chunks = append(chunks, e.Chunk)
		}
	}
	return chunks
}

func TestChunkerTimerFlush(t *testing.T) {
	c := NewChunker(testChunkerConfig(), logger.NewNop())
	start := time.Unix(0, 0)

	// 3.5 seconds of audio at 30ms frames crosses one timer boundary.
	events, _ := feedFrames(c, 117, 480, speakingVerdict(), start)
	chunks := chunksOf(events)
	if len(chunks) != 1 {
		t.Fatalf("got %d chunks, want 1", len(chunks))
	}
	if chunks[0].Final {
		t.Error("timer flush marked final")
	}
	if chunks[0].Duration < 2900*time.Millisecond {
		t.Errorf("chunk duration = %v, want about 3s", chunks[0].Duration)
	}
}

func TestChunkerSequenceNumbers(t *testing.T) {
	c := NewChunker(testChunkerConfig(), logger.NewNop())
	start := time.Unix(0, 0)

	// Two timer flushes plus the final flush number 1, 2, 3.
	events, now := feedFrames(c, 234, 480, speakingVerdict(), start)
	chunks := chunksOf(events)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	feedFrames(c, 33, 480, speakingVerdict(), now)
	if final := c.Flush(); final != nil {
		chunks = append(chunks, final)
	}
	for i, chunk := range chunks {
		if chunk.Sequence != i+1 {
			t.Errorf("chunk %d Sequence = %d, want %d", i, chunk.Sequence, i+1)
		}
	}
}

func TestChunkerMinDurationHoldsFlush(t *testing.T) {
	cfg := testChunkerConfig()
	cfg.NaturalSpeechMode = false
	c := NewChunker(cfg, logger.NewNop())
	start := time.Unix(0, 0)

	// Frames arrive but none count as speaking, so nothing accumulates
	// and the timer must not flush an empty chunk.
	events, _ := feedFrames(c, 150, 480, silentVerdict(), start)
	if chunks := chunksOf(events); len(chunks) != 0 {
		t.Errorf("got %d chunks from silent frames, want 0", len(chunks))
	}
}

func TestChunkerFinalFlush(t *testing.T) {
	c := NewChunker(testChunkerConfig(), logger.NewNop())
	start := time.Unix(0, 0)

	// One second of audio: below the timer period, so only Flush
	// releases it.
	events, _ := feedFrames(c, 33, 480, speakingVerdict(), start)
	if chunks := chunksOf(events); len(chunks) != 0 {
		t.Fatalf("premature flush: %d chunks", len(chunks))
	}

	chunk := c.Flush()
	if chunk == nil {
		t.Fatal("Flush() = nil, want final chunk")
	}
	if !chunk.Final {
		t.Error("final flush not marked final")
	}
	if c.Flush() != nil {
		t.Error("second Flush() returned a chunk, want nil")
	}
}

func TestChunkerVADSilenceEvent(t *testing.T) {
	cfg := testChunkerConfig()
	cfg.SilenceFramesLimit = 10
	c := NewChunker(cfg, logger.NewNop())
	start := time.Unix(0, 0)

	events, _ := feedFrames(c, 25, 480, silentVerdict(), start)
	count := 0
	for _, e := range events {
		if e.Type == EventSilence && e.Silence == SilenceVAD {
			count++
		}
	}
	// 25 silent frames with a limit of 10 fires twice; the counter
	// resets after each event.
	if count != 2 {
		t.Errorf("got %d VAD silence events, want 2", count)
	}
}

func TestChunkerVolumeSilenceEvent(t *testing.T) {
	cfg := testChunkerConfig()
	cfg.MaxSilenceMs = 1000
	c := NewChunker(cfg, logger.NewNop())
	start := time.Unix(0, 0)

	// Voice first so the silence clock has a reference point.
	_, now := feedFrames(c, 5, 480, speakingVerdict(), start)
	events, _ := feedFrames(c, 50, 480, silentVerdict(), now)

	count := 0
	for _, e := range events {
		if e.Type == EventSilence && e.Silence == SilenceVolume {
			count++
		}
	}
	// Volume silence latches until voice returns, so exactly one event.
	if count != 1 {
		t.Errorf("got %d volume silence events, want 1", count)
	}
}

func TestChunkerSpeechOnsetEvent(t *testing.T) {
	c := NewChunker(testChunkerConfig(), logger.NewNop())
	start := time.Unix(0, 0)

	_, now := feedFrames(c, 5, 480, silentVerdict(), start)
	events, now := feedFrames(c, 5, 480, speakingVerdict(), now)

	onsets := 0
	for _, e := range events {
		if e.Type == EventSpeechDetected {
			onsets++
		}
	}
	if onsets != 1 {
		t.Fatalf("got %d speech onsets over continuous speech, want 1", onsets)
	}

	// A gap followed by more speech fires a second onset.
	_, now = feedFrames(c, 5, 480, silentVerdict(), now)
	events, _ = feedFrames(c, 5, 480, speakingVerdict(), now)
	onsets = 0
	for _, e := range events {
		if e.Type == EventSpeechDetected {
			onsets++
		}
	}
	if onsets != 1 {
		t.Errorf("got %d onsets after gap, want 1", onsets)
	}
}

func TestChunkerOverlapPrepended(t *testing.T) {
	c := NewChunker(testChunkerConfig(), logger.NewNop())
	start := time.Unix(0, 0)

	// Two timer flushes: the second chunk should carry overlap from
	// before its own accumulation window.
	events, _ := feedFrames(c, 220, 480, speakingVerdict(), start)
	chunks := chunksOf(events)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}

	accumulated := int(chunks[1].Duration.Seconds() * 16000)
	if len(chunks[1].Samples) <= accumulated {
		t.Errorf("second chunk has no overlap: %d samples for %v of audio",
			len(chunks[1].Samples), chunks[1].Duration)
	}
	overlapLimit := 16000 * 500 / 1000
	if extra := len(chunks[1].Samples) - accumulated; extra > overlapLimit {
		t.Errorf("overlap too long: %d samples, cap %d", extra, overlapLimit)
	}
}
