package audio

import (
	"math"

	"github.com/irregularchat/speech-memorization/pkg/logger"
)

// AnalyzerConfig contains the tuning parameters for frame analysis
type AnalyzerConfig struct {
	SampleRate          int     // Audio sample rate in Hz
	Threshold           float64 // Smoothed probability above which a frame counts as speaking
	EnergyThreshold     float64 // RMS energy above which a frame has energy content
	ZCRMin              float64 // Lower bound of the speech-like zero-crossing band
	ZCRMax              float64 // Upper bound of the speech-like zero-crossing band
	SpectralCentroidHz  float64 // Centroid frequency above which a frame has spectral content
	SpectralWindowLimit int     // Maximum samples fed to the DFT per frame
}

// FrameVerdict is the per-frame result of voice activity analysis
type FrameVerdict struct {
	Energy           float64 // RMS energy of the frame
	ZCR              float64 // Zero-crossing rate of the frame
	SpectralCentroid float64 // Spectral centroid in Hz
	Probability      float64 // Exponentially smoothed speech probability
	Speaking         bool    // Whether the smoothed probability exceeds the threshold
	HasVolume        bool    // Whether the frame crossed the raw energy threshold
}

// FrameAnalyzer performs energy, zero-crossing and spectral analysis on
// successive audio frames and maintains a smoothed speech probability
// across them. It is not safe for concurrent use; callers feed frames
// from a single goroutine.
type FrameAnalyzer struct {
	cfg      AnalyzerConfig
	smoothed float64
	logger   *logger.Logger
}

// NewFrameAnalyzer creates a frame analyzer with the given configuration
func NewFrameAnalyzer(cfg AnalyzerConfig, log *logger.Logger) *FrameAnalyzer {
	return &FrameAnalyzer{
		cfg:    cfg,
		logger: log.Named("frame-analyzer"),
	}
}

// Analyze computes the detector values for a single frame, updates the
// smoothed speech probability and returns the verdict. Empty frames are
// treated as silent.
func (a *FrameAnalyzer) Analyze(frame []float32) FrameVerdict {
	if len(frame) == 0 {
		a.smoothed = 0.9 * a.smoothed
		return FrameVerdict{Probability: a.smoothed, Speaking: a.smoothed > a.cfg.Threshold}
	}

	energy := rmsEnergy(frame)
	zcr := zeroCrossingRate(frame)
	centroid := a.spectralCentroid(frame)

	hasEnergy := energy > a.cfg.EnergyThreshold
	hasVariation := zcr > a.cfg.ZCRMin && zcr < a.cfg.ZCRMax
	hasSpectrum := centroid > a.cfg.SpectralCentroidHz

	// A frame votes speech when any single detector fires. Individual
	// detectors are noisy; the smoothing below rejects isolated votes.
	binary := 0.0
	if hasEnergy || hasVariation || hasSpectrum {
		binary = 1.0
	}
	a.smoothed = 0.9*a.smoothed + 0.1*binary

	return FrameVerdict{
		Energy:           energy,
		ZCR:              zcr,
		SpectralCentroid: centroid,
		Probability:      a.smoothed,
		Speaking:         a.smoothed > a.cfg.Threshold,
		HasVolume:        hasEnergy,
	}
}

// Reset clears the smoothed probability, e.g. between practice phrases
func (a *FrameAnalyzer) Reset() {
	a.smoothed = 0
}

func rmsEnergy(frame []float32) float64 {
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func zeroCrossingRate(frame []float32) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i] >= 0) != (frame[i-1] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

// spectralCentroid computes the magnitude-weighted mean frequency of the
// frame using a direct DFT over at most SpectralWindowLimit samples. The
// cap keeps the O(n^2) transform bounded for large frames.
func (a *FrameAnalyzer) spectralCentroid(frame []float32) float64 {
	n := len(frame)
	if a.cfg.SpectralWindowLimit > 0 && n > a.cfg.SpectralWindowLimit {
		n = a.cfg.SpectralWindowLimit
	}
	if n < 2 {
		return 0
	}

	var weighted, total float64
	for k := 1; k < n/2; k++ {
		var re, im float64
		for t := 0; t < n; t++ {
			angle := -2 * math.Pi * float64(k) * float64(t) / float64(n)
			re += float64(frame[t]) * math.Cos(angle)
			im += float64(frame[t]) * math.Sin(angle)
		}
		magnitude := math.Sqrt(re*re + im*im)
		freq := float64(k) * float64(a.cfg.SampleRate) / float64(n)
		weighted += freq * magnitude
		total += magnitude
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}
