package audio

// Enhancer preprocesses a chunk of samples before transcription
type Enhancer interface {
	Enhance(samples []float32) []float32
}

// NopEnhancer passes samples through untouched
type NopEnhancer struct{}

func (NopEnhancer) Enhance(samples []float32) []float32 { return samples }

// NormalizeEnhancer scales samples to a target peak and gates residual
// noise below the floor to zero
type NormalizeEnhancer struct {
	TargetPeak float64 // Peak amplitude to normalize to, e.g. 0.95
	NoiseFloor float64 // Amplitudes at or below this are zeroed after scaling
}

// NewNormalizeEnhancer creates an enhancer with the default peak and floor
func NewNormalizeEnhancer() *NormalizeEnhancer {
	return &NormalizeEnhancer{TargetPeak: 0.95, NoiseFloor: 0.01}
}

func (e *NormalizeEnhancer) Enhance(samples []float32) []float32 {
	var peak float64
	for _, s := range samples {
		v := float64(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	if peak == 0 {
		return samples
	}

	scale := e.TargetPeak / peak
	out := make([]float32, len(samples))
	for i, s := range samples {
		v := float64(s) * scale
		if v < e.NoiseFloor && v > -e.NoiseFloor {
			v = 0
		}
		out[i] = float32(v)
	}
	return out
}
