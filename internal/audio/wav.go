package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// StreamHeader is the fixed-size header preceding raw PCM in each binary
// message a capture client sends over the websocket
type StreamHeader struct {
	SampleRate    uint32
	Channels      uint16
	BitsPerSample uint16
	DataLength    uint32
}

const streamHeaderSize = 12

// DecodeStream parses a client audio message into its header and float32
// samples. Only 16-bit and 32-bit float PCM payloads are accepted.
func DecodeStream(message []byte) (StreamHeader, []float32, error) {
	var hdr StreamHeader
	if len(message) < streamHeaderSize {
		return hdr, nil, fmt.Errorf("audio message too short: %d bytes", len(message))
	}

	r := bytes.NewReader(message)
	if err := binary.Read(r, binary.LittleEndian, &hdr); err != nil {
		return hdr, nil, fmt.Errorf("failed to read audio header: %w", err)
	}

	payload := message[streamHeaderSize:]
	if uint32(len(payload)) < hdr.DataLength {
		return hdr, nil, fmt.Errorf("audio payload truncated: header says %d bytes, got %d", hdr.DataLength, len(payload))
	}
	payload = payload[:hdr.DataLength]

	switch hdr.BitsPerSample {
	case 16:
		if len(payload)%2 != 0 {
			return hdr, nil, fmt.Errorf("odd 16-bit payload length: %d", len(payload))
		}
		samples := make([]float32, len(payload)/2)
		for i := range samples {
			v := int16(binary.LittleEndian.Uint16(payload[i*2:]))
			samples[i] = float32(v) / 32768.0
		}
		return hdr, samples, nil
	case 32:
		if len(payload)%4 != 0 {
			return hdr, nil, fmt.Errorf("invalid 32-bit payload length: %d", len(payload))
		}
		samples := make([]float32, len(payload)/4)
		for i := range samples {
			bits := binary.LittleEndian.Uint32(payload[i*4:])
			samples[i] = math.Float32frombits(bits)
		}
		return hdr, samples, nil
	default:
		return hdr, nil, fmt.Errorf("unsupported bits per sample: %d", hdr.BitsPerSample)
	}
}

// EncodeWAV wraps float32 samples in a 16-bit PCM RIFF container suitable
// for upload to transcription backends
func EncodeWAV(samples []float32, sampleRate, channels int) []byte {
	dataLen := len(samples) * 2
	buf := bytes.NewBuffer(make([]byte, 0, 44+dataLen))

	byteRate := sampleRate * channels * 2
	blockAlign := channels * 2

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+dataLen))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(buf, binary.LittleEndian, uint16(channels))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(byteRate))
	binary.Write(buf, binary.LittleEndian, uint16(blockAlign))
	binary.Write(buf, binary.LittleEndian, uint16(16)) // bits per sample
	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(dataLen))

	for _, s := range samples {
		v := s
		if v > 1.0 {
			v = 1.0
		} else if v < -1.0 {
			v = -1.0
		}
		binary.Write(buf, binary.LittleEndian, int16(v*32767))
	}

	return buf.Bytes()
}

// CheckQuality rejects chunks too short or too distorted to transcribe.
// A nil return means the chunk is worth dispatching.
func CheckQuality(samples []float32, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", sampleRate)
	}
	durationMs := len(samples) * 1000 / sampleRate
	if durationMs < 500 {
		return fmt.Errorf("chunk too short: %dms", durationMs)
	}
	rms := rmsEnergy(samples)
	if rms <= 0.01 {
		return fmt.Errorf("chunk too quiet: rms %.4f", rms)
	}
	if rms >= 0.8 {
		return fmt.Errorf("chunk clipping: rms %.4f", rms)
	}
	return nil
}
