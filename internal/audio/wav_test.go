package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

func encodeStream(hdr StreamHeader, samples []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, &hdr)
	switch hdr.BitsPerSample {
	case 16:
		for _, s := range samples {
			binary.Write(buf, binary.LittleEndian, int16(s*32767))
		}
	case 32:
		for _, s := range samples {
			binary.Write(buf, binary.LittleEndian, math.Float32bits(s))
		}
	}
	return buf.Bytes()
}

func TestDecodeStream16Bit(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 0.999}
	hdr := StreamHeader{SampleRate: 16000, Channels: 1, BitsPerSample: 16, DataLength: uint32(len(in) * 2)}

	got, samples, err := DecodeStream(encodeStream(hdr, in))
	if err != nil {
		t.Fatalf("DecodeStream() error = %v", err)
	}
	if got.SampleRate != 16000 || got.Channels != 1 {
		t.Errorf("header = %+v", got)
	}
	if len(samples) != len(in) {
		t.Fatalf("got %d samples, want %d", len(samples), len(in))
	}
	for i, want := range in {
		if math.Abs(float64(samples[i]-want)) > 0.001 {
			t.Errorf("sample %d = %f, want %f", i, samples[i], want)
		}
	}
}

func TestDecodeStream32BitFloat(t *testing.T) {
	in := []float32{0.25, -0.75}
	hdr := StreamHeader{SampleRate: 48000, Channels: 1, BitsPerSample: 32, DataLength: uint32(len(in) * 4)}

	_, samples, err := DecodeStream(encodeStream(hdr, in))
	if err != nil {
		t.Fatalf("DecodeStream() error = %v", err)
	}
	for i, want := range in {
		if samples[i] != want {
			t.Errorf("sample %d = %f, want %f", i, samples[i], want)
		}
	}
}

func TestDecodeStreamErrors(t *testing.T) {
	tests := []struct {
		name    string
		message []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"truncated payload", encodeStream(StreamHeader{SampleRate: 16000, Channels: 1, BitsPerSample: 16, DataLength: 100}, []float32{0.1})},
		{"unsupported depth", encodeStream(StreamHeader{SampleRate: 16000, Channels: 1, BitsPerSample: 24, DataLength: 0}, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := DecodeStream(tt.message); err == nil {
				t.Error("DecodeStream() = nil error, want error")
			}
		})
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	samples := sineFrame(440, 0.5, 1600, 16000)
	wav := EncodeWAV(samples, 16000, 1)

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(samples)*2)
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE magic")
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 16000 {
		t.Errorf("sample rate in header = %d, want 16000", rate)
	}
	if dataLen := binary.LittleEndian.Uint32(wav[40:44]); dataLen != uint32(len(samples)*2) {
		t.Errorf("data length in header = %d, want %d", dataLen, len(samples)*2)
	}
}

func TestCheckQuality(t *testing.T) {
	tests := []struct {
		name    string
		samples []float32
		wantOK  bool
	}{
		{"good speech level", sineFrame(440, 0.3, 16000, 16000), true},
		{"too short", sineFrame(440, 0.3, 1600, 16000), false},
		{"too quiet", sineFrame(440, 0.005, 16000, 16000), false},
		{"clipping", sineFrame(440, 1.5, 16000, 16000), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckQuality(tt.samples, 16000)
			if (err == nil) != tt.wantOK {
				t.Errorf("CheckQuality() error = %v, wantOK %v", err, tt.wantOK)
			}
		})
	}
}

func TestNormalizeEnhancer(t *testing.T) {
	e := NewNormalizeEnhancer()
	in := []float32{0.001, 0.5, -0.25, 0}

	out := e.Enhance(in)
	var peak float64
	for _, s := range out {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	if math.Abs(peak-0.95) > 0.001 {
		t.Errorf("normalized peak = %f, want 0.95", peak)
	}
	// 0.001 scales to 0.0019, still under the gate.
	if out[0] != 0 {
		t.Errorf("noise sample not gated: %f", out[0])
	}

	silence := make([]float32, 10)
	if got := e.Enhance(silence); len(got) != 10 {
		t.Errorf("silence passthrough length = %d", len(got))
	}
}
