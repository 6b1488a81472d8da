package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func baseConfig() *Config {
	return &Config{
		Server: ServerConfig{Port: 8080, Host: "127.0.0.1"},
		Providers: []ProviderConfig{
			{ID: "primary", Type: "mock", Priority: 1},
		},
	}
}

func TestValidateFillsDefaults(t *testing.T) {
	cfg := baseConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.Audio.SampleRate != 16000 {
		t.Errorf("SampleRate = %d, want 16000", cfg.Audio.SampleRate)
	}
	if cfg.Audio.FrameSamples != 480 {
		t.Errorf("FrameSamples = %d, want 480", cfg.Audio.FrameSamples)
	}
	if cfg.VAD.Threshold != 0.3 {
		t.Errorf("VAD.Threshold = %f, want 0.3", cfg.VAD.Threshold)
	}
	if cfg.Chunking.ChunkDurationMs != 3000 {
		t.Errorf("ChunkDurationMs = %d, want 3000", cfg.Chunking.ChunkDurationMs)
	}
	if cfg.Chunking.MaxSilenceMs != 5000 {
		t.Errorf("MaxSilenceMs = %d, want 5000", cfg.Chunking.MaxSilenceMs)
	}
	if cfg.Dispatch.MaxErrorCount != 5 {
		t.Errorf("Dispatch.MaxErrorCount = %d, want 5", cfg.Dispatch.MaxErrorCount)
	}
	if cfg.Providers[0].RateLimitPerMinute != 60 {
		t.Errorf("RateLimitPerMinute = %d, want 60", cfg.Providers[0].RateLimitPerMinute)
	}
	if cfg.Scoring.PerfectThreshold != 95 || cfg.Scoring.RetryThreshold != 40 {
		t.Errorf("scoring thresholds = %v, want 95/40 bounds", cfg.Scoring)
	}
	if cfg.Session.PhraseWordCount != 8 {
		t.Errorf("PhraseWordCount = %d, want 8", cfg.Session.PhraseWordCount)
	}
}

func TestValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "invalid server port",
		},
		{
			name:    "bad storage type",
			mutate:  func(c *Config) { c.Storage.Type = "postgres" },
			wantErr: "invalid storage type",
		},
		{
			name:    "no providers",
			mutate:  func(c *Config) { c.Providers = nil },
			wantErr: "at least one provider",
		},
		{
			name: "duplicate provider id",
			mutate: func(c *Config) {
				c.Providers = append(c.Providers, ProviderConfig{ID: "primary", Type: "mock"})
			},
			wantErr: "duplicate provider id",
		},
		{
			name: "missing api key",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{ID: "oa", Type: "openai"}}
			},
			wantErr: "requires an api_key",
		},
		{
			name: "bad provider type",
			mutate: func(c *Config) {
				c.Providers = []ProviderConfig{{ID: "x", Type: "azure"}}
			},
			wantErr: "invalid provider type",
		},
		{
			name: "min chunk exceeds chunk duration",
			mutate: func(c *Config) {
				c.Chunking.ChunkDurationMs = 1000
				c.Chunking.MinChunkDurationMs = 2000
			},
			wantErr: "must not exceed",
		},
		{
			name: "unordered scoring thresholds",
			mutate: func(c *Config) {
				c.Scoring.GoodThreshold = 99
			},
			wantErr: "must be ordered",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadWithFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
port = 9090
host = "0.0.0.0"

[[providers]]
id = "mock-1"
type = "mock"
priority = 1
enabled = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadWithFallback(path)
	if err != nil {
		t.Fatalf("LoadWithFallback() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.Server.Port)
	}
	if len(cfg.Providers) != 1 || cfg.Providers[0].ID != "mock-1" {
		t.Errorf("Providers = %+v, want one mock-1", cfg.Providers)
	}

	if _, err := LoadWithFallback(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("LoadWithFallback() with missing file = nil error, want error")
	}
}
