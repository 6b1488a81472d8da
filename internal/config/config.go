package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server    ServerConfig     `toml:"server"`    // HTTP server settings
	Logging   LoggingConfig    `toml:"logging"`   // Application logging settings
	Storage   StorageConfig    `toml:"storage"`   // Attempt log persistence settings
	Audio     AudioConfig      `toml:"audio"`     // Audio capture format settings
	VAD       VADConfig        `toml:"vad"`       // Voice activity detection settings
	Chunking  ChunkingConfig   `toml:"chunking"`  // Adaptive chunker settings
	Providers []ProviderConfig `toml:"providers"` // Transcription provider backends
	Dispatch  DispatchConfig   `toml:"dispatch"`  // Provider dispatch settings
	Scoring   ScoringConfig    `toml:"scoring"`   // Phrase scoring settings
	Session   SessionConfig    `toml:"session"`   // Practice session settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                  // HTTP port for the server
	Host               string   `toml:"host"`                  // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`  // List of origins allowed for CORS requests (use ["*"] for all origins)
	StaticDir          string   `toml:"static_dir"`            // Directory for the practice frontend (empty disables static serving)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`  // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"` // Maximum duration for writing the response (0 = no timeout, recommended for streaming)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`  // Maximum duration to wait for the next request when keep-alives are enabled
}

// LoggingConfig contains application logging configuration
type LoggingConfig struct {
	Level  string `toml:"level"`  // Log level: "debug", "info", "warn", or "error"
	Format string `toml:"format"` // Log format: "json" (structured) or "console" (human-readable)
}

// StorageConfig contains attempt log persistence configuration
type StorageConfig struct {
	Type           string `toml:"type"`             // Storage backend type (currently only "sqlite" is supported)
	SQLiteBasePath string `toml:"sqlite_base_path"` // Base path for SQLite database files (actual filename will be generated as practice-YYYY-MM-DD.db)
}

// AudioConfig contains audio capture format settings
type AudioConfig struct {
	SampleRate      int  `toml:"sample_rate"`      // Audio sample rate in Hz (default 16000)
	Channels        int  `toml:"channels"`         // Number of audio channels (1 for mono)
	FrameSamples    int  `toml:"frame_samples"`    // Samples per analysis frame (default 480, i.e. 30 ms at 16 kHz)
	EnhancerEnabled bool `toml:"enhancer_enabled"` // Enable the normalize + noise gate preprocessing stage
}

// VADConfig contains voice activity detection settings
type VADConfig struct {
	Threshold           float64 `toml:"threshold"`             // Smoothed speech probability above which a frame counts as speaking (0.0-1.0)
	EnergyThreshold     float64 `toml:"energy_threshold"`      // RMS energy above which a frame has energy content
	ZCRMin              float64 `toml:"zcr_min"`               // Minimum zero-crossing rate for speech-like variation
	ZCRMax              float64 `toml:"zcr_max"`               // Maximum zero-crossing rate for speech-like variation
	SpectralCentroidHz  float64 `toml:"spectral_centroid_hz"`  // Spectral centroid (Hz) above which a frame has spectral content
	SilenceFramesLimit  int     `toml:"silence_frames_limit"`  // Consecutive silent frames before silence is reported (~2s of audio)
	SpectralWindowLimit int     `toml:"spectral_window_limit"` // Maximum samples fed to the DFT per frame
}

// ChunkingConfig contains adaptive chunker settings
type ChunkingConfig struct {
	ChunkDurationMs    int  `toml:"chunk_duration_ms"`     // Period of the flush timer in milliseconds
	MinChunkDurationMs int  `toml:"min_chunk_duration_ms"` // Minimum accumulated audio before a timer flush is allowed
	OverlapDurationMs  int  `toml:"overlap_duration_ms"`   // Overlap prepended from the rolling buffer to each chunk
	MaxSilenceMs       int  `toml:"max_silence_ms"`        // Volume-based silence duration before a silence notification
	NaturalSpeechMode  bool `toml:"natural_speech_mode"`   // Accumulate every frame (true) or only speaking frames (false)
}

// ProviderConfig contains configuration for a single transcription provider
type ProviderConfig struct {
	ID                 string  `toml:"id"`                    // Unique identifier for this provider
	Type               string  `toml:"type"`                  // Backend type: "openai", "gemini", or "mock"
	APIKey             string  `toml:"api_key"`               // API key for the backend service
	BaseURL            string  `toml:"base_url"`              // Optional base URL override (e.g., for proxies)
	Model              string  `toml:"model"`                 // Model identifier (e.g., "whisper-1", "gemini-2.0-flash")
	Language           string  `toml:"language"`              // Primary language for transcription (e.g., "en")
	Priority           int     `toml:"priority"`              // Selection priority (lower = preferred)
	RateLimitPerMinute int     `toml:"rate_limit_per_minute"` // Maximum requests per minute for this provider
	Enabled            bool    `toml:"enabled"`               // Whether this provider participates in dispatch
	Temperature        float64 `toml:"temperature"`           // Sampling temperature where the backend supports it
}

// DispatchConfig contains provider dispatch settings
type DispatchConfig struct {
	RequestTimeoutSecs int `toml:"request_timeout_seconds"` // Per-request timeout for a provider transcribe call
	MaxErrorCount      int `toml:"max_error_count"`         // Error count above which a provider is excluded from selection
}

// ScoringConfig contains phrase scoring settings
type ScoringConfig struct {
	PerfectThreshold  float64 `toml:"perfect_threshold"`   // Accuracy at or above which the outcome is "perfect"
	GoodThreshold     float64 `toml:"good_threshold"`      // Accuracy at or above which the outcome is "good"
	PartialThreshold  float64 `toml:"partial_threshold"`   // Accuracy at or above which partial progression is considered
	RetryThreshold    float64 `toml:"retry_threshold"`     // Accuracy at or above which the outcome is "struggling"
	MaxSkippableWords int     `toml:"max_skippable_words"` // Maximum error words allowed for partial progression
}

// SessionConfig contains practice session settings
type SessionConfig struct {
	PhraseWordCount    int `toml:"phrase_word_count"`     // Words per practice phrase when splitting a text
	MaxAttemptsPerLine int `toml:"max_attempts_per_line"` // Attempts after which a manual skip becomes permitted
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	var config Config

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			// File exists, try to load it
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration and fills in defaults for unset fields
func (c *Config) Validate() error {
	// Validate server config
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	// Validate storage config
	if c.Storage.Type == "" {
		c.Storage.Type = "sqlite"
	}
	if c.Storage.Type != "sqlite" {
		return fmt.Errorf("invalid storage type: %s (only 'sqlite' is supported)", c.Storage.Type)
	}
	if c.Storage.SQLiteBasePath == "" {
		c.Storage.SQLiteBasePath = "data"
	}

	// Fill audio defaults
	if c.Audio.SampleRate == 0 {
		c.Audio.SampleRate = 16000
	}
	if c.Audio.SampleRate < 8000 {
		return fmt.Errorf("invalid sample rate: %d (must be >= 8000)", c.Audio.SampleRate)
	}
	if c.Audio.Channels == 0 {
		c.Audio.Channels = 1
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("invalid channel count: %d (must be 1 or 2)", c.Audio.Channels)
	}
	if c.Audio.FrameSamples == 0 {
		c.Audio.FrameSamples = 480
	}

	// Fill VAD defaults
	if c.VAD.Threshold == 0 {
		c.VAD.Threshold = 0.3
	}
	if c.VAD.Threshold < 0 || c.VAD.Threshold > 1 {
		return fmt.Errorf("invalid VAD threshold: %f (must be within [0,1])", c.VAD.Threshold)
	}
	if c.VAD.EnergyThreshold == 0 {
		c.VAD.EnergyThreshold = 0.01
	}
	if c.VAD.ZCRMin == 0 {
		c.VAD.ZCRMin = 0.1
	}
	if c.VAD.ZCRMax == 0 {
		c.VAD.ZCRMax = 0.8
	}
	if c.VAD.SpectralCentroidHz == 0 {
		c.VAD.SpectralCentroidHz = 500
	}
	if c.VAD.SilenceFramesLimit == 0 {
		c.VAD.SilenceFramesLimit = 100
	}
	if c.VAD.SpectralWindowLimit == 0 {
		c.VAD.SpectralWindowLimit = 512
	}

	// Fill chunking defaults
	if c.Chunking.ChunkDurationMs == 0 {
		c.Chunking.ChunkDurationMs = 3000
	}
	if c.Chunking.MinChunkDurationMs == 0 {
		c.Chunking.MinChunkDurationMs = 1500
	}
	if c.Chunking.OverlapDurationMs == 0 {
		c.Chunking.OverlapDurationMs = 500
	}
	if c.Chunking.MaxSilenceMs == 0 {
		c.Chunking.MaxSilenceMs = 5000
	}
	if c.Chunking.MinChunkDurationMs > c.Chunking.ChunkDurationMs {
		return fmt.Errorf("min_chunk_duration_ms (%d) must not exceed chunk_duration_ms (%d)",
			c.Chunking.MinChunkDurationMs, c.Chunking.ChunkDurationMs)
	}

	// Validate providers
	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider must be configured")
	}
	providerIDs := make(map[string]bool)
	for i := range c.Providers {
		p := &c.Providers[i]
		if p.ID == "" {
			return fmt.Errorf("provider at index %d is missing an id", i)
		}
		if providerIDs[p.ID] {
			return fmt.Errorf("duplicate provider id: %s", p.ID)
		}
		providerIDs[p.ID] = true

		switch p.Type {
		case "openai", "gemini", "mock":
		default:
			return fmt.Errorf("invalid provider type for %s: %s (must be 'openai', 'gemini', or 'mock')", p.ID, p.Type)
		}
		if p.Type != "mock" && p.APIKey == "" {
			return fmt.Errorf("provider %s requires an api_key", p.ID)
		}
		if p.RateLimitPerMinute == 0 {
			p.RateLimitPerMinute = 60
		}
		if p.Language == "" {
			p.Language = "en"
		}
	}

	// Fill dispatch defaults
	if c.Dispatch.RequestTimeoutSecs == 0 {
		c.Dispatch.RequestTimeoutSecs = 30
	}
	if c.Dispatch.MaxErrorCount == 0 {
		c.Dispatch.MaxErrorCount = 5
	}

	// Fill scoring defaults
	if c.Scoring.PerfectThreshold == 0 {
		c.Scoring.PerfectThreshold = 95
	}
	if c.Scoring.GoodThreshold == 0 {
		c.Scoring.GoodThreshold = 80
	}
	if c.Scoring.PartialThreshold == 0 {
		c.Scoring.PartialThreshold = 60
	}
	if c.Scoring.RetryThreshold == 0 {
		c.Scoring.RetryThreshold = 40
	}
	if c.Scoring.MaxSkippableWords == 0 {
		c.Scoring.MaxSkippableWords = 2
	}
	if !(c.Scoring.RetryThreshold <= c.Scoring.PartialThreshold &&
		c.Scoring.PartialThreshold <= c.Scoring.GoodThreshold &&
		c.Scoring.GoodThreshold <= c.Scoring.PerfectThreshold) {
		return fmt.Errorf("scoring thresholds must be ordered: retry <= partial <= good <= perfect")
	}

	// Fill session defaults
	if c.Session.PhraseWordCount == 0 {
		c.Session.PhraseWordCount = 8
	}
	if c.Session.MaxAttemptsPerLine == 0 {
		c.Session.MaxAttemptsPerLine = 3
	}

	return nil
}
