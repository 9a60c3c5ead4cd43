package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the voice coach
type Config struct {
	// Gemini API configuration
	GeminiAPIKey  string `envconfig:"GEMINI_API_KEY" required:"true"`
	LiveURL       string `envconfig:"GEMINI_LIVE_URL" default:"wss://generativelanguage.googleapis.com/ws"`
	LiveModel     string `envconfig:"GEMINI_LIVE_MODEL" default:"gemini-live-2.5-flash-preview"`
	TextModel     string `envconfig:"GEMINI_TEXT_MODEL" default:"gemini-2.5-flash"` // grammar and challenge calls
	LiveVoiceID   string `envconfig:"VOICE_ID" default:"Puck"`                      // prebuilt voice name
	Instruction   string `envconfig:"SYSTEM_INSTRUCTION" default:""`                // overrides the scenario prompt
	InputCaption  bool   `envconfig:"INPUT_TRANSCRIPTION" default:"true"`
	OutputCaption bool   `envconfig:"OUTPUT_TRANSCRIPTION" default:"true"`

	// Conversation defaults (stored preferences win)
	Language   string `envconfig:"LANGUAGE" default:"Spanish"`
	Scenario   string `envconfig:"SCENARIO" default:"cafe"`
	Difficulty string `envconfig:"DIFFICULTY" default:"beginner"` // beginner, intermediate, advanced

	// Audio configuration
	InputSampleRate  int     `envconfig:"AUDIO_INPUT_SAMPLE_RATE" default:"16000"`
	OutputSampleRate int     `envconfig:"AUDIO_OUTPUT_SAMPLE_RATE" default:"24000"`
	BlockSize        int     `envconfig:"AUDIO_BLOCK_SIZE" default:"4096"`      // samples per captured frame
	FramesPerBuffer  int     `envconfig:"AUDIO_FRAMES_PER_BUFFER" default:"0"`  // device callback size, 0 = backend default
	InputGain        float64 `envconfig:"AUDIO_INPUT_GAIN" default:"1.0"`
	SpeechRate       float64 `envconfig:"PLAYBACK_SPEECH_RATE" default:"1.0"`
	PitchFactor      float64 `envconfig:"PLAYBACK_PITCH_FACTOR" default:"1.0"`
	CuesEnabled      bool    `envconfig:"PLAYBACK_CUES" default:"true"`

	// Voice activity detection
	VADThreshold     float64       `envconfig:"VAD_THRESHOLD" default:"0.008"` // RMS of samples in [-1, 1]
	VADHangover      time.Duration `envconfig:"VAD_HANGOVER" default:"800ms"`
	VADThresholdStep float64       `envconfig:"VAD_THRESHOLD_STEP" default:"0.002"` // per +/- command

	// Session configuration
	SendQueueSize  int           `envconfig:"SESSION_SEND_QUEUE" default:"32"`
	ConnectTimeout time.Duration `envconfig:"SESSION_CONNECT_TIMEOUT" default:"10s"`

	// Grammar checker and challenge service
	GrammarEnabled      bool          `envconfig:"GRAMMAR_ENABLED" default:"true"`
	ChallengeEnabled    bool          `envconfig:"CHALLENGE_ENABLED" default:"true"`
	CollaboratorTimeout time.Duration `envconfig:"COLLABORATOR_TIMEOUT" default:"15s"`

	// Resilience configuration
	CircuitBreakerMaxFailures  int           `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"3"`    // Failures before a feature disables itself
	CircuitBreakerResetTimeout time.Duration `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"60s"` // Time before trying it again
	RetryMaxAttempts           int           `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`              // Session start attempts on network failure
	RetryInitialBackoff        time.Duration `envconfig:"RETRY_INITIAL_BACKOFF" default:"500ms"`

	// Storage configuration
	StorePath  string `envconfig:"STORE_PATH" default:""`           // YAML preferences and history, defaults under the user config dir
	HistoryDSN string `envconfig:"HISTORY_DATABASE_URL" default:""` // optional PostgreSQL for preferences and history

	// Observability configuration
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info"`   // Log level: debug, info, warn, error
	LogPretty       bool   `envconfig:"LOG_PRETTY" default:"false"` // Pretty print logs (for development)
	MetricsEnabled  bool   `envconfig:"METRICS_ENABLED" default:"true"`
	DiagnosticsAddr string `envconfig:"DIAGNOSTICS_ADDR" default:"127.0.0.1:9464"`
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()
	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePath()
	}
	return &cfg, nil
}

// Validate checks required keys and numeric ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	if c.InputSampleRate <= 0 || c.OutputSampleRate <= 0 {
		errs = append(errs, errors.New("audio sample rates must be positive"))
	}
	if c.BlockSize <= 0 {
		errs = append(errs, errors.New("AUDIO_BLOCK_SIZE must be positive"))
	}
	if c.InputGain <= 0 {
		errs = append(errs, errors.New("AUDIO_INPUT_GAIN must be positive"))
	}
	if c.SpeechRate <= 0 || c.PitchFactor <= 0 {
		errs = append(errs, errors.New("playback speech rate and pitch factor must be positive"))
	}
	if c.VADThreshold < 0 || c.VADThreshold >= 1 {
		errs = append(errs, fmt.Errorf("VAD_THRESHOLD %v out of range [0, 1)", c.VADThreshold))
	}
	if c.VADHangover <= 0 {
		errs = append(errs, errors.New("VAD_HANGOVER must be positive"))
	}
	if c.ConnectTimeout <= 0 {
		errs = append(errs, errors.New("SESSION_CONNECT_TIMEOUT must be positive"))
	}
	if c.SendQueueSize <= 0 {
		errs = append(errs, errors.New("SESSION_SEND_QUEUE must be positive"))
	}
	if c.RetryMaxAttempts < 1 {
		errs = append(errs, errors.New("RETRY_MAX_ATTEMPTS must be at least 1"))
	}
	if c.CircuitBreakerMaxFailures < 1 {
		errs = append(errs, errors.New("CIRCUIT_BREAKER_MAX_FAILURES must be at least 1"))
	}
	switch c.Difficulty {
	case "beginner", "intermediate", "advanced":
	default:
		errs = append(errs, fmt.Errorf("DIFFICULTY %q must be beginner, intermediate or advanced", c.Difficulty))
	}
	return errors.Join(errs...)
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "voice-coach", "store.yaml")
}
