package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("STORE_PATH", "/tmp/voice-coach-test.yaml")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.GeminiAPIKey != "test-gemini-key" {
		t.Errorf("Expected GeminiAPIKey 'test-gemini-key', got '%s'", cfg.GeminiAPIKey)
	}
	if cfg.StorePath != "/tmp/voice-coach-test.yaml" {
		t.Errorf("Expected explicit store path, got '%s'", cfg.StorePath)
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")

	if _, err := LoadFromEnv(); err == nil {
		t.Error("Expected error when GEMINI_API_KEY is missing")
	}
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}

	if cfg.InputSampleRate != 16000 {
		t.Errorf("Expected input sample rate 16000, got %d", cfg.InputSampleRate)
	}
	if cfg.OutputSampleRate != 24000 {
		t.Errorf("Expected output sample rate 24000, got %d", cfg.OutputSampleRate)
	}
	if cfg.BlockSize != 4096 {
		t.Errorf("Expected block size 4096, got %d", cfg.BlockSize)
	}
	if cfg.VADThreshold != 0.008 {
		t.Errorf("Expected VAD threshold 0.008, got %v", cfg.VADThreshold)
	}
	if cfg.VADHangover != 800*time.Millisecond {
		t.Errorf("Expected VAD hangover 800ms, got %v", cfg.VADHangover)
	}
	if cfg.ConnectTimeout != 10*time.Second {
		t.Errorf("Expected connect timeout 10s, got %v", cfg.ConnectTimeout)
	}
	if !cfg.InputCaption || !cfg.OutputCaption {
		t.Error("Expected transcription enabled by default")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected log level 'info', got '%s'", cfg.LogLevel)
	}
	if !strings.HasSuffix(cfg.StorePath, "store.yaml") {
		t.Errorf("Expected default store path, got '%s'", cfg.StorePath)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "test-gemini-key")
	t.Setenv("VAD_HANGOVER", "1.5s")
	t.Setenv("AUDIO_INPUT_GAIN", "2.5")
	t.Setenv("DIFFICULTY", "advanced")
	t.Setenv("GRAMMAR_ENABLED", "false")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv() failed: %v", err)
	}
	if cfg.VADHangover != 1500*time.Millisecond {
		t.Errorf("Expected hangover 1.5s, got %v", cfg.VADHangover)
	}
	if cfg.InputGain != 2.5 {
		t.Errorf("Expected gain 2.5, got %v", cfg.InputGain)
	}
	if cfg.Difficulty != "advanced" || cfg.GrammarEnabled {
		t.Errorf("Unexpected values: difficulty=%s grammar=%v", cfg.Difficulty, cfg.GrammarEnabled)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		env    map[string]string
		errSub string
	}{
		{"negative gain", map[string]string{"AUDIO_INPUT_GAIN": "-1"}, "AUDIO_INPUT_GAIN"},
		{"threshold too high", map[string]string{"VAD_THRESHOLD": "1.5"}, "VAD_THRESHOLD"},
		{"unknown difficulty", map[string]string{"DIFFICULTY": "expert"}, "DIFFICULTY"},
		{"zero block", map[string]string{"AUDIO_BLOCK_SIZE": "0"}, "AUDIO_BLOCK_SIZE"},
		{"zero pitch", map[string]string{"PLAYBACK_PITCH_FACTOR": "0"}, "pitch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "test-gemini-key")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.errSub) {
				t.Errorf("Expected error mentioning %q, got %v", tt.errSub, err)
			}
		})
	}
}
