// Package store persists user preferences and conversation history.
package store

import (
	"context"

	"github.com/lexiqai/voice-coach/internal/transcript"
)

// Preferences are the user's conversation settings.
type Preferences struct {
	Language   string `yaml:"language"`
	VoiceID    string `yaml:"voice_id"`
	Difficulty string `yaml:"difficulty"`
}

// Merge fills empty fields of p from defaults.
func (p Preferences) Merge(defaults Preferences) Preferences {
	if p.Language == "" {
		p.Language = defaults.Language
	}
	if p.VoiceID == "" {
		p.VoiceID = defaults.VoiceID
	}
	if p.Difficulty == "" {
		p.Difficulty = defaults.Difficulty
	}
	return p
}

// HistoryKey identifies one conversation history.
type HistoryKey struct {
	Language string
	Scenario string
}

func (k HistoryKey) String() string {
	return k.Language + "/" + k.Scenario
}

// PreferenceStore loads and saves Preferences. A store with nothing saved
// returns zero Preferences and no error.
type PreferenceStore interface {
	LoadPreferences(ctx context.Context) (Preferences, error)
	SavePreferences(ctx context.Context, p Preferences) error
}

// HistoryStore loads and replaces the entry list for a key.
type HistoryStore interface {
	LoadHistory(ctx context.Context, key HistoryKey) ([]transcript.Entry, error)
	SaveHistory(ctx context.Context, key HistoryKey, entries []transcript.Entry) error
}
