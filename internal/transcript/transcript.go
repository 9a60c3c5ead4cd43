// Package transcript accumulates per-turn transcription deltas and
// finalizes them into history entries.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Role identifies who spoke.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// Entry is one finalized utterance. Correction is attached later by the
// grammar checker and is the only field that changes after finalization.
type Entry struct {
	Role       Role      `yaml:"role" json:"role"`
	Text       string    `yaml:"text" json:"text"`
	Timestamp  time.Time `yaml:"timestamp" json:"timestamp"`
	Correction string    `yaml:"correction,omitempty" json:"correction,omitempty"`
}

// Aggregator holds the turn buffer for the active session.
type Aggregator struct {
	mu     sync.Mutex
	input  strings.Builder
	output strings.Builder
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// AppendInput adds a user transcription delta.
func (a *Aggregator) AppendInput(text string) {
	a.mu.Lock()
	a.input.WriteString(text)
	a.mu.Unlock()
}

// AppendOutput adds an agent transcription delta.
func (a *Aggregator) AppendOutput(text string) {
	a.mu.Lock()
	a.output.WriteString(text)
	a.mu.Unlock()
}

// Finalize closes the turn. It returns the user entry and then the agent
// entry, each only if its text is non-blank, and always empties the buffer.
func (a *Aggregator) Finalize(now time.Time) []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	var entries []Entry
	if text := strings.TrimSpace(a.input.String()); text != "" {
		entries = append(entries, Entry{Role: RoleUser, Text: text, Timestamp: now})
	}
	if text := strings.TrimSpace(a.output.String()); text != "" {
		entries = append(entries, Entry{Role: RoleAgent, Text: text, Timestamp: now})
	}
	a.input.Reset()
	a.output.Reset()
	return entries
}

// Pending returns the text accumulated so far in the current turn.
func (a *Aggregator) Pending() (input, output string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.input.String(), a.output.String()
}

// Reset discards the current turn.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	a.input.Reset()
	a.output.Reset()
	a.mu.Unlock()
}
