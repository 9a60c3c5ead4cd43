package tutor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/lexiqai/voice-coach/internal/resilience"
)

var grammarSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"has_error":   {Type: genai.TypeBoolean},
		"corrected":   {Type: genai.TypeString},
		"explanation": {Type: genai.TypeString},
	},
	Required: []string{"has_error", "corrected"},
}

type grammarResponse struct {
	HasError    bool   `json:"has_error"`
	Corrected   string `json:"corrected"`
	Explanation string `json:"explanation"`
}

// Correction is the grammar checker's answer for one user utterance.
type Correction struct {
	Timestamp   time.Time
	Original    string
	Corrected   string
	Explanation string
}

// GrammarChecker proposes corrections for user utterances.
type GrammarChecker struct {
	gen      Generator
	breaker  *resilience.CircuitBreaker
	language string
}

// NewGrammarChecker creates a checker for utterances in language.
func NewGrammarChecker(gen Generator, breaker *resilience.CircuitBreaker, language string) *GrammarChecker {
	return &GrammarChecker{gen: gen, breaker: breaker, language: language}
}

// Check returns a correction for text spoken at ts, or nil when the text
// needs none. resilience.ErrOpen means the checker disabled itself.
func (g *GrammarChecker) Check(ctx context.Context, text string, ts time.Time) (*Correction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	system := fmt.Sprintf("You correct the grammar of a %s learner. Keep their meaning and register. "+
		"Set has_error to false when the sentence is already correct.", g.language)
	prompt := fmt.Sprintf("Sentence: %q", text)

	var resp grammarResponse
	if err := generateJSON(ctx, g.gen, g.breaker, system, prompt, grammarSchema, &resp); err != nil {
		return nil, err
	}

	corrected := strings.TrimSpace(resp.Corrected)
	if !resp.HasError || corrected == "" || corrected == text {
		return nil, nil
	}
	return &Correction{
		Timestamp:   ts,
		Original:    text,
		Corrected:   corrected,
		Explanation: strings.TrimSpace(resp.Explanation),
	}, nil
}
