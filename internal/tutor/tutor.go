// Package tutor provides the grammar checker and challenge service backed
// by schema-constrained Gemini text completions.
package tutor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"

	"github.com/lexiqai/voice-coach/internal/observability"
	"github.com/lexiqai/voice-coach/internal/resilience"
)

// Generator produces a JSON document matching schema.
type Generator interface {
	Generate(ctx context.Context, system, prompt string, schema *genai.Schema) (string, error)
}

// GeminiGenerator calls the Gemini text models.
type GeminiGenerator struct {
	models      *genai.Models
	model       string
	temperature float32
}

// NewGeminiGenerator creates a generator for the given text model.
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &GeminiGenerator{models: client.Models, model: model, temperature: 0.2}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, system, prompt string, schema *genai.Schema) (string, error) {
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       genai.Ptr(g.temperature),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    schema,
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	return responseText(resp)
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("empty response")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", errors.New("response has no text")
	}
	return b.String(), nil
}

// NewBreaker returns a circuit breaker for a collaborator that reports its
// state to metrics and the log.
func NewBreaker(name string, maxFailures int, resetTimeout time.Duration, logger zerolog.Logger) *resilience.CircuitBreaker {
	cb := resilience.NewCircuitBreaker(name, maxFailures, resetTimeout)
	cb.OnStateChange(func(name string, from, to resilience.CircuitState) {
		observability.UpdateCircuitBreakerState(name, int(to))
		logger.Warn().
			Str("collaborator", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Collaborator circuit breaker changed state")
	})
	return cb
}

// generateJSON runs one guarded request and decodes the response into out.
func generateJSON(ctx context.Context, gen Generator, cb *resilience.CircuitBreaker, system, prompt string, schema *genai.Schema, out any) error {
	start := time.Now()
	err := cb.Call(ctx, func(ctx context.Context) error {
		raw, err := gen.Generate(ctx, system, prompt, schema)
		if err != nil {
			return err
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			return fmt.Errorf("invalid %s response: %w", cb.Name(), err)
		}
		return nil
	})
	if errors.Is(err, resilience.ErrOpen) {
		observability.RecordCollaboratorSkipped(cb.Name())
		return err
	}
	observability.RecordCollaborator(cb.Name(), err == nil, time.Since(start))
	if err != nil {
		observability.IncrementCircuitBreakerFailures(cb.Name())
	}
	return err
}
