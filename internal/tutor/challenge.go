package tutor

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/lexiqai/voice-coach/internal/resilience"
)

var challengeSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"score":     {Type: genai.TypeInteger},
		"feedback":  {Type: genai.TypeString},
		"completed": {Type: genai.TypeBoolean},
	},
	Required: []string{"score", "feedback"},
}

// ChallengeResult scores one utterance against the scenario goal.
type ChallengeResult struct {
	Scenario  string `yaml:"scenario" json:"scenario"`
	Utterance string `yaml:"utterance" json:"utterance"`
	Score     int    `yaml:"score" json:"score"` // 0-100
	Feedback  string `yaml:"feedback" json:"feedback"`
	Completed bool   `yaml:"completed" json:"completed"`
}

// ChallengeService evaluates user utterances against a scenario goal.
type ChallengeService struct {
	gen        Generator
	breaker    *resilience.CircuitBreaker
	language   string
	difficulty string
}

// NewChallengeService creates a challenge service.
func NewChallengeService(gen Generator, breaker *resilience.CircuitBreaker, language, difficulty string) *ChallengeService {
	return &ChallengeService{gen: gen, breaker: breaker, language: language, difficulty: difficulty}
}

// Evaluate scores text against the goal of sc.
func (c *ChallengeService) Evaluate(ctx context.Context, text string, sc Scenario) (*ChallengeResult, error) {
	system := fmt.Sprintf("You grade a %s %s learner practicing a role-play. "+
		"Score from 0 to 100 how well the utterance moves toward the goal, give one sentence of feedback, "+
		"and set completed when the goal is reached.", c.difficulty, c.language)
	prompt := fmt.Sprintf("Setting: %s\nGoal: %s\nUtterance: %q", sc.Setting, sc.Goal, strings.TrimSpace(text))

	var resp ChallengeResult
	if err := generateJSON(ctx, c.gen, c.breaker, system, prompt, challengeSchema, &resp); err != nil {
		return nil, err
	}
	resp.Scenario = sc.ID
	resp.Utterance = strings.TrimSpace(text)
	resp.Feedback = strings.TrimSpace(resp.Feedback)
	resp.Score = min(max(resp.Score, 0), 100)
	return &resp, nil
}
