// Package conversation keeps the finalized transcript of a practice
// conversation, fans user utterances out to the grammar checker and
// challenge service, and persists the history in the background.
package conversation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-coach/internal/resilience"
	"github.com/lexiqai/voice-coach/internal/store"
	"github.com/lexiqai/voice-coach/internal/transcript"
	"github.com/lexiqai/voice-coach/internal/tutor"
)

// GrammarChecker proposes a correction for a user utterance.
type GrammarChecker interface {
	Check(ctx context.Context, text string, ts time.Time) (*tutor.Correction, error)
}

// ChallengeService scores a user utterance against the scenario goal.
type ChallengeService interface {
	Evaluate(ctx context.Context, text string, sc tutor.Scenario) (*tutor.ChallengeResult, error)
}

// FeedbackKind identifies a Feedback variant.
type FeedbackKind int

const (
	FeedbackCorrection FeedbackKind = iota
	FeedbackChallenge
)

// Feedback is a collaborator result delivered after the turn it refers to.
type Feedback struct {
	Kind       FeedbackKind
	Correction *tutor.Correction
	Challenge  *tutor.ChallengeResult
}

// Config configures a Conversation.
type Config struct {
	Key                 store.HistoryKey
	Scenario            tutor.Scenario
	CollaboratorTimeout time.Duration
	FlushTimeout        time.Duration
}

// Conversation owns the transcript history of one (language, scenario) pair.
type Conversation struct {
	cfg        Config
	history    store.HistoryStore
	grammar    GrammarChecker
	challenges ChallengeService
	logger     zerolog.Logger

	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	entries  []transcript.Entry
	results  []tutor.ChallengeResult
	closed   bool
	dirty    chan struct{}
	feedback chan Feedback
}

// New creates a conversation. history, grammar and challenges may be nil.
func New(cfg Config, history store.HistoryStore, grammar GrammarChecker, challenges ChallengeService, logger zerolog.Logger) *Conversation {
	if cfg.CollaboratorTimeout <= 0 {
		cfg.CollaboratorTimeout = 15 * time.Second
	}
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 5 * time.Second
	}
	base, cancel := context.WithCancel(context.Background())
	return &Conversation{
		cfg:        cfg,
		history:    history,
		grammar:    grammar,
		challenges: challenges,
		logger:     logger.With().Str("history", cfg.Key.String()).Logger(),
		base:       base,
		cancel:     cancel,
		dirty:      make(chan struct{}, 1),
		feedback:   make(chan Feedback, 16),
	}
}

// Load replaces the in-memory history with the stored one.
func (c *Conversation) Load(ctx context.Context) error {
	if c.history == nil {
		return nil
	}
	entries, err := c.history.LoadHistory(ctx, c.cfg.Key)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

// Feedback delivers corrections and challenge results. Results are dropped
// when nobody reads them.
func (c *Conversation) Feedback() <-chan Feedback {
	return c.feedback
}

// Record appends finalized entries and starts collaborator requests for the
// user entries. It never blocks on a collaborator or the store.
func (c *Conversation) Record(entries []transcript.Entry) {
	if len(entries) == 0 {
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.entries = append(c.entries, entries...)
	var users []transcript.Entry
	for _, e := range entries {
		if e.Role == transcript.RoleUser {
			users = append(users, e)
		}
	}
	if c.grammar != nil {
		c.wg.Add(len(users))
	}
	if c.challenges != nil {
		c.wg.Add(len(users))
	}
	c.mu.Unlock()

	c.markDirty()
	for _, e := range users {
		if c.grammar != nil {
			go c.checkGrammar(e)
		}
		if c.challenges != nil {
			go c.evaluate(e)
		}
	}
}

func (c *Conversation) checkGrammar(e transcript.Entry) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(c.base, c.cfg.CollaboratorTimeout)
	defer cancel()

	correction, err := c.grammar.Check(ctx, e.Text, e.Timestamp)
	if err != nil {
		c.logCollaboratorError("grammar", err)
		return
	}
	if correction == nil {
		return
	}
	if c.AttachCorrection(correction.Timestamp, correction.Corrected) {
		c.publish(Feedback{Kind: FeedbackCorrection, Correction: correction})
	}
}

func (c *Conversation) evaluate(e transcript.Entry) {
	defer c.wg.Done()
	ctx, cancel := context.WithTimeout(c.base, c.cfg.CollaboratorTimeout)
	defer cancel()

	result, err := c.challenges.Evaluate(ctx, e.Text, c.cfg.Scenario)
	if err != nil {
		c.logCollaboratorError("challenge", err)
		return
	}
	c.mu.Lock()
	c.results = append(c.results, *result)
	c.mu.Unlock()
	c.publish(Feedback{Kind: FeedbackChallenge, Challenge: result})
}

func (c *Conversation) logCollaboratorError(name string, err error) {
	switch {
	case errors.Is(err, resilience.ErrOpen):
		c.logger.Debug().Str("collaborator", name).Msg("Collaborator disabled, skipping")
	case errors.Is(err, context.Canceled):
	default:
		c.logger.Warn().Err(err).Str("collaborator", name).Msg("Collaborator request failed")
	}
}

// AttachCorrection sets the correction of the user entry finalized at ts.
// It reports whether such an entry exists.
func (c *Conversation) AttachCorrection(ts time.Time, text string) bool {
	c.mu.Lock()
	found := false
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := &c.entries[i]
		if e.Role == transcript.RoleUser && e.Timestamp.Equal(ts) {
			e.Correction = text
			found = true
			break
		}
	}
	c.mu.Unlock()

	if found {
		c.markDirty()
	}
	return found
}

// Entries returns a copy of the history.
func (c *Conversation) Entries() []transcript.Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transcript.Entry(nil), c.entries...)
}

// Challenges returns a copy of the challenge results of this run.
func (c *Conversation) Challenges() []tutor.ChallengeResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]tutor.ChallengeResult(nil), c.results...)
}

// Run persists the history whenever it changes until ctx is done. It then
// cancels outstanding collaborator requests, waits for them and saves once
// more.
func (c *Conversation) Run(ctx context.Context) error {
	for {
		select {
		case <-c.dirty:
			c.persist(ctx)
		case <-ctx.Done():
			c.mu.Lock()
			c.closed = true
			c.mu.Unlock()
			c.cancel()
			c.wg.Wait()

			flushCtx, cancel := context.WithTimeout(context.Background(), c.cfg.FlushTimeout)
			defer cancel()
			c.persist(flushCtx)
			return nil
		}
	}
}

func (c *Conversation) markDirty() {
	select {
	case c.dirty <- struct{}{}:
	default:
	}
}

func (c *Conversation) publish(f Feedback) {
	select {
	case c.feedback <- f:
	default:
		c.logger.Debug().Msg("Feedback channel full, dropping result")
	}
}

func (c *Conversation) persist(ctx context.Context) {
	if c.history == nil {
		return
	}
	entries := c.Entries()
	if err := c.history.SaveHistory(ctx, c.cfg.Key, entries); err != nil {
		c.logger.Warn().Err(err).Int("entries", len(entries)).Msg("Failed to save conversation history")
		return
	}
	c.logger.Debug().Int("entries", len(entries)).Msg("Saved conversation history")
}
