package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/voice-coach/internal/audio"
	"github.com/lexiqai/voice-coach/internal/config"
	"github.com/lexiqai/voice-coach/internal/conversation"
	"github.com/lexiqai/voice-coach/internal/device"
	"github.com/lexiqai/voice-coach/internal/fault"
	"github.com/lexiqai/voice-coach/internal/live"
	"github.com/lexiqai/voice-coach/internal/observability"
	"github.com/lexiqai/voice-coach/internal/playback"
	"github.com/lexiqai/voice-coach/internal/protocol"
	"github.com/lexiqai/voice-coach/internal/resilience"
	"github.com/lexiqai/voice-coach/internal/session"
	"github.com/lexiqai/voice-coach/internal/store"
	"github.com/lexiqai/voice-coach/internal/transcript"
	"github.com/lexiqai/voice-coach/internal/tutor"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Use fmt for fatal errors before logger is initialized
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logger
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.WithCorrelationID("")

	if err := run(cfg, logger); err != nil {
		logger.Error().Err(err).Msg("Voice coach exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer stores.close()

	prefs := loadPreferences(ctx, stores.preferences, cfg, logger)

	scenario, ok := tutor.LookupScenario(cfg.Scenario)
	if !ok {
		logger.Warn().Str("scenario", cfg.Scenario).Strs("known", tutor.ScenarioIDs()).Msg("Unknown scenario, using default")
		scenario, _ = tutor.LookupScenario(tutor.DefaultScenario)
	}

	instruction := cfg.Instruction
	if instruction == "" {
		instruction = tutor.SystemInstruction(scenario, prefs.Language, prefs.Difficulty)
	}

	logger.Info().
		Str("version", observability.Version).
		Str("model", cfg.LiveModel).
		Str("voice", prefs.VoiceID).
		Str("language", prefs.Language).
		Str("scenario", scenario.ID).
		Str("difficulty", prefs.Difficulty).
		Msg("Voice coach starting")

	grammar, challenges, breakers := newCollaborators(ctx, cfg, prefs, logger)
	conv := conversation.New(conversation.Config{
		Key:                 store.HistoryKey{Language: prefs.Language, Scenario: scenario.ID},
		Scenario:            scenario,
		CollaboratorTimeout: cfg.CollaboratorTimeout,
	}, stores.history, grammar, challenges, logger)
	if err := conv.Load(ctx); err != nil {
		logger.Warn().Err(err).Msg("Failed to load conversation history")
	}

	terminate, err := device.Initialize()
	if err != nil {
		return err
	}
	defer func() {
		if err := terminate(); err != nil {
			logger.Warn().Err(err).Msg("Failed to terminate audio backend")
		}
	}()

	player := playback.NewScheduler(playback.Config{
		OutputSampleRate: cfg.OutputSampleRate,
		SpeechRate:       cfg.SpeechRate,
		PitchFactor:      cfg.PitchFactor,
		CuesEnabled:      cfg.CuesEnabled,
	})
	vad := audio.NewVADDetector(&audio.VADConfig{Threshold: cfg.VADThreshold, Hangover: cfg.VADHangover})
	speakers := device.NewAudio(device.Config{
		InputSampleRate:  cfg.InputSampleRate,
		OutputSampleRate: cfg.OutputSampleRate,
		FramesPerBuffer:  cfg.FramesPerBuffer,
	}, player.Render, logger)

	dialer := live.NewDialer(cfg.LiveURL, cfg.GeminiAPIKey, cfg.LiveModel)
	transport := session.TransportFunc(func(ctx context.Context, sc protocol.SessionConfig) (session.Stream, error) {
		conn, err := dialer.Dial(ctx, sc)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})

	out := newConsole(os.Stdout)
	onTurn := func(entries []transcript.Entry) {
		out.turn(entries)
		conv.Record(entries)
	}
	sess := session.New(session.Config{
		Session: protocol.SessionConfig{
			VoiceID:                    prefs.VoiceID,
			SystemInstruction:          instruction,
			InputTranscriptionEnabled:  cfg.InputCaption,
			OutputTranscriptionEnabled: cfg.OutputCaption,
		},
		InputSampleRate: cfg.InputSampleRate,
		BlockSize:       cfg.BlockSize,
		InputGain:       cfg.InputGain,
		ConnectTimeout:  cfg.ConnectTimeout,
		SendQueueSize:   cfg.SendQueueSize,
	}, session.Dependencies{
		Transport: transport,
		Capture:   speakers,
		VAD:       vad,
		Player:    player,
		Turns:     transcript.NewAggregator(),
		OnTurn:    onTurn,
		Logger:    logger,
	})

	retry := &resilience.RetryConfig{
		MaxAttempts:       cfg.RetryMaxAttempts,
		InitialBackoff:    cfg.RetryInitialBackoff,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
	start := func(ctx context.Context) {
		err := resilience.Retry(ctx, sess.Start, retry, resilience.IsRetryableNetworkError,
			func(attempt int, wait time.Duration, err error) {
				logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("Session start failed, retrying")
			})
		if err != nil && ctx.Err() == nil {
			out.printf("! %s\n", fault.UserMessage(err))
		}
	}

	sessionCheck := func(context.Context) (bool, error) {
		if st := sess.State(); st == session.StateError {
			return false, fmt.Errorf("session is %s", st)
		}
		return true, nil
	}
	checks := map[string]observability.HealthCheckFunc{
		"preferences": stores.check,
		"session":     sessionCheck,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return conv.Run(gctx) })
	g.Go(func() error { return out.watch(gctx, sess, conv) })
	if cfg.MetricsEnabled {
		g.Go(func() error { return serveDiagnostics(gctx, cfg.DiagnosticsAddr, checks, logger) })
	}
	g.Go(func() error {
		defer cancel()
		defer sess.Teardown()

		out.printf("%s: %s in %s (%s). Type h for commands.\n", scenario.Title, scenario.Goal, prefs.Language, prefs.Difficulty)
		start(gctx)
		return commandLoop(gctx, os.Stdin, out, commands{
			vad:      vad,
			player:   player,
			session:  sess,
			breakers: breakers,
			step:     cfg.VADThresholdStep,
			restart:  start,
		})
	})

	err = g.Wait()
	results := conv.Challenges()
	best := 0
	for _, r := range results {
		best = max(best, r.Score)
	}
	logger.Info().
		Int("entries", len(conv.Entries())).
		Int("challenges", len(results)).
		Int("best_score", best).
		Msg("Voice coach stopped")
	return err
}

func loadPreferences(ctx context.Context, ps store.PreferenceStore, cfg *config.Config, logger zerolog.Logger) store.Preferences {
	defaults := store.Preferences{Language: cfg.Language, VoiceID: cfg.LiveVoiceID, Difficulty: cfg.Difficulty}

	saved, err := ps.LoadPreferences(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Failed to load preferences, using defaults")
		return defaults
	}
	prefs := saved.Merge(defaults)
	if prefs != saved {
		if err := ps.SavePreferences(ctx, prefs); err != nil {
			logger.Warn().Err(err).Msg("Failed to save preferences")
		}
	}
	return prefs
}

func newCollaborators(ctx context.Context, cfg *config.Config, prefs store.Preferences, logger zerolog.Logger) (conversation.GrammarChecker, conversation.ChallengeService, []*resilience.CircuitBreaker) {
	if !cfg.GrammarEnabled && !cfg.ChallengeEnabled {
		return nil, nil, nil
	}
	gen, err := tutor.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.TextModel)
	if err != nil {
		logger.Warn().Err(err).Msg("Grammar and challenge feedback unavailable")
		return nil, nil, nil
	}

	var (
		grammar    conversation.GrammarChecker
		challenges conversation.ChallengeService
		breakers   []*resilience.CircuitBreaker
	)
	if cfg.GrammarEnabled {
		cb := tutor.NewBreaker("grammar", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout, logger)
		grammar = tutor.NewGrammarChecker(gen, cb, prefs.Language)
		breakers = append(breakers, cb)
	}
	if cfg.ChallengeEnabled {
		cb := tutor.NewBreaker("challenge", cfg.CircuitBreakerMaxFailures, cfg.CircuitBreakerResetTimeout, logger)
		challenges = tutor.NewChallengeService(gen, cb, prefs.Language, prefs.Difficulty)
		breakers = append(breakers, cb)
	}
	return grammar, challenges, breakers
}
