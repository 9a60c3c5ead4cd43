// Package session owns the duplex conversation with the remote agent: it
// opens the stream, runs the capture and receive paths, and tears
// everything down on close or failure.
package session

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-coach/internal/audio"
	"github.com/lexiqai/voice-coach/internal/dispatch"
	"github.com/lexiqai/voice-coach/internal/fault"
	"github.com/lexiqai/voice-coach/internal/observability"
	"github.com/lexiqai/voice-coach/internal/playback"
	"github.com/lexiqai/voice-coach/internal/protocol"
	"github.com/lexiqai/voice-coach/internal/transcript"
)

// ErrAborted is returned by Start when Teardown ran while it was connecting.
var ErrAborted = errors.New("session start aborted")

// Config holds session settings fixed at open.
type Config struct {
	Session         protocol.SessionConfig
	InputSampleRate int
	BlockSize       int
	InputGain       float64
	ConnectTimeout  time.Duration
	SendQueueSize   int
}

// Dependencies are the components a session drives. VAD, Player and Turns
// outlive individual runs and are reset at each start and teardown.
type Dependencies struct {
	Transport Transport
	Capture   Capture
	VAD       *audio.VADDetector
	Player    *playback.Scheduler
	Turns     *transcript.Aggregator
	OnTurn    dispatch.TurnHandler
	Logger    zerolog.Logger
}

// run is one connected stream and the goroutines serving it.
type run struct {
	id        string
	stream    Stream
	outbound  chan audio.EncodedAudioPacket
	done      chan struct{}
	stopped   atomic.Bool
	capturing bool

	// held while dispatching so teardown never races a late enqueue
	dispatchMu sync.Mutex
	dispatcher *dispatch.Dispatcher
	assembler  *audio.FrameAssembler
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// Session is the single live conversation. Start replaces any prior run.
type Session struct {
	cfg  Config
	deps Dependencies

	startMu   sync.Mutex // serializes Start
	lifecycle sync.Mutex // guards run transitions and state changes
	epoch     uint64
	state     atomic.Int32
	gain      atomic.Uint64
	current   atomic.Pointer[run]
	events    chan Event
}

// New creates an idle session.
func New(cfg Config, deps Dependencies) *Session {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = 32
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = 4096
	}
	if cfg.InputSampleRate <= 0 {
		cfg.InputSampleRate = 16000
	}
	if cfg.InputGain <= 0 {
		cfg.InputGain = 1
	}
	s := &Session{
		cfg:    cfg,
		deps:   deps,
		events: make(chan Event, 64),
	}
	s.SetInputGain(cfg.InputGain)
	return s
}

// Events delivers state, talking and speaking changes. Events are dropped
// if the reader falls behind.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}

// caller holds lifecycle
func (s *Session) setState(st State, err error) {
	s.state.Store(int32(st))
	s.emit(Event{Kind: EventState, State: st, Err: err, Message: fault.UserMessage(err)})
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// SetInputGain changes the capture gain for subsequent frames.
func (s *Session) SetInputGain(g float64) {
	if g > 0 {
		s.gain.Store(math.Float64bits(g))
	}
}

// InputGain returns the current capture gain.
func (s *Session) InputGain() float64 {
	return math.Float64frombits(s.gain.Load())
}

// Status returns a snapshot for display.
func (s *Session) Status() Status {
	st := Status{
		State:       s.State(),
		UserTalking: s.deps.VAD.State().Talking,
		Threshold:   s.deps.VAD.Threshold(),
		InputGain:   s.InputGain(),
		Playback:    s.deps.Player.Snapshot(),
	}
	if s.deps.Turns != nil {
		st.Heard, _ = s.deps.Turns.Pending()
	}
	if r := s.current.Load(); r != nil {
		st.SessionID = r.id
	}
	return st
}

// Start tears down any previous run, connects, and starts capture once the
// agent acknowledges the session. A failed or timed-out open leaves the
// session in StateError and returns a NetworkError; a capture failure
// returns the device error. Start never retries.
func (s *Session) Start(ctx context.Context) error {
	s.startMu.Lock()
	defer s.startMu.Unlock()

	s.Teardown()

	id := uuid.New().String()
	logger := s.deps.Logger.With().Str("session_id", id).Logger()

	s.lifecycle.Lock()
	epoch := s.epoch
	s.setState(StateConnecting, nil)
	s.lifecycle.Unlock()

	logger.Info().Str("voice", s.cfg.Session.VoiceID).Msg("Connecting session")

	began := time.Now()
	dialCtx, cancel := context.WithTimeout(observability.ContextWithLogger(ctx, logger), s.cfg.ConnectTimeout)
	stream, err := s.deps.Transport.Dial(dialCtx, s.cfg.Session)
	cancel()
	if err != nil {
		if !fault.IsNetwork(err) {
			err = &fault.NetworkError{Op: "connect", Err: err}
		}
		logger.Error().Err(err).Msg("Session open failed")
		s.lifecycle.Lock()
		if s.epoch == epoch {
			s.setState(StateError, err)
		}
		s.lifecycle.Unlock()
		return err
	}

	metrics := observability.NewSessionMetrics(id)
	r := &run{
		id:        id,
		stream:    stream,
		outbound:  make(chan audio.EncodedAudioPacket, s.cfg.SendQueueSize),
		done:      make(chan struct{}),
		assembler: audio.NewFrameAssembler(s.cfg.BlockSize, s.cfg.InputSampleRate),
		metrics:   metrics,
		logger:    logger,
	}
	r.dispatcher = dispatch.New(s.deps.Player, s.deps.Turns, s.deps.OnTurn, metrics, logger)

	s.lifecycle.Lock()
	if s.epoch != epoch {
		s.lifecycle.Unlock()
		stream.Close()
		return ErrAborted
	}
	s.deps.VAD.Reset()
	s.deps.Player.Reset()
	s.deps.Turns.Reset()
	drainSpeaking(s.deps.Player)
	s.current.Store(r)
	metrics.RecordSessionStart(time.Since(began))
	s.setState(StateActive, nil)
	go s.writeLoop(r)
	go s.receiveLoop(r)
	go s.forwardSpeaking(r)
	s.lifecycle.Unlock()

	logger.Info().Dur("connect_took", time.Since(began)).Msg("Session active")

	if err := s.startCapture(r); err != nil {
		logger.Error().Err(err).Msg("Capture failed to start")
		s.teardownRun(r, StateError, err)
		return err
	}
	return nil
}

func (s *Session) startCapture(r *run) error {
	err := s.deps.Capture.Start(func(chunk []float32) { s.onCapture(r, chunk) })
	if err != nil {
		if !fault.IsLocalDevice(err) {
			err = fault.ClassifyDevice("start capture", err)
		}
		return err
	}
	s.lifecycle.Lock()
	r.capturing = true
	stopped := r.stopped.Load()
	s.lifecycle.Unlock()
	if stopped {
		// torn down while the device was opening
		s.deps.Capture.Stop()
	}
	return nil
}

// onCapture runs on the device callback: gain, VAD, encode, send. It does
// no blocking work.
func (s *Session) onCapture(r *run, chunk []float32) {
	if r.stopped.Load() {
		return
	}
	r.assembler.Push(chunk, func(frame audio.AudioFrame) {
		audio.ApplyGain(frame.Samples, s.InputGain())

		ev, _ := s.deps.VAD.ProcessFrame(frame.Samples, frame.Timestamp)
		if ev != audio.VADNone {
			cue := playback.CueSpeechStart
			if ev == audio.VADSpeechStop {
				cue = playback.CueSpeechStop
			}
			s.deps.Player.PlayCue(cue)
			r.metrics.RecordVADTransition(ev.String())
			s.emit(Event{Kind: EventUserTalking, Talking: ev == audio.VADSpeechStart})
		}

		s.Send(audio.EncodeFrame(frame, s.cfg.InputSampleRate))
	})
}

// Send queues one packet for the writer. It never blocks and reports
// whether the packet was accepted; packets are dropped when the queue is
// full or no session is active.
func (s *Session) Send(p audio.EncodedAudioPacket) bool {
	r := s.current.Load()
	if r == nil || r.stopped.Load() {
		return false
	}
	select {
	case r.outbound <- p:
		return true
	default:
		r.metrics.RecordPacketDropped("queue_full")
		return false
	}
}

func (s *Session) writeLoop(r *run) {
	for {
		select {
		case <-r.done:
			return
		case p := <-r.outbound:
			data, err := protocol.EncodeAudio(p)
			if err != nil {
				r.logger.Error().Err(err).Msg("Failed to encode audio packet")
				continue
			}
			if err := r.stream.WriteAudio(data); err != nil {
				if r.stopped.Load() || errors.Is(err, protocol.ErrClosed) {
					return
				}
				r.logger.Warn().Err(err).Msg("Audio write failed")
				s.teardownRun(r, StateError, err)
				return
			}
			r.metrics.RecordPacketSent(len(p.Data))
		}
	}
}

func (s *Session) receiveLoop(r *run) {
	for {
		raw, err := r.stream.ReadFrame()
		if err != nil {
			s.finish(r, err)
			return
		}

		r.dispatchMu.Lock()
		if r.stopped.Load() {
			r.dispatchMu.Unlock()
			return
		}
		err = r.dispatcher.Dispatch(raw)
		r.dispatchMu.Unlock()

		if err != nil {
			s.finish(r, err)
			return
		}
	}
}

// drainSpeaking discards transitions left over from a previous run, such
// as the one pushed by its teardown flush.
func drainSpeaking(p *playback.Scheduler) {
	for {
		select {
		case <-p.Speaking():
		default:
			return
		}
	}
}

func (s *Session) forwardSpeaking(r *run) {
	for {
		select {
		case <-r.done:
			return
		case v := <-s.deps.Player.Speaking():
			s.emit(Event{Kind: EventAgentSpeaking, Talking: v})
		}
	}
}

// finish ends r after the stream reported err.
func (s *Session) finish(r *run, err error) {
	if r.stopped.Load() {
		return
	}
	if errors.Is(err, protocol.ErrClosed) {
		r.logger.Info().Msg("Session closed by agent")
		s.teardownRun(r, StateClosed, nil)
		return
	}
	if !fault.IsNetwork(err) {
		err = &fault.NetworkError{Op: "receive", Err: err}
	}
	r.logger.Warn().Err(err).Msg("Session failed")
	r.metrics.RecordError("network", "session")
	s.teardownRun(r, StateError, err)
}

func (s *Session) teardownRun(r *run, final State, err error) {
	s.lifecycle.Lock()
	stopped := s.teardownLocked(r, final, err)
	s.lifecycle.Unlock()
	if stopped {
		closeStream(r)
	}
}

// teardownLocked releases everything r holds except the stream, which the
// caller closes with closeStream after releasing lifecycle. Only the first
// call for a run has any effect; it reports whether this call was it.
func (s *Session) teardownLocked(r *run, final State, err error) bool {
	if r.stopped.Load() {
		return false
	}
	r.stopped.Store(true)

	if r.capturing {
		if stopErr := s.deps.Capture.Stop(); stopErr != nil {
			r.logger.Warn().Err(stopErr).Msg("Failed to stop capture")
		}
	}
	close(r.done)

	r.dispatchMu.Lock()
	s.deps.Player.Reset()
	s.deps.Turns.Reset()
	r.dispatchMu.Unlock()
	s.deps.VAD.Reset()

	s.current.CompareAndSwap(r, nil)
	r.metrics.RecordSessionEnd(final.String())
	s.setState(final, err)
	r.logger.Info().
		Str("state", final.String()).
		Int("dropped_samples", r.assembler.Dropped()).
		Msg("Session torn down")
	return true
}

// closeStream may wait for an in-flight write, so it runs without
// lifecycle held.
func closeStream(r *run) {
	if err := r.stream.Close(); err != nil {
		r.logger.Debug().Err(err).Msg("Stream close")
	}
}

// Teardown stops the active run, if any, and aborts a Start in progress.
// It is idempotent.
func (s *Session) Teardown() {
	s.lifecycle.Lock()
	s.epoch++
	r := s.current.Load()
	stopped := r != nil && s.teardownLocked(r, StateClosed, nil)
	s.lifecycle.Unlock()

	if stopped {
		closeStream(r)
	}
}
