package session

import (
	"context"

	"github.com/lexiqai/voice-coach/internal/playback"
	"github.com/lexiqai/voice-coach/internal/protocol"
)

// State is the session lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateActive
	StateError
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateError:
		return "error"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream is an open duplex channel to the agent.
type Stream interface {
	WriteAudio(data []byte) error
	ReadFrame() ([]byte, error)
	Close() error
}

// Transport opens streams. Dial must honor ctx and return only after the
// open acknowledgement.
type Transport interface {
	Dial(ctx context.Context, cfg protocol.SessionConfig) (Stream, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, cfg protocol.SessionConfig) (Stream, error)

func (f TransportFunc) Dial(ctx context.Context, cfg protocol.SessionConfig) (Stream, error) {
	return f(ctx, cfg)
}

// Capture is a microphone. handler runs on the device callback and receives
// chunks of arbitrary length; Stop returns once no more calls will be made.
type Capture interface {
	Start(handler func(samples []float32)) error
	Stop() error
}

// EventKind identifies what an Event reports.
type EventKind int

const (
	EventState EventKind = iota
	EventUserTalking
	EventAgentSpeaking
)

// Event is published on Session.Events for the presentation layer.
type Event struct {
	Kind    EventKind
	State   State  // EventState
	Talking bool   // EventUserTalking, EventAgentSpeaking
	Err     error  // set when State is StateError
	Message string // user-facing text for Err
}

// Status is a point-in-time view of the session for display.
type Status struct {
	State       State
	SessionID   string
	UserTalking bool
	Threshold   float64
	InputGain   float64
	Heard       string // user transcription of the turn in progress
	Playback    playback.Snapshot
}
