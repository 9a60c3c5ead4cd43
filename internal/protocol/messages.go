// Package protocol encodes and decodes the JSON frames of the Gemini Live
// bidirectional streaming session.
package protocol

import (
	"encoding/json"
	"errors"
)

// ErrClosed is returned by a stream whose peer closed it normally.
var ErrClosed = errors.New("session closed")

// Kind identifies an inbound message variant.
type Kind int

const (
	KindSetupComplete Kind = iota
	KindAudioChunk
	KindInputTranscription
	KindOutputTranscription
	KindTurnComplete
	KindInterrupted
	KindError
	KindClosed
)

var kindNames = map[Kind]string{
	KindSetupComplete:       "setup_complete",
	KindAudioChunk:          "audio_chunk",
	KindInputTranscription:  "input_transcription",
	KindOutputTranscription: "output_transcription",
	KindTurnComplete:        "turn_complete",
	KindInterrupted:         "interrupted",
	KindError:               "error",
	KindClosed:              "closed",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Message is one decoded inbound event. Only the fields relevant to Kind are set.
type Message struct {
	Kind       Kind
	Payload    string // base64 audio, KindAudioChunk
	SampleRate int    // KindAudioChunk
	Text       string // transcription deltas
	Detail     string // KindError
}

// SessionConfig is sent once when the session opens.
type SessionConfig struct {
	VoiceID                    string
	SystemInstruction          string
	InputTranscriptionEnabled  bool
	OutputTranscriptionEnabled bool
}

// ---- outbound wire types ----

type setupMessage struct {
	Setup setupConfig `json:"setup"`
}

type setupConfig struct {
	Model                    string           `json:"model"`
	GenerationConfig         generationConfig `json:"generationConfig"`
	SystemInstruction        *content         `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}        `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}        `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text       string      `json:"text,omitempty"`
	InlineData *inlineData `json:"inlineData,omitempty"`
}

type inlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64-encoded
}

type realtimeInputMessage struct {
	RealtimeInput realtimeInput `json:"realtimeInput"`
}

type realtimeInput struct {
	MediaChunks []inlineData `json:"mediaChunks"`
}

// ---- inbound wire types ----

type serverMessage struct {
	SetupComplete *json.RawMessage `json:"setupComplete,omitempty"`
	ServerContent *serverContent   `json:"serverContent,omitempty"`
	Error         *serverError     `json:"error,omitempty"`
}

type serverError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}
