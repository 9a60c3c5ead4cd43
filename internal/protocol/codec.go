package protocol

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/lexiqai/voice-coach/internal/audio"
	"github.com/lexiqai/voice-coach/internal/fault"
)

// DefaultOutputSampleRate is assumed for inline audio without a rate parameter.
const DefaultOutputSampleRate = 24000

// EncodeSetup builds the one-time setup frame for model.
func EncodeSetup(model string, cfg SessionConfig) ([]byte, error) {
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	setup := setupConfig{
		Model: model,
		GenerationConfig: generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
	}
	if cfg.VoiceID != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: cfg.VoiceID}},
		}
	}
	if cfg.SystemInstruction != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: cfg.SystemInstruction}}}
	}
	if cfg.InputTranscriptionEnabled {
		setup.InputAudioTranscription = &struct{}{}
	}
	if cfg.OutputTranscriptionEnabled {
		setup.OutputAudioTranscription = &struct{}{}
	}
	return json.Marshal(setupMessage{Setup: setup})
}

// EncodeAudio builds a realtime input frame carrying one captured packet.
func EncodeAudio(p audio.EncodedAudioPacket) ([]byte, error) {
	return json.Marshal(realtimeInputMessage{
		RealtimeInput: realtimeInput{MediaChunks: []inlineData{{
			MIMEType: p.MIMEType(),
			Data:     base64.StdEncoding.EncodeToString(p.Data),
		}}},
	})
}

// Decode splits one server frame into messages in processing order:
// interruption first so stale audio is flushed before anything new is
// queued, then transcription deltas, audio, and finally turn completion.
func Decode(raw []byte) ([]Message, error) {
	var msg serverMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, &fault.ProtocolError{Detail: "unmarshal server message", Err: err}
	}

	var out []Message
	if msg.SetupComplete != nil {
		out = append(out, Message{Kind: KindSetupComplete})
	}
	if msg.Error != nil {
		detail := msg.Error.Message
		if msg.Error.Status != "" {
			detail = fmt.Sprintf("%s (%s)", detail, msg.Error.Status)
		}
		out = append(out, Message{Kind: KindError, Detail: detail})
	}

	sc := msg.ServerContent
	if sc == nil {
		return out, nil
	}
	if sc.Interrupted {
		out = append(out, Message{Kind: KindInterrupted})
	}
	if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
		out = append(out, Message{Kind: KindInputTranscription, Text: sc.InputTranscription.Text})
	}
	if sc.OutputTranscription != nil && sc.OutputTranscription.Text != "" {
		out = append(out, Message{Kind: KindOutputTranscription, Text: sc.OutputTranscription.Text})
	}
	if sc.ModelTurn != nil {
		for _, p := range sc.ModelTurn.Parts {
			if p.InlineData == nil || !strings.HasPrefix(p.InlineData.MIMEType, "audio/") {
				continue
			}
			out = append(out, Message{
				Kind:       KindAudioChunk,
				Payload:    p.InlineData.Data,
				SampleRate: SampleRateFromMIME(p.InlineData.MIMEType, DefaultOutputSampleRate),
			})
		}
	}
	if sc.TurnComplete {
		out = append(out, Message{Kind: KindTurnComplete})
	}
	return out, nil
}

// SampleRateFromMIME extracts the rate parameter of an "audio/pcm;rate=N"
// media type, returning fallback when absent or invalid.
func SampleRateFromMIME(mime string, fallback int) int {
	for _, param := range strings.Split(mime, ";")[1:] {
		k, v, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(k, "rate") {
			continue
		}
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

// DecodeAudio turns an audio chunk payload into float samples.
func DecodeAudio(m Message) ([]float32, error) {
	data, err := base64.StdEncoding.DecodeString(m.Payload)
	if err != nil {
		return nil, &fault.DecodeError{Detail: "base64 audio payload", Err: err}
	}
	return audio.DecodePCM16(data)
}
