// Package dispatch routes decoded session messages to playback and the
// transcript.
package dispatch

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-coach/internal/fault"
	"github.com/lexiqai/voice-coach/internal/observability"
	"github.com/lexiqai/voice-coach/internal/playback"
	"github.com/lexiqai/voice-coach/internal/protocol"
	"github.com/lexiqai/voice-coach/internal/transcript"
)

// Player is the playback side of the dispatcher.
type Player interface {
	Enqueue(samples []float32, sampleRate int) playback.PlaybackSource
	Flush() int
}

// TurnHandler receives the entries finalized at each turn boundary.
// It is called on the receive goroutine and must not block.
type TurnHandler func(entries []transcript.Entry)

// Dispatcher handles inbound frames in arrival order. It is not safe for
// concurrent use; the session's receive loop is its only caller.
type Dispatcher struct {
	player  Player
	turns   *transcript.Aggregator
	onTurn  TurnHandler
	metrics *observability.Metrics
	logger  zerolog.Logger
	now     func() time.Time
}

// New creates a dispatcher. onTurn may be nil.
func New(player Player, turns *transcript.Aggregator, onTurn TurnHandler, metrics *observability.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		player:  player,
		turns:   turns,
		onTurn:  onTurn,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// Dispatch decodes one raw frame and handles each message in it. Malformed
// frames and undecodable audio are logged and skipped. A server Error
// yields a NetworkError and a Closed message yields protocol.ErrClosed;
// either ends the session.
func (d *Dispatcher) Dispatch(raw []byte) error {
	msgs, err := protocol.Decode(raw)
	if err != nil {
		d.logger.Warn().Err(err).Int("bytes", len(raw)).Msg("Dropping malformed server frame")
		d.metrics.RecordError("protocol", "dispatch")
		return nil
	}
	for _, m := range msgs {
		if err := d.Handle(m); err != nil {
			return err
		}
	}
	return nil
}

// Handle routes a single message.
func (d *Dispatcher) Handle(m protocol.Message) error {
	switch m.Kind {
	case protocol.KindAudioChunk:
		samples, err := protocol.DecodeAudio(m)
		if err != nil {
			d.logger.Warn().Err(err).Msg("Skipping undecodable audio chunk")
			d.metrics.RecordError("decode", "dispatch")
			return nil
		}
		src := d.player.Enqueue(samples, m.SampleRate)
		d.metrics.RecordInboundAudio(len(samples) * 2)
		d.logger.Debug().
			Uint64("source_id", src.ID).
			Dur("start", src.Start).
			Dur("duration", src.Duration).
			Msg("Scheduled agent audio")

	case protocol.KindInputTranscription:
		d.turns.AppendInput(m.Text)

	case protocol.KindOutputTranscription:
		d.turns.AppendOutput(m.Text)

	case protocol.KindTurnComplete:
		entries := d.turns.Finalize(d.now())
		for _, e := range entries {
			d.metrics.RecordTranscriptEntry(string(e.Role))
		}
		if len(entries) > 0 && d.onTurn != nil {
			d.onTurn(entries)
		}

	case protocol.KindInterrupted:
		n := d.player.Flush()
		d.metrics.RecordInterruption()
		d.logger.Debug().Int("flushed", n).Msg("Agent interrupted")

	case protocol.KindError:
		d.metrics.RecordError("server", "dispatch")
		return &fault.NetworkError{Op: "server", Err: errors.New(m.Detail)}

	case protocol.KindClosed:
		return protocol.ErrClosed

	case protocol.KindSetupComplete:
		// already consumed by the transport during open
	}
	return nil
}
