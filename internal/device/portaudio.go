// Package device opens the microphone and speaker through PortAudio.
package device

import (
	"errors"
	"sync"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"

	"github.com/lexiqai/voice-coach/internal/fault"
)

// Initialize loads the PortAudio backend. The returned func releases it.
func Initialize() (func() error, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fault.ClassifyDevice("initialize audio", err)
	}
	return portaudio.Terminate, nil
}

// Config selects stream formats.
type Config struct {
	InputSampleRate  int
	OutputSampleRate int
	FramesPerBuffer  int // 0 lets the backend choose
}

// Audio is the pair of device streams used by one conversation session:
// mono float32 capture and mono float32 playback. Both are opened by Start
// and released by Stop, so nothing stays open between sessions.
type Audio struct {
	cfg    Config
	render func(out []float32)
	logger zerolog.Logger

	mu     sync.Mutex
	input  *portaudio.Stream
	output *portaudio.Stream
}

// NewAudio creates device streams that pull playback from render.
func NewAudio(cfg Config, render func(out []float32), logger zerolog.Logger) *Audio {
	return &Audio{cfg: cfg, render: render, logger: logger}
}

// Start opens the speaker and then the microphone. handler is called from
// the PortAudio callback thread for every captured chunk.
func (a *Audio) Start(handler func(samples []float32)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.input != nil {
		return errors.New("audio devices already started")
	}

	out, err := portaudio.OpenDefaultStream(0, 1, float64(a.cfg.OutputSampleRate), a.cfg.FramesPerBuffer,
		func(out []float32) { a.render(out) })
	if err != nil {
		return fault.ClassifyDevice("open output", err)
	}
	if err := out.Start(); err != nil {
		out.Close()
		return fault.ClassifyDevice("start output", err)
	}

	in, err := portaudio.OpenDefaultStream(1, 0, float64(a.cfg.InputSampleRate), a.cfg.FramesPerBuffer,
		func(in []float32) { handler(in) })
	if err != nil {
		closeStream(out)
		return fault.ClassifyDevice("open input", err)
	}
	if err := in.Start(); err != nil {
		in.Close()
		closeStream(out)
		return fault.ClassifyDevice("start input", err)
	}

	a.input, a.output = in, out
	a.logger.Info().
		Int("input_rate", a.cfg.InputSampleRate).
		Int("output_rate", a.cfg.OutputSampleRate).
		Msg("Audio devices started")
	return nil
}

// Stop stops and closes both streams. It returns after the last callback.
func (a *Audio) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.input != nil {
		errs = append(errs, closeStream(a.input))
		a.input = nil
	}
	if a.output != nil {
		errs = append(errs, closeStream(a.output))
		a.output = nil
	}
	if err := errors.Join(errs...); err != nil {
		return fault.ClassifyDevice("stop", err)
	}
	return nil
}

func closeStream(s *portaudio.Stream) error {
	stopErr := s.Stop()
	return errors.Join(stopErr, s.Close())
}
