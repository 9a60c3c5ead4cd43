// Package playback schedules decoded agent audio on the output device clock.
package playback

import (
	"sync"
	"time"

	"github.com/lexiqai/voice-coach/internal/audio"
	"github.com/lexiqai/voice-coach/internal/observability"
)

// Cue identifies a local feedback tone.
type Cue int

const (
	CueSpeechStart Cue = iota
	CueSpeechStop
)

const (
	cueDurationMs = 80
	cueAmplitude  = 0.15
)

// Config holds playback settings.
type Config struct {
	OutputSampleRate int
	SpeechRate       float64
	PitchFactor      float64
	CuesEnabled      bool
}

// PlaybackSource describes one scheduled buffer. Times are on the output clock.
type PlaybackSource struct {
	ID       uint64
	Start    time.Duration
	Duration time.Duration // wall length after rate adjustment
	Rate     float64
}

// Snapshot is a read-only view of the scheduler for display.
type Snapshot struct {
	Clock       time.Duration
	NextStart   time.Duration
	Active      int
	Speaking    bool
	Paused      bool
	SpeechRate  float64
	PitchFactor float64
}

type source struct {
	PlaybackSource
	samples    []float32
	startFrame int64
	step       float64 // source samples consumed per output sample
	pos        float64
}

// mix adds the part of src that falls in out (whose first sample is output
// frame base) and reports whether src still has samples left.
func (src *source) mix(out []float32, base int64) bool {
	offset := src.startFrame - base
	if offset >= int64(len(out)) {
		return true
	}
	i := 0
	if offset > 0 {
		i = int(offset)
	}
	last := len(src.samples) - 1
	for ; i < len(out); i++ {
		idx := int(src.pos)
		if idx > last {
			return false
		}
		v := src.samples[idx]
		if idx < last {
			frac := float32(src.pos - float64(idx))
			v += (src.samples[idx+1] - v) * frac
		}
		out[i] += v
		src.pos += src.step
	}
	return int(src.pos) <= last
}

// Scheduler queues agent audio for gap-free playback and mixes it into the
// output callback. Enqueue and Flush run on the network task; Render runs
// on the device callback.
type Scheduler struct {
	mu        sync.Mutex
	cfg       Config
	rendered  int64 // output frames produced while not paused
	nextStart time.Duration
	active    []*source
	cues      []*source
	nextID    uint64
	paused    bool
	speaking  bool

	startTone []float32
	stopTone  []float32
	events    chan bool
}

// NewScheduler creates a scheduler for the given output configuration.
func NewScheduler(cfg Config) *Scheduler {
	if cfg.OutputSampleRate <= 0 {
		cfg.OutputSampleRate = 24000
	}
	if cfg.SpeechRate <= 0 {
		cfg.SpeechRate = 1
	}
	if cfg.PitchFactor <= 0 {
		cfg.PitchFactor = 1
	}
	return &Scheduler{
		cfg:       cfg,
		startTone: audio.SynthesizeTone(880, cueDurationMs, cfg.OutputSampleRate, cueAmplitude),
		stopTone:  audio.SynthesizeTone(440, cueDurationMs, cfg.OutputSampleRate, cueAmplitude),
		events:    make(chan bool, 16),
	}
}

// Speaking delivers agent speaking transitions: true when playback begins,
// false when the active set drains or is flushed. Slow readers miss events.
func (s *Scheduler) Speaking() <-chan bool {
	return s.events
}

func (s *Scheduler) clockLocked() time.Duration {
	return audio.Duration(int(s.rendered), s.cfg.OutputSampleRate)
}

func (s *Scheduler) frameAt(t time.Duration) int64 {
	return (int64(t)*int64(s.cfg.OutputSampleRate) + int64(time.Second)/2) / int64(time.Second)
}

func (s *Scheduler) setSpeakingLocked(v bool) {
	if s.speaking == v {
		return
	}
	s.speaking = v
	select {
	case s.events <- v:
	default:
	}
}

// Enqueue schedules samples recorded at srcRate to start when the previous
// buffer ends, or immediately if playback has caught up.
func (s *Scheduler) Enqueue(samples []float32, srcRate int) PlaybackSource {
	s.mu.Lock()
	defer s.mu.Unlock()

	rate := s.cfg.SpeechRate * s.cfg.PitchFactor
	d := audio.Duration(len(samples), srcRate)
	start := s.nextStart
	if now := s.clockLocked(); now > start {
		start = now
	}
	adjusted := time.Duration(float64(d) / rate)
	s.nextStart = start + adjusted

	s.nextID++
	src := &source{
		PlaybackSource: PlaybackSource{ID: s.nextID, Start: start, Duration: adjusted, Rate: rate},
		samples:        samples,
		startFrame:     s.frameAt(start),
		step:           rate * float64(srcRate) / float64(s.cfg.OutputSampleRate),
	}
	if len(samples) > 0 {
		s.active = append(s.active, src)
		s.setSpeakingLocked(true)
		observability.SetPlaybackSources(len(s.active))
	}
	return src.PlaybackSource
}

// Render fills out with the mixed output for the next len(out) frames and
// advances the clock. While paused it writes silence and the clock holds.
func (s *Scheduler) Render(out []float32) {
	clear(out)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused {
		return
	}

	base := s.rendered
	before := len(s.active)
	kept := s.active[:0]
	for _, src := range s.active {
		if src.mix(out, base) {
			kept = append(kept, src)
		}
	}
	clearTail(s.active, len(kept))
	s.active = kept

	keptCues := s.cues[:0]
	for _, c := range s.cues {
		if c.mix(out, base) {
			keptCues = append(keptCues, c)
		}
	}
	clearTail(s.cues, len(keptCues))
	s.cues = keptCues

	for i, v := range out {
		if v > 1 {
			out[i] = 1
		} else if v < -1 {
			out[i] = -1
		}
	}
	s.rendered += int64(len(out))

	if len(s.active) != before {
		observability.SetPlaybackSources(len(s.active))
		if len(s.active) == 0 {
			s.setSpeakingLocked(false)
		}
	}
}

func clearTail(srcs []*source, from int) {
	for i := from; i < len(srcs); i++ {
		srcs[i] = nil
	}
}

// Flush stops every scheduled buffer and makes the next one start at the
// current clock time. It returns how many buffers were discarded.
func (s *Scheduler) Flush() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Scheduler) flushLocked() int {
	n := len(s.active)
	clearTail(s.active, 0)
	s.active = s.active[:0]
	s.nextStart = s.clockLocked()
	s.setSpeakingLocked(false)
	observability.SetPlaybackSources(0)
	return n
}

// Reset flushes agent audio and pending cues.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushLocked()
	clearTail(s.cues, 0)
	s.cues = s.cues[:0]
}

// PlayCue mixes a short feedback tone starting now. Cues are not part of
// the agent audio and survive Flush. Returns false when suppressed.
func (s *Scheduler) PlayCue(c Cue) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.paused || !s.cfg.CuesEnabled {
		return false
	}
	tone := s.startTone
	if c == CueSpeechStop {
		tone = s.stopTone
	}
	s.cues = append(s.cues, &source{samples: tone, startFrame: s.rendered, step: 1})
	return true
}

// TogglePause flips the pause state and returns the new value. While
// paused the output clock is frozen and output is silent.
func (s *Scheduler) TogglePause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = !s.paused
	return s.paused
}

// SetRates changes speech rate and pitch factor for buffers enqueued later.
func (s *Scheduler) SetRates(speechRate, pitchFactor float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if speechRate > 0 {
		s.cfg.SpeechRate = speechRate
	}
	if pitchFactor > 0 {
		s.cfg.PitchFactor = pitchFactor
	}
}

// Snapshot returns the current scheduler state.
func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Clock:       s.clockLocked(),
		NextStart:   s.nextStart,
		Active:      len(s.active),
		Speaking:    s.speaking,
		Paused:      s.paused,
		SpeechRate:  s.cfg.SpeechRate,
		PitchFactor: s.cfg.PitchFactor,
	}
}
