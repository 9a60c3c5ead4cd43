package audio

import (
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// VADEvent is the transition reported for a processed frame.
type VADEvent int

const (
	VADNone VADEvent = iota
	VADSpeechStart
	VADSpeechStop
)

func (e VADEvent) String() string {
	switch e {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechStop:
		return "speech_stop"
	default:
		return "none"
	}
}

// VADConfig holds configuration for Voice Activity Detection
type VADConfig struct {
	Threshold float64       // RMS energy above which a frame counts as speech
	Hangover  time.Duration // silence required before speech is declared over
}

// DefaultVADConfig returns a default VAD configuration
func DefaultVADConfig() *VADConfig {
	return &VADConfig{
		Threshold: 0.008,
		Hangover:  800 * time.Millisecond,
	}
}

// VADState is a snapshot of the detector for readers outside the capture path.
type VADState struct {
	Talking              bool
	LastSilenceTimestamp time.Time // time of the most recent loud frame
}

// VADDetector is a two-state hysteresis filter over frame energy.
// ProcessFrame must only be called from the capture path; the tuning
// setters and State may be called from any goroutine.
type VADDetector struct {
	threshold atomic.Uint64 // float64 bits
	hangover  atomic.Int64

	mu    sync.RWMutex
	state VADState
}

// NewVADDetector creates a new VAD detector
func NewVADDetector(config *VADConfig) *VADDetector {
	if config == nil {
		config = DefaultVADConfig()
	}
	v := &VADDetector{}
	v.SetThreshold(config.Threshold)
	v.SetHangover(config.Hangover)
	return v
}

// ProcessFrame measures samples and advances the state machine using now as
// the frame time. It returns the transition, if any, and the measured RMS.
func (v *VADDetector) ProcessFrame(samples []float32, now time.Time) (VADEvent, float64) {
	rms := CalculateRMS(samples)

	v.mu.Lock()
	defer v.mu.Unlock()

	if rms > v.Threshold() {
		v.state.LastSilenceTimestamp = now
		if !v.state.Talking {
			v.state.Talking = true
			return VADSpeechStart, rms
		}
		return VADNone, rms
	}

	if v.state.Talking && now.Sub(v.state.LastSilenceTimestamp) > v.Hangover() {
		v.state.Talking = false
		return VADSpeechStop, rms
	}
	return VADNone, rms
}

// SetThreshold changes the speech energy threshold.
func (v *VADDetector) SetThreshold(threshold float64) {
	v.threshold.Store(math.Float64bits(threshold))
}

// Threshold returns the current speech energy threshold.
func (v *VADDetector) Threshold() float64 {
	return math.Float64frombits(v.threshold.Load())
}

// SetHangover changes the silence duration that ends speech.
func (v *VADDetector) SetHangover(d time.Duration) {
	v.hangover.Store(int64(d))
}

// Hangover returns the current hangover duration.
func (v *VADDetector) Hangover() time.Duration {
	return time.Duration(v.hangover.Load())
}

// State returns a snapshot of the detector state.
func (v *VADDetector) State() VADState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.state
}

// Reset returns the detector to Silent. Tuning is kept.
func (v *VADDetector) Reset() {
	v.mu.Lock()
	v.state = VADState{}
	v.mu.Unlock()
}
