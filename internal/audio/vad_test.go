package audio

import (
	"testing"
	"time"
)

func constantFrame(level float32, n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = level
	}
	return samples
}

func TestVADDetector_HysteresisScenario(t *testing.T) {
	vad := NewVADDetector(&VADConfig{Threshold: 0.008, Hangover: 800 * time.Millisecond})
	start := time.Unix(0, 0)
	step := 100 * time.Millisecond

	type phase struct {
		level  float32
		frames int
	}
	phases := []phase{
		{0.002, 10}, // 1000 ms quiet
		{0.02, 5},   // 500 ms speech
		{0.001, 9},  // 900 ms quiet
	}

	var events []VADEvent
	var at []time.Duration
	frame := 0
	for _, p := range phases {
		for i := 0; i < p.frames; i++ {
			now := start.Add(time.Duration(frame) * step)
			ev, _ := vad.ProcessFrame(constantFrame(p.level, 160), now)
			if ev != VADNone {
				events = append(events, ev)
				at = append(at, now.Sub(start))
			}
			frame++
		}
	}

	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d (%v)", len(events), events)
	}
	if events[0] != VADSpeechStart || at[0] != 1000*time.Millisecond {
		t.Errorf("Expected speech_start at 1s, got %v at %v", events[0], at[0])
	}
	// last loud frame at 1.4s, first frame more than 800ms later is 2.3s
	if events[1] != VADSpeechStop || at[1] != 2300*time.Millisecond {
		t.Errorf("Expected speech_stop at 2.3s, got %v at %v", events[1], at[1])
	}
}

func TestVADDetector_BriefPauseDoesNotStop(t *testing.T) {
	vad := NewVADDetector(nil)
	now := time.Unix(0, 0)
	loud := constantFrame(0.05, 160)
	quiet := constantFrame(0, 160)

	if ev, _ := vad.ProcessFrame(loud, now); ev != VADSpeechStart {
		t.Fatalf("Expected speech_start, got %v", ev)
	}
	for i := 1; i <= 8; i++ {
		if ev, _ := vad.ProcessFrame(quiet, now.Add(time.Duration(i)*100*time.Millisecond)); ev != VADNone {
			t.Errorf("Expected no event during hangover at frame %d, got %v", i, ev)
		}
	}
	if ev, _ := vad.ProcessFrame(loud, now.Add(900*time.Millisecond)); ev != VADNone {
		t.Errorf("Expected no second speech_start, got %v", ev)
	}
	if !vad.State().Talking {
		t.Error("Expected detector to still be talking")
	}
}

func TestVADDetector_EventsAlternate(t *testing.T) {
	vad := NewVADDetector(&VADConfig{Threshold: 0.01, Hangover: 200 * time.Millisecond})
	levels := []float32{0, 0.1, 0.1, 0, 0, 0, 0.2, 0, 0, 0, 0, 0.3, 0.3, 0, 0.3, 0, 0, 0, 0}
	now := time.Unix(0, 0)

	last := VADSpeechStop
	for i, l := range levels {
		ev, _ := vad.ProcessFrame(constantFrame(l, 64), now.Add(time.Duration(i)*100*time.Millisecond))
		if ev == VADNone {
			continue
		}
		if ev == last {
			t.Fatalf("Expected alternating events, got two %v in a row at frame %d", ev, i)
		}
		last = ev
	}
}

func TestVADDetector_RuntimeTuning(t *testing.T) {
	vad := NewVADDetector(nil)
	vad.SetThreshold(0.5)
	vad.SetHangover(50 * time.Millisecond)

	if vad.Threshold() != 0.5 {
		t.Errorf("Expected threshold 0.5, got %v", vad.Threshold())
	}
	if vad.Hangover() != 50*time.Millisecond {
		t.Errorf("Expected hangover 50ms, got %v", vad.Hangover())
	}
	if ev, _ := vad.ProcessFrame(constantFrame(0.1, 64), time.Now()); ev != VADNone {
		t.Errorf("Expected frame below raised threshold to be silent, got %v", ev)
	}
}

func TestVADDetector_Reset(t *testing.T) {
	vad := NewVADDetector(nil)
	now := time.Now()
	vad.ProcessFrame(constantFrame(0.5, 64), now)
	if st := vad.State(); !st.Talking || !st.LastSilenceTimestamp.Equal(now) {
		t.Errorf("Unexpected state before reset: %+v", st)
	}

	vad.Reset()
	if st := vad.State(); st.Talking || !st.LastSilenceTimestamp.IsZero() {
		t.Errorf("Expected zero state after reset, got %+v", st)
	}
}
