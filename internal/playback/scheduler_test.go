package playback

import (
	"math"
	"testing"
	"time"
)

func ones(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.5
	}
	return s
}

func newTestScheduler(speech, pitch float64) *Scheduler {
	return NewScheduler(Config{OutputSampleRate: 24000, SpeechRate: speech, PitchFactor: pitch, CuesEnabled: true})
}

func TestScheduler_GapFree(t *testing.T) {
	tests := []struct {
		name   string
		speech float64
		pitch  float64
	}{
		{"unity", 1, 1},
		{"faster speech", 1.25, 1},
		{"slower pitch", 1, 0.8},
		{"combined", 2, 1.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScheduler(tt.speech, tt.pitch)
			rate := tt.speech * tt.pitch
			lengths := []int{2400, 4800, 1200, 2400}

			var sources []PlaybackSource
			for _, n := range lengths {
				sources = append(sources, s.Enqueue(ones(n), 24000))
			}

			want := sources[0].Start
			for i, src := range sources {
				if src.Start != want {
					t.Errorf("buffer %d: expected start %v, got %v", i, want, src.Start)
				}
				d := time.Duration(lengths[i]) * time.Second / 24000
				want += time.Duration(float64(d) / rate)
			}
			if got := s.Snapshot().NextStart; got != want {
				t.Errorf("Expected nextStart %v, got %v", want, got)
			}
		})
	}
}

func TestScheduler_StartNotBeforeClock(t *testing.T) {
	s := newTestScheduler(1, 1)
	s.Render(make([]float32, 2400)) // advance clock by 100ms with nothing queued

	src := s.Enqueue(ones(240), 24000)
	if src.Start != 100*time.Millisecond {
		t.Errorf("Expected late buffer to start at clock now (100ms), got %v", src.Start)
	}
}

func TestScheduler_InterruptionReset(t *testing.T) {
	s := newTestScheduler(1, 1)
	for i := 0; i < 5; i++ {
		s.Enqueue(ones(2400), 24000)
	}
	s.Render(make([]float32, 1200)) // clock at 50ms, nextStart at 500ms

	if n := s.Flush(); n != 5 {
		t.Errorf("Expected 5 flushed sources, got %d", n)
	}
	snap := s.Snapshot()
	if snap.Active != 0 || snap.Speaking {
		t.Errorf("Expected empty, non-speaking scheduler after flush, got %+v", snap)
	}

	src := s.Enqueue(ones(2400), 24000)
	if src.Start != 50*time.Millisecond {
		t.Errorf("Expected next buffer at current clock 50ms, got %v", src.Start)
	}
}

func TestScheduler_RenderPlaysInOrder(t *testing.T) {
	s := newTestScheduler(1, 1)
	first := make([]float32, 4)
	second := make([]float32, 4)
	for i := range first {
		first[i] = 0.1
		second[i] = 0.2
	}
	s.Enqueue(first, 24000)
	s.Enqueue(second, 24000)

	out := make([]float32, 10)
	s.Render(out)
	want := []float32{0.1, 0.1, 0.1, 0.1, 0.2, 0.2, 0.2, 0.2, 0, 0}
	for i := range want {
		if math.Abs(float64(out[i]-want[i])) > 1e-6 {
			t.Errorf("sample %d: expected %v, got %v", i, want[i], out[i])
		}
	}
	if s.Snapshot().Active != 0 {
		t.Errorf("Expected finished sources to be removed, got %d", s.Snapshot().Active)
	}
}

func TestScheduler_ResamplesToOutputRate(t *testing.T) {
	s := newTestScheduler(1, 1)
	s.Enqueue(ones(1200), 12000) // 100ms at half the output rate

	out := make([]float32, 2400)
	s.Render(out)
	if s.Snapshot().Active != 0 {
		t.Error("Expected 1200 samples at 12kHz to finish within 2400 output frames")
	}
	if out[2390] == 0 {
		t.Error("Expected the buffer to span the full 100ms")
	}
}

func TestScheduler_SpeakingEvents(t *testing.T) {
	s := newTestScheduler(1, 1)
	s.Enqueue(ones(10), 24000)
	if v := <-s.Speaking(); !v {
		t.Error("Expected speaking=true after enqueue")
	}

	s.Render(make([]float32, 20))
	select {
	case v := <-s.Speaking():
		if v {
			t.Error("Expected speaking=false once the set drained")
		}
	default:
		t.Error("Expected agent finished signal")
	}
}

func TestScheduler_PauseFreezesClock(t *testing.T) {
	s := newTestScheduler(1, 1)
	s.Enqueue(ones(2400), 24000)
	if !s.TogglePause() {
		t.Fatal("Expected playback paused")
	}

	out := make([]float32, 480)
	s.Render(out)
	for _, v := range out {
		if v != 0 {
			t.Fatal("Expected silence while paused")
		}
	}
	if clock := s.Snapshot().Clock; clock != 0 {
		t.Errorf("Expected frozen clock, got %v", clock)
	}
	if s.PlayCue(CueSpeechStart) {
		t.Error("Expected cue to be suppressed while paused")
	}

	if s.TogglePause() {
		t.Fatal("Expected playback resumed")
	}
	s.Render(out)
	if out[0] == 0 {
		t.Error("Expected audio after resume")
	}
	if clock := s.Snapshot().Clock; clock != 20*time.Millisecond {
		t.Errorf("Expected clock 20ms after resume, got %v", clock)
	}
}

func TestScheduler_CuesSurviveFlush(t *testing.T) {
	s := newTestScheduler(1, 1)
	if !s.PlayCue(CueSpeechStop) {
		t.Fatal("Expected cue to play")
	}
	s.Flush()

	out := make([]float32, 480)
	s.Render(out)
	nonZero := false
	for _, v := range out {
		if v != 0 {
			nonZero = true
		}
	}
	if !nonZero {
		t.Error("Expected cue tone in output")
	}
	if s.Snapshot().Active != 0 {
		t.Error("Expected cues to stay outside the active set")
	}

	s.Reset()
	s.Render(out)
	for _, v := range out {
		if v != 0 {
			t.Fatal("Expected reset to drop pending cues")
		}
	}
}

func TestScheduler_CuesDisabled(t *testing.T) {
	s := NewScheduler(Config{OutputSampleRate: 24000})
	if s.PlayCue(CueSpeechStart) {
		t.Error("Expected cue to be suppressed when disabled")
	}
}

func TestScheduler_SetRates(t *testing.T) {
	s := newTestScheduler(1, 1)
	s.SetRates(2, 0) // pitch unchanged
	src := s.Enqueue(ones(2400), 24000)
	if src.Rate != 2 || src.Duration != 50*time.Millisecond {
		t.Errorf("Expected rate 2 and 50ms, got %v and %v", src.Rate, src.Duration)
	}
}
