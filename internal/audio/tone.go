package audio

import "math"

// SynthesizeTone renders a sine tone with a short linear fade at both ends
// so it does not click.
func SynthesizeTone(freq float64, durationMs, sampleRate int, amplitude float64) []float32 {
	n := sampleRate * durationMs / 1000
	out := make([]float32, n)
	fade := n / 8
	for i := range out {
		env := 1.0
		if fade > 0 {
			if i < fade {
				env = float64(i) / float64(fade)
			} else if i >= n-fade {
				env = float64(n-1-i) / float64(fade)
			}
		}
		out[i] = float32(amplitude * env * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate)))
	}
	return out
}
