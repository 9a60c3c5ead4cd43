package audio

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/lexiqai/voice-coach/internal/fault"
)

// ApplyGain scales samples in place and clamps the result to [-1, 1].
// The same buffer is later measured by the VAD and encoded for sending.
func ApplyGain(samples []float32, gain float64) {
	if gain == 1 {
		return
	}
	g := float32(gain)
	for i, s := range samples {
		v := s * g
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		samples[i] = v
	}
}

// CalculateRMS calculates the Root Mean Square of audio samples
func CalculateRMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		f := float64(s)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// EncodePCM16 packs float samples as little-endian signed 16-bit PCM.
// dst is reused when it has enough capacity.
func EncodePCM16(dst []byte, samples []float32) []byte {
	need := len(samples) * 2
	if cap(dst) < need {
		dst = make([]byte, need)
	}
	dst = dst[:need]
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(int16(s*math.MaxInt16)))
	}
	return dst
}

// EncodeFrame returns the wire packet for one captured frame.
func EncodeFrame(frame AudioFrame, sampleRate int) EncodedAudioPacket {
	return EncodedAudioPacket{
		Data:       EncodePCM16(nil, frame.Samples),
		SampleRate: sampleRate,
	}
}

// DecodePCM16 unpacks little-endian signed 16-bit PCM into float samples.
func DecodePCM16(data []byte) ([]float32, error) {
	if len(data)%2 != 0 {
		return nil, &fault.DecodeError{Detail: "pcm16 payload", Err: fmt.Errorf("odd length %d", len(data))}
	}
	out := make([]float32, len(data)/2)
	for i := range out {
		out[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768
	}
	return out, nil
}
