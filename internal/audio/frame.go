package audio

import (
	"fmt"
	"time"
)

// AudioFrame is one fixed-size block of mono samples in [-1, 1].
// Samples is only valid for the duration of the handler it was passed to.
type AudioFrame struct {
	Samples   []float32
	Timestamp time.Time // capture time of the first sample
}

// EncodedAudioPacket is the wire-ready form of one AudioFrame.
type EncodedAudioPacket struct {
	Data       []byte // little-endian signed 16-bit PCM
	SampleRate int
}

// MIMEType returns the media type announced to the session for this packet.
func (p EncodedAudioPacket) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", p.SampleRate)
}

// Duration returns the playback length of a mono buffer at sampleRate.
func Duration(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
