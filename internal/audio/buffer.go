package audio

import (
	"sync"
	"time"
)

// RingBuffer is a thread-safe ring buffer of audio samples.
type RingBuffer struct {
	buffer []float32
	size   int
	read   int
	write  int
	mu     sync.RWMutex
}

// NewRingBuffer creates a new ring buffer with the specified size
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{
		buffer: make([]float32, size),
		size:   size,
	}
}

// Write copies samples into the ring and returns how many fit. One slot
// stays empty to tell full from empty.
func (rb *RingBuffer) Write(data []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := 0
	for n < len(data) && (rb.write+1)%rb.size != rb.read {
		rb.buffer[rb.write] = data[n]
		rb.write = (rb.write + 1) % rb.size
		n++
	}
	return n
}

// Read drains up to len(data) samples and returns how many were copied.
func (rb *RingBuffer) Read(data []float32) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := 0
	for n < len(data) && rb.read != rb.write {
		data[n] = rb.buffer[rb.read]
		rb.read = (rb.read + 1) % rb.size
		n++
	}
	return n
}

// Available returns the number of samples available to read
func (rb *RingBuffer) Available() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.availableLocked()
}

func (rb *RingBuffer) availableLocked() int {
	if rb.write >= rb.read {
		return rb.write - rb.read
	}
	return rb.size - rb.read + rb.write
}

// Clear clears the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.read = 0
	rb.write = 0
}

// FrameAssembler turns the device's callback-sized sample chunks into
// fixed-size AudioFrames. It is driven from the device callback and must
// not be shared between streams.
type FrameAssembler struct {
	ring       *RingBuffer
	frame      []float32
	sampleRate int
	emitted    int64 // samples handed out so far
	origin     time.Time
	now        func() time.Time
	dropped    int
}

// NewFrameAssembler creates an assembler for blockSize-sample frames.
// The ring holds four blocks so a late consumer never loses a partial frame.
func NewFrameAssembler(blockSize, sampleRate int) *FrameAssembler {
	return &FrameAssembler{
		ring:       NewRingBuffer(blockSize*4 + 1),
		frame:      make([]float32, blockSize),
		sampleRate: sampleRate,
		now:        time.Now,
	}
}

// Push appends a device chunk and calls emit once per completed frame.
// Frame timestamps advance by exactly blockSize/sampleRate from the first
// pushed sample, so they follow the device cadence rather than wall jitter.
func (a *FrameAssembler) Push(chunk []float32, emit func(AudioFrame)) {
	if a.origin.IsZero() {
		a.origin = a.now()
	}
	for len(chunk) > 0 {
		n := a.ring.Write(chunk)
		chunk = chunk[n:]
		for a.ring.Available() >= len(a.frame) {
			a.ring.Read(a.frame)
			emit(AudioFrame{
				Samples:   a.frame,
				Timestamp: a.origin.Add(Duration(int(a.emitted), a.sampleRate)),
			})
			a.emitted += int64(len(a.frame))
		}
		if n == 0 {
			a.dropped += len(chunk)
			return
		}
	}
}

// Dropped returns the number of samples lost to overflow.
func (a *FrameAssembler) Dropped() int { return a.dropped }

// BlockSize returns the number of samples per emitted frame.
func (a *FrameAssembler) BlockSize() int { return len(a.frame) }

// Reset discards buffered samples and restarts the frame clock.
func (a *FrameAssembler) Reset() {
	a.ring.Clear()
	a.emitted = 0
	a.origin = time.Time{}
	a.dropped = 0
}
