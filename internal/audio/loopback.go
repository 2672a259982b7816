// internal/audio/loopback.go
package audio

import (
	"sync"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

// Loopback wires the DAC output straight to the ADC input: every written
// DAC word comes back as the sample the ADC would read. Write blocks until
// the consumer takes the chunk or Close is called.
type Loopback struct {
	out       chan []int16
	done      chan struct{}
	closeOnce sync.Once
}

// NewLoopback creates a loopback with a queue of depth chunks.
func NewLoopback(depth int) *Loopback {
	return &Loopback{
		out:  make(chan []int16, max(depth, 0)),
		done: make(chan struct{}),
	}
}

// Samples is the ADC side of the loop.
func (l *Loopback) Samples() <-chan []int16 {
	return l.out
}

// Write converts and forwards one chunk of DAC words.
func (l *Loopback) Write(samples []dac.Sample) error {
	chunk := make([]int16, len(samples))
	for i, s := range samples {
		chunk[i] = ADCSample(DACToADC(s))
	}
	select {
	case <-l.done:
		return ErrSinkClosed
	default:
	}
	select {
	case l.out <- chunk:
		return nil
	case <-l.done:
		return ErrSinkClosed
	}
}

// Close unblocks pending writes and refuses new ones. Samples is left open
// so a reader never sees a close racing a write.
func (l *Loopback) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	return nil
}
