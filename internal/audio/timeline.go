// internal/audio/timeline.go
package audio

import (
	"time"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

// DefaultMinIdle is the shortest DAC pause a Timeline records. Shorter
// pauses are the latency between back to back transfers.
const DefaultMinIdle = 2 * time.Millisecond

// SampleWriter receives DAC output words.
type SampleWriter interface {
	Write(samples []dac.Sample) error
}

// Timeline keeps a recording on the wall clock of a real-time DAC: when the
// DAC has been idle since the previous write ran out, the idle time is
// written as mid-scale samples before the next write. Nothing is written
// before the first transfer or after the last.
type Timeline struct {
	out     SampleWriter
	rate    int
	minIdle time.Duration
	now     func() time.Time

	end    time.Time
	idle   []dac.Sample
	padded int
}

// NewTimeline wraps out, whose samples play at rate.
func NewTimeline(out SampleWriter, rate int, minIdle time.Duration) *Timeline {
	return &Timeline{out: out, rate: rate, minIdle: minIdle, now: time.Now}
}

// Write pads any idle time, then forwards samples. The simulated controller
// calls it from one goroutine at a time.
func (t *Timeline) Write(samples []dac.Sample) error {
	now := t.now()
	if !t.end.IsZero() {
		if gap := now.Sub(t.end); gap >= t.minIdle {
			if err := t.pad(int(gap * time.Duration(t.rate) / time.Second)); err != nil {
				return err
			}
		}
	}
	t.end = now.Add(time.Duration(len(samples)) * time.Second / time.Duration(t.rate))
	return t.out.Write(samples)
}

// Padded returns the number of idle samples written.
func (t *Timeline) Padded() int {
	return t.padded
}

func (t *Timeline) pad(n int) error {
	if n <= 0 {
		return nil
	}
	if len(t.idle) < n {
		t.idle = make([]dac.Sample, n)
		for i := range t.idle {
			t.idle[i] = dac.Pack(dac.MidScale, false)
		}
	}
	if err := t.out.Write(t.idle[:n]); err != nil {
		return err
	}
	t.padded += n
	return nil
}
