// internal/audio/wav.go
package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

// ErrSinkClosed indicates a write after Close
var ErrSinkClosed = errors.New("sink closed")

// WAVSink records DAC output words as a 16-bit mono PCM WAV stream.
type WAVSink struct {
	mu      sync.Mutex
	enc     *wav.Encoder
	buf     *audio.IntBuffer
	written int
	closed  bool
}

// NewWAVSink writes a WAV stream at sampleRate to w. Close finalizes the
// header, so w must stay open until then.
func NewWAVSink(w io.WriteSeeker, sampleRate int) *WAVSink {
	return &WAVSink{
		enc: wav.NewEncoder(w, sampleRate, 16, 1, 1),
		buf: &audio.IntBuffer{
			Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
			SourceBitDepth: 16,
		},
	}
}

// Write appends samples to the stream.
func (s *WAVSink) Write(samples []dac.Sample) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}

	if cap(s.buf.Data) < len(samples) {
		s.buf.Data = make([]int, len(samples))
	}
	s.buf.Data = s.buf.Data[:len(samples)]
	for i, v := range samples {
		s.buf.Data[i] = int(DACToPCM(v))
	}
	if err := s.enc.Write(s.buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	s.written += len(samples)
	return nil
}

// Written returns the number of samples recorded.
func (s *WAVSink) Written() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.written
}

// Close finalizes the WAV header. It does not close the underlying writer.
func (s *WAVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		return fmt.Errorf("finalize wav: %w", err)
	}
	return nil
}

// ReadWAV decodes a mono 16-bit WAV stream into samples, keeping the first
// channel of multichannel files.
func ReadWAV(r io.ReadSeeker) ([]int16, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("not a valid wav file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}
	channels := max(buf.Format.NumChannels, 1)
	shift := int(dec.BitDepth) - 16
	out := make([]int16, len(buf.Data)/channels)
	for i := range out {
		v := buf.Data[i*channels]
		if shift > 0 {
			v >>= shift
		} else if shift < 0 {
			v <<= -shift
		}
		out[i] = int16(v)
	}
	return out, buf.Format.SampleRate, nil
}
