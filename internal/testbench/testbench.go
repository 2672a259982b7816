// internal/testbench/testbench.go
package testbench

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
)

var (
	// ErrInvalidSampleRate indicates the rate cannot carry the DTMF tones
	ErrInvalidSampleRate = errors.New("sample rate must exceed twice the highest dtmf frequency")
	// ErrUnknownWaveform indicates an unsupported waveform name
	ErrUnknownWaveform = errors.New("unknown waveform")
)

// Waveform selects the shape of each generated tone.
type Waveform int

const (
	Square Waveform = iota
	Sine
)

// ParseWaveform maps a config string to a Waveform.
func ParseWaveform(s string) (Waveform, error) {
	switch s {
	case "square", "":
		return Square, nil
	case "sine":
		return Sine, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWaveform, s)
}

// Case is one test input: up to one row and one column tone and the
// symbol the detector should report for it.
type Case struct {
	Low  float64
	High float64
	Want dtmf.Symbol
}

func (c Case) String() string {
	return fmt.Sprintf("%v+%v Hz -> %v", c.Low, c.High, c.Want)
}

// Cases returns the standard sweep: silence, each row tone alone, each
// column tone alone, then every keypad pair, with a silent case between
// rows.
func Cases() []Case {
	cases := []Case{{}}
	for _, f := range dtmf.Low {
		cases = append(cases, Case{Low: f})
	}
	cases = append(cases, Case{})
	for _, f := range dtmf.High {
		cases = append(cases, Case{High: f})
	}
	for _, low := range dtmf.Low {
		cases = append(cases, Case{})
		for _, high := range dtmf.High {
			cases = append(cases, Case{Low: low, High: high, Want: dtmf.Decode(low, high)})
		}
	}
	return append(cases, Case{})
}

// Config holds configuration for the tone generator.
type Config struct {
	SampleRate float64
	// Amplitude of each tone in sample units (default 500)
	Amplitude float64
	Waveform  Waveform
}

// Generator renders test cases as signed sample blocks.
type Generator struct {
	config Config
}

// New creates a generator.
func New(cfg Config) (*Generator, error) {
	if cfg.SampleRate <= 2*dtmf.High[len(dtmf.High)-1] {
		return nil, ErrInvalidSampleRate
	}
	if cfg.Amplitude <= 0 {
		cfg.Amplitude = 500
	}
	if cfg.Waveform != Square && cfg.Waveform != Sine {
		return nil, ErrUnknownWaveform
	}
	return &Generator{config: cfg}, nil
}

// Render writes the case into dst, starting at sample offset start so
// consecutive calls continue the same waveform.
func (g *Generator) Render(c Case, dst []int16, start int) {
	for i := range dst {
		v := g.tone(c.Low, start+i) + g.tone(c.High, start+i)
		dst[i] = int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v))))
	}
}

// Block returns n samples of the case.
func (g *Generator) Block(c Case, n int) []int16 {
	out := make([]int16, n)
	g.Render(c, out, 0)
	return out
}

func (g *Generator) tone(freq float64, i int) float64 {
	if freq == dtmf.NoTone {
		return 0
	}
	s := math.Sin(2 * math.Pi * freq * float64(i) / g.config.SampleRate)
	if g.config.Waveform == Square {
		if s >= 0 {
			return g.config.Amplitude
		}
		return -g.config.Amplitude
	}
	return g.config.Amplitude * s
}

// Stream sends each case as blocks chunks of size samples on the returned
// channel, then closes it. It stops early when ctx is done.
func (g *Generator) Stream(ctx context.Context, cases []Case, size, blocks int) <-chan []int16 {
	out := make(chan []int16)
	go func() {
		defer close(out)
		for _, c := range cases {
			for b := 0; b < blocks; b++ {
				chunk := make([]int16, size)
				g.Render(c, chunk, b*size)
				select {
				case out <- chunk:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
