// internal/synth/oscillator.go
package synth

import (
	"math"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
)

const twoPi = 2 * math.Pi

// Oscillator is a phase-accumulating sine source.
type Oscillator struct {
	phase float64
	step  float64
}

// SetFrequency changes the pitch without resetting phase.
func (o *Oscillator) SetFrequency(freq, sampleRate float64) {
	o.step = twoPi * freq / sampleRate
}

// Next returns the current sample and advances the phase.
func (o *Oscillator) Next() float64 {
	v := math.Sin(o.phase)
	o.phase += o.step
	if o.phase >= twoPi {
		o.phase -= twoPi
	}
	return v
}

// Reset zeroes the phase.
func (o *Oscillator) Reset() {
	o.phase = 0
}

// Generator renders a DTMF symbol as DAC samples: a row and a column sine
// summed around mid-scale. Phase carries across Fill calls so consecutive
// buffers of one tone join without discontinuity.
type Generator struct {
	low        Oscillator
	high       Oscillator
	sampleRate float64
	amplitude  float64
	offset     float64
	symbol     dtmf.Symbol
}

// NewGenerator creates a generator at sampleRate. level scales the peak of
// the two-tone sum to level·full-scale.
func NewGenerator(sampleRate, level float64) *Generator {
	return &Generator{
		sampleRate: sampleRate,
		amplitude:  dac.MaxValue / 4.0 * level,
		offset:     dac.MaxValue / 2.0,
	}
}

// SetSymbol selects the tone. It reports false for anything other than one
// of the sixteen keypad symbols.
func (g *Generator) SetSymbol(s dtmf.Symbol) bool {
	low, high, ok := dtmf.Frequencies(s)
	if !ok {
		return false
	}
	g.low.SetFrequency(low, g.sampleRate)
	g.high.SetFrequency(high, g.sampleRate)
	g.symbol = s
	return true
}

// Symbol returns the current tone.
func (g *Generator) Symbol() dtmf.Symbol {
	return g.symbol
}

// Reset restarts both oscillators at zero phase.
func (g *Generator) Reset() {
	g.low.Reset()
	g.high.Reset()
}

// Fill writes len(dst) packed samples.
func (g *Generator) Fill(dst []dac.Sample) {
	for i := range dst {
		v := g.offset + g.amplitude*(g.low.Next()+g.high.Next())
		v = math.Max(0, math.Min(dac.MaxValue, math.Round(v)))
		dst[i] = dac.Pack(uint16(v), false)
	}
}
