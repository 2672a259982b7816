// internal/dac/sample.go
package dac

import "errors"

// Sample is one DACR register word: bits 0-5 reserved, bits 6-15 the
// 10-bit conversion value, bit 16 BIAS, bits 17-31 reserved. Reserved bits
// are always zero.
type Sample uint32

const (
	// MaxValue is the largest 10-bit conversion value.
	MaxValue = 1<<10 - 1
	// MidScale is the conversion value for a zero signal.
	MidScale = MaxValue / 2

	valueShift = 6
	valueMask  = MaxValue << valueShift
	biasBit    = 1 << 16
)

// ErrInvalidRate indicates the sample rate cannot be produced by the DAC counter
var ErrInvalidRate = errors.New("dac sample rate must be between 1 Hz and the peripheral clock")

// Pack builds a Sample from a conversion value. Values above MaxValue are
// clamped.
func Pack(value uint16, bias bool) Sample {
	if value > MaxValue {
		value = MaxValue
	}
	s := Sample(value) << valueShift
	if bias {
		s |= biasBit
	}
	return s
}

// Value returns the 10-bit conversion value.
func (s Sample) Value() uint16 {
	return uint16((s & valueMask) >> valueShift)
}

// Bias reports the BIAS bit.
func (s Sample) Bias() bool {
	return s&biasBit != 0
}

// Reserved returns the bits that must be zero.
func (s Sample) Reserved() uint32 {
	return uint32(s) &^ (valueMask | biasBit)
}

// Float maps the conversion value to [-1, 1] around MidScale.
func (s Sample) Float() float64 {
	return (float64(s.Value()) - MidScale) / MidScale
}
