// internal/dsp/fft.go
package dsp

import (
	"errors"
	"fmt"
	"math"
)

// MaxFFTSize is the largest transform the engine supports.
const MaxFFTSize = 256

var (
	// ErrInvalidFFTSize indicates the maximum transform size is not a power of two within range
	ErrInvalidFFTSize = fmt.Errorf("fft size must be a power of two between 1 and %d", MaxFFTSize)
	// ErrUnknownTwiddles indicates an unsupported twiddle source
	ErrUnknownTwiddles = errors.New("unknown twiddle source")
)

// TwiddleSource selects how twiddle factors are computed.
type TwiddleSource int

const (
	// TwiddleApprox uses the two-term Taylor approximation (Approx).
	TwiddleApprox TwiddleSource = iota
	// TwiddleExact uses math.Sincos.
	TwiddleExact
)

// ParseTwiddleSource maps a config string to a TwiddleSource.
func ParseTwiddleSource(s string) (TwiddleSource, error) {
	switch s {
	case "approx", "":
		return TwiddleApprox, nil
	case "exact":
		return TwiddleExact, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTwiddles, s)
}

// FFTConfig holds configuration for the FFT engine.
type FFTConfig struct {
	// MaxSize is the largest transform length to build twiddles for, at most MaxFFTSize
	MaxSize int
	// Twiddles selects the twiddle factor source (from config: twiddles)
	Twiddles TwiddleSource
}

// FFT is an in-place radix-2 decimation-in-time transform with a
// precomputed twiddle table. Transform may be called concurrently on
// distinct buffers; Close must not race with Transform.
type FFT struct {
	config FFTConfig
	// twiddles[i][k] = exp(-j·2πk/2^(i+1)), k < 2^i
	twiddles [][]Complex
}

// NewFFT builds the twiddle table for transforms up to cfg.MaxSize.
func NewFFT(cfg FFTConfig) (*FFT, error) {
	if !IsPowerOfTwo(cfg.MaxSize) || cfg.MaxSize > MaxFFTSize {
		return nil, ErrInvalidFFTSize
	}
	if cfg.Twiddles != TwiddleApprox && cfg.Twiddles != TwiddleExact {
		return nil, ErrUnknownTwiddles
	}

	levels := Log2(cfg.MaxSize)
	twiddles := make([][]Complex, levels)
	for i := range twiddles {
		half := 1 << i
		span := float64(half << 1)
		level := make([]Complex, half)
		for k := range level {
			angle := -2 * math.Pi * float64(k) / span
			if cfg.Twiddles == TwiddleExact {
				s, c := math.Sincos(angle)
				level[k] = Complex{Re: c, Im: s}
			} else {
				level[k] = Complex{Re: Cos(angle), Im: Sin(angle)}
			}
		}
		twiddles[i] = level
	}

	return &FFT{config: cfg, twiddles: twiddles}, nil
}

// MaxSize returns the largest supported transform length.
func (f *FFT) MaxSize() int {
	return f.config.MaxSize
}

// Close drops the twiddle table. Subsequent Transform calls fail.
func (f *FFT) Close() {
	f.twiddles = nil
}

// Transform performs a forward FFT of the first size elements of samples in
// place and returns samples. It returns nil without touching samples when
// size is not a power of two, exceeds MaxSize or len(samples), or the
// engine has been closed.
func (f *FFT) Transform(samples []Complex, size int) []Complex {
	if f.twiddles == nil || !IsPowerOfTwo(size) || size > f.config.MaxSize || size > len(samples) {
		return nil
	}

	x := samples[:size]
	BitReversePermute(x)

	for i, levels := 0, Log2(size); i < levels; i++ {
		half := 1 << i
		span := half << 1
		w := f.twiddles[i]
		for start := 0; start < size; start += span {
			for k := 0; k < half; k++ {
				top := x[start+k]
				t := w[k].Mul(x[start+k+half])
				x[start+k] = top.Add(t)
				x[start+k+half] = top.Add(t.Neg())
			}
		}
	}

	return samples
}
