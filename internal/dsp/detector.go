// internal/dsp/detector.go
package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/window"

	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
)

var (
	// ErrInvalidBlockSize indicates block size must be a power of two no larger than the FFT
	ErrInvalidBlockSize = errors.New("block size must be a power of two no larger than the fft size")
	// ErrInvalidSampleRate indicates sample rate must be positive
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	// ErrInvalidFrequency indicates a DTMF frequency is at or above Nyquist
	ErrInvalidFrequency = errors.New("dtmf frequencies must be below the Nyquist frequency")
	// ErrInvalidMultiplier indicates the threshold multiplier must be positive
	ErrInvalidMultiplier = errors.New("threshold multiplier must be positive")
	// ErrBinCollision indicates two DTMF frequencies fall into the same FFT bin
	ErrBinCollision = errors.New("dtmf frequencies share an fft bin; increase block size")
	// ErrFFTRequired indicates an FFT instance is required
	ErrFFTRequired = errors.New("fft instance is required")
	// ErrUnknownWindow indicates an unsupported analysis window
	ErrUnknownWindow = errors.New("unknown window")
)

// Window selects the analysis window applied before the transform.
type Window int

const (
	WindowNone Window = iota
	WindowHann
	WindowHamming
	WindowBlackman
)

// ParseWindow maps a config string to a Window.
func ParseWindow(s string) (Window, error) {
	switch s {
	case "none", "":
		return WindowNone, nil
	case "hann":
		return WindowHann, nil
	case "hamming":
		return WindowHamming, nil
	case "blackman":
		return WindowBlackman, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownWindow, s)
}

// Result is the outcome of one analysis pass. Low and High hold the
// detected row and column frequencies or dtmf.NoTone.
type Result struct {
	Low    float64     `json:"low"`
	High   float64     `json:"high"`
	Symbol dtmf.Symbol `json:"symbol"`
}

// Detected reports whether the result carries a keypad symbol.
func (r Result) Detected() bool {
	return r.Symbol != dtmf.None
}

// DetectorConfig holds configuration for the DTMF detector.
// All values should come from the application config file.
type DetectorConfig struct {
	// SampleRate of the input blocks in Hz (from config: sample_rate)
	SampleRate float64
	// BlockSize is the number of samples per analysis (from config: block_size)
	BlockSize int
	// ThresholdMultiplier scales the average bin power into the detection threshold (from config: threshold_multiplier)
	ThresholdMultiplier float64
	// Window applied before the transform (from config: window)
	Window Window
	// RemoveDC subtracts the block mean before analysis (from config: remove_dc)
	RemoveDC bool
}

// Detector turns sample blocks into DTMF results using the FFT engine.
// It reuses internal work buffers and is not safe for concurrent use.
type Detector struct {
	config   DetectorConfig
	fft      *FFT
	lowBins  [4]int
	highBins [4]int
	window   []float64
	work     []Complex
	power    []float64
}

// NewDetector creates a detector for the given configuration.
func NewDetector(cfg DetectorConfig, fft *FFT) (*Detector, error) {
	if fft == nil {
		return nil, ErrFFTRequired
	}
	if cfg.SampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if !IsPowerOfTwo(cfg.BlockSize) || cfg.BlockSize > fft.MaxSize() {
		return nil, ErrInvalidBlockSize
	}
	if cfg.ThresholdMultiplier <= 0 {
		return nil, ErrInvalidMultiplier
	}
	if dtmf.High[len(dtmf.High)-1] >= cfg.SampleRate/2 {
		return nil, ErrInvalidFrequency
	}

	d := &Detector{
		config: cfg,
		fft:    fft,
		work:   make([]Complex, cfg.BlockSize),
		power:  make([]float64, cfg.BlockSize),
	}

	used := make(map[int]bool, 8)
	for i := range dtmf.Low {
		d.lowBins[i] = d.bin(dtmf.Low[i])
		d.highBins[i] = d.bin(dtmf.High[i])
	}
	for _, b := range append(d.lowBins[:], d.highBins[:]...) {
		if used[b] {
			return nil, ErrBinCollision
		}
		used[b] = true
	}

	if cfg.Window != WindowNone {
		coeffs := make([]float64, cfg.BlockSize)
		for i := range coeffs {
			coeffs[i] = 1
		}
		switch cfg.Window {
		case WindowHann:
			window.Hann(coeffs)
		case WindowHamming:
			window.Hamming(coeffs)
		case WindowBlackman:
			window.Blackman(coeffs)
		default:
			return nil, ErrUnknownWindow
		}
		d.window = coeffs
	}

	return d, nil
}

func (d *Detector) bin(freq float64) int {
	return int(math.Round(freq * float64(d.config.BlockSize) / d.config.SampleRate))
}

// Config returns the detector configuration.
func (d *Detector) Config() DetectorConfig {
	return d.config
}

// Bins returns the FFT bin index of each low and high group frequency.
func (d *Detector) Bins() (low, high [4]int) {
	return d.lowBins, d.highBins
}

// Detect analyzes one block. Blocks shorter than BlockSize are zero padded;
// extra samples are ignored. Absence of a tone is reported as a Result with
// dtmf.None, never as an error.
func (d *Detector) Detect(block []int16) Result {
	n := d.config.BlockSize

	var mean float64
	for i := 0; i < n; i++ {
		var v float64
		if i < len(block) {
			v = float64(block[i]) / 32768.0
		}
		d.work[i] = Complex{Re: v}
		mean += v
	}
	mean /= float64(n)

	for i := range d.work {
		if d.config.RemoveDC {
			d.work[i].Re -= mean
		}
		if d.window != nil {
			d.work[i].Re *= d.window[i]
		}
	}

	if d.fft.Transform(d.work, n) == nil {
		return Result{Low: dtmf.NoTone, High: dtmf.NoTone, Symbol: dtmf.None}
	}

	var total float64
	for i, c := range d.work {
		p := c.Abs2()
		d.power[i] = p
		total += p
	}
	threshold := d.config.ThresholdMultiplier * total / float64(n)

	low := firstAbove(d.power, d.lowBins, dtmf.Low, threshold)
	high := firstAbove(d.power, d.highBins, dtmf.High, threshold)

	return Result{Low: low, High: high, Symbol: dtmf.Decode(low, high)}
}

// Power returns the per-bin power computed by the last Detect call.
func (d *Detector) Power() []float64 {
	return d.power
}

func firstAbove(power []float64, bins [4]int, freqs [4]float64, threshold float64) float64 {
	for i, b := range bins {
		if power[b] > threshold {
			return freqs[i]
		}
	}
	return dtmf.NoTone
}
