// internal/dac/timing.go
package dac

// PeripheralClock is the DAC counter clock in Hz.
const PeripheralClock = 50_000_000

// DACCTRL bits.
const (
	CtrlCounter uint32 = 1 << 2
	CtrlDMA     uint32 = 1 << 3
)

// DefaultControl enables the timeout counter and DMA requests.
const DefaultControl = CtrlDMA | CtrlCounter

// CounterPeriod returns the DACCNTVAL reload value for a sample rate.
func CounterPeriod(sampleRate int) (uint16, error) {
	if sampleRate <= 0 || sampleRate > PeripheralClock {
		return 0, ErrInvalidRate
	}
	period := PeripheralClock / sampleRate
	if period > 0xFFFF {
		return 0, ErrInvalidRate
	}
	return uint16(period), nil
}
