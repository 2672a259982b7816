// internal/dma/controller.go
package dma

import (
	"errors"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

var (
	// ErrBusy indicates the channel is still running a transfer
	ErrBusy = errors.New("dma channel busy")
	// ErrBadAddress indicates the controller dereferenced an unmapped bus address
	ErrBadAddress = errors.New("dma bus address not mapped")
)

// StatusTerminalCount is the channel 0 bit of DMACIntTCStat.
const StatusTerminalCount uint32 = 1 << 0

// Controller is the hardware output engine: one DMA channel feeding the DAC.
type Controller interface {
	// SetInterruptHandler installs the function run on a terminal count interrupt.
	SetInterruptHandler(h func())
	// SetSampleRate programs the DAC counter.
	SetSampleRate(rate int) error
	// Start programs the channel and begins the transfer. links resolves
	// the LLI addresses the channel follows.
	Start(regs Registers, links LinkTable) error
	// Status returns the terminal count status bits.
	Status() uint32
	// ClearStatus clears the given terminal count status bits.
	ClearStatus(mask uint32)
}

// LinkTable resolves descriptor bus addresses.
type LinkTable interface {
	Lookup(addr uint32) (Descriptor, bool)
}

// Memory resolves sample buffer bus addresses.
type Memory interface {
	ReadSamples(addr uint32, n int) ([]dac.Sample, error)
}

// Sink receives the samples the DAC converts.
type Sink interface {
	Write(samples []dac.Sample) error
}
