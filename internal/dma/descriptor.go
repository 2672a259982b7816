// internal/dma/descriptor.go
package dma

import "errors"

var (
	// ErrInvalidCount indicates a transfer sample count outside 1..MaxTransferSize
	ErrInvalidCount = errors.New("transfer sample count must be between 1 and 4095")
	// ErrChainTooLong indicates the descriptor arena cannot hold the chain
	ErrChainTooLong = errors.New("descriptor chain exceeds arena capacity")
)

// MaxTransferSize is the largest count the 12-bit TransferSize field holds.
const MaxTransferSize = 0xFFF

// DACRegister is the bus address of the DACR register, the destination of
// every transfer.
const DACRegister uint32 = 0x4008C000

// Transfer widths for the SWidth/DWidth fields.
const (
	WidthByte uint32 = iota
	WidthHalfWord
	WidthWord
)

// Control word fields (DMACCxControl).
const (
	ctrlSizeMask    = MaxTransferSize
	ctrlSBSizeShift = 12
	ctrlDBSizeShift = 15
	ctrlSWidthShift = 18
	ctrlDWidthShift = 21

	CtrlSrcIncrement     = 1 << 26
	CtrlDstIncrement     = 1 << 27
	CtrlTerminalCountInt = 1 << 31
)

// Channel configuration (DMACCxConfig) for memory-to-DAC transfers: channel
// enable, destination peripheral 7 (DAC), memory-to-peripheral flow and the
// terminal count interrupt unmasked.
const ChannelConfig uint32 = 0x1 | 7<<6 | 1<<11 | 1<<15

// Control is a DMACCxControl word.
type Control uint32

// NewControl encodes count word-wide samples read from an incrementing
// source into a fixed destination, with single-transfer bursts. interrupt
// sets the terminal count interrupt flag.
func NewControl(count int, interrupt bool) Control {
	c := uint32(count)&ctrlSizeMask |
		0<<ctrlSBSizeShift |
		0<<ctrlDBSizeShift |
		WidthWord<<ctrlSWidthShift |
		WidthWord<<ctrlDWidthShift |
		CtrlSrcIncrement
	if interrupt {
		c |= CtrlTerminalCountInt
	}
	return Control(c)
}

// TransferSize returns the number of samples moved by the descriptor.
func (c Control) TransferSize() int {
	return int(uint32(c) & ctrlSizeMask)
}

// Interrupt reports whether the terminal count interrupt flag is set.
func (c Control) Interrupt() bool {
	return uint32(c)&CtrlTerminalCountInt != 0
}

// SrcIncrement reports whether the source address increments.
func (c Control) SrcIncrement() bool {
	return uint32(c)&CtrlSrcIncrement != 0
}

// SrcWidth returns the source transfer width field.
func (c Control) SrcWidth() uint32 {
	return uint32(c) >> ctrlSWidthShift & 0x7
}

// Descriptor is one linked list item as the controller reads it from memory.
// Next is the bus address of the following descriptor, or zero.
type Descriptor struct {
	Src     uint32
	Dst     uint32
	Next    uint32
	Control Control
}

// descriptorSize is the in-memory size of a Descriptor in bytes.
const descriptorSize = 16

// Registers is the channel register set programmed to start a transfer.
type Registers struct {
	Src     uint32
	Dst     uint32
	LLI     uint32
	Control Control
	Config  uint32
}
