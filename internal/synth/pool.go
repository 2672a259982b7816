// internal/synth/pool.go
package synth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

var (
	// ErrInvalidPoolSize indicates the pool needs at least one slot
	ErrInvalidPoolSize = errors.New("pool needs at least one slot")
	// ErrInvalidCapacity indicates a slot capacity outside 1..4095 samples
	ErrInvalidCapacity = errors.New("slot capacity must be between 1 and 4095 samples")
	// ErrUnknownAddress indicates a release named a buffer the pool does not own
	ErrUnknownAddress = errors.New("unable to free buffer at address")
	// ErrSlotNotQueued indicates a release for a slot that was not handed to the transfer layer
	ErrSlotNotQueued = errors.New("slot is not queued for transfer")
	// ErrSlotNotFilling indicates a submit for a slot the caller does not hold
	ErrSlotNotFilling = errors.New("slot is not being filled")
)

// SlotState is the ownership state of a buffer slot.
type SlotState int

const (
	SlotFree SlotState = iota
	SlotFilling
	SlotQueued
)

func (s SlotState) String() string {
	switch s {
	case SlotFree:
		return "free"
	case SlotFilling:
		return "filling"
	case SlotQueued:
		return "queued"
	}
	return fmt.Sprintf("SlotState(%d)", int(s))
}

// Slot is one output buffer. Samples may only be written while the slot is
// held in SlotFilling by the caller of Acquire.
type Slot struct {
	Index   int
	Addr    uint32
	Samples []dac.Sample
	state   SlotState
}

// PoolConfig holds configuration for the buffer pool.
type PoolConfig struct {
	// Slots is the number of buffers (from config: tone_buffers)
	Slots int
	// Capacity is the number of samples per buffer (from config: tone_buffer_size)
	Capacity int
	// Base is the bus address of the first buffer
	Base uint32
}

// DefaultPoolBase places buffers in the first AHB SRAM bank.
const DefaultPoolBase uint32 = 0x2007C000

// Pool owns a fixed set of output buffers. The synthesizer acquires and
// submits; the completion handler releases. Release by address is safe
// against a concurrent Acquire.
type Pool struct {
	mu     sync.Mutex
	config PoolConfig
	slots  []*Slot
	stride uint32
	freed  chan struct{}
}

// NewPool allocates cfg.Slots buffers of cfg.Capacity samples.
func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.Slots < 1 {
		return nil, ErrInvalidPoolSize
	}
	if cfg.Capacity < 1 || cfg.Capacity > 0xFFF {
		return nil, ErrInvalidCapacity
	}
	if cfg.Base == 0 {
		cfg.Base = DefaultPoolBase
	}

	p := &Pool{
		config: cfg,
		slots:  make([]*Slot, cfg.Slots),
		stride: uint32(cfg.Capacity) * 4,
		freed:  make(chan struct{}, cfg.Slots),
	}
	for i := range p.slots {
		p.slots[i] = &Slot{
			Index:   i,
			Addr:    cfg.Base + uint32(i)*p.stride,
			Samples: make([]dac.Sample, cfg.Capacity),
		}
	}
	return p, nil
}

// Config returns the pool configuration.
func (p *Pool) Config() PoolConfig {
	return p.config
}

// TryAcquire marks the lowest free slot as filling, if any.
func (p *Pool) TryAcquire() (*Slot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range p.slots {
		if s.state == SlotFree {
			s.state = SlotFilling
			return s, true
		}
	}
	return nil, false
}

// Acquire returns a free slot marked as filling. When every slot is in use
// it blocks until Release frees one and returns that slot. ctx only ends
// the wait on shutdown.
func (p *Pool) Acquire(ctx context.Context) (*Slot, error) {
	for {
		if s, ok := p.TryAcquire(); ok {
			return s, nil
		}
		select {
		case <-p.freed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Submit hands a filled slot to the transfer layer.
func (p *Pool) Submit(s *Slot) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s.state != SlotFilling {
		return fmt.Errorf("submit slot %d (%s): %w", s.Index, s.state, ErrSlotNotFilling)
	}
	s.state = SlotQueued
	return nil
}

// Release frees the queued slot whose buffer starts at addr.
func (p *Pool) Release(addr uint32) error {
	p.mu.Lock()
	s := p.slotAt(addr)
	if s == nil {
		p.mu.Unlock()
		return fmt.Errorf("%w %#08x", ErrUnknownAddress, addr)
	}
	if s.state != SlotQueued {
		state := s.state
		p.mu.Unlock()
		return fmt.Errorf("release slot %d (%s): %w", s.Index, state, ErrSlotNotQueued)
	}
	s.state = SlotFree
	p.mu.Unlock()

	select {
	case p.freed <- struct{}{}:
	default:
	}
	return nil
}

// Reset returns a filling slot to free without transferring it.
func (p *Pool) Reset(s *Slot) error {
	p.mu.Lock()
	if s.state != SlotFilling {
		p.mu.Unlock()
		return ErrSlotNotFilling
	}
	s.state = SlotFree
	p.mu.Unlock()

	select {
	case p.freed <- struct{}{}:
	default:
	}
	return nil
}

// InUse returns the number of slots that are not free.
func (p *Pool) InUse() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.slots {
		if s.state != SlotFree {
			n++
		}
	}
	return n
}

// State returns the state of slot i.
func (p *Pool) State(i int) SlotState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slots[i].state
}

// ReadSamples copies n samples of the queued buffer at addr. It lets the
// pool serve as the memory behind a simulated DMA channel.
func (p *Pool) ReadSamples(addr uint32, n int) ([]dac.Sample, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.slotAt(addr)
	if s == nil || s.state != SlotQueued || n > len(s.Samples) {
		return nil, fmt.Errorf("%w %#08x", ErrUnknownAddress, addr)
	}
	out := make([]dac.Sample, n)
	copy(out, s.Samples)
	return out, nil
}

func (p *Pool) slotAt(addr uint32) *Slot {
	if addr < p.config.Base {
		return nil
	}
	off := addr - p.config.Base
	if off%p.stride != 0 {
		return nil
	}
	i := int(off / p.stride)
	if i >= len(p.slots) {
		return nil
	}
	return p.slots[i]
}
