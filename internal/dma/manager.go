// internal/dma/manager.go
package dma

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrControllerRequired indicates a Controller instance is required
	ErrControllerRequired = errors.New("dma controller is required")
	// ErrInvalidMaxChain indicates the descriptor arena must hold at least one descriptor
	ErrInvalidMaxChain = errors.New("max chain length must be at least 1")
	// ErrNoDestination indicates a completion had nowhere to go
	ErrNoDestination = errors.New("no completion destination")
	// ErrUnknownMode indicates an unsupported transfer mode, routing or rate mode
	ErrUnknownMode = errors.New("unknown transfer mode")
)

// Mode selects how a buffer is played.
type Mode int

const (
	// ModeSingle plays each buffer once from a single descriptor.
	ModeSingle Mode = iota
	// ModeLooped replays the buffer through a descriptor chain for Setup.PlayTime.
	ModeLooped
)

// Routing selects where completions are delivered.
type Routing int

const (
	// RouteFixed sends every completion to ManagerConfig.Completions.
	RouteFixed Routing = iota
	// RoutePerRequest sends to Setup.Reply, falling back to the fixed destination.
	RoutePerRequest
)

// RateMode selects where the DAC sample rate comes from.
type RateMode int

const (
	// RateFixed programs ManagerConfig.SampleRate once.
	RateFixed RateMode = iota
	// RatePerRequest programs Setup.SampleRate before each transfer.
	RatePerRequest
)

// ParseMode maps a config string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "single", "":
		return ModeSingle, nil
	case "looped":
		return ModeLooped, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// ParseRouting maps a config string to a Routing.
func ParseRouting(s string) (Routing, error) {
	switch s {
	case "fixed", "":
		return RouteFixed, nil
	case "per_request":
		return RoutePerRequest, nil
	}
	return 0, fmt.Errorf("%w: routing %q", ErrUnknownMode, s)
}

// ParseRateMode maps a config string to a RateMode.
func ParseRateMode(s string) (RateMode, error) {
	switch s {
	case "fixed", "":
		return RateFixed, nil
	case "per_request":
		return RatePerRequest, nil
	}
	return 0, fmt.Errorf("%w: rate mode %q", ErrUnknownMode, s)
}

// Setup asks the manager to play Count samples starting at Addr.
type Setup struct {
	Addr  uint32
	Count int
	// PlayTime is the total play duration in ModeLooped; zero plays the buffer once.
	PlayTime time.Duration
	// SampleRate is used in RatePerRequest mode; zero keeps the current rate.
	SampleRate int
	// Reply receives the completion in RoutePerRequest mode.
	Reply chan<- Completion
}

// Completion reports a finished transfer of the buffer at Addr.
type Completion struct {
	Addr  uint32
	Count int
}

// ManagerConfig holds configuration for the transfer manager.
type ManagerConfig struct {
	// Mode is single-shot or looped (from config: transfer_mode)
	Mode Mode
	// Routing picks the completion destination (from config: completion_routing)
	Routing Routing
	// RateMode picks fixed or per-request DAC rate (from config: rate_mode)
	RateMode RateMode
	// SampleRate is the DAC rate in Hz (from config: dac_sample_rate)
	SampleRate int
	// MaxChain bounds the descriptor arena (from config: max_chain)
	MaxChain int
	// QueueDepth is the capacity of the request queue (from config: tone_buffers)
	QueueDepth int
	// ArenaBase is the bus address of the descriptor arena
	ArenaBase uint32
	// Completions is the fixed completion destination
	Completions chan<- Completion
	Logger      *log.Logger
}

// DefaultArenaBase places descriptors in the second AHB SRAM bank.
const DefaultArenaBase uint32 = 0x20080000

// Manager owns the DMA channel. Run is the transfer task; HandleInterrupt
// is the interrupt handler and does nothing but clear status and signal.
type Manager struct {
	config   ManagerConfig
	ctrl     Controller
	arena    *Arena
	done     *Signal
	requests chan Setup
	rate     int
}

// NewManager creates a manager driving ctrl.
func NewManager(cfg ManagerConfig, ctrl Controller) (*Manager, error) {
	if ctrl == nil {
		return nil, ErrControllerRequired
	}
	if cfg.MaxChain < 1 {
		return nil, ErrInvalidMaxChain
	}
	if cfg.Mode != ModeSingle && cfg.Mode != ModeLooped {
		return nil, ErrUnknownMode
	}
	if cfg.Routing != RouteFixed && cfg.Routing != RoutePerRequest {
		return nil, ErrUnknownMode
	}
	if cfg.RateMode != RateFixed && cfg.RateMode != RatePerRequest {
		return nil, ErrUnknownMode
	}
	if cfg.Routing == RouteFixed && cfg.Completions == nil {
		return nil, fmt.Errorf("fixed routing: %w", ErrNoDestination)
	}
	if cfg.QueueDepth < 1 {
		cfg.QueueDepth = 1
	}
	if cfg.ArenaBase == 0 {
		cfg.ArenaBase = DefaultArenaBase
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if err := ctrl.SetSampleRate(cfg.SampleRate); err != nil {
		return nil, fmt.Errorf("program dac rate: %w", err)
	}

	m := &Manager{
		config:   cfg,
		ctrl:     ctrl,
		arena:    NewArena(cfg.ArenaBase, cfg.MaxChain),
		done:     NewSignal(),
		requests: make(chan Setup, cfg.QueueDepth),
		rate:     cfg.SampleRate,
	}
	ctrl.SetInterruptHandler(m.HandleInterrupt)
	return m, nil
}

// Config returns the manager configuration.
func (m *Manager) Config() ManagerConfig {
	return m.config
}

// Arena exposes the descriptor arena.
func (m *Manager) Arena() *Arena {
	return m.arena
}

// Submit queues a transfer request, blocking while the request slot is full.
func (m *Manager) Submit(ctx context.Context, s Setup) error {
	select {
	case m.requests <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandleInterrupt is the terminal count interrupt handler.
func (m *Manager) HandleInterrupt() {
	if m.ctrl.Status()&StatusTerminalCount != 0 {
		m.ctrl.ClearStatus(StatusTerminalCount)
		m.done.Give()
	}
}

// Run processes transfer requests one at a time until ctx is done. Waiting
// for the completion interrupt has no timeout.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s := <-m.requests:
			if err := m.transfer(ctx, s); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				m.config.Logger.Error("transfer failed", "addr", fmt.Sprintf("%#08x", s.Addr), "count", s.Count, "err", err)
			}
		}
	}
}

// samplesFor returns the number of samples a request plays.
func (m *Manager) samplesFor(s Setup) int {
	if m.config.Mode != ModeLooped || s.PlayTime <= 0 {
		return s.Count
	}
	return int(math.Round(float64(m.rate) * s.PlayTime.Seconds()))
}

func (m *Manager) transfer(ctx context.Context, s Setup) error {
	if m.config.RateMode == RatePerRequest && s.SampleRate > 0 && s.SampleRate != m.rate {
		if err := m.ctrl.SetSampleRate(s.SampleRate); err != nil {
			return fmt.Errorf("program dac rate: %w", err)
		}
		m.rate = s.SampleRate
	}

	total := m.samplesFor(s)
	per := s.Count
	if total < per {
		per = total
	}
	chain, err := BuildChain(m.arena, s.Addr, DACRegister, total, per)
	if err != nil {
		return m.abandon(ctx, s, fmt.Errorf("build chain: %w", err))
	}

	m.config.Logger.Debug("transfer start",
		"addr", fmt.Sprintf("%#08x", s.Addr), "descriptors", chain.Len(), "samples", total)

	if err := m.ctrl.Start(chain.Registers(), m.arena); err != nil {
		chain.Free()
		return m.abandon(ctx, s, fmt.Errorf("start transfer: %w", err))
	}
	err = m.done.Take(ctx)
	chain.Free()
	if err != nil {
		return err
	}

	return m.deliver(ctx, s, Completion{Addr: s.Addr, Count: s.Count})
}

// abandon hands back a buffer the channel never started on, so the owner
// can reuse it.
func (m *Manager) abandon(ctx context.Context, s Setup, cause error) error {
	if err := m.deliver(ctx, s, Completion{Addr: s.Addr, Count: s.Count}); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (m *Manager) deliver(ctx context.Context, s Setup, c Completion) error {
	dest := m.config.Completions
	if m.config.Routing == RoutePerRequest && s.Reply != nil {
		dest = s.Reply
	}
	if dest == nil {
		return ErrNoDestination
	}
	select {
	case dest <- c:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
