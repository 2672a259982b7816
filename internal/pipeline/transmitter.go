// internal/pipeline/transmitter.go
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
	"github.com/ColonelBlimp/dtmfcodec/internal/dma"
	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
	"github.com/ColonelBlimp/dtmfcodec/internal/recovery"
	"github.com/ColonelBlimp/dtmfcodec/internal/synth"
)

// flushPoll is how often Flush checks for outstanding buffers.
const flushPoll = 5 * time.Millisecond

// TransmitterConfig holds configuration for the transmit path.
type TransmitterConfig struct {
	Pool    synth.PoolConfig
	Synth   synth.Config
	Manager dma.ManagerConfig
	// Sink receives the DAC output; nil discards it
	Sink dma.Sink
	// Realtime paces the simulated channel at the DAC rate
	Realtime bool
	Logger   *log.Logger
}

// Transmitter is the transmit path: synthesizer, buffer pool, transfer
// manager and a simulated DMA channel feeding Sink.
type Transmitter struct {
	config  TransmitterConfig
	pool    *synth.Pool
	synth   *synth.Synthesizer
	manager *dma.Manager
	ctrl    *dma.SimController
}

// NewTransmitter builds the transmit path.
func NewTransmitter(cfg TransmitterConfig) (*Transmitter, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Synth.Logger == nil {
		cfg.Synth.Logger = cfg.Logger
	}
	if cfg.Manager.Logger == nil {
		cfg.Manager.Logger = cfg.Logger
	}

	pool, err := synth.NewPool(cfg.Pool)
	if err != nil {
		return nil, err
	}
	ctrl := dma.NewSimController(dma.SimConfig{
		Memory:   pool,
		Sink:     cfg.Sink,
		Realtime: cfg.Realtime,
		Logger:   cfg.Logger,
	})
	// the synthesizer submits to the manager and the manager reports to the
	// synthesizer, so the manager is bound after both exist
	out := &lateSubmitter{}
	syn, err := synth.New(cfg.Synth, pool, out)
	if err != nil {
		return nil, err
	}
	if cfg.Manager.Completions == nil {
		cfg.Manager.Completions = syn.Completions()
	}
	mgr, err := dma.NewManager(cfg.Manager, ctrl)
	if err != nil {
		return nil, err
	}
	out.Submitter = mgr
	return &Transmitter{config: cfg, pool: pool, synth: syn, manager: mgr, ctrl: ctrl}, nil
}

type lateSubmitter struct {
	synth.Submitter
}

// Pool returns the output buffer pool.
func (t *Transmitter) Pool() *synth.Pool {
	return t.pool
}

// Controller returns the simulated DMA channel.
func (t *Transmitter) Controller() *dma.SimController {
	return t.ctrl
}

// Request queues a tone request; dtmf.None turns the tone off.
func (t *Transmitter) Request(ctx context.Context, sym dtmf.Symbol) error {
	return t.synth.Request(ctx, sym)
}

// Requests is the tone request input.
func (t *Transmitter) Requests() chan<- dtmf.Symbol {
	return t.synth.Requests()
}

// Run runs the transfer task and the synthesizer until ctx is done or one
// of them fails.
func (t *Transmitter) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(recovery.Task("transfer", func() error { return t.manager.Run(ctx) }))
	g.Go(recovery.Task("synth", func() error { return t.synth.Run(ctx) }))
	return g.Wait()
}

// Flush waits until every submitted buffer has played and been released.
// The tone must already be off.
func (t *Transmitter) Flush(ctx context.Context) error {
	ticker := time.NewTicker(flushPoll)
	defer ticker.Stop()
	for {
		if t.pool.InUse() == 0 && !t.ctrl.Busy() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Tee copies DAC output to several sinks.
type Tee []dma.Sink

// Write writes samples to every sink and joins their errors.
func (t Tee) Write(samples []dac.Sample) error {
	var errs []error
	for _, s := range t {
		if err := s.Write(samples); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
