// internal/synth/synthesizer.go
package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/dtmfcodec/internal/dma"
	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
	"github.com/ColonelBlimp/dtmfcodec/internal/recovery"
)

var (
	// ErrPoolRequired indicates a Pool instance is required
	ErrPoolRequired = errors.New("buffer pool is required")
	// ErrSubmitterRequired indicates a transfer submitter is required
	ErrSubmitterRequired = errors.New("transfer submitter is required")
	// ErrInvalidLevel indicates level must be in (0, 1]
	ErrInvalidLevel = errors.New("level must be greater than 0 and at most 1")
	// ErrInvalidFillStep indicates the fill step must be positive
	ErrInvalidFillStep = errors.New("fill step must be positive")
	// ErrInvalidSampleRate indicates the sample rate cannot carry the DTMF tones
	ErrInvalidSampleRate = errors.New("sample rate must exceed twice the highest dtmf frequency")
)

// Submitter accepts filled buffers for transfer. *dma.Manager implements it.
type Submitter interface {
	Submit(ctx context.Context, s dma.Setup) error
}

// Config holds configuration for the synthesizer.
type Config struct {
	// SampleRate is the DAC rate in Hz (from config: dac_sample_rate)
	SampleRate int
	// FillStep is the number of samples written between request checks (from config: fill_step)
	FillStep int
	// Level is the output level, 0-1 of full scale (from config: level)
	Level float64
	// RequestQueue is the capacity of the request channel (from config: request_queue)
	RequestQueue int
	// PlayTime is passed with each buffer for looped transfers (from config: buffer_play_ms)
	PlayTime time.Duration
	Logger   *log.Logger
}

// Synthesizer is the tone output task. It fills pool buffers with the
// requested tone and hands each full buffer to the transfer layer, keeping
// one buffer ahead of playback.
type Synthesizer struct {
	config      Config
	pool        *Pool
	out         Submitter
	gen         *Generator
	requests    chan dtmf.Symbol
	completions chan dma.Completion
}

// New creates a synthesizer filling buffers from pool.
func New(cfg Config, pool *Pool, out Submitter) (*Synthesizer, error) {
	if pool == nil {
		return nil, ErrPoolRequired
	}
	if out == nil {
		return nil, ErrSubmitterRequired
	}
	if cfg.Level <= 0 || cfg.Level > 1 {
		return nil, ErrInvalidLevel
	}
	if cfg.FillStep < 1 {
		return nil, ErrInvalidFillStep
	}
	if float64(cfg.SampleRate) <= 2*dtmf.High[len(dtmf.High)-1] {
		return nil, ErrInvalidSampleRate
	}
	if cfg.RequestQueue < 1 {
		cfg.RequestQueue = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	return &Synthesizer{
		config:      cfg,
		pool:        pool,
		out:         out,
		gen:         NewGenerator(float64(cfg.SampleRate), cfg.Level),
		requests:    make(chan dtmf.Symbol, cfg.RequestQueue),
		completions: make(chan dma.Completion, pool.Config().Slots),
	}, nil
}

// Requests is the tone request input. dtmf.None turns the tone off.
func (s *Synthesizer) Requests() chan<- dtmf.Symbol {
	return s.requests
}

// Completions is where finished transfers must be reported.
func (s *Synthesizer) Completions() chan<- dma.Completion {
	return s.completions
}

// Request queues a tone request, blocking while the queue is full.
func (s *Synthesizer) Request(ctx context.Context, sym dtmf.Symbol) error {
	select {
	case s.requests <- sym:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run starts the synthesis loop and the completion handler and blocks
// until ctx is done or either fails.
func (s *Synthesizer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(recovery.Task("reclaim", func() error { return s.reclaim(ctx) }))
	g.Go(recovery.Task("synthesize", func() error { return s.synthesize(ctx) }))
	return g.Wait()
}

// reclaim is the completion handler: the only releaser of pool slots.
func (s *Synthesizer) reclaim(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-s.completions:
			if err := s.pool.Release(c.Addr); err != nil {
				s.config.Logger.Error("buffer release failed", "addr", fmt.Sprintf("%#08x", c.Addr), "err", err)
				continue
			}
			s.config.Logger.Debug("buffer released", "addr", fmt.Sprintf("%#08x", c.Addr), "samples", c.Count)
		}
	}
}

func (s *Synthesizer) synthesize(ctx context.Context) error {
	var slot *Slot
	defer func() {
		if slot != nil {
			_ = s.pool.Reset(slot)
		}
	}()

	current := dtmf.None
	filled := 0
	for {
		if current == dtmf.None {
			if slot != nil {
				if err := s.pool.Reset(slot); err != nil {
					return err
				}
				slot = nil
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case sym := <-s.requests:
				current, filled = s.apply(current, sym, filled)
			}
			continue
		}

		if slot == nil {
			var err error
			if slot, err = s.pool.Acquire(ctx); err != nil {
				return err
			}
			filled = 0
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case sym := <-s.requests:
			current, filled = s.apply(current, sym, filled)
			continue
		default:
		}

		n := min(s.config.FillStep, len(slot.Samples)-filled)
		s.gen.Fill(slot.Samples[filled : filled+n])
		filled += n
		if filled < len(slot.Samples) {
			continue
		}

		if err := s.pool.Submit(slot); err != nil {
			return err
		}
		setup := dma.Setup{
			Addr:       slot.Addr,
			Count:      len(slot.Samples),
			PlayTime:   s.config.PlayTime,
			SampleRate: s.config.SampleRate,
			Reply:      s.completions,
		}
		slot = nil
		if err := s.out.Submit(ctx, setup); err != nil {
			return err
		}
		s.config.Logger.Debug("buffer queued", "addr", fmt.Sprintf("%#08x", setup.Addr), "symbol", current)
		filled = 0
	}
}

// apply handles one request and returns the new tone and fill position.
// Turning the tone off drops a partly filled buffer; anything already
// submitted keeps playing.
func (s *Synthesizer) apply(current, sym dtmf.Symbol, filled int) (dtmf.Symbol, int) {
	if sym == dtmf.None {
		if current != dtmf.None {
			s.config.Logger.Debug("tone off", "symbol", current, "discarded", filled)
		}
		return dtmf.None, 0
	}
	if !s.gen.SetSymbol(sym) {
		s.config.Logger.Warn("ignoring invalid tone request", "symbol", sym)
		return current, filled
	}
	if current == dtmf.None {
		s.gen.Reset()
	}
	if sym != current {
		s.config.Logger.Debug("tone on", "symbol", sym)
	}
	return sym, filled
}
