// internal/pipeline/receiver.go
package pipeline

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/dtmfcodec/internal/audio"
	"github.com/ColonelBlimp/dtmfcodec/internal/dsp"
	"github.com/ColonelBlimp/dtmfcodec/internal/recovery"
)

// ErrBlockSizeMismatch indicates producer and detector disagree on block size
var ErrBlockSizeMismatch = errors.New("producer and detector block sizes differ")

// ReceiverConfig holds configuration for the receive path.
type ReceiverConfig struct {
	Producer audio.ProducerConfig
	Detector dsp.DetectorConfig
	// ResultQueue is the capacity of the result channel, default 1
	ResultQueue int
	Logger      *log.Logger
}

// Receiver is the receive path: block producer, then the detector task.
// A Receiver runs once.
type Receiver struct {
	config   ReceiverConfig
	producer *audio.Producer
	detector *dsp.Detector
	results  chan dsp.Result
}

// NewReceiver builds the producer and detector.
func NewReceiver(cfg ReceiverConfig, fft *dsp.FFT) (*Receiver, error) {
	if cfg.Producer.BlockSize != cfg.Detector.BlockSize {
		return nil, ErrBlockSizeMismatch
	}
	if cfg.ResultQueue < 1 {
		cfg.ResultQueue = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Producer.Logger == nil {
		cfg.Producer.Logger = cfg.Logger
	}

	p, err := audio.NewProducer(cfg.Producer)
	if err != nil {
		return nil, err
	}
	d, err := dsp.NewDetector(cfg.Detector, fft)
	if err != nil {
		return nil, err
	}
	return &Receiver{
		config:   cfg,
		producer: p,
		detector: d,
		results:  make(chan dsp.Result, cfg.ResultQueue),
	}, nil
}

// Results carries one result per analyzed block. It is closed when Run
// returns.
func (r *Receiver) Results() <-chan dsp.Result {
	return r.results
}

// Detector returns the tone detector.
func (r *Receiver) Detector() *dsp.Detector {
	return r.detector
}

// Run consumes sample chunks from in until it is closed or ctx is done.
func (r *Receiver) Run(ctx context.Context, in <-chan []int16) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(recovery.Task("producer", func() error {
		return r.producer.Run(ctx, in)
	}))
	g.Go(recovery.Task("detector", func() error {
		defer close(r.results)
		return Detect(ctx, r.detector, r.producer.Blocks(), r.results, r.config.Logger)
	}))
	return g.Wait()
}

// Detect is the detector task. It analyzes each block, releases it back to
// the producer and sends the result, blocking while the result consumer is
// behind. It returns nil when blocks is closed.
func Detect(ctx context.Context, d *dsp.Detector, blocks <-chan *audio.Block, results chan<- dsp.Result, logger *log.Logger) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-blocks:
			if !ok {
				return nil
			}
			res := d.Detect(b.Samples)
			seq := b.Seq
			b.Release()
			if res.Detected() {
				logger.Debug("tone detected", "block", seq, "symbol", res.Symbol, "low", res.Low, "high", res.High)
			}
			select {
			case results <- res:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
