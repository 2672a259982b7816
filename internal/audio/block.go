// internal/audio/block.go
package audio

import (
	"context"
	"errors"
	"math/bits"
	"sync/atomic"

	"github.com/charmbracelet/log"
)

var (
	// ErrInvalidBlockSize indicates the block size must be a power of two no larger than 256
	ErrInvalidBlockSize = errors.New("block size must be a power of two between 1 and 256")
	// ErrInvalidBlockCount indicates the producer needs at least one block
	ErrInvalidBlockCount = errors.New("producer needs at least one block")
)

// MaxBlockSize is the largest block the detector can analyze.
const MaxBlockSize = 256

// Block is one buffer of samples handed from the producer to the detector.
// The consumer must call Release when it is done reading Samples.
type Block struct {
	Samples []int16
	// Seq counts blocks handed off since the producer started
	Seq      uint64
	producer *Producer
	held     atomic.Bool
}

// Release returns the block to the producer. Extra calls are ignored.
func (b *Block) Release() {
	if b.held.CompareAndSwap(true, false) {
		b.producer.free <- b
	}
}

// ProducerConfig holds configuration for the sample block producer.
type ProducerConfig struct {
	// BlockSize is the number of samples per block (from config: block_size)
	BlockSize int
	// Blocks is the number of blocks cycled between producer and detector (from config: num_adc_buffers)
	Blocks int
	Logger *log.Logger
}

// Producer assembles a sample stream into fixed-size blocks. Filled blocks
// go out through a single-slot handoff that blocks while the consumer is
// behind, which stalls sampling instead of dropping data.
type Producer struct {
	config  ProducerConfig
	out     chan *Block
	free    chan *Block
	current *Block
	fill    int
	seq     uint64
}

// NewProducer creates a producer owning cfg.Blocks blocks.
func NewProducer(cfg ProducerConfig) (*Producer, error) {
	if cfg.BlockSize < 1 || cfg.BlockSize > MaxBlockSize || bits.OnesCount(uint(cfg.BlockSize)) != 1 {
		return nil, ErrInvalidBlockSize
	}
	if cfg.Blocks < 1 {
		return nil, ErrInvalidBlockCount
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}

	p := &Producer{
		config: cfg,
		out:    make(chan *Block, 1),
		free:   make(chan *Block, cfg.Blocks),
	}
	for i := 0; i < cfg.Blocks; i++ {
		p.free <- &Block{Samples: make([]int16, cfg.BlockSize), producer: p}
	}
	return p, nil
}

// Config returns the producer configuration.
func (p *Producer) Config() ProducerConfig {
	return p.config
}

// Blocks is the handoff channel to the detector. It is closed when Run
// returns.
func (p *Producer) Blocks() <-chan *Block {
	return p.out
}

// Write appends samples to the current block, handing off each block as it
// fills.
func (p *Producer) Write(ctx context.Context, samples []int16) error {
	for len(samples) > 0 {
		if p.current == nil {
			select {
			case b := <-p.free:
				p.current = b
				p.fill = 0
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		n := copy(p.current.Samples[p.fill:], samples)
		p.fill += n
		samples = samples[n:]
		if p.fill < len(p.current.Samples) {
			continue
		}

		b := p.current
		b.Seq = p.seq
		b.held.Store(true)
		select {
		case p.out <- b:
		case <-ctx.Done():
			b.held.Store(false)
			return ctx.Err()
		}
		p.seq++
		p.current = nil
	}
	return nil
}

// Run feeds sample chunks from in until it is closed or ctx is done. A
// partly filled block is dropped at the end of the stream.
func (p *Producer) Run(ctx context.Context, in <-chan []int16) error {
	defer close(p.out)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-in:
			if !ok {
				p.config.Logger.Debug("sample stream ended", "blocks", p.seq, "dropped", p.fill)
				return nil
			}
			if err := p.Write(ctx, chunk); err != nil {
				return err
			}
		}
	}
}
