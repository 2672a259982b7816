// internal/dma/sim.go
package dma

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

// SimConfig configures a SimController.
type SimConfig struct {
	// Memory backs the source addresses of transfers
	Memory Memory
	// Sink receives converted samples; nil discards them
	Sink Sink
	// Realtime paces each descriptor at the DAC sample rate
	Realtime bool
	Logger   *log.Logger
}

// SimController runs transfers in software: it walks the descriptor chain,
// copies samples from Memory into Sink and raises the terminal count
// interrupt from its own goroutine, the way the channel would.
type SimController struct {
	config  SimConfig
	handler atomic.Pointer[func()]
	status  atomic.Uint32
	busy    atomic.Bool
	rate    atomic.Int64
	dacCnt  atomic.Uint32
	dacCtrl atomic.Uint32
	wg      sync.WaitGroup

	mu      sync.Mutex
	lastErr error
}

// NewSimController creates a simulated channel.
func NewSimController(cfg SimConfig) *SimController {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	c := &SimController{config: cfg}
	_ = c.SetSampleRate(16000)
	return c
}

func (c *SimController) SetInterruptHandler(h func()) {
	if h == nil {
		c.handler.Store(nil)
		return
	}
	c.handler.Store(&h)
}

// SetSampleRate loads DACCNTVAL for rate and enables the counter and DMA
// requests in DACCTRL.
func (c *SimController) SetSampleRate(rate int) error {
	period, err := dac.CounterPeriod(rate)
	if err != nil {
		return err
	}
	c.dacCnt.Store(uint32(period))
	c.dacCtrl.Store(dac.DefaultControl)
	c.rate.Store(int64(rate))
	return nil
}

// DACRegisters returns the programmed DACCNTVAL and DACCTRL values.
func (c *SimController) DACRegisters() (counter uint16, control uint32) {
	return uint16(c.dacCnt.Load()), c.dacCtrl.Load()
}

// SampleRate returns the programmed DAC rate.
func (c *SimController) SampleRate() int {
	return int(c.rate.Load())
}

func (c *SimController) Start(regs Registers, links LinkTable) error {
	if c.config.Memory == nil {
		return fmt.Errorf("start transfer: %w", ErrBadAddress)
	}
	if !c.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	c.wg.Add(1)
	go c.run(regs, links)
	return nil
}

func (c *SimController) Status() uint32 {
	return c.status.Load()
}

func (c *SimController) ClearStatus(mask uint32) {
	c.status.And(^mask)
}

// Busy reports whether a transfer is in progress.
func (c *SimController) Busy() bool {
	return c.busy.Load()
}

// Err returns the last bus error. A faulted transfer never raises its
// interrupt.
func (c *SimController) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Wait blocks until every started transfer has finished.
func (c *SimController) Wait() {
	c.wg.Wait()
}

func (c *SimController) run(regs Registers, links LinkTable) {
	defer c.wg.Done()

	d := Descriptor{Src: regs.Src, Dst: regs.Dst, Next: regs.LLI, Control: regs.Control}
	for {
		n := d.Control.TransferSize()
		samples, err := c.config.Memory.ReadSamples(d.Src, n)
		if err != nil {
			c.fault(fmt.Errorf("read %d samples at %#08x: %w", n, d.Src, err))
			return
		}
		if c.config.Sink != nil {
			if err := c.config.Sink.Write(samples); err != nil {
				c.config.Logger.Warn("dac sink write failed", "err", err)
			}
		}
		if c.config.Realtime {
			time.Sleep(time.Duration(n) * time.Second / time.Duration(c.rate.Load()))
		}

		last := d.Next == 0
		var next Descriptor
		if !last {
			var ok bool
			if next, ok = links.Lookup(d.Next); !ok {
				c.fault(fmt.Errorf("link %#08x: %w", d.Next, ErrBadAddress))
				return
			}
		} else {
			c.busy.Store(false)
		}

		if d.Control.Interrupt() {
			c.status.Or(StatusTerminalCount)
			if h := c.handler.Load(); h != nil {
				(*h)()
			}
		}
		if last {
			return
		}
		d = next
	}
}

func (c *SimController) fault(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
	c.busy.Store(false)
	c.config.Logger.Error("dma transfer fault", "err", err)
}
