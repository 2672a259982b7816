// internal/audio/capture.go
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio device not initialized")
	ErrAlreadyRunning = errors.New("audio device already running")
	ErrNotRunning     = errors.New("audio device not running")
	// ErrDeviceIndex indicates the configured device index does not exist
	ErrDeviceIndex = errors.New("device index out of range")
)

// Config holds sound card configuration
type Config struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 8000
	Channels    uint32 // 1 for mono; only the first channel is used
	BufferSize  uint32 // frames per callback
	Logger      *log.Logger
}

// DefaultConfig returns the capture defaults for DTMF detection
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  8000,
		Channels:    1,
		BufferSize:  256,
	}
}

// Device is a sound card entry as reported by the backend.
type Device struct {
	Index int
	Name  string
	info  malgo.DeviceInfo
}

// backend owns the malgo context shared by capture and playback.
type backend struct {
	mu  sync.RWMutex
	ctx *malgo.AllocatedContext
}

func (b *backend) init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx != nil {
		return nil
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	b.ctx = ctx
	return nil
}

func (b *backend) devices(kind malgo.DeviceType) ([]Device, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.ctx == nil {
		return nil, ErrNotInitialized
	}
	infos, err := b.ctx.Devices(kind)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}
	out := make([]Device, len(infos))
	for i, info := range infos {
		out[i] = Device{Index: i, Name: info.Name(), info: info}
	}
	return out, nil
}

// resolve picks the device for index, or nil for the backend default.
func (b *backend) resolve(kind malgo.DeviceType, index int) (*malgo.DeviceID, error) {
	if index < 0 {
		return nil, nil
	}
	devs, err := b.devices(kind)
	if err != nil {
		return nil, err
	}
	if index >= len(devs) {
		return nil, fmt.Errorf("%w: %d (have %d devices)", ErrDeviceIndex, index, len(devs))
	}
	id := devs[index].info.ID
	return &id, nil
}

func (b *backend) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx == nil {
		return nil
	}
	if err := b.ctx.Uninit(); err != nil {
		return fmt.Errorf("uninit context: %w", err)
	}
	b.ctx.Free()
	b.ctx = nil
	return nil
}

// SampleCallback is called directly from the audio thread with new samples.
// Must be non-blocking and fast.
type SampleCallback func(samples []int16)

// Capture samples the line input of a sound card as signed 16-bit mono.
type Capture struct {
	config   Config
	backend  backend
	device   *malgo.Device
	running  bool
	mu       sync.RWMutex
	callback SampleCallback
	dropped  uint64

	// Samples carries captured chunks to the block producer
	Samples chan []int16
}

// New creates a new capture instance
func New(cfg Config) *Capture {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Channels == 0 {
		cfg.Channels = 1
	}
	return &Capture{
		config:  cfg,
		Samples: make(chan []int16, 64),
	}
}

// SetCallback sets a callback for real-time sample processing. Set before
// calling Start().
func (c *Capture) SetCallback(cb SampleCallback) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = cb
}

// Init initializes the audio backend
func (c *Capture) Init() error {
	return c.backend.init()
}

// ListDevices returns available capture devices
func (c *Capture) ListDevices() ([]Device, error) {
	return c.backend.devices(malgo.Capture)
}

// Start begins capture. It stops on its own when ctx is done.
func (c *Capture) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.mu.Unlock()

	id, err := c.backend.resolve(malgo.Capture, c.config.DeviceIndex)
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = c.config.SampleRate
	deviceConfig.PeriodSizeInFrames = c.config.BufferSize
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = c.config.Channels
	if id != nil {
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	onRecvFrames := func(_, input []byte, _ uint32) {
		if len(input) == 0 {
			return
		}
		samples := bytesToInt16(input, int(c.config.Channels))

		c.mu.RLock()
		cb := c.callback
		c.mu.RUnlock()
		if cb != nil {
			cb(samples)
		}

		select {
		case c.Samples <- samples:
		default:
			c.mu.Lock()
			c.dropped += uint64(len(samples))
			c.mu.Unlock()
		}
	}

	c.backend.mu.RLock()
	actx := c.backend.ctx
	c.backend.mu.RUnlock()
	if actx == nil {
		return ErrNotInitialized
	}

	device, err := malgo.InitDevice(actx.Context, deviceConfig, malgo.DeviceCallbacks{Data: onRecvFrames})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	c.mu.Lock()
	c.device = device
	c.running = true
	c.mu.Unlock()
	c.config.Logger.Info("capture started", "rate", c.config.SampleRate, "device", c.config.DeviceIndex)

	go func() {
		<-ctx.Done()
		_ = c.Stop()
	}()

	return nil
}

// Stop stops capture
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.running {
		return ErrNotRunning
	}
	if c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
	}
	c.running = false
	if c.dropped > 0 {
		c.config.Logger.Warn("capture dropped samples", "samples", c.dropped)
	}
	return nil
}

// Close releases all audio resources and closes Samples.
func (c *Capture) Close() error {
	c.mu.Lock()
	if c.running && c.device != nil {
		_ = c.device.Stop()
		c.device.Uninit()
		c.device = nil
		c.running = false
	}
	c.mu.Unlock()

	err := c.backend.close()
	close(c.Samples)
	return err
}

// IsRunning returns true if capture is active
func (c *Capture) IsRunning() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.running
}

// Dropped returns the number of samples lost because the consumer was behind.
func (c *Capture) Dropped() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dropped
}

// bytesToInt16 decodes little-endian S16 frames, keeping the first channel
func bytesToInt16(data []byte, channels int) []int16 {
	if channels < 1 {
		channels = 1
	}
	frame := 2 * channels
	samples := make([]int16, len(data)/frame)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*frame:]))
	}
	return samples
}
