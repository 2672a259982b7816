// internal/audio/playback.go
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"

	"github.com/ColonelBlimp/dtmfcodec/internal/dac"
)

// Playback plays DAC output words on a sound card. Write queues samples in
// a ring that the device callback drains; the callback plays silence when
// the ring runs dry.
type Playback struct {
	config    Config
	backend   backend
	ring      *Ring[int16]
	mu        sync.Mutex
	device    *malgo.Device
	overflow  atomic.Uint64
	underflow atomic.Uint64
}

// NewPlayback creates a playback sink. The ring holds one second of audio.
func NewPlayback(cfg Config) *Playback {
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Playback{
		config: cfg,
		ring:   NewRing[int16](int(max(cfg.SampleRate, 1))),
	}
}

// Init initializes the audio backend
func (p *Playback) Init() error {
	return p.backend.init()
}

// ListDevices returns available playback devices
func (p *Playback) ListDevices() ([]Device, error) {
	return p.backend.devices(malgo.Playback)
}

// Write converts DAC words to PCM and queues them. Samples that do not fit
// are dropped and counted.
func (p *Playback) Write(samples []dac.Sample) error {
	pcm := make([]int16, len(samples))
	for i, s := range samples {
		pcm[i] = DACToPCM(s)
	}
	if n := p.ring.Write(pcm); n < len(pcm) {
		p.overflow.Add(uint64(len(pcm) - n))
	}
	return nil
}

// Buffered returns the number of samples waiting to be played.
func (p *Playback) Buffered() int {
	return p.ring.Len()
}

// fill is the device data callback body.
func (p *Playback) fill(out []byte) {
	frames := len(out) / 2
	pcm := make([]int16, frames)
	if n := p.ring.Read(pcm); n < frames {
		p.underflow.Add(uint64(frames - n))
	}
	for i, v := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
}

// Start opens the device and starts playing.
func (p *Playback) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.device != nil {
		return ErrAlreadyRunning
	}

	id, err := p.backend.resolve(malgo.Playback, p.config.DeviceIndex)
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.SampleRate = p.config.SampleRate
	deviceConfig.PeriodSizeInFrames = p.config.BufferSize
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = 1
	if id != nil {
		deviceConfig.Playback.DeviceID = id.Pointer()
	}

	p.backend.mu.RLock()
	actx := p.backend.ctx
	p.backend.mu.RUnlock()
	if actx == nil {
		return ErrNotInitialized
	}

	device, err := malgo.InitDevice(actx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: func(out, _ []byte, _ uint32) { p.fill(out) },
	})
	if err != nil {
		return fmt.Errorf("init playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start playback device: %w", err)
	}
	p.device = device
	p.config.Logger.Info("playback started", "rate", p.config.SampleRate, "device", p.config.DeviceIndex)
	return nil
}

// Close stops the device and releases the backend.
func (p *Playback) Close() error {
	p.mu.Lock()
	if p.device != nil {
		_ = p.device.Stop()
		p.device.Uninit()
		p.device = nil
	}
	p.mu.Unlock()

	if n := p.overflow.Load(); n > 0 {
		p.config.Logger.Warn("playback dropped samples", "samples", n)
	}
	p.config.Logger.Debug("playback closed", "underflow", p.underflow.Load())
	return p.backend.close()
}

// DACToPCM maps a DAC word onto the signed 16-bit range around mid-scale.
func DACToPCM(s dac.Sample) int16 {
	f := math.Max(-1, math.Min(1, s.Float()))
	return int16(math.Round(f * math.MaxInt16))
}
