// cmd/settings.go
package cmd

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/dtmfcodec/internal/audio"
	"github.com/ColonelBlimp/dtmfcodec/internal/config"
	"github.com/ColonelBlimp/dtmfcodec/internal/dialer"
	"github.com/ColonelBlimp/dtmfcodec/internal/dma"
	"github.com/ColonelBlimp/dtmfcodec/internal/dsp"
	"github.com/ColonelBlimp/dtmfcodec/internal/logging"
	"github.com/ColonelBlimp/dtmfcodec/internal/pipeline"
	"github.com/ColonelBlimp/dtmfcodec/internal/synth"
	"github.com/ColonelBlimp/dtmfcodec/internal/testbench"
)

// newFFT builds the transform engine with twiddles for the largest
// transform; the detector runs it at the configured block size.
func newFFT(s *config.Settings) (*dsp.FFT, error) {
	tw, err := dsp.ParseTwiddleSource(s.Twiddles)
	if err != nil {
		return nil, err
	}
	return dsp.NewFFT(dsp.FFTConfig{MaxSize: dsp.MaxFFTSize, Twiddles: tw})
}

// receiverConfig maps settings to the receive path at the given input rate.
func receiverConfig(s *config.Settings, rate int, logger *log.Logger) (pipeline.ReceiverConfig, error) {
	w, err := dsp.ParseWindow(s.Window)
	if err != nil {
		return pipeline.ReceiverConfig{}, err
	}
	return pipeline.ReceiverConfig{
		Producer: audio.ProducerConfig{
			BlockSize: s.BlockSize,
			Blocks:    s.NumADCBuffers,
			Logger:    logging.Component(logger, "producer"),
		},
		Detector: dsp.DetectorConfig{
			SampleRate:          float64(rate),
			BlockSize:           s.BlockSize,
			ThresholdMultiplier: s.ThresholdMultiplier,
			Window:              w,
			RemoveDC:            s.RemoveDC,
		},
		ResultQueue: s.ResultQueue,
		Logger:      logging.Component(logger, "detector"),
	}, nil
}

// newReceiver builds a receive path at the given input rate.
func newReceiver(s *config.Settings, rate int, logger *log.Logger) (*pipeline.Receiver, func(), error) {
	cfg, err := receiverConfig(s, rate, logger)
	if err != nil {
		return nil, nil, err
	}
	fft, err := newFFT(s)
	if err != nil {
		return nil, nil, err
	}
	rcv, err := pipeline.NewReceiver(cfg, fft)
	if err != nil {
		fft.Close()
		return nil, nil, err
	}
	return rcv, fft.Close, nil
}

// transmitterConfig maps settings to the transmit path feeding sink.
func transmitterConfig(s *config.Settings, sink dma.Sink, realtime bool, logger *log.Logger) (pipeline.TransmitterConfig, error) {
	mode, err := dma.ParseMode(s.TransferMode)
	if err != nil {
		return pipeline.TransmitterConfig{}, err
	}
	routing, err := dma.ParseRouting(s.CompletionRouting)
	if err != nil {
		return pipeline.TransmitterConfig{}, err
	}
	rateMode, err := dma.ParseRateMode(s.RateMode)
	if err != nil {
		return pipeline.TransmitterConfig{}, err
	}
	playTime := time.Duration(s.BufferPlayMS) * time.Millisecond

	return pipeline.TransmitterConfig{
		Pool: synth.PoolConfig{
			Slots:    s.ToneBuffers,
			Capacity: s.ToneBufferSize,
		},
		Synth: synth.Config{
			SampleRate:   s.DACSampleRate,
			FillStep:     s.FillStep,
			Level:        s.Level,
			RequestQueue: s.RequestQueue,
			PlayTime:     playTime,
			Logger:       logging.Component(logger, "synth"),
		},
		Manager: dma.ManagerConfig{
			Mode:       mode,
			Routing:    routing,
			RateMode:   rateMode,
			SampleRate: s.DACSampleRate,
			MaxChain:   s.MaxChain,
			QueueDepth: s.ToneBuffers,
			Logger:     logging.Component(logger, "dma"),
		},
		Sink:     sink,
		Realtime: realtime,
		Logger:   logging.Component(logger, "dac"),
	}, nil
}

func dialPlan(s *config.Settings) dialer.Plan {
	return dialer.Plan{
		SpeedDial: s.SpeedDial,
		On:        time.Duration(s.ToneOnMS) * time.Millisecond,
		Off:       time.Duration(s.ToneOffMS) * time.Millisecond,
	}
}

func testbenchConfig(s *config.Settings, rate int) (testbench.Config, error) {
	w, err := testbench.ParseWaveform(s.TestbenchWaveform)
	if err != nil {
		return testbench.Config{}, err
	}
	return testbench.Config{
		SampleRate: float64(rate),
		Amplitude:  s.TestbenchAmplitude,
		Waveform:   w,
	}, nil
}

func captureConfig(s *config.Settings, logger *log.Logger) audio.Config {
	return audio.Config{
		DeviceIndex: s.DeviceIndex,
		SampleRate:  uint32(s.SampleRate),
		Channels:    uint32(s.Channels),
		BufferSize:  uint32(s.CaptureBuffer),
		Logger:      logging.Component(logger, "capture"),
	}
}

func playbackConfig(s *config.Settings, logger *log.Logger) audio.Config {
	return audio.Config{
		DeviceIndex: s.PlaybackDeviceIndex,
		SampleRate:  uint32(s.DACSampleRate),
		Channels:    1,
		BufferSize:  uint32(s.ToneBufferSize),
		Logger:      logging.Component(logger, "playback"),
	}
}
