// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

const (
	AppName       = "dtmfcodec"
	ConfigType    = "yaml"
	DefaultConfig = `# DTMF Codec Configuration

# Receive path (ADC -> blocks -> FFT detector)
sample_rate: 8000           # ADC sample rate in Hz
block_size: 256             # Samples per analysis block (power of 2, max 256)
threshold_multiplier: 10    # A bin is a tone when its power exceeds this times the average bin power
window: "none"              # Analysis window: none, hann, hamming, blackman
remove_dc: true             # Subtract the block mean before the transform
twiddles: "approx"          # Twiddle factors: approx (Taylor) or exact
num_adc_buffers: 2          # Blocks rotating between the producer and the detector
result_queue: 4             # Detection results buffered ahead of the consumer

# Transmit path (synthesizer -> buffer pool -> DMA -> DAC)
dac_sample_rate: 16000      # DAC update rate in Hz
tone_buffers: 3             # Output buffers in the pool
tone_buffer_size: 256       # Samples per output buffer (max 4095)
fill_step: 32               # Samples written between tone request checks
level: 1.0                  # Output level, 0-1 of full scale
request_queue: 1            # Pending tone requests
transfer_mode: "single"     # single: play each buffer once, looped: replay for buffer_play_ms
max_chain: 16               # Descriptors available for looped transfers
completion_routing: "per_request"  # fixed or per_request
rate_mode: "fixed"          # fixed or per_request
buffer_play_ms: 0           # Looped play time per buffer (0 plays once)

# Dialing
tone_on_ms: 200             # Digit tone duration
tone_off_ms: 10             # Silence after each digit
speed_dial: "2246250000"    # Number dialed for keys A-D

# Audio devices
device_index: -1            # Capture device, -1 for default
playback_device_index: -1   # Playback device, -1 for default
channels: 1                 # Capture channels (first channel is analyzed)
capture_buffer: 256         # Capture period in frames

# Publishing
serve_addr: ":8080"         # WebSocket listen address for detect --serve
serve_path: "/ws"           # WebSocket endpoint path
publish_mode: "changes"     # changes: publish when the symbol changes, all: every block

# Self-test
testbench_waveform: "square"  # square or sine
testbench_amplitude: 500      # Peak amplitude per tone
testbench_blocks: 2           # Blocks analyzed per case

# Output
log_level: "info"           # debug, info, warn, error
debug: false                # Shorthand for log_level debug
`
)

// Settings holds all application configuration
type Settings struct {
	// Receive path
	SampleRate          int     `mapstructure:"sample_rate"`
	BlockSize           int     `mapstructure:"block_size"`
	ThresholdMultiplier float64 `mapstructure:"threshold_multiplier"`
	Window              string  `mapstructure:"window"`
	RemoveDC            bool    `mapstructure:"remove_dc"`
	Twiddles            string  `mapstructure:"twiddles"`
	NumADCBuffers       int     `mapstructure:"num_adc_buffers"`
	ResultQueue         int     `mapstructure:"result_queue"`

	// Transmit path
	DACSampleRate     int     `mapstructure:"dac_sample_rate"`
	ToneBuffers       int     `mapstructure:"tone_buffers"`
	ToneBufferSize    int     `mapstructure:"tone_buffer_size"`
	FillStep          int     `mapstructure:"fill_step"`
	Level             float64 `mapstructure:"level"`
	RequestQueue      int     `mapstructure:"request_queue"`
	TransferMode      string  `mapstructure:"transfer_mode"`
	MaxChain          int     `mapstructure:"max_chain"`
	CompletionRouting string  `mapstructure:"completion_routing"`
	RateMode          string  `mapstructure:"rate_mode"`
	BufferPlayMS      int     `mapstructure:"buffer_play_ms"`

	// Dialing
	ToneOnMS  int    `mapstructure:"tone_on_ms"`
	ToneOffMS int    `mapstructure:"tone_off_ms"`
	SpeedDial string `mapstructure:"speed_dial"`

	// Audio devices
	DeviceIndex         int `mapstructure:"device_index"`
	PlaybackDeviceIndex int `mapstructure:"playback_device_index"`
	Channels            int `mapstructure:"channels"`
	CaptureBuffer       int `mapstructure:"capture_buffer"`

	// Publishing
	ServeAddr   string `mapstructure:"serve_addr"`
	ServePath   string `mapstructure:"serve_path"`
	PublishMode string `mapstructure:"publish_mode"`

	// Self-test
	TestbenchWaveform  string  `mapstructure:"testbench_waveform"`
	TestbenchAmplitude float64 `mapstructure:"testbench_amplitude"`
	TestbenchBlocks    int     `mapstructure:"testbench_blocks"`

	// Output
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/dtmfcodec/
func Init() error {
	setDefaults()

	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			// No config found - create default in ~/.config/dtmfcodec/
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func setDefaults() {
	viper.SetDefault("sample_rate", 8000)
	viper.SetDefault("block_size", 256)
	viper.SetDefault("threshold_multiplier", 10.0)
	viper.SetDefault("window", "none")
	viper.SetDefault("remove_dc", true)
	viper.SetDefault("twiddles", "approx")
	viper.SetDefault("num_adc_buffers", 2)
	viper.SetDefault("result_queue", 4)

	viper.SetDefault("dac_sample_rate", 16000)
	viper.SetDefault("tone_buffers", 3)
	viper.SetDefault("tone_buffer_size", 256)
	viper.SetDefault("fill_step", 32)
	viper.SetDefault("level", 1.0)
	viper.SetDefault("request_queue", 1)
	viper.SetDefault("transfer_mode", "single")
	viper.SetDefault("max_chain", 16)
	viper.SetDefault("completion_routing", "per_request")
	viper.SetDefault("rate_mode", "fixed")
	viper.SetDefault("buffer_play_ms", 0)

	viper.SetDefault("tone_on_ms", 200)
	viper.SetDefault("tone_off_ms", 10)
	viper.SetDefault("speed_dial", "2246250000")

	viper.SetDefault("device_index", -1)
	viper.SetDefault("playback_device_index", -1)
	viper.SetDefault("channels", 1)
	viper.SetDefault("capture_buffer", 256)

	viper.SetDefault("serve_addr", ":8080")
	viper.SetDefault("serve_path", "/ws")
	viper.SetDefault("publish_mode", "changes")

	viper.SetDefault("testbench_waveform", "square")
	viper.SetDefault("testbench_amplitude", 500.0)
	viper.SetDefault("testbench_blocks", 2)

	viper.SetDefault("log_level", "info")
	viper.SetDefault("debug", false)
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

func oneOf(key, got string, allowed ...string) error {
	for _, a := range allowed {
		if got == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", key, allowed, got)
}

func isPowerOfTwo(n int) bool {
	return n > 0 && n&(n-1) == 0
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	// Receive path
	if s.SampleRate < 4000 || s.SampleRate > 192000 {
		add(fmt.Errorf("sample_rate must be between 4000 and 192000 Hz, got %d", s.SampleRate))
	}
	if s.BlockSize < 32 || s.BlockSize > 256 || !isPowerOfTwo(s.BlockSize) {
		add(fmt.Errorf("block_size must be a power of 2 between 32 and 256, got %d", s.BlockSize))
	}
	if s.ThresholdMultiplier <= 0 || s.ThresholdMultiplier > 1000 {
		add(fmt.Errorf("threshold_multiplier must be greater than 0 and at most 1000, got %v", s.ThresholdMultiplier))
	}
	add(oneOf("window", s.Window, "none", "hann", "hamming", "blackman"))
	add(oneOf("twiddles", s.Twiddles, "approx", "exact"))
	if s.NumADCBuffers < 1 || s.NumADCBuffers > 16 {
		add(fmt.Errorf("num_adc_buffers must be between 1 and 16, got %d", s.NumADCBuffers))
	}
	if s.ResultQueue < 1 || s.ResultQueue > 1024 {
		add(fmt.Errorf("result_queue must be between 1 and 1024, got %d", s.ResultQueue))
	}

	// Transmit path
	if s.DACSampleRate < 4000 || s.DACSampleRate > 96000 {
		add(fmt.Errorf("dac_sample_rate must be between 4000 and 96000 Hz, got %d", s.DACSampleRate))
	}
	if s.ToneBuffers < 1 || s.ToneBuffers > 16 {
		add(fmt.Errorf("tone_buffers must be between 1 and 16, got %d", s.ToneBuffers))
	}
	if s.ToneBufferSize < 1 || s.ToneBufferSize > 4095 {
		add(fmt.Errorf("tone_buffer_size must be between 1 and 4095, got %d", s.ToneBufferSize))
	}
	if s.FillStep < 1 || s.FillStep > s.ToneBufferSize {
		add(fmt.Errorf("fill_step must be between 1 and tone_buffer_size (%d), got %d", s.ToneBufferSize, s.FillStep))
	}
	if s.Level <= 0 || s.Level > 1 {
		add(fmt.Errorf("level must be greater than 0 and at most 1, got %v", s.Level))
	}
	if s.RequestQueue < 1 || s.RequestQueue > 64 {
		add(fmt.Errorf("request_queue must be between 1 and 64, got %d", s.RequestQueue))
	}
	add(oneOf("transfer_mode", s.TransferMode, "single", "looped"))
	if s.MaxChain < 1 || s.MaxChain > 256 {
		add(fmt.Errorf("max_chain must be between 1 and 256, got %d", s.MaxChain))
	}
	add(oneOf("completion_routing", s.CompletionRouting, "fixed", "per_request"))
	add(oneOf("rate_mode", s.RateMode, "fixed", "per_request"))
	if s.BufferPlayMS < 0 {
		add(fmt.Errorf("buffer_play_ms must not be negative, got %d", s.BufferPlayMS))
	}

	// Dialing
	if s.ToneOnMS < 1 || s.ToneOnMS > 10000 {
		add(fmt.Errorf("tone_on_ms must be between 1 and 10000, got %d", s.ToneOnMS))
	}
	if s.ToneOffMS < 0 || s.ToneOffMS > 10000 {
		add(fmt.Errorf("tone_off_ms must be between 0 and 10000, got %d", s.ToneOffMS))
	}
	if !isDigits(s.SpeedDial, 10) {
		add(fmt.Errorf("speed_dial must be 10 digits, got %q", s.SpeedDial))
	}

	// Audio devices
	if s.Channels < 1 || s.Channels > 2 {
		add(fmt.Errorf("channels must be 1 or 2, got %d", s.Channels))
	}
	if s.CaptureBuffer < 64 || s.CaptureBuffer > 8192 {
		add(fmt.Errorf("capture_buffer must be between 64 and 8192, got %d", s.CaptureBuffer))
	}

	// Publishing and self-test
	add(oneOf("publish_mode", s.PublishMode, "changes", "all"))
	add(oneOf("testbench_waveform", s.TestbenchWaveform, "square", "sine"))
	if s.TestbenchAmplitude <= 0 || s.TestbenchAmplitude > 16383 {
		add(fmt.Errorf("testbench_amplitude must be greater than 0 and at most 16383, got %v", s.TestbenchAmplitude))
	}
	if s.TestbenchBlocks < 1 || s.TestbenchBlocks > 64 {
		add(fmt.Errorf("testbench_blocks must be between 1 and 64, got %d", s.TestbenchBlocks))
	}

	add(oneOf("log_level", s.LogLevel, "debug", "info", "warn", "error"))

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func isDigits(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
