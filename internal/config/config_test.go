package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/viper"
)

func resetViper() {
	viper.Reset()
}

// setupHome points the user config dir at a temp directory and returns
// the application config directory inside it.
func setupHome(t *testing.T) (home, configDir string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", "")
	return home, filepath.Join(home, ".config", AppName)
}

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}

func TestInit_WithDefaults(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)
	writeConfig(t, configDir, "config.yaml", DefaultConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	ints := []struct {
		key      string
		expected int
	}{
		{"sample_rate", 8000},
		{"block_size", 256},
		{"num_adc_buffers", 2},
		{"result_queue", 4},
		{"dac_sample_rate", 16000},
		{"tone_buffers", 3},
		{"tone_buffer_size", 256},
		{"fill_step", 32},
		{"request_queue", 1},
		{"max_chain", 16},
		{"buffer_play_ms", 0},
		{"tone_on_ms", 200},
		{"tone_off_ms", 10},
		{"device_index", -1},
		{"playback_device_index", -1},
		{"channels", 1},
		{"capture_buffer", 256},
		{"testbench_blocks", 2},
	}
	for _, tt := range ints {
		t.Run(tt.key, func(t *testing.T) {
			if got := viper.GetInt(tt.key); got != tt.expected {
				t.Errorf("viper.GetInt(%q) = %d, want %d", tt.key, got, tt.expected)
			}
		})
	}

	strs := []struct {
		key      string
		expected string
	}{
		{"window", "none"},
		{"twiddles", "approx"},
		{"transfer_mode", "single"},
		{"completion_routing", "per_request"},
		{"rate_mode", "fixed"},
		{"speed_dial", "2246250000"},
		{"serve_addr", ":8080"},
		{"serve_path", "/ws"},
		{"publish_mode", "changes"},
		{"testbench_waveform", "square"},
		{"log_level", "info"},
	}
	for _, tt := range strs {
		t.Run(tt.key, func(t *testing.T) {
			if got := viper.GetString(tt.key); got != tt.expected {
				t.Errorf("viper.GetString(%q) = %q, want %q", tt.key, got, tt.expected)
			}
		})
	}

	if got := viper.GetFloat64("threshold_multiplier"); got != 10 {
		t.Errorf("threshold_multiplier = %v, want 10", got)
	}
	if got := viper.GetFloat64("level"); got != 1 {
		t.Errorf("level = %v, want 1", got)
	}
	if !viper.GetBool("remove_dc") {
		t.Error("remove_dc = false, want true")
	}
	if viper.GetBool("debug") {
		t.Error("debug = true, want false")
	}
}

func TestInit_DefaultsWithoutKeys(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)
	writeConfig(t, configDir, "config.yaml", "debug: true\n")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	settings, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if settings.SampleRate != 8000 {
		t.Errorf("Settings.SampleRate = %d, want 8000 from defaults", settings.SampleRate)
	}
	if settings.ThresholdMultiplier != 10 {
		t.Errorf("Settings.ThresholdMultiplier = %v, want 10 from defaults", settings.ThresholdMultiplier)
	}
	if !settings.Debug {
		t.Error("Settings.Debug = false, want true from file")
	}
}

func TestInit_CreatesConfigIfMissing(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	configPath := filepath.Join(configDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Errorf("Init() did not create config file at %s", configPath)
	}
}

func TestInit_ReadsLocalConfigFirst(t *testing.T) {
	resetViper()
	home, configDir := setupHome(t)
	writeConfig(t, configDir, "config.yaml", "tone_on_ms: 120")

	origDir, _ := os.Getwd()
	if err := os.Chdir(home); err != nil {
		t.Fatalf("failed to chdir: %v", err)
	}
	defer func() {
		if err := os.Chdir(origDir); err != nil {
			t.Logf("failed to restore dir: %v", err)
		}
	}()
	writeConfig(t, home, "config.yaml", "tone_on_ms: 80")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := viper.GetInt("tone_on_ms"); got != 80 {
		t.Errorf("viper.GetInt(tone_on_ms) = %d, want 80 (local config)", got)
	}
}

func TestInit_LoadsDotConfigYaml(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)
	writeConfig(t, configDir, ".config.yaml", "sample_rate: 16000\nblock_size: 128\n")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := viper.GetInt("sample_rate"); got != 16000 {
		t.Errorf("viper.GetInt(sample_rate) = %d, want 16000", got)
	}
	if got := viper.GetInt("block_size"); got != 128 {
		t.Errorf("viper.GetInt(block_size) = %d, want 128", got)
	}
}

func TestInit_DotConfigTakesPrecedence(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)
	writeConfig(t, configDir, "config.yaml", "window: hann")
	writeConfig(t, configDir, ".config.yaml", "window: blackman")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	if got := viper.GetString("window"); got != "blackman" {
		t.Errorf("viper.GetString(window) = %q, want blackman (.config.yaml)", got)
	}
}

func TestInit_InvalidConfigFile(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)
	writeConfig(t, configDir, "config.yaml", "invalid: yaml: content: [[[")

	if err := Init(); err == nil {
		t.Error("Init() should return error for invalid YAML")
	}
}

func TestGet_ReturnsSettings(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)
	writeConfig(t, configDir, "config.yaml", DefaultConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	settings, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	want := validSettings()
	if *settings != *want {
		t.Errorf("Get() = %+v\nwant %+v", *settings, *want)
	}
}

func TestGet_AllFields(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)

	customConfig := `sample_rate: 16000
block_size: 128
threshold_multiplier: 6.5
window: hamming
remove_dc: false
twiddles: exact
num_adc_buffers: 4
dac_sample_rate: 32000
tone_buffers: 4
tone_buffer_size: 512
fill_step: 64
level: 0.5
transfer_mode: looped
max_chain: 32
completion_routing: fixed
rate_mode: per_request
buffer_play_ms: 40
tone_on_ms: 100
tone_off_ms: 50
speed_dial: "5551234567"
device_index: 2
channels: 2
serve_addr: "127.0.0.1:9000"
publish_mode: all
testbench_waveform: sine
log_level: debug
debug: true
`
	writeConfig(t, configDir, "config.yaml", customConfig)

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	s, err := Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if s.SampleRate != 16000 || s.BlockSize != 128 {
		t.Errorf("receive rate/block = %d/%d, want 16000/128", s.SampleRate, s.BlockSize)
	}
	if s.ThresholdMultiplier != 6.5 {
		t.Errorf("Settings.ThresholdMultiplier = %v, want 6.5", s.ThresholdMultiplier)
	}
	if s.Window != "hamming" || s.Twiddles != "exact" || s.RemoveDC {
		t.Errorf("window/twiddles/remove_dc = %q/%q/%v", s.Window, s.Twiddles, s.RemoveDC)
	}
	if s.NumADCBuffers != 4 {
		t.Errorf("Settings.NumADCBuffers = %d, want 4", s.NumADCBuffers)
	}
	if s.DACSampleRate != 32000 || s.ToneBuffers != 4 || s.ToneBufferSize != 512 || s.FillStep != 64 {
		t.Errorf("transmit = %d/%d/%d/%d", s.DACSampleRate, s.ToneBuffers, s.ToneBufferSize, s.FillStep)
	}
	if s.Level != 0.5 {
		t.Errorf("Settings.Level = %v, want 0.5", s.Level)
	}
	if s.TransferMode != "looped" || s.MaxChain != 32 || s.BufferPlayMS != 40 {
		t.Errorf("transfer = %q/%d/%d", s.TransferMode, s.MaxChain, s.BufferPlayMS)
	}
	if s.CompletionRouting != "fixed" || s.RateMode != "per_request" {
		t.Errorf("routing/rate = %q/%q", s.CompletionRouting, s.RateMode)
	}
	if s.ToneOnMS != 100 || s.ToneOffMS != 50 || s.SpeedDial != "5551234567" {
		t.Errorf("dialing = %d/%d/%q", s.ToneOnMS, s.ToneOffMS, s.SpeedDial)
	}
	if s.DeviceIndex != 2 || s.Channels != 2 {
		t.Errorf("device/channels = %d/%d", s.DeviceIndex, s.Channels)
	}
	if s.ServeAddr != "127.0.0.1:9000" || s.PublishMode != "all" {
		t.Errorf("serve = %q/%q", s.ServeAddr, s.PublishMode)
	}
	if s.TestbenchWaveform != "sine" || s.LogLevel != "debug" || !s.Debug {
		t.Errorf("waveform/log = %q/%q/%v", s.TestbenchWaveform, s.LogLevel, s.Debug)
	}
}

func TestGet_InvalidSettings(t *testing.T) {
	resetViper()
	_, configDir := setupHome(t)
	writeConfig(t, configDir, "config.yaml", "block_size: 300\n")

	if err := Init(); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	_, err := Get()
	if err == nil || !strings.Contains(err.Error(), "block_size") {
		t.Errorf("Get() error = %v, want block_size error", err)
	}
}

func TestEnsureConfigExists_CreatesDirectory(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "subdir", "config")

	if err := ensureConfigExists(configPath); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(configPath, "config.yaml"))
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if string(content) != DefaultConfig {
		t.Errorf("config content does not match DefaultConfig")
	}
}

func TestEnsureConfigExists_DoesNotOverwrite(t *testing.T) {
	configPath := t.TempDir()
	existingContent := "existing: true"
	writeConfig(t, configPath, "config.yaml", existingContent)

	if err := ensureConfigExists(configPath); err != nil {
		t.Fatalf("ensureConfigExists() error = %v", err)
	}

	content, err := os.ReadFile(filepath.Join(configPath, "config.yaml"))
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}
	if string(content) != existingContent {
		t.Errorf("ensureConfigExists() overwrote existing config")
	}
}

func TestEnsureConfigExists_WriteError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("skipping test when running as root")
	}

	configPath := filepath.Join(t.TempDir(), "readonly")
	if err := os.MkdirAll(configPath, 0555); err != nil {
		t.Fatalf("failed to create readonly dir: %v", err)
	}
	defer func() {
		if err := os.Chmod(configPath, 0755); err != nil {
			t.Logf("failed to restore permissions: %v", err)
		}
	}()

	if err := ensureConfigExists(filepath.Join(configPath, "subdir")); err == nil {
		t.Error("ensureConfigExists() should return error for read-only directory")
	}
}

func TestConstants(t *testing.T) {
	if AppName != "dtmfcodec" {
		t.Errorf("AppName = %q, want %q", AppName, "dtmfcodec")
	}
	if ConfigType != "yaml" {
		t.Errorf("ConfigType = %q, want %q", ConfigType, "yaml")
	}
}

func TestDefaultConfig_ContainsExpectedKeys(t *testing.T) {
	for _, key := range viperKeys() {
		if !strings.Contains(DefaultConfig, key+":") {
			t.Errorf("DefaultConfig missing key: %s", key)
		}
	}
}

// viperKeys lists every key with a default.
func viperKeys() []string {
	resetViper()
	setDefaults()
	defer resetViper()
	return viper.AllKeys()
}

// Validation tests

func TestSettings_Validate_ValidSettings(t *testing.T) {
	if err := validSettings().Validate(); err != nil {
		t.Errorf("Validate() error = %v, want nil for valid settings", err)
	}
}

func TestSettings_Validate_Ranges(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr string
	}{
		{"sample rate too low", func(s *Settings) { s.SampleRate = 3999 }, "sample_rate"},
		{"sample rate maximum", func(s *Settings) { s.SampleRate = 192000 }, ""},
		{"block not power of two", func(s *Settings) { s.BlockSize = 200 }, "block_size"},
		{"block above fft", func(s *Settings) { s.BlockSize = 512 }, "block_size"},
		{"block minimum", func(s *Settings) { s.BlockSize = 32 }, ""},
		{"zero multiplier", func(s *Settings) { s.ThresholdMultiplier = 0 }, "threshold_multiplier"},
		{"unknown window", func(s *Settings) { s.Window = "kaiser" }, "window"},
		{"unknown twiddles", func(s *Settings) { s.Twiddles = "table" }, "twiddles"},
		{"no adc buffers", func(s *Settings) { s.NumADCBuffers = 0 }, "num_adc_buffers"},
		{"no result queue", func(s *Settings) { s.ResultQueue = 0 }, "result_queue"},
		{"dac rate too low", func(s *Settings) { s.DACSampleRate = 3000 }, "dac_sample_rate"},
		{"no tone buffers", func(s *Settings) { s.ToneBuffers = 0 }, "tone_buffers"},
		{"tone buffer too big", func(s *Settings) { s.ToneBufferSize = 4096 }, "tone_buffer_size"},
		{"fill step above buffer", func(s *Settings) { s.FillStep = 257 }, "fill_step"},
		{"fill step whole buffer", func(s *Settings) { s.FillStep = 256 }, ""},
		{"zero level", func(s *Settings) { s.Level = 0 }, "level"},
		{"level above full scale", func(s *Settings) { s.Level = 1.1 }, "level"},
		{"no request queue", func(s *Settings) { s.RequestQueue = 0 }, "request_queue"},
		{"unknown transfer mode", func(s *Settings) { s.TransferMode = "burst" }, "transfer_mode"},
		{"looped", func(s *Settings) { s.TransferMode = "looped" }, ""},
		{"no descriptors", func(s *Settings) { s.MaxChain = 0 }, "max_chain"},
		{"unknown routing", func(s *Settings) { s.CompletionRouting = "any" }, "completion_routing"},
		{"unknown rate mode", func(s *Settings) { s.RateMode = "auto" }, "rate_mode"},
		{"negative play time", func(s *Settings) { s.BufferPlayMS = -1 }, "buffer_play_ms"},
		{"zero tone on", func(s *Settings) { s.ToneOnMS = 0 }, "tone_on_ms"},
		{"negative tone off", func(s *Settings) { s.ToneOffMS = -1 }, "tone_off_ms"},
		{"zero tone off", func(s *Settings) { s.ToneOffMS = 0 }, ""},
		{"short speed dial", func(s *Settings) { s.SpeedDial = "12345" }, "speed_dial"},
		{"speed dial letters", func(s *Settings) { s.SpeedDial = "22462500AB" }, "speed_dial"},
		{"no channels", func(s *Settings) { s.Channels = 0 }, "channels"},
		{"stereo", func(s *Settings) { s.Channels = 2 }, ""},
		{"capture buffer too small", func(s *Settings) { s.CaptureBuffer = 32 }, "capture_buffer"},
		{"unknown publish mode", func(s *Settings) { s.PublishMode = "some" }, "publish_mode"},
		{"unknown waveform", func(s *Settings) { s.TestbenchWaveform = "saw" }, "testbench_waveform"},
		{"zero amplitude", func(s *Settings) { s.TestbenchAmplitude = 0 }, "testbench_amplitude"},
		{"no testbench blocks", func(s *Settings) { s.TestbenchBlocks = 0 }, "testbench_blocks"},
		{"unknown log level", func(s *Settings) { s.LogLevel = "trace" }, "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSettings()
			tt.mutate(s)
			err := s.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_MultipleErrors(t *testing.T) {
	s := &Settings{}

	err := s.Validate()
	if err == nil {
		t.Fatal("Validate() should return error for zero settings")
	}

	errStr := err.Error()
	expectedSubstrings := []string{
		"sample_rate",
		"block_size",
		"threshold_multiplier",
		"window",
		"num_adc_buffers",
		"dac_sample_rate",
		"tone_buffers",
		"level",
		"transfer_mode",
		"max_chain",
		"tone_on_ms",
		"speed_dial",
		"channels",
		"publish_mode",
		"log_level",
	}
	for _, substr := range expectedSubstrings {
		if !strings.Contains(errStr, substr) {
			t.Errorf("Validate() error should mention %q, got: %v", substr, errStr)
		}
	}
}

// validSettings returns a Settings struct matching DefaultConfig
func validSettings() *Settings {
	return &Settings{
		SampleRate:          8000,
		BlockSize:           256,
		ThresholdMultiplier: 10,
		Window:              "none",
		RemoveDC:            true,
		Twiddles:            "approx",
		NumADCBuffers:       2,
		ResultQueue:         4,
		DACSampleRate:       16000,
		ToneBuffers:         3,
		ToneBufferSize:      256,
		FillStep:            32,
		Level:               1,
		RequestQueue:        1,
		TransferMode:        "single",
		MaxChain:            16,
		CompletionRouting:   "per_request",
		RateMode:            "fixed",
		BufferPlayMS:        0,
		ToneOnMS:            200,
		ToneOffMS:           10,
		SpeedDial:           "2246250000",
		DeviceIndex:         -1,
		PlaybackDeviceIndex: -1,
		Channels:            1,
		CaptureBuffer:       256,
		ServeAddr:           ":8080",
		ServePath:           "/ws",
		PublishMode:         "changes",
		TestbenchWaveform:   "square",
		TestbenchAmplitude:  500,
		TestbenchBlocks:     2,
		LogLevel:            "info",
		Debug:               false,
	}
}
