// cmd/root.go
package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/dtmfcodec/internal/config"
	"github.com/ColonelBlimp/dtmfcodec/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "dtmfcodec",
	Short: "DTMF tone detector and generator",
	Long: `Detects DTMF keypad tones in an audio stream with a fixed-point style FFT
and synthesizes them through a simulated DMA-fed DAC.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	rootCmd.PersistentFlags().IntP("sample-rate", "r", 8000, "ADC sample rate in Hz")
	rootCmd.PersistentFlags().IntP("block-size", "n", 256, "samples per analysis block")
	rootCmd.PersistentFlags().Float64P("threshold", "t", 10, "detection threshold as a multiple of the average bin power")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolP("debug", "D", false, "enable debug output")

	bindFlags()

	rootCmd.AddCommand(detectCmd, generateCmd, dialCmd, selftestCmd, devicesCmd)
}

// bindFlags binds the global flags to their config keys.
func bindFlags() {
	flags := rootCmd.PersistentFlags()
	_ = viper.BindPFlag("sample_rate", flags.Lookup("sample-rate"))
	_ = viper.BindPFlag("block_size", flags.Lookup("block-size"))
	_ = viper.BindPFlag("threshold_multiplier", flags.Lookup("threshold"))
	_ = viper.BindPFlag("log_level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
}

func initConfig() {
	bindFlags()
	if err := config.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
}

// loadSettings reads and validates the config and builds the logger
// writing to w. --debug overrides log_level.
func loadSettings(w io.Writer) (*config.Settings, *log.Logger, error) {
	s, err := config.Get()
	if err != nil {
		return nil, nil, err
	}
	if s.Debug {
		s.LogLevel = "debug"
	}
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return s, logging.New(w, level), nil
}
