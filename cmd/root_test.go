package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

func resetViperForTest() {
	viper.Reset()
}

// resetFlags puts every flag of c and its subcommands back to its default;
// cobra keeps parsed values between Execute calls.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// setupConfig writes content as the user config file in a fresh HOME.
func setupConfig(t *testing.T, content string) string {
	t.Helper()
	resetViperForTest()
	resetFlags(rootCmd)

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	configDir := filepath.Join(tmpDir, ".config", "dtmfcodec")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		t.Fatalf("failed to create config dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(configDir, "config.yaml"), []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return tmpDir
}

// execute runs the root command and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCmd_HasExpectedFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	tests := []struct {
		name      string
		shorthand string
	}{
		{"sample-rate", "r"},
		{"block-size", "n"},
		{"threshold", "t"},
		{"log-level", "l"},
		{"debug", "D"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := flags.Lookup(tt.name)
			if flag == nil {
				t.Errorf("flag %q not found", tt.name)
				return
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("flag %q shorthand = %q, want %q", tt.name, flag.Shorthand, tt.shorthand)
			}
			if flag.Usage == "" {
				t.Errorf("flag %q has no description", tt.name)
			}
		})
	}
}

func TestRootCmd_FlagDefaults(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	tests := []struct {
		name         string
		defaultValue string
	}{
		{"sample-rate", "8000"},
		{"block-size", "256"},
		{"threshold", "10"},
		{"log-level", "info"},
		{"debug", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := flags.Lookup(tt.name)
			if flag == nil {
				t.Fatalf("flag %q not found", tt.name)
			}
			if flag.DefValue != tt.defaultValue {
				t.Errorf("flag %q default = %q, want %q", tt.name, flag.DefValue, tt.defaultValue)
			}
		})
	}
}

func TestRootCmd_Properties(t *testing.T) {
	if rootCmd.Use != "dtmfcodec" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "dtmfcodec")
	}
	if rootCmd.Short == "" {
		t.Error("rootCmd.Short is empty")
	}
	if rootCmd.Long == "" {
		t.Error("rootCmd.Long is empty")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	want := []string{"detect", "generate", "dial", "selftest", "devices"}
	for _, name := range want {
		t.Run(name, func(t *testing.T) {
			c, _, err := rootCmd.Find([]string{name})
			if err != nil || c == rootCmd {
				t.Fatalf("subcommand %q not registered", name)
			}
			if c.Short == "" {
				t.Errorf("subcommand %q has no short description", name)
			}
		})
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	setupConfig(t, "debug: false\n")

	out, _, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("Execute() with --help error = %v", err)
	}
	for _, want := range []string{"dtmfcodec", "--sample-rate", "selftest", "generate"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output should contain %q", want)
		}
	}
}

func TestInitConfig(t *testing.T) {
	setupConfig(t, "tone_on_ms: 120\n")

	initConfig()

	if got := viper.GetInt("tone_on_ms"); got != 120 {
		t.Errorf("viper.GetInt(tone_on_ms) = %d, want 120", got)
	}
	if got := viper.GetInt("sample_rate"); got != 8000 {
		t.Errorf("viper.GetInt(sample_rate) = %d, want 8000", got)
	}
}

func TestLoadSettings_DebugForcesLevel(t *testing.T) {
	setupConfig(t, "log_level: warn\ndebug: true\n")
	initConfig()

	var buf bytes.Buffer
	s, logger, err := loadSettings(&buf)
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if s.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", s.LogLevel)
	}
	logger.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("debug message not written with --debug")
	}
}

func TestRootCmd_FlagsOverrideConfig(t *testing.T) {
	setupConfig(t, "block_size: 128\n")

	// an invalid rate from the flag must win over the config file
	_, _, err := execute(t, "selftest", "--sample-rate", "1000")
	if err == nil || !strings.Contains(err.Error(), "sample_rate") {
		t.Fatalf("expected sample_rate error from flag, got %v", err)
	}
	if got := viper.GetInt("block_size"); got != 128 {
		t.Errorf("block_size = %d, want 128 from config", got)
	}
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	setupConfig(t, "threshold_multiplier: 0\n")

	_, _, err := execute(t, "selftest")
	if err == nil {
		t.Fatal("expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("expected config error, got: %v", err)
	}
}
