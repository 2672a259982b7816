// cmd/devices.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/dtmfcodec/internal/audio"
)

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List audio capture and playback devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, logger, err := loadSettings(cmd.ErrOrStderr())
		if err != nil {
			return err
		}

		c := audio.New(captureConfig(s, logger))
		if err := c.Init(); err != nil {
			return fmt.Errorf("audio init: %w", err)
		}
		defer c.Close()
		capture, err := c.ListDevices()
		if err != nil {
			return fmt.Errorf("audio capture devices: %w", err)
		}

		p := audio.NewPlayback(playbackConfig(s, logger))
		if err := p.Init(); err != nil {
			return fmt.Errorf("audio init: %w", err)
		}
		defer p.Close()
		playback, err := p.ListDevices()
		if err != nil {
			return fmt.Errorf("audio playback devices: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Capture devices:")
		for _, d := range capture {
			fmt.Fprintf(out, "  [%d] %s\n", d.Index, d.Name)
		}
		fmt.Fprintln(out, "Playback devices:")
		for _, d := range playback {
			fmt.Fprintf(out, "  [%d] %s\n", d.Index, d.Name)
		}
		return nil
	},
}
