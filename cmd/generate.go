// cmd/generate.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/dtmfcodec/internal/audio"
	"github.com/ColonelBlimp/dtmfcodec/internal/config"
	"github.com/ColonelBlimp/dtmfcodec/internal/dialer"
	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
	"github.com/ColonelBlimp/dtmfcodec/internal/logging"
	"github.com/ColonelBlimp/dtmfcodec/internal/pipeline"
	"github.com/ColonelBlimp/dtmfcodec/internal/recovery"
)

// ErrNoOutput indicates neither --out nor --play was given
var ErrNoOutput = errors.New("nothing to render to: use --out and/or --play")

// drainPoll is how often playback is checked for remaining samples.
const drainPoll = 10 * time.Millisecond

var generateCmd = &cobra.Command{
	Use:   "generate KEYS",
	Short: "Synthesize a key sequence",
	Long: `Plays every key in KEYS (0-9, *, #, A-D) for tone_on_ms followed by
tone_off_ms of silence, through the buffer pool, DMA manager and simulated
DAC, into a WAV file and/or the sound card.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runTones(cmd, args[0], dialer.Plan.Keys)
	},
}

var dialCmd = &cobra.Command{
	Use:   "dial NUMBER",
	Short: "Dial a number using the dial plan",
	Long: `Expands NUMBER with the dial plan (A-D dial the speed dial number, '+'
introduces a 10 digit number) and renders it like generate. Without --out
the tones are played on the sound card.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("out") && !cmd.Flags().Changed("play") {
			_ = cmd.Flags().Set("play", "true")
		}
		return runTones(cmd, args[0], dialer.Plan.Expand)
	},
}

func init() {
	for _, c := range []*cobra.Command{generateCmd, dialCmd} {
		c.Flags().StringP("out", "o", "", "write the DAC output to this WAV file")
		c.Flags().BoolP("play", "p", false, "play the DAC output on the sound card")
	}
}

// expandFunc turns command input into timed steps.
type expandFunc func(p dialer.Plan, input string) ([]dialer.Step, error)

func runTones(cmd *cobra.Command, input string, expand expandFunc) error {
	s, logger, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	plan := dialPlan(s)
	if err := plan.Validate(); err != nil {
		return err
	}
	steps, err := expand(plan, input)
	if err != nil {
		return err
	}

	outPath, _ := cmd.Flags().GetString("out")
	play, _ := cmd.Flags().GetBool("play")
	if outPath == "" && !play {
		return ErrNoOutput
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var sinks pipeline.Tee
	var wav *audio.WAVSink
	if outPath != "" {
		f, err := os.Create(outPath)
		if err != nil {
			return err
		}
		defer f.Close()
		wav = audio.NewWAVSink(f, s.DACSampleRate)
		defer wav.Close()
		// keep a readable file if rendering panics
		defer recovery.HandlePanicFunc(func() { _ = wav.Close() })
		// the sound card idles by itself; the file needs the gaps written
		sinks = append(sinks, audio.NewTimeline(wav, s.DACSampleRate, audio.DefaultMinIdle))
	}
	var pb *audio.Playback
	if play {
		pb = audio.NewPlayback(playbackConfig(s, logger))
		if err := pb.Init(); err != nil {
			return fmt.Errorf("audio init: %w", err)
		}
		defer pb.Close()
		if err := pb.Start(); err != nil {
			return fmt.Errorf("audio start: %w", err)
		}
		sinks = append(sinks, pb)
	}

	logger.Info("rendering", "steps", len(steps), "duration", dialer.Total(steps))
	if err := render(ctx, s, steps, sinks, logger); err != nil {
		return err
	}

	if pb != nil {
		if err := drain(ctx, pb); err != nil {
			return err
		}
	}
	if wav != nil {
		if err := wav.Close(); err != nil {
			return fmt.Errorf("write %s: %w", outPath, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote %d samples to %s\n", wav.Written(), outPath)
	}
	return nil
}

// render plays steps through a real-time transmitter and waits for the
// last buffer to finish.
func render(ctx context.Context, s *config.Settings, steps []dialer.Step, sink pipeline.Tee, logger *log.Logger) error {
	cfg, err := transmitterConfig(s, sink, true, logger)
	if err != nil {
		return err
	}
	tx, err := pipeline.NewTransmitter(cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(recovery.Task("transmitter", func() error { return tx.Run(gctx) }))
	g.Go(recovery.Task("dialer", func() error {
		defer cancel()
		if err := dialer.Play(gctx, steps, tx, logging.Component(logger, "dialer")); err != nil {
			return err
		}
		if err := tx.Request(gctx, dtmf.None); err != nil {
			return err
		}
		return tx.Flush(gctx)
	}))

	err = g.Wait()
	tx.Controller().Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// drain waits until playback has played everything queued.
func drain(ctx context.Context, pb *audio.Playback) error {
	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for pb.Buffered() > 0 {
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
