// cmd/detect.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/dtmfcodec/internal/audio"
	"github.com/ColonelBlimp/dtmfcodec/internal/logging"
	"github.com/ColonelBlimp/dtmfcodec/internal/pipeline"
	"github.com/ColonelBlimp/dtmfcodec/internal/recovery"
	"github.com/ColonelBlimp/dtmfcodec/internal/transport"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect DTMF tones from the sound card or a WAV file",
	Long: `Reads samples from the capture device (or --in FILE), analyzes them in
blocks and logs every detected key. With --serve results are also published
to websocket clients.`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func init() {
	detectCmd.Flags().String("in", "", "analyze a 16-bit mono WAV file instead of capturing")
	detectCmd.Flags().Bool("serve", false, "publish results over websocket")
	detectCmd.Flags().String("publish", "", "publish mode override (changes, all)")
}

func runDetect(cmd *cobra.Command, _ []string) error {
	s, logger, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if p, _ := cmd.Flags().GetString("publish"); p != "" {
		s.PublishMode = p
	}
	mode, err := pipeline.ParsePublishMode(s.PublishMode)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	in, rate, cleanup, err := openSource(ctx, cmd, s.SampleRate, s.CaptureBuffer, captureConfig(s, logger))
	if err != nil {
		return err
	}
	defer cleanup()

	rcv, closeFFT, err := newReceiver(s, rate, logger)
	if err != nil {
		return err
	}
	defer closeFFT()

	out := transport.Multi{transport.NewLogging(logging.Component(logger, "result"))}
	if serve, _ := cmd.Flags().GetBool("serve"); serve {
		ws := transport.NewWebSocket(transport.WebSocketConfig{
			Addr:   s.ServeAddr,
			Path:   s.ServePath,
			Logger: logging.Component(logger, "websocket"),
		})
		if err := ws.Start(); err != nil {
			_ = ws.Close()
			return fmt.Errorf("websocket: %w", err)
		}
		out = append(out, ws)
	}
	defer out.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(recovery.Task("receiver", func() error { return rcv.Run(gctx, in) }))
	g.Go(recovery.Task("publish", func() error { return pipeline.Publish(gctx, rcv.Results(), out, mode) }))

	err = g.Wait()
	if ctx.Err() != nil {
		logger.Info("detect stopped")
		return nil
	}
	return err
}

// openSource returns the sample stream and its rate: the WAV file named by
// --in, or the capture device. cleanup releases whatever was opened.
func openSource(ctx context.Context, cmd *cobra.Command, rate, chunk int, capCfg audio.Config) (<-chan []int16, int, func(), error) {
	path, _ := cmd.Flags().GetString("in")
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, 0, nil, err
		}
		defer f.Close()
		samples, fileRate, err := audio.ReadWAV(f)
		if err != nil {
			return nil, 0, nil, fmt.Errorf("read %s: %w", path, err)
		}
		return chunks(ctx, samples, chunk), fileRate, func() {}, nil
	}

	c := audio.New(capCfg)
	if err := c.Init(); err != nil {
		return nil, 0, nil, fmt.Errorf("audio init: %w", err)
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Close()
		return nil, 0, nil, fmt.Errorf("audio start: %w", err)
	}
	return c.Samples, rate, func() { _ = c.Close() }, nil
}

// chunks streams samples in pieces of n and closes the channel at the end.
func chunks(ctx context.Context, samples []int16, n int) <-chan []int16 {
	out := make(chan []int16)
	go func() {
		defer close(out)
		for len(samples) > 0 {
			k := min(n, len(samples))
			select {
			case out <- samples[:k]:
			case <-ctx.Done():
				return
			}
			samples = samples[k:]
		}
	}()
	return out
}
