// cmd/selftest.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ColonelBlimp/dtmfcodec/internal/audio"
	"github.com/ColonelBlimp/dtmfcodec/internal/config"
	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
	"github.com/ColonelBlimp/dtmfcodec/internal/pipeline"
	"github.com/ColonelBlimp/dtmfcodec/internal/recovery"
	"github.com/ColonelBlimp/dtmfcodec/internal/testbench"
)

// ErrSelfTestFailed indicates at least one self-test case failed
var ErrSelfTestFailed = errors.New("self-test failed")

// loopbackDepth is the number of DAC chunks queued between the simulated
// channel and the receiver.
const loopbackDepth = 4

var selftestCmd = &cobra.Command{
	Use:   "selftest",
	Short: "Check the detector against known tones",
	Long: `Feeds every single row tone, column tone and keypad pair through the
block producer and detector and reports pass/fail per case. With --loopback
the synthesizer output is routed back into a receiver running at the DAC
rate and every key is checked end to end.`,
	Args: cobra.NoArgs,
	RunE: runSelftest,
}

func init() {
	selftestCmd.Flags().Bool("loopback", false, "loop the synthesizer output back into the detector")
	selftestCmd.Flags().Duration("wait", time.Second, "how long to wait for each key in loopback mode")
}

func runSelftest(cmd *cobra.Command, _ []string) error {
	s, logger, err := loadSettings(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var outcomes []pipeline.Outcome
	if loop, _ := cmd.Flags().GetBool("loopback"); loop {
		wait, _ := cmd.Flags().GetDuration("wait")
		outcomes, err = selftestLoopback(ctx, s, wait, logger)
	} else {
		outcomes, err = selftestBench(ctx, s, logger)
	}
	if err != nil {
		return err
	}

	report(cmd.OutOrStdout(), outcomes)
	if _, failed := pipeline.Summary(outcomes); failed > 0 {
		return fmt.Errorf("%w: %d of %d cases", ErrSelfTestFailed, failed, len(outcomes))
	}
	return nil
}

func selftestBench(ctx context.Context, s *config.Settings, logger *log.Logger) ([]pipeline.Outcome, error) {
	tbCfg, err := testbenchConfig(s, s.SampleRate)
	if err != nil {
		return nil, err
	}
	gen, err := testbench.New(tbCfg)
	if err != nil {
		return nil, err
	}
	rcv, closeFFT, err := newReceiver(s, s.SampleRate, logger)
	if err != nil {
		return nil, err
	}
	defer closeFFT()

	return pipeline.RunTestbench(ctx, rcv, gen, testbench.Cases(), s.TestbenchBlocks)
}

func selftestLoopback(ctx context.Context, s *config.Settings, wait time.Duration, logger *log.Logger) ([]pipeline.Outcome, error) {
	loop := audio.NewLoopback(loopbackDepth)
	cfg, err := transmitterConfig(s, loop, false, logger)
	if err != nil {
		return nil, err
	}
	tx, err := pipeline.NewTransmitter(cfg)
	if err != nil {
		return nil, err
	}
	rcv, closeFFT, err := newReceiver(s, s.DACSampleRate, logger)
	if err != nil {
		return nil, err
	}
	defer closeFFT()

	var outcomes []pipeline.Outcome
	err = supervise(ctx, []task{
		{"transmitter", tx.Run},
		{"receiver", func(ctx context.Context) error { return rcv.Run(ctx, loop.Samples()) }},
	}, func(ctx context.Context) error {
		var err error
		outcomes, err = pipeline.RunLoopback(ctx, tx, rcv.Results(), dtmf.Symbols(), wait)
		return err
	}, func() {
		_ = loop.Close()
		tx.Controller().Wait()
	})
	return outcomes, err
}

// task is a named background goroutine of a command.
type task struct {
	name string
	run  func(ctx context.Context) error
}

// supervise runs tasks under an errgroup for as long as body runs, then
// cancels them, calls stop and waits. A task failure other than
// cancellation is returned in place of body's error.
func supervise(ctx context.Context, tasks []task, body func(ctx context.Context) error, stop func()) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(recovery.Task(t.name, func() error { return t.run(gctx) }))
	}

	err := body(gctx)
	cancel()
	if stop != nil {
		stop()
	}
	if taskErr := g.Wait(); taskErr != nil && !errors.Is(taskErr, context.Canceled) {
		return taskErr
	}
	return err
}

func report(w io.Writer, outcomes []pipeline.Outcome) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tWANT\tLOW\tHIGH\tGOT\tRESULT")
	for _, o := range outcomes {
		verdict := "PASS"
		if !o.Pass {
			verdict = "FAIL"
		}
		fmt.Fprintf(tw, "%s\t%v\t%g\t%g\t%v\t%s\n", o.Name, o.Want, o.Got.Low, o.Got.High, o.Got.Symbol, verdict)
	}
	_ = tw.Flush()

	passed, failed := pipeline.Summary(outcomes)
	fmt.Fprintf(w, "%d passed, %d failed\n", passed, failed)
}
