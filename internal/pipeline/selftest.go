// internal/pipeline/selftest.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ColonelBlimp/dtmfcodec/internal/dsp"
	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
	"github.com/ColonelBlimp/dtmfcodec/internal/testbench"
)

// Outcome is the verdict for one self-test input.
type Outcome struct {
	Name string
	Want dtmf.Symbol
	Got  dsp.Result
	Pass bool
}

// Summary counts passed and failed outcomes.
func Summary(outcomes []Outcome) (passed, failed int) {
	for _, o := range outcomes {
		if o.Pass {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

// RunTestbench streams each case through the receiver for blocks blocks
// and checks every result against the expected symbol. The receiver must
// not have been run before.
func RunTestbench(ctx context.Context, rcv *Receiver, gen *testbench.Generator, cases []testbench.Case, blocks int) ([]Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	size := rcv.config.Producer.BlockSize
	errc := make(chan error, 1)
	go func() { errc <- rcv.Run(ctx, gen.Stream(ctx, cases, size, blocks)) }()

	outcomes := make([]Outcome, 0, len(cases))
	for _, c := range cases {
		o := Outcome{Name: c.String(), Want: c.Want, Pass: true}
		for b := 0; b < blocks; b++ {
			select {
			case r, ok := <-rcv.Results():
				if !ok {
					return outcomes, fmt.Errorf("receiver stopped early: %w", <-errc)
				}
				o.Got = r
				if r.Symbol != c.Want {
					o.Pass = false
				}
			case <-ctx.Done():
				return outcomes, ctx.Err()
			}
		}
		outcomes = append(outcomes, o)
	}
	cancel()
	<-errc
	return outcomes, nil
}

// RunLoopback requests each symbol from the transmitter and waits up to
// wait for the receiver to report it. Results are read from results, which
// must be fed by the transmitter's output.
func RunLoopback(ctx context.Context, tx *Transmitter, results <-chan dsp.Result, symbols []dtmf.Symbol, wait time.Duration) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(symbols))
	for _, sym := range symbols {
		if err := requestDraining(ctx, tx, sym, results); err != nil {
			return outcomes, err
		}

		o := Outcome{Name: sym.String(), Want: sym}
		deadline := time.NewTimer(wait)
	collect:
		for {
			select {
			case r, ok := <-results:
				if !ok {
					deadline.Stop()
					return outcomes, fmt.Errorf("result stream closed during %v", sym)
				}
				o.Got = r
				if r.Symbol == sym {
					o.Pass = true
					break collect
				}
			case <-deadline.C:
				break collect
			case <-ctx.Done():
				deadline.Stop()
				return outcomes, ctx.Err()
			}
		}
		deadline.Stop()
		outcomes = append(outcomes, o)

		if err := requestDraining(ctx, tx, dtmf.None, results); err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// requestDraining queues a tone request while discarding stale results, so
// a receiver fed by the transmitter never stalls the transmitter behind it.
func requestDraining(ctx context.Context, tx *Transmitter, sym dtmf.Symbol, results <-chan dsp.Result) error {
	for {
		select {
		case tx.Requests() <- sym:
			return nil
		case _, ok := <-results:
			if !ok {
				return fmt.Errorf("result stream closed before %v", sym)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
