// internal/dialer/dialer.go
package dialer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
)

var (
	// ErrInvalidKey indicates a character that is neither dialable nor a separator
	ErrInvalidKey = errors.New("invalid key")
	// ErrShortNumber indicates '+' was not followed by enough digits
	ErrShortNumber = errors.New("'+' must be followed by a full number")
	// ErrInvalidSpeedDial indicates the speed dial entry holds non-digits
	ErrInvalidSpeedDial = errors.New("speed dial number must be digits only")
)

const (
	// NumberLength is the digit count of a speed dial or '+' number.
	NumberLength = 10
	// DefaultSpeedDial is dialed for the A-D keys.
	DefaultSpeedDial = "2246250000"
	DefaultOn        = 200 * time.Millisecond
	DefaultOff       = 10 * time.Millisecond
)

// Step is one tone request held for Duration. Symbol dtmf.None is a key
// release.
type Step struct {
	Symbol   dtmf.Symbol
	Duration time.Duration
}

// Plan turns keypad and serial input into timed tone requests.
type Plan struct {
	// SpeedDial is the number dialed for A-D (from config: speed_dial)
	SpeedDial string
	// On is how long each digit sounds (from config: tone_on_ms)
	On time.Duration
	// Off is the gap after each digit (from config: tone_off_ms)
	Off time.Duration
}

// DefaultPlan returns the plan with the stock speed dial and timings.
func DefaultPlan() Plan {
	return Plan{SpeedDial: DefaultSpeedDial, On: DefaultOn, Off: DefaultOff}
}

// Validate checks the speed dial entry and timings.
func (p Plan) Validate() error {
	if len(p.SpeedDial) != NumberLength || !allDigits(p.SpeedDial) {
		return fmt.Errorf("%w: %q", ErrInvalidSpeedDial, p.SpeedDial)
	}
	if p.On <= 0 || p.Off < 0 {
		return fmt.Errorf("tone on time must be positive and off time not negative, got %v/%v", p.On, p.Off)
	}
	return nil
}

func (p Plan) press(steps []Step, s dtmf.Symbol) []Step {
	return append(steps, Step{Symbol: s, Duration: p.On}, Step{Symbol: dtmf.None, Duration: p.Off})
}

// Expand converts input into steps.
//
//   - 'a'-'d' and 'A'-'D' dial the speed dial number
//   - '+' dials the next NumberLength digits
//   - '0'-'9', '*' and '#' are pressed once
//   - '\x00' releases the key
//   - spaces, '-', '(', ')' and '.' are ignored
func (p Plan) Expand(input string) ([]Step, error) {
	var steps []Step
	for i := 0; i < len(input); i++ {
		c := input[i]
		switch {
		case (c >= 'a' && c <= 'd') || (c >= 'A' && c <= 'D'):
			for j := 0; j < len(p.SpeedDial); j++ {
				steps = p.press(steps, dtmf.Symbol(p.SpeedDial[j]))
			}
		case c == '+':
			number, n := collectDigits(input[i+1:], NumberLength)
			if len(number) < NumberLength {
				return nil, fmt.Errorf("%w: got %q", ErrShortNumber, number)
			}
			for j := 0; j < len(number); j++ {
				steps = p.press(steps, dtmf.Symbol(number[j]))
			}
			i += n
		case (c >= '0' && c <= '9') || c == '*' || c == '#':
			steps = p.press(steps, dtmf.Symbol(c))
		case c == 0:
			steps = append(steps, Step{Symbol: dtmf.None})
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.':
		default:
			return nil, fmt.Errorf("%w %q at position %d", ErrInvalidKey, c, i)
		}
	}
	return steps, nil
}

// Keys converts input into steps pressing every keypad symbol literally,
// including 'A'-'D'. Lower case letters are accepted and separators are
// ignored as in Expand.
func (p Plan) Keys(input string) ([]Step, error) {
	var steps []Step
	for i := 0; i < len(input); i++ {
		c := input[i]
		if c >= 'a' && c <= 'd' {
			c -= 'a' - 'A'
		}
		switch {
		case dtmf.Symbol(c).Valid():
			steps = p.press(steps, dtmf.Symbol(c))
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.':
		default:
			return nil, fmt.Errorf("%w %q at position %d", ErrInvalidKey, c, i)
		}
	}
	return steps, nil
}

// collectDigits takes up to want digits from s, skipping separators, and
// returns them with the number of bytes consumed.
func collectDigits(s string, want int) (string, int) {
	var digits []byte
	i := 0
	for ; i < len(s) && len(digits) < want; i++ {
		switch c := s[i]; {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ' || c == '-' || c == '(' || c == ')' || c == '.':
		default:
			return string(digits), i
		}
	}
	return string(digits), i
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Total returns the summed duration of steps.
func Total(steps []Step) time.Duration {
	var d time.Duration
	for _, s := range steps {
		d += s.Duration
	}
	return d
}

// Requester accepts tone requests. *synth.Synthesizer implements it.
type Requester interface {
	Request(ctx context.Context, sym dtmf.Symbol) error
}

// Flusher is a Requester whose queued output can be waited for.
// *pipeline.Transmitter implements it.
type Flusher interface {
	Requester
	Flush(ctx context.Context) error
}

// Play issues each step and holds it for its duration. Deadlines are
// absolute from the start so request latency does not accumulate. When out
// is a Flusher, a key release waits for the queued tone to finish playing
// and the off time counts from there, so the line is silent for the full
// gap.
func Play(ctx context.Context, steps []Step, out Requester, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	next := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, s := range steps {
		if err := out.Request(ctx, s.Symbol); err != nil {
			return err
		}
		logger.Debug("key", "symbol", s.Symbol, "hold", s.Duration)

		if f, ok := out.(Flusher); ok && s.Symbol == dtmf.None {
			if err := f.Flush(ctx); err != nil {
				return err
			}
			next = time.Now()
		}
		next = next.Add(s.Duration)
		timer.Reset(time.Until(next))
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
