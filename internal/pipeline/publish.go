// internal/pipeline/publish.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ColonelBlimp/dtmfcodec/internal/dsp"
	"github.com/ColonelBlimp/dtmfcodec/internal/dtmf"
	"github.com/ColonelBlimp/dtmfcodec/internal/transport"
)

// PublishMode selects which results become events.
type PublishMode int

const (
	// PublishChanges emits an event only when the symbol changes.
	PublishChanges PublishMode = iota
	// PublishAll emits one event per analyzed block.
	PublishAll
)

// ParsePublishMode maps a config string to a PublishMode.
func ParsePublishMode(s string) (PublishMode, error) {
	switch s {
	case "changes", "":
		return PublishChanges, nil
	case "all":
		return PublishAll, nil
	}
	return 0, fmt.Errorf("unknown publish mode %q", s)
}

// Event is a tone result as delivered to transports.
type Event struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Low      float64   `json:"low"`
	High     float64   `json:"high"`
	Symbol   string    `json:"symbol"`
	Detected bool      `json:"detected"`
}

// NewEvent wraps a result.
func NewEvent(seq uint64, r dsp.Result) Event {
	e := Event{Seq: seq, Time: time.Now(), Low: r.Low, High: r.High, Detected: r.Detected()}
	if e.Detected {
		e.Symbol = r.Symbol.String()
	}
	return e
}

// LogFields returns the event as logger key/value pairs.
func (e Event) LogFields() []any {
	sym := e.Symbol
	if !e.Detected {
		sym = dtmf.None.String()
	}
	return []any{"seq", e.Seq, "symbol", sym, "low", e.Low, "high", e.High}
}

// Publish forwards results to t until results is closed or ctx is done.
// Transport errors are returned; a closed results channel returns nil.
func Publish(ctx context.Context, results <-chan dsp.Result, t transport.Transport, mode PublishMode) error {
	var seq uint64
	last := dtmf.None
	first := true
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-results:
			if !ok {
				return nil
			}
			seq++
			if mode == PublishChanges && !first && r.Symbol == last {
				continue
			}
			first = false
			last = r.Symbol
			if err := t.Send(NewEvent(seq, r)); err != nil {
				return fmt.Errorf("publish result %d: %w", seq, err)
			}
		}
	}
}
