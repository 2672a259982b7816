// internal/dma/signal.go
package dma

import "context"

// Signal is a binary semaphore between an interrupt handler and one task.
// Give never blocks; extra gives before a Take collapse into one.
type Signal struct {
	ch chan struct{}
}

func NewSignal() *Signal {
	return &Signal{ch: make(chan struct{}, 1)}
}

// Give releases the permit. Safe to call from interrupt context.
func (s *Signal) Give() {
	select {
	case s.ch <- struct{}{}:
	default:
	}
}

// Take blocks until the permit is given. There is no timeout; ctx only
// ends the wait on shutdown.
func (s *Signal) Take(ctx context.Context) error {
	select {
	case <-s.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
