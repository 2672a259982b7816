// internal/transport/logging.go
package transport

import (
	"sync/atomic"

	"github.com/charmbracelet/log"
)

// Logging writes each event to a logger at info level.
type Logging struct {
	logger *log.Logger
	closed atomic.Bool
}

// NewLogging creates a logging transport.
func NewLogging(logger *log.Logger) *Logging {
	if logger == nil {
		logger = log.Default()
	}
	return &Logging{logger: logger}
}

// Send logs data. Values with a LogFields method are logged as key/value
// pairs.
func (l *Logging) Send(data any) error {
	if l.closed.Load() {
		return ErrClosed
	}
	if f, ok := data.(interface{ LogFields() []any }); ok {
		l.logger.Info("tone", f.LogFields()...)
		return nil
	}
	l.logger.Info("tone", "event", data)
	return nil
}

// Close stops further sends.
func (l *Logging) Close() error {
	l.closed.Store(true)
	return nil
}

var _ Transport = (*Logging)(nil)
