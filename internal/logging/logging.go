// internal/logging/logging.go
package logging

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Prefix is shown on every line written by the application logger.
const Prefix = "dtmfcodec"

// ParseLevel maps a config string to a log level. The empty string is info.
func ParseLevel(s string) (log.Level, error) {
	if strings.TrimSpace(s) == "" {
		return log.InfoLevel, nil
	}
	lvl, err := log.ParseLevel(strings.ToLower(s))
	if err != nil {
		return log.InfoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

// New creates the application logger writing to w.
func New(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:           level,
		Prefix:          Prefix,
		ReportTimestamp: true,
		TimeFormat:      time.TimeOnly,
	})
}

// Component returns a child logger tagged with the component name.
func Component(l *log.Logger, name string) *log.Logger {
	return l.With("component", name)
}

// Discard returns a logger that writes nothing.
func Discard() *log.Logger {
	return log.New(io.Discard)
}
