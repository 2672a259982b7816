// internal/transport/transport.go
package transport

import "errors"

// ErrClosed indicates a send on a closed transport
var ErrClosed = errors.New("transport closed")

// Transport delivers tone events to an outside consumer. Implementations
// must be safe for concurrent use.
type Transport interface {
	Send(data any) error
	Close() error
}

// Multi fans one event out to several transports.
type Multi []Transport

// Send delivers data to every transport and joins their errors.
func (m Multi) Send(data any) error {
	var errs []error
	for _, t := range m {
		if err := t.Send(data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every transport and joins their errors.
func (m Multi) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ Transport = Multi(nil)
