package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrConnect is matched by every *ConnectError.
	ErrConnect  = errors.New("transport: no reachable endpoint")
	ErrNotAlive = errors.New("transport: connection is not alive")
)

type ConnectError struct {
	Address string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("transport: connect %s: %v", e.Address, e.Err)
}

func (e *ConnectError) Unwrap() []error {
	return []error{ErrConnect, e.Err}
}

// IOError is a read or write fault. The connection is already closed when
// it is returned.
type IOError struct {
	Op  string
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("transport: %s: %v", e.Op, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
