package domain

import (
	"errors"
	"fmt"
)

var (
	ErrBackpressure  = errors.New("backpressure")
	ErrQueueFull     = errors.New("inbound queue full")
	ErrNoSubprotocol = errors.New("sub-protocol not negotiated")
)

// ConnectionError is returned when a peer is unreachable or rejects the handshake.
// The endpoint is unusable; callers retry by dialing again.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SendError is returned when sending on an endpoint that is not open.
type SendError struct {
	State State
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send on %s endpoint", e.State)
}
