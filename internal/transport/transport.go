// Package transport defines the non-blocking datagram transport consumed by
// stacks, plus UDP, unix datagram and in-memory implementations.
//
// Every call returns immediately. Receive reports "nothing available" as a
// nil datagram with a nil error; Send reports a full buffer as ErrWouldBlock.
package transport

import (
	"errors"
)

var (
	// ErrWouldBlock means the datagram was not sent because buffers are full.
	// The caller should try again later.
	ErrWouldBlock = errors.New("transport: would block")
	// ErrPeerGone means the destination no longer exists (refused, socket
	// file removed). Retrying is pointless.
	ErrPeerGone = errors.New("transport: peer gone")
	// ErrClosed is returned by operations on a transport that is not open.
	ErrClosed = errors.New("transport: closed")
)

// Datagram is an unreliable, unordered, message oriented transport.
type Datagram interface {
	// Open binds the transport. It must be called before Send or Receive.
	Open() error
	// Send transmits b to addr without blocking.
	Send(b []byte, addr string) (int, error)
	// Receive returns the next queued datagram and its source address, or
	// nil, "", nil when nothing is queued.
	Receive() ([]byte, string, error)
	// Close releases the transport.
	Close() error
	// Addr returns the bound local address.
	Addr() string
}

// Class is the outcome of triaging a send error.
type Class int

const (
	// Sent means no error.
	Sent Class = iota
	// Retry means the datagram should be queued again for the next cycle.
	Retry
	// Reap means the destination is gone and its remote should be removed.
	Reap
	// Fatal means the error is not understood and must be surfaced.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Sent:
		return "sent"
	case Retry:
		return "retry"
	case Reap:
		return "reap"
	default:
		return "fatal"
	}
}

// Classify triages a send error. Transports translate OS errors into the
// sentinels above, with anything else treated as fatal.
func Classify(err error) Class {
	switch {
	case err == nil:
		return Sent
	case errors.Is(err, ErrWouldBlock):
		return Retry
	case errors.Is(err, ErrPeerGone):
		return Reap
	default:
		return Fatal
	}
}
