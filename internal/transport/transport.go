// Package transport moves protocol frames between a channel and a relay.
//
// Conn is message oriented: one Send delivers one frame. The websocket
// implementation carries frames as binary messages; Pipe connects two
// endpoints in process for tests and for a relay embedded in the same
// binary.
package transport

import (
	"context"
	"errors"

	"github.com/roach88/geckode/internal/wire"
)

// ErrClosed is returned by Send and Recv after either side closed.
var ErrClosed = errors.New("transport: connection closed")

// Conn is a bidirectional frame stream.
//
// Thread-safety: Send may be called from several goroutines. Recv must
// only be called from one goroutine at a time. Close is idempotent and
// unblocks a pending Recv.
type Conn interface {
	Send(f wire.Frame) error
	Recv() (wire.Frame, error)
	Close() error
}

// Dialer opens a Conn to a named channel.
type Dialer interface {
	Dial(ctx context.Context, channel, token string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, channel, token string) (Conn, error)

// Dial implements Dialer.
func (f DialerFunc) Dial(ctx context.Context, channel, token string) (Conn, error) {
	return f(ctx, channel, token)
}
