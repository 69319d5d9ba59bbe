package channel

import (
	"errors"
	"fmt"
)

// ErrChannelDisconnected is logged when the transport drops. The channel
// reconnects with backoff; editing continues offline meanwhile.
var ErrChannelDisconnected = errors.New("channel disconnected")

// ErrAlreadyConnected is returned by Connect while a session is active.
var ErrAlreadyConnected = errors.New("channel already connected")

// HydrationConflictError reports that the relay's authoritative state
// could not be merged. The session ends; the caller has to rebuild the
// local graph from scratch before connecting again.
type HydrationConflictError struct {
	Channel string
	Err     error
}

func (e *HydrationConflictError) Error() string {
	return fmt.Sprintf("hydration of channel %s failed: %v", e.Channel, e.Err)
}

func (e *HydrationConflictError) Unwrap() error {
	return e.Err
}

// IsHydrationConflict reports whether err ended a session during hydration.
func IsHydrationConflict(err error) bool {
	var he *HydrationConflictError
	return errors.As(err, &he)
}

// RelayError is an error frame the relay sent instead of the expected
// reply.
type RelayError struct {
	Code    string
	Message string
}

func (e *RelayError) Error() string {
	return fmt.Sprintf("relay refused: %s: %s", e.Code, e.Message)
}
