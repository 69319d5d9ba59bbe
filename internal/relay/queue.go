package relay

import (
	"sync"

	"github.com/roach88/geckode/internal/wire"
)

// frameQueue is a thread-safe FIFO of outbound frames for one member.
//
// The queue is unbounded so a slow member never blocks the room; the
// member's writer goroutine drains it at the transport's pace.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the writer loop.
type frameQueue struct {
	mu     sync.Mutex
	frames []wire.Frame
	closed bool
	signal chan struct{} // buffered, size 1
}

func newFrameQueue() *frameQueue {
	return &frameQueue{
		frames: make([]wire.Frame, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a frame to the back of the queue.
// Returns false if the queue is closed.
func (q *frameQueue) Enqueue(f wire.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.frames = append(q.frames, f)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front frame without blocking.
func (q *frameQueue) TryDequeue() (wire.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.frames) == 0 {
		return wire.Frame{}, false
	}

	f := q.frames[0]
	// Drop the reference so delta payloads can be collected.
	q.frames[0] = wire.Frame{}
	if len(q.frames) == 1 {
		q.frames = q.frames[:0]
	} else {
		q.frames = q.frames[1:]
	}

	return f, true
}

// Wait returns a channel that signals when frames may be available. It is
// closed by Close.
func (q *frameQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *frameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// Closed reports whether Close was called.
func (q *frameQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close stops accepting frames and wakes the writer.
func (q *frameQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
