package transport

import (
	"sync"

	"github.com/roach88/geckode/internal/wire"
)

// pipeBuffer bounds frames in flight per direction. Send blocks when the
// peer stops reading, like a socket with a full window.
const pipeBuffer = 64

type pipeEnd struct {
	in     <-chan []byte
	out    chan<- []byte
	done   chan struct{}
	once   *sync.Once
	sendMu sync.Mutex
}

// Pipe returns two connected in-process endpoints. Frames are encoded on
// send and decoded on receive, so both ends see exactly what a websocket
// peer would.
func Pipe() (Conn, Conn) {
	ab := make(chan []byte, pipeBuffer)
	ba := make(chan []byte, pipeBuffer)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &pipeEnd{in: ba, out: ab, done: done, once: once}
	b := &pipeEnd{in: ab, out: ba, done: done, once: once}
	return a, b
}

func (p *pipeEnd) Send(f wire.Frame) error {
	data, err := wire.Encode(f)
	if err != nil {
		return err
	}
	p.sendMu.Lock()
	defer p.sendMu.Unlock()
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.out <- data:
		return nil
	case <-p.done:
		return ErrClosed
	}
}

func (p *pipeEnd) Recv() (wire.Frame, error) {
	select {
	case data := <-p.in:
		return wire.Decode(data)
	case <-p.done:
		select {
		case data := <-p.in:
			return wire.Decode(data)
		default:
			return wire.Frame{}, ErrClosed
		}
	}
}

// Close shuts both directions. Frames already buffered are still
// delivered, then Recv reports ErrClosed.
func (p *pipeEnd) Close() error {
	p.once.Do(func() { close(p.done) })
	return nil
}
