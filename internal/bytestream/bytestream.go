// Package bytestream defines the transport abstraction that a
// ProtocolAdapter reads and writes through: a plain byte pipe with no
// framing opinions of its own, plus reference implementations over a raw
// net.Conn and over a WebSocket connection.
package bytestream

import (
	"errors"
	"io"
	"sync"
)

// ErrClosed is returned by Read/Write once Close has been called.
var ErrClosed = errors.New("bytestream: closed")

// Totals reports cumulative byte counters, used by SessionGroup to keep its
// aggregate read/write accounting monotonic across membership churn.
type Totals struct {
	BytesRead    uint64
	BytesWritten uint64
}

// Stream is the minimal transport contract a ProtocolAdapter drives.
type Stream interface {
	io.Reader
	io.Writer

	// Flush commits any buffered writes. Unbuffered backings (PipeStream,
	// TCPStream) no-op; message-oriented backings (WebSocket, gRPC) hold
	// every Write until Flush sends it as one message.
	Flush() error

	// Totals reports cumulative byte counts since the stream was opened.
	Totals() Totals

	Close() error
}

// PipeStream is an in-memory Stream, primarily for tests and for
// same-process session pairs; it never touches the network.
type PipeStream struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    []byte
	closed bool
	totals Totals
	peer   *PipeStream
}

// NewPipe returns two PipeStreams, each other's peer: bytes written to one
// are read from the other.
func NewPipe() (a, b *PipeStream) {
	a = &PipeStream{}
	b = &PipeStream{}
	a.cond = sync.NewCond(&a.mu)
	b.cond = sync.NewCond(&b.mu)
	a.peer, b.peer = b, a
	return a, b
}

func (p *PipeStream) Write(data []byte) (int, error) {
	if p.peer == nil {
		return 0, errors.New("bytestream: unpaired PipeStream")
	}
	peer := p.peer
	peer.mu.Lock()
	defer peer.mu.Unlock()
	if peer.closed {
		return 0, ErrClosed
	}
	peer.buf = append(peer.buf, data...)
	peer.cond.Broadcast()
	p.totals.BytesWritten += uint64(len(data))
	return len(data), nil
}

func (p *PipeStream) Read(dst []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.buf) == 0 && !p.closed {
		p.cond.Wait()
	}
	if len(p.buf) == 0 && p.closed {
		return 0, io.EOF
	}
	n := copy(dst, p.buf)
	p.buf = p.buf[n:]
	p.totals.BytesRead += uint64(n)
	return n, nil
}

func (p *PipeStream) Flush() error { return nil }

func (p *PipeStream) Totals() Totals {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totals
}

func (p *PipeStream) Close() error {
	p.mu.Lock()
	p.closed = true
	p.cond.Broadcast()
	p.mu.Unlock()
	return nil
}
