package bytestream

import (
	"net"
	"sync/atomic"
)

// TCPStream wraps a net.Conn (typically a net.TCPConn, but any stream
// socket works) as a Stream.
type TCPStream struct {
	conn  net.Conn
	read  atomic.Uint64
	write atomic.Uint64
}

func NewTCPStream(conn net.Conn) *TCPStream {
	return &TCPStream{conn: conn}
}

// Conn returns the underlying net.Conn, for callers that need to inspect
// transport-level state (e.g. TLS peer certificates for SPIFFE identity
// resolution) beyond the plain Stream contract.
func (s *TCPStream) Conn() net.Conn { return s.conn }

func (s *TCPStream) Read(p []byte) (int, error) {
	n, err := s.conn.Read(p)
	s.read.Add(uint64(n))
	return n, err
}

func (s *TCPStream) Write(p []byte) (int, error) {
	n, err := s.conn.Write(p)
	s.write.Add(uint64(n))
	return n, err
}

// Flush is a no-op: writes to a net.Conn are not internally buffered here.
func (s *TCPStream) Flush() error { return nil }

func (s *TCPStream) Totals() Totals {
	return Totals{BytesRead: s.read.Load(), BytesWritten: s.write.Load()}
}

func (s *TCPStream) Close() error { return s.conn.Close() }
