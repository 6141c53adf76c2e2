package bytestream

import (
	"io"
	"sync"
	"sync/atomic"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

// grpcStream is the minimal bidi-streaming contract both grpc.ClientStream
// and grpc.ServerStream satisfy, so GRPCStream works with either side of a
// tunneled call without depending on a generated service definition.
type grpcStream interface {
	SendMsg(m any) error
	RecvMsg(m any) error
}

// GRPCStream is a Stream that tunnels raw bytes over a bidirectional gRPC
// stream, one wrapperspb.BytesValue per gRPC message. Grounded on
// WebSocketStream's message-boundary bridging in this same package: a
// caller reading/writing through Stream's plain byte semantics doesn't
// know messages arrive as discrete framed units underneath, so outgoing
// writes accumulate until Flush sends them as one message, and incoming
// reads drain a pending message's bytes before asking the stream for
// another.
type GRPCStream struct {
	stream grpcStream

	writeMu  sync.Mutex
	writeBuf []byte

	readMu  sync.Mutex
	readBuf []byte

	totalRead    atomic.Uint64
	totalWritten atomic.Uint64
	closed       atomic.Bool
}

// NewGRPCStream wraps an already-established bidi gRPC stream (either a
// grpc.ClientStream from a generic streaming call, or the grpc.ServerStream
// a streaming handler receives).
func NewGRPCStream(stream grpcStream) *GRPCStream {
	return &GRPCStream{stream: stream}
}

func (g *GRPCStream) Write(p []byte) (int, error) {
	if g.closed.Load() {
		return 0, ErrClosed
	}
	g.writeMu.Lock()
	g.writeBuf = append(g.writeBuf, p...)
	g.writeMu.Unlock()
	g.totalWritten.Add(uint64(len(p)))
	return len(p), nil
}

// Flush sends every byte buffered since the last Flush as one gRPC message.
// A ProtocolAdapter's Flush calls this; a session with autoflush on flushes
// after every REQUEST/REPLY/NOTIFY frame it sends, so each gRPC message then
// carries exactly one RPC frame.
func (g *GRPCStream) Flush() error {
	g.writeMu.Lock()
	if len(g.writeBuf) == 0 {
		g.writeMu.Unlock()
		return nil
	}
	payload := g.writeBuf
	g.writeBuf = nil
	g.writeMu.Unlock()

	return g.stream.SendMsg(wrapperspb.Bytes(payload))
}

func (g *GRPCStream) Read(dst []byte) (int, error) {
	g.readMu.Lock()
	defer g.readMu.Unlock()

	for len(g.readBuf) == 0 {
		if g.closed.Load() {
			return 0, io.EOF
		}
		var msg wrapperspb.BytesValue
		if err := g.stream.RecvMsg(&msg); err != nil {
			if err == io.EOF {
				g.closed.Store(true)
			}
			return 0, err
		}
		g.readBuf = append(g.readBuf, msg.GetValue()...)
	}

	n := copy(dst, g.readBuf)
	g.readBuf = g.readBuf[n:]
	g.totalRead.Add(uint64(n))
	return n, nil
}

func (g *GRPCStream) Totals() Totals {
	return Totals{BytesRead: g.totalRead.Load(), BytesWritten: g.totalWritten.Load()}
}

// Close marks the stream closed locally; the underlying gRPC stream's own
// lifecycle (CloseSend, context cancellation) is the caller's
// responsibility, the same division WebSocketStream draws with its
// *websocket.Conn.
func (g *GRPCStream) Close() error {
	g.closed.Store(true)
	return nil
}

var _ Stream = (*GRPCStream)(nil)
