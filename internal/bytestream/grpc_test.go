package bytestream_test

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/ocx/meshrpc/internal/bytestream"
)

// fakeGRPCStream is a minimal SendMsg/RecvMsg pair standing in for a real
// bidi grpc.ClientStream/grpc.ServerStream, so GRPCStream can be exercised
// without a running gRPC server.
type fakeGRPCStream struct {
	out chan []byte
	in  chan []byte
}

func newFakeGRPCPair() (a, b *fakeGRPCStream) {
	c1 := make(chan []byte, 8)
	c2 := make(chan []byte, 8)
	return &fakeGRPCStream{out: c1, in: c2}, &fakeGRPCStream{out: c2, in: c1}
}

func (f *fakeGRPCStream) SendMsg(m any) error {
	bv, ok := m.(*wrapperspb.BytesValue)
	if !ok {
		return errors.New("fakeGRPCStream: unexpected message type")
	}
	f.out <- bv.GetValue()
	return nil
}

func (f *fakeGRPCStream) RecvMsg(m any) error {
	bv, ok := m.(*wrapperspb.BytesValue)
	if !ok {
		return errors.New("fakeGRPCStream: unexpected message type")
	}
	payload, ok := <-f.in
	if !ok {
		return io.EOF
	}
	bv.Value = payload
	return nil
}

func TestGRPCStream_WriteFlushThenRead(t *testing.T) {
	a, b := newFakeGRPCPair()
	streamA := bytestream.NewGRPCStream(a)
	streamB := bytestream.NewGRPCStream(b)

	_, err := streamA.Write([]byte("hello "))
	require.NoError(t, err)
	_, err = streamA.Write([]byte("world"))
	require.NoError(t, err)
	require.NoError(t, streamA.Flush())

	buf := make([]byte, 11)
	n, err := streamB.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 11, n)
	require.Equal(t, "hello world", string(buf))
	require.Equal(t, uint64(11), streamA.Totals().BytesWritten)
	require.Equal(t, uint64(11), streamB.Totals().BytesRead)
}

func TestGRPCStream_ReadSpansMultipleMessages(t *testing.T) {
	a, b := newFakeGRPCPair()
	streamA := bytestream.NewGRPCStream(a)
	streamB := bytestream.NewGRPCStream(b)

	_, _ = streamA.Write([]byte("ab"))
	require.NoError(t, streamA.Flush())
	_, _ = streamA.Write([]byte("cd"))
	require.NoError(t, streamA.Flush())

	buf := make([]byte, 1)
	var got []byte
	for len(got) < 4 {
		n, err := streamB.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	require.Equal(t, "abcd", string(got))
}

func TestGRPCStream_FlushWithNothingBufferedIsNoop(t *testing.T) {
	a, _ := newFakeGRPCPair()
	stream := bytestream.NewGRPCStream(a)
	require.NoError(t, stream.Flush())
}

func TestRegisterTunnelService_RegistersWithoutPanic(t *testing.T) {
	srv := grpc.NewServer()
	bytestream.RegisterTunnelService(srv, func(s *bytestream.GRPCStream) {})
	srv.Stop()
}
