package bytestream

import (
	"google.golang.org/grpc"
)

// tunnelServiceName is the fully-qualified service name a GRPCStream
// transport is registered under; there is no .proto source for it, since
// GRPCStream bridges raw bytes rather than a typed RPC surface, so the
// grpc.ServiceDesc below is written out by hand instead of generated by
// protoc-gen-go-grpc.
const tunnelServiceName = "meshrpc.Tunnel"

// RegisterTunnelService wires a bidirectional streaming gRPC endpoint onto
// srv: every client that opens the stream gets a GRPCStream handed to
// handler, typically to build a Session's Transport over
// (protocoladapter.GRPCAdapter expects exactly this Stream shape).
// handler should block for the lifetime of the connection; when it
// returns, the stream handler returns and gRPC closes the RPC.
func RegisterTunnelService(srv *grpc.Server, handler func(*GRPCStream)) {
	srv.RegisterService(&grpc.ServiceDesc{
		ServiceName: tunnelServiceName,
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{
			{
				StreamName:    "Tunnel",
				Handler:       tunnelStreamHandler(handler),
				ServerStreams: true,
				ClientStreams: true,
			},
		},
		Metadata: "meshrpc/tunnel.proto",
	}, nil)
}

func tunnelStreamHandler(handler func(*GRPCStream)) func(srv any, stream grpc.ServerStream) error {
	return func(_ any, stream grpc.ServerStream) error {
		handler(NewGRPCStream(stream))
		return nil
	}
}
