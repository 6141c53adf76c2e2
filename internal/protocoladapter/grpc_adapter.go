package protocoladapter

import "github.com/ocx/meshrpc/internal/archive"

// GRPCAdapter is the plain msgpack-rpc framing and dispatch logic of
// MsgpackRPC, named distinctly and paired with a bytestream.GRPCStream
// transport instead of a raw TCP/pipe byte stream: the REQUEST/REPLY/NOTIFY
// wire contract doesn't change, only what carries the bytes underneath,
// demonstrating that a Session built against one ProtocolAdapter works
// identically against another. bytestream.GRPCStream does the actual work
// of bridging a bidirectional gRPC stream's message boundaries into the
// plain byte semantics this codec expects.
type GRPCAdapter struct {
	MsgpackRPC
}

// NewGRPCAdapter constructs an adapter for use with a bytestream.GRPCStream
// transport (passed to Init, inherited from the embedded MsgpackRPC).
func NewGRPCAdapter(readCfg, writeCfg archive.Config) *GRPCAdapter {
	return &GRPCAdapter{MsgpackRPC: *NewMsgpackRPC(readCfg, writeCfg)}
}

var _ ProtocolAdapter = (*GRPCAdapter)(nil)
