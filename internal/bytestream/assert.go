package bytestream

var (
	_ Stream = (*PipeStream)(nil)
	_ Stream = (*TCPStream)(nil)
	_ Stream = (*WebSocketStream)(nil)
)
