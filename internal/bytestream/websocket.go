package bytestream

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// Upgrader wraps gorilla/websocket's Upgrader with the permissive
// CheckOrigin the teacher's DAG streamer used for local development;
// callers embedding this runtime behind a real origin policy should set
// CheckOrigin explicitly before calling Upgrade.
var Upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// WebSocketStream adapts a *websocket.Conn into a byte-oriented Stream: the
// RPC wire format is framed at the msgpack-rpc layer, not at the WebSocket
// message boundary, so reads may span multiple WS messages and writes are
// coalesced into binary frames on Flush.
type WebSocketStream struct {
	conn *websocket.Conn

	writeMu sync.Mutex
	pending []byte

	readMu sync.Mutex
	readBuf []byte

	read, written atomic.Uint64
}

func NewWebSocketStream(conn *websocket.Conn) *WebSocketStream {
	return &WebSocketStream{conn: conn}
}

// Upgrade accepts a WebSocket handshake and returns a ready-to-use Stream,
// mirroring DAGStreamer.HandleWebSocket's upgrade call.
func Upgrade(w http.ResponseWriter, r *http.Request) (*WebSocketStream, error) {
	conn, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketStream(conn), nil
}

func (s *WebSocketStream) Write(p []byte) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.pending = append(s.pending, p...)
	return len(p), nil
}

// Flush sends everything buffered by Write as a single binary WebSocket
// message.
func (s *WebSocketStream) Flush() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if len(s.pending) == 0 {
		return nil
	}
	if err := s.conn.WriteMessage(websocket.BinaryMessage, s.pending); err != nil {
		return err
	}
	s.written.Add(uint64(len(s.pending)))
	s.pending = s.pending[:0]
	return nil
}

func (s *WebSocketStream) Read(p []byte) (int, error) {
	s.readMu.Lock()
	defer s.readMu.Unlock()
	for len(s.readBuf) == 0 {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		s.readBuf = msg
	}
	n := copy(p, s.readBuf)
	s.readBuf = s.readBuf[n:]
	s.read.Add(uint64(n))
	return n, nil
}

func (s *WebSocketStream) Totals() Totals {
	return Totals{BytesRead: s.read.Load(), BytesWritten: s.written.Load()}
}

func (s *WebSocketStream) Close() error {
	return s.conn.Close()
}
