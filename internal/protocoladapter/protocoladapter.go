// Package protocoladapter implements the pluggable wire-protocol layer: it
// frames REQUEST/REPLY/NOTIFY messages and drives a Proxy (implemented by
// internal/session) through the decode and reply steps, without either side
// knowing the other's concrete type.
package protocoladapter

import (
	"fmt"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/metadata"
	"github.com/ocx/meshrpc/internal/msgpack"
	"github.com/ocx/meshrpc/internal/objectview"
)

// State is the outcome of handling one inbound message.
type State int

const (
	StateOkay State = iota
	StateWarningInvalidFormat
	StateWarningUnknownMethod
	StateWarningInvalidParamCount
	StateWarningInvalidParamType
	StateExpired
)

func (s State) String() string {
	switch s {
	case StateOkay:
		return "okay"
	case StateWarningInvalidFormat:
		return "warning: invalid message format"
	case StateWarningUnknownMethod:
		return "warning: unknown method"
	case StateWarningInvalidParamCount:
		return "warning: invalid parameter count"
	case StateWarningInvalidParamType:
		return "warning: invalid parameter type"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// IsWarning reports whether s is recoverable at the session level (the
// stream stays aligned; only this one message was rejected).
func (s State) IsWarning() bool {
	return s == StateWarningInvalidFormat || s == StateWarningUnknownMethod ||
		s == StateWarningInvalidParamCount || s == StateWarningInvalidParamType
}

const (
	errMethodNotFound   = "ERROR_METHOD_NOT_EXIST"
	errInvalidParameter = "invalid parameter"
)

// Proxy is implemented by the session side: it resolves a method name to
// parameter buffers, and once the adapter has restored every argument into
// them, takes over invocation and reply. internal/session's messageProxy is
// the production implementation.
type Proxy interface {
	// RequestParameters resolves method for a REQUEST with the given msgid.
	// ok is false when the method is unknown.
	RequestParameters(method string, msgid int64) (params []objectview.View, ok bool)

	// NotifyParameters resolves method for a NOTIFY. ok is false when the
	// method is unknown (NOTIFY never produces a reply either way).
	NotifyParameters(method string) (params []objectview.View, ok bool)

	// Dispatch hands off control once every parameter for the most recent
	// RequestParameters/NotifyParameters call has been restored: the proxy
	// now owns invoking the handler and (for a request) sending the reply.
	Dispatch()

	// ReplyResult and ReplyError are always invoked once a REPLY frame's
	// msgid has been read, whether or not a pending request is still
	// waiting on it; an implementation that finds no match must still
	// consume exactly one value from r (so the stream stays aligned) and
	// return nil. A non-nil, non-fatal error is treated as a decode
	// warning for this one message; archive.IsFatal errors expire the
	// session, same as everywhere else in this adapter.
	ReplyResult(msgid int64, r archive.Reader) error
	ReplyError(msgid int64, r archive.Reader) error
}

// ProtocolAdapter is the interface a Session drives: it never imports a
// concrete codec, only this contract, so a session built against
// *MsgpackRPC works identically against a *GRPCAdapter.
type ProtocolAdapter interface {
	// Init binds the adapter to a transport; must be called exactly once,
	// before any Handle/Send call.
	Init(stream bytestream.Stream)

	HandleSingleMessage(proxy Proxy) (State, error)

	SendRequest(method string, msgid int64, params []objectview.ConstView) bool
	SendNotify(method string, params []objectview.ConstView) bool
	SendReplyResult(msgid int64, result objectview.ConstView) bool
	SendReplyError(msgid int64, errView objectview.ConstView) bool

	Flush() bool

	// ReleaseKeyMappingOnAbort lets an adapter that maintains its own
	// per-msgid bookkeeping (none of this module's adapters currently do)
	// drop it when a request is aborted before a reply arrives.
	ReleaseKeyMappingOnAbort(msgid int64)
}

type msgtype int64

const (
	msgRequest msgtype = 0
	msgReply   msgtype = 1
	msgNotify  msgtype = 2
)

// MsgpackRPC is the primary ProtocolAdapter: msgpack-encoded
// REQUEST/REPLY/NOTIFY frames over a bytestream.Stream.
type MsgpackRPC struct {
	stream   bytestream.Stream
	w        *msgpack.Writer
	r        *msgpack.Reader
	readCfg  archive.Config
	writeCfg archive.Config
}

// NewMsgpackRPC constructs an adapter with independent read/write archive
// configs, matching the original's separate reader/writer archive_config.
func NewMsgpackRPC(readCfg, writeCfg archive.Config) *MsgpackRPC {
	return &MsgpackRPC{readCfg: readCfg, writeCfg: writeCfg}
}

// Init binds the adapter to stream, constructing fresh codec instances.
func (a *MsgpackRPC) Init(stream bytestream.Stream) {
	a.stream = stream
	a.w = msgpack.NewWriter(stream, a.writeCfg)
	a.r = msgpack.NewReader(stream, a.readCfg)
}

func (a *MsgpackRPC) Flush() bool {
	if err := a.w.Flush(); err != nil {
		return false
	}
	return a.stream.Flush() == nil
}

// HandleSingleMessage reads and dispatches exactly one top-level REQUEST,
// REPLY, or NOTIFY frame.
func (a *MsgpackRPC) HandleSingleMessage(proxy Proxy) (State, error) {
	scope, err := a.r.BeginArray()
	if err != nil {
		return StateExpired, err
	}

	var t int64
	if err := a.r.Read(&t); err != nil {
		_ = a.r.EndArray(scope)
		return StateExpired, err
	}

	switch msgtype(t) {
	case msgReply:
		return a.handleReply(proxy, scope)
	case msgNotify:
		return a.handleNotify(proxy, scope)
	case msgRequest:
		return a.handleRequest(proxy, scope)
	default:
		if n, err := a.r.ElemLeft(); err == nil {
			a.skipAndEnd(scope, n-1)
		} else {
			_ = a.r.EndArray(scope)
		}
		return StateWarningInvalidFormat, fmt.Errorf("protocoladapter: unknown message type %d", t)
	}
}

func (a *MsgpackRPC) handleReply(proxy Proxy, scope archive.ContextKey) (State, error) {
	// ElemLeft reports the array's declared length, untouched by the type
	// field already consumed in HandleSingleMessage: REPLY is always
	// [type, msgid, error_or_null, result_or_null].
	n, err := a.r.ElemLeft()
	if err != nil {
		return StateExpired, err
	}
	if n != 4 {
		a.skipAndEnd(scope, n-1)
		return StateWarningInvalidFormat, nil
	}

	var msgid int64
	if err := a.r.Read(&msgid); err != nil {
		return StateExpired, err
	}

	// Exactly one of error/result is null; whichever branch is taken still
	// leaves one more array element (the other slot) to be drained before
	// the frame is fully consumed.
	var dispatchErr error
	if a.r.IsNullNext() {
		var discard any
		if err := a.r.Read(&discard); err != nil {
			return StateExpired, err
		}
		dispatchErr = proxy.ReplyResult(msgid, a.r)
	} else {
		dispatchErr = proxy.ReplyError(msgid, a.r)
		if err := a.r.SkipValue(); err != nil {
			return StateExpired, err
		}
	}

	if dispatchErr != nil {
		if archive.IsFatal(dispatchErr) {
			return StateExpired, dispatchErr
		}
		_ = a.r.EndArray(scope)
		return StateWarningInvalidParamType, nil
	}

	if err := a.r.EndArray(scope); err != nil {
		return StateWarningInvalidFormat, nil
	}
	return StateOkay, nil
}

func (a *MsgpackRPC) handleNotify(proxy Proxy, scope archive.ContextKey) (State, error) {
	// NOTIFY is always [type, method, params].
	n, err := a.r.ElemLeft()
	if err != nil {
		return StateExpired, err
	}
	if n != 3 {
		a.skipAndEnd(scope, n-1)
		return StateWarningInvalidFormat, nil
	}

	var method string
	if err := a.r.Read(&method); err != nil {
		return StateExpired, err
	}

	params, ok := proxy.NotifyParameters(method)
	if !ok {
		a.skipAndEnd(scope, 1) // the params array itself
		return StateWarningUnknownMethod, nil
	}

	// decodeParams always balances its own BeginArray/EndArray, so the
	// params slot is fully consumed by the time it returns either way.
	st, derr := a.decodeParams(params)
	if st != StateOkay {
		_ = a.r.EndArray(scope)
		return st, derr
	}

	proxy.Dispatch()
	return StateOkay, a.r.EndArray(scope)
}

func (a *MsgpackRPC) handleRequest(proxy Proxy, scope archive.ContextKey) (State, error) {
	// REQUEST is always [type, msgid, method, params].
	n, err := a.r.ElemLeft()
	if err != nil {
		return StateExpired, err
	}
	if n != 4 {
		a.skipAndEnd(scope, n-1)
		return StateWarningInvalidFormat, nil
	}

	var msgid int64
	if err := a.r.Read(&msgid); err != nil {
		return StateExpired, err
	}
	var method string
	if err := a.r.Read(&method); err != nil {
		return StateExpired, err
	}

	params, ok := proxy.RequestParameters(method, msgid)
	if !ok {
		a.skipAndEnd(scope, 1) // the params array itself
		a.sendReplyErrorString(msgid, errMethodNotFound)
		return StateWarningUnknownMethod, nil
	}

	st, _ := a.decodeParams(params)
	if st != StateOkay {
		_ = a.r.EndArray(scope)
		a.sendReplyErrorString(msgid, errInvalidParameter)
		return st, nil
	}

	proxy.Dispatch()
	return StateOkay, a.r.EndArray(scope)
}

// decodeParams reads exactly len(params) positional values out of a nested
// array scope into each View's pointee.
func (a *MsgpackRPC) decodeParams(params []objectview.View) (State, error) {
	scope, err := a.r.BeginArray()
	if err != nil {
		// The array header itself didn't parse: there's no reliable count of
		// bytes to discard, so the stream can no longer be trusted.
		return StateExpired, err
	}
	n, err := a.r.ElemLeft()
	if err != nil {
		return StateExpired, err
	}
	if n != len(params) {
		for j := 0; j < n; j++ {
			if err := a.r.SkipValue(); err != nil {
				return StateExpired, err
			}
		}
		_ = a.r.EndArray(scope)
		return StateWarningInvalidParamCount, nil
	}
	for i, p := range params {
		if err := metadata.Restore(a.r, p.Meta, p.Ptr); err != nil {
			if archive.IsFatal(err) {
				// The reader's scope stack may itself be left unbalanced by a
				// fatal error mid-value; the stream can no longer be trusted,
				// so don't try to keep reading from it.
				return StateExpired, err
			}
			// Drain the params this call never got to, so the trailing bytes
			// of this array don't get misread as the start of the next frame.
			for j := i + 1; j < len(params); j++ {
				if err := a.r.SkipValue(); err != nil {
					return StateExpired, err
				}
			}
			_ = a.r.EndArray(scope)
			return StateWarningInvalidParamType, nil
		}
	}
	return StateOkay, a.r.EndArray(scope)
}

// skipAndEnd discards the remaining elements of scope (known precisely from
// ElemLeft, since nothing but SkipValue has touched the scope yet) before
// closing it, so the next HandleSingleMessage call starts byte-aligned.
func (a *MsgpackRPC) skipAndEnd(scope archive.ContextKey, remaining int) {
	for i := 0; i < remaining; i++ {
		if err := a.r.SkipValue(); err != nil {
			return
		}
	}
	_ = a.r.EndArray(scope)
}

func (a *MsgpackRPC) SendRequest(method string, msgid int64, params []objectview.ConstView) bool {
	if err := a.w.ArrayPush(4); err != nil {
		return false
	}
	_ = a.w.Write(int64(msgRequest))
	_ = a.w.Write(msgid)
	_ = a.w.Write(method)
	if err := a.w.ArrayPush(len(params)); err != nil {
		return false
	}
	for _, p := range params {
		if err := metadata.Archive(a.w, p.Meta, p.Ptr); err != nil {
			return false
		}
	}
	if err := a.w.ArrayPop(); err != nil {
		return false
	}
	return a.w.ArrayPop() == nil
}

func (a *MsgpackRPC) SendNotify(method string, params []objectview.ConstView) bool {
	if err := a.w.ArrayPush(3); err != nil {
		return false
	}
	_ = a.w.Write(int64(msgNotify))
	_ = a.w.Write(method)
	if err := a.w.ArrayPush(len(params)); err != nil {
		return false
	}
	for _, p := range params {
		if err := metadata.Archive(a.w, p.Meta, p.Ptr); err != nil {
			return false
		}
	}
	if err := a.w.ArrayPop(); err != nil {
		return false
	}
	return a.w.ArrayPop() == nil
}

func (a *MsgpackRPC) SendReplyResult(msgid int64, result objectview.ConstView) bool {
	if err := a.w.ArrayPush(4); err != nil {
		return false
	}
	_ = a.w.Write(int64(msgReply))
	_ = a.w.Write(msgid)
	_ = a.w.Write(nil)
	if result.IsEmpty() {
		_ = a.w.Write(nil)
	} else if err := metadata.Archive(a.w, result.Meta, result.Ptr); err != nil {
		return false
	}
	if err := a.w.ArrayPop(); err != nil {
		return false
	}
	return a.w.Flush() == nil
}

func (a *MsgpackRPC) SendReplyError(msgid int64, errView objectview.ConstView) bool {
	if err := a.w.ArrayPush(4); err != nil {
		return false
	}
	_ = a.w.Write(int64(msgReply))
	_ = a.w.Write(msgid)
	if err := metadata.Archive(a.w, errView.Meta, errView.Ptr); err != nil {
		return false
	}
	_ = a.w.Write(nil)
	if err := a.w.ArrayPop(); err != nil {
		return false
	}
	return a.w.Flush() == nil
}

// ReleaseKeyMappingOnAbort is a no-op: plain msgpack-rpc framing keeps no
// per-msgid state of its own beyond the session's own request table.
func (a *MsgpackRPC) ReleaseKeyMappingOnAbort(msgid int64) {}

var _ ProtocolAdapter = (*MsgpackRPC)(nil)

func (a *MsgpackRPC) sendReplyErrorString(msgid int64, content string) bool {
	if err := a.w.ArrayPush(4); err != nil {
		return false
	}
	_ = a.w.Write(int64(msgReply))
	_ = a.w.Write(msgid)
	_ = a.w.Write(content)
	_ = a.w.Write(nil)
	if err := a.w.ArrayPop(); err != nil {
		return false
	}
	return a.w.Flush() == nil
}
