// Package session implements the bidirectional RPC connection: a state
// machine driving one ProtocolAdapter over one ByteStream, dispatching
// inbound REQUEST/NOTIFY frames into a service.Table and outbound
// AsyncRequest/Notify calls back out, all continuations routed through an
// EventProc so the host controls every goroutine this package touches.
// Grounded on original_source/refl/rpc/detail/session.hxx.
package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/eventproc"
	"github.com/ocx/meshrpc/internal/metadata"
	"github.com/ocx/meshrpc/internal/monitor"
	"github.com/ocx/meshrpc/internal/objectview"
	"github.com/ocx/meshrpc/internal/protocoladapter"
	"github.com/ocx/meshrpc/internal/service"
)

// Session is one bidirectional RPC connection: Created (inside the
// builder) -> Active -> Expired (terminal).
type Session struct {
	eventProc eventproc.EventProc
	mon       monitor.Monitor
	transport bytestream.Stream
	protocol  protocoladapter.ProtocolAdapter
	svc       *service.Table

	muProto sync.Mutex // L_proto: guards every adapter Send*/HandleSingleMessage call

	profile Profile

	valid     atomic.Bool
	autoflush atomic.Bool
	closeOnce sync.Once

	requests *requestContext
}

// Profile reports the session's current identity snapshot, including live
// byte totals.
func (s *Session) Profile() Profile {
	totals := s.transport.Totals()
	p := s.profile
	p.TotalRead = totals.BytesRead
	p.TotalWrite = totals.BytesWritten
	return p
}

// Valid reports whether the session is still Active.
func (s *Session) Valid() bool { return s.valid.Load() }

// SetAutoflush toggles whether Flush is called automatically after every
// outbound Send* call.
func (s *Session) SetAutoflush(enabled bool) { s.autoflush.Store(enabled) }

func (s *Session) maybeAutoflush() {
	if s.autoflush.Load() {
		s.protocol.Flush()
	}
}

// Flush commits any buffered outbound writes.
func (s *Session) Flush() bool {
	s.muProto.Lock()
	defer s.muProto.Unlock()
	return s.protocol.Flush()
}

// AsyncRequest sends method with params and returns a Handle the caller
// waits on; the eventual result is restored into resultPtr (nil for a
// void-returning peer method) and completion is reported to done, which
// runs on the rpc-completion lane.
func (s *Session) AsyncRequest(method string, resultPtr any, done func(err error), params ...objectview.ConstView) Handle {
	if !s.valid.Load() {
		done(ErrSessionExpired)
		return Handle{}
	}

	msgid := s.requests.nextMsgID()
	slot := &requestSlot{msgid: msgid, completion: done}
	if resultPtr != nil {
		slot.resultMeta = metadata.Of(resultPtr)
		slot.resultPtr = resultPtr
	}
	s.requests.insert(slot)

	s.muProto.Lock()
	ok := s.valid.Load() && s.protocol.SendRequest(method, msgid, params)
	if ok {
		s.maybeAutoflush()
	}
	s.muProto.Unlock()

	if !ok {
		s.requests.takeAndRemove(msgid)
		s.setExpired(fmt.Errorf("session: send request %q failed", method))
		return Handle{}
	}
	return Handle{sess: s, msgid: msgid}
}

// Notify sends a one-way method call, reporting false if the session is no
// longer Active.
func (s *Session) Notify(method string, params ...objectview.ConstView) bool {
	if !s.valid.Load() {
		return false
	}
	s.muProto.Lock()
	defer s.muProto.Unlock()
	ok := s.protocol.SendNotify(method, params)
	if ok {
		s.maybeAutoflush()
	}
	return ok
}

// Wait blocks until h's reply arrives (or the session expires and aborts
// it).
func (s *Session) Wait(h Handle) error {
	if !h.Valid() {
		return ErrInvalidHandle
	}
	s.requests.wait(h.msgid)
	return nil
}

// WaitFor blocks for at most d.
func (s *Session) WaitFor(h Handle, d time.Duration) error {
	return s.WaitUntil(h, time.Now().Add(d))
}

// WaitUntil blocks until h's reply arrives or deadline passes.
func (s *Session) WaitUntil(h Handle, deadline time.Time) error {
	if !h.Valid() {
		return ErrInvalidHandle
	}
	return s.requests.waitUntil(h.msgid, deadline)
}

// AbortRequest cancels a pending request: its completion runs with
// ErrRequestAborted exactly once, and the protocol adapter is told to drop
// any bookkeeping it keeps for the msgid. A reply that arrives afterward is
// silently discarded (the slot is already gone).
func (s *Session) AbortRequest(h Handle) {
	if !h.Valid() {
		return
	}
	slot, ok := s.requests.takeAndRemove(h.msgid)
	if !ok {
		return
	}
	slot.completion(ErrRequestAborted)

	s.muProto.Lock()
	if s.valid.Load() {
		s.protocol.ReleaseKeyMappingOnAbort(h.msgid)
	}
	s.muProto.Unlock()
}

// Close transitions the session to Expired, aborting every pending request
// and closing the transport. Safe to call more than once or concurrently.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		closeErr = s.setExpired(nil)
	})
	return closeErr
}

// setExpired performs the Active -> Expired transition exactly once
// (guarded by valid's CompareAndSwap, independent of closeOnce so a
// transport-fatal error and an explicit Close race safely), aborting every
// pending request and closing the transport.
func (s *Session) setExpired(cause error) error {
	if !s.valid.CompareAndSwap(true, false) {
		return nil
	}

	closeErr := s.transport.Close()

	s.requests.mu.Lock()
	pending := make([]*requestSlot, 0, len(s.requests.slots))
	for msgid, slot := range s.requests.slots {
		pending = append(pending, slot)
		delete(s.requests.slots, msgid)
	}
	s.requests.cond.Broadcast()
	s.requests.mu.Unlock()

	for _, slot := range pending {
		slot := slot
		s.eventProc.PostRPCCompletion(func() {
			slot.completion(ErrRequestAborted)
		})
	}

	s.eventProc.PostInternalMessage(func() {
		s.mon.OnSessionExpired(s.profile.monitorProfile())
	})

	if cause != nil {
		return cause
	}
	return closeErr
}

// rearm posts the next receive-cycle task to the internal lane.
func (s *Session) rearm() {
	s.eventProc.PostInternalMessage(s.driveReceive)
}

// driveReceive handles exactly one inbound frame, then either re-arms
// itself or, on Expired, stops. Grounded on session.hxx's
// _impl_on_data_wait_complete/_handle_receive_result.
func (s *Session) driveReceive() {
	if !s.valid.Load() {
		return
	}

	proxy := &messageProxy{sess: s}

	s.muProto.Lock()
	state, err := s.protocol.HandleSingleMessage(proxy)
	s.muProto.Unlock()

	if err != nil || state == protocoladapter.StateExpired {
		s.setExpired(err)
		return
	}

	if state.IsWarning() {
		s.mon.OnReceiveWarning(s.profile.monitorProfile(), state.String())
		s.rearm()
		return
	}

	switch proxy.tag {
	case proxyReplyOkay:
		msgid := proxy.msgid
		s.eventProc.PostRPCCompletion(func() { s.completeReply(msgid, "") })
	case proxyReplyError:
		msgid, detail := proxy.msgid, proxy.replyErr
		s.eventProc.PostRPCCompletion(func() { s.completeReply(msgid, detail) })
	}
	// proxyReplyExpired: no matching slot was found (a stale or already
	// aborted request); nothing to post. proxyRequest/proxyNotify were
	// already handed to the handler-callback lane inside Dispatch.

	s.rearm()
}

// completeReply removes the slot for msgid and invokes its completion.
// errDetail is empty for a successful reply (the result is already
// restored into the slot's buffer by messageProxy.ReplyResult).
func (s *Session) completeReply(msgid int64, errDetail string) {
	slot, ok := s.requests.takeAndRemove(msgid)
	if !ok {
		return
	}
	var err error
	if errDetail != "" {
		err = &ReplyError{Detail: errDetail}
	}
	slot.completion(err)
}

// invokeRequestHandler runs a routed handler for an inbound REQUEST and
// sends its reply. Runs on the handler-callback lane.
func (s *Session) invokeRequestHandler(method string, msgid int64, slot *service.ParamSlot) {
	defer slot.Release()

	result, err := slot.Invoke(s.profile.serviceProfile())
	if err != nil {
		s.mon.OnHandlerError(s.profile.monitorProfile(), method, err)
		s.sendReplyError(msgid, err.Error())
		return
	}
	s.sendReplyResult(msgid, result)
}

// invokeNotifyHandler runs a routed handler for an inbound NOTIFY; the
// result is discarded and an error goes only to the monitor, since NOTIFY
// never produces a reply.
func (s *Session) invokeNotifyHandler(method string, slot *service.ParamSlot) {
	defer slot.Release()

	_, err := slot.Invoke(s.profile.serviceProfile())
	if err != nil {
		s.mon.OnHandlerError(s.profile.monitorProfile(), method, err)
	}
}

func (s *Session) sendReplyResult(msgid int64, result objectview.Shared) {
	s.muProto.Lock()
	ok := s.protocol.SendReplyResult(msgid, result.ConstView())
	s.maybeAutoflush()
	s.muProto.Unlock()
	if !ok {
		s.setExpired(fmt.Errorf("session: send reply result for msgid %d failed", msgid))
	}
}

func (s *Session) sendReplyError(msgid int64, detail string) {
	s.muProto.Lock()
	ok := s.protocol.SendReplyError(msgid, objectview.ConstOf(detail))
	s.maybeAutoflush()
	s.muProto.Unlock()
	if !ok {
		s.setExpired(fmt.Errorf("session: send reply error for msgid %d failed", msgid))
	}
}

// initialize performs the Created -> Active transition: binds the local
// identity, resolves SPIFFE peer identity when configured, marks the
// session valid, notifies the monitor, and arms the first receive cycle.
func (s *Session) initialize(spiffeSource *workloadapi.X509Source) {
	s.profile.LocalID = uuid.NewString()

	if tcp, ok := s.transport.(*bytestream.TCPStream); ok {
		s.profile.PeerName = tcp.Conn().RemoteAddr().String()
		if spiffeSource != nil {
			if id, err := resolveSPIFFEIdentity(tcp.Conn(), spiffeSource); err == nil {
				s.profile.PeerIdentity = id
			}
		}
	}

	s.valid.Store(true)
	s.mon.OnSessionCreated(s.profile.monitorProfile())
	s.rearm()
}
