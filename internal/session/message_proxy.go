package session

import (
	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/metadata"
	"github.com/ocx/meshrpc/internal/objectview"
	"github.com/ocx/meshrpc/internal/service"
)

// proxyTag is the outcome messageProxy leaves for the session to read once
// protocoladapter.HandleSingleMessage returns. Grounded directly on
// remote_procedure_message_proxy.hxx's proxy_type enum.
type proxyTag int

const (
	proxyNone proxyTag = iota
	proxyRequest
	proxyNotify
	proxyReplyOkay
	proxyReplyError
	proxyReplyExpired
)

// messageProxy is the per-HandleSingleMessage-call arbiter the session
// hands to the protocol adapter: it resolves method names against the
// service table, checks out parameter buffers, and restores REPLY payloads
// directly into a pending request's result buffer. One value per call,
// never retained past it.
type messageProxy struct {
	sess *Session

	tag    proxyTag
	method string
	msgid  int64

	handle *service.Handle
	slot   *service.ParamSlot

	replyErr string
}

func (p *messageProxy) RequestParameters(method string, msgid int64) ([]objectview.View, bool) {
	h, ok := p.sess.svc.Lookup(method)
	if !ok {
		p.tag = proxyNone
		return nil, false
	}
	p.tag = proxyRequest
	p.method = method
	p.msgid = msgid
	p.handle = h
	p.slot = h.Checkout()
	return p.slot.ParamViews(), true
}

func (p *messageProxy) NotifyParameters(method string) ([]objectview.View, bool) {
	h, ok := p.sess.svc.Lookup(method)
	if !ok {
		p.tag = proxyNone
		return nil, false
	}
	p.tag = proxyNotify
	p.method = method
	p.handle = h
	p.slot = h.Checkout()
	return p.slot.ParamViews(), true
}

// Dispatch hands invocation off to the handler-callback lane. It must
// return promptly: it runs while the session still holds *L_proto*.
func (p *messageProxy) Dispatch() {
	switch p.tag {
	case proxyRequest:
		sess, method, msgid, slot := p.sess, p.method, p.msgid, p.slot
		sess.eventProc.PostHandlerCallback(func() {
			sess.invokeRequestHandler(method, msgid, slot)
		})
	case proxyNotify:
		sess, method, slot := p.sess, p.method, p.slot
		sess.eventProc.PostHandlerCallback(func() {
			sess.invokeNotifyHandler(method, slot)
		})
	}
}

// ReplyResult restores a REPLY frame's result payload directly into the
// pending request's own result buffer, found (not removed) under the
// request context's lock. A miss still consumes exactly one value so the
// stream stays aligned.
func (p *messageProxy) ReplyResult(msgid int64, r archive.Reader) error {
	p.tag = proxyReplyExpired
	p.msgid = msgid

	slot := p.sess.requests.find(msgid)
	if slot == nil {
		var discard any
		return r.Read(&discard)
	}

	if slot.resultMeta != nil {
		if err := metadata.Restore(r, slot.resultMeta, slot.resultPtr); err != nil {
			return err
		}
	} else {
		var discard any
		if err := r.Read(&discard); err != nil {
			return err
		}
	}

	p.tag = proxyReplyOkay
	return nil
}

// ReplyError decodes a REPLY frame's error payload (shape unknown ahead of
// time) and, if a pending request still matches msgid, formats it into the
// slot's error buffer.
func (p *messageProxy) ReplyError(msgid int64, r archive.Reader) error {
	p.tag = proxyReplyExpired
	p.msgid = msgid

	payload, err := decodeAny(r)
	if err != nil {
		return err
	}

	if p.sess.requests.find(msgid) == nil {
		return nil
	}

	p.replyErr = formatReplyErrorDetail(payload)
	p.tag = proxyReplyError
	return nil
}
