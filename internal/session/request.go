package session

import (
	"sync"
	"time"

	"github.com/ocx/meshrpc/internal/metadata"
)

// requestSlot is the bookkeeping record for one outstanding AsyncRequest:
// where to restore the eventual result, and what to call when it (or an
// abort) arrives. Grounded on session.hxx's rpc_request_node.
type requestSlot struct {
	msgid int64

	resultMeta *metadata.Metadata
	resultPtr  any

	completion func(err error)
}

// requestContext owns the msgid -> requestSlot table and the condition
// variable Wait/WaitFor/WaitUntil block on. Grounded on session.hxx's
// rpc_context (lock + idgen + flat_map<int, pool_ptr>).
type requestContext struct {
	mu     sync.Mutex
	cond   *sync.Cond
	nextID int64
	slots  map[int64]*requestSlot
}

func newRequestContext() *requestContext {
	rc := &requestContext{slots: map[int64]*requestSlot{}}
	rc.cond = sync.NewCond(&rc.mu)
	return rc
}

// nextMsgID generates a monotonic id, wrapping past the positive int32
// range back to 1 — 0 is reserved and never issued, matching the
// original's idgen range (0, INT_MAX].
func (rc *requestContext) nextMsgID() int64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.nextID++
	if rc.nextID > 0x7fffffff {
		rc.nextID = 1
	}
	return rc.nextID
}

func (rc *requestContext) insert(slot *requestSlot) {
	rc.mu.Lock()
	rc.slots[slot.msgid] = slot
	rc.mu.Unlock()
}

// find returns the pending slot for msgid without removing it, for a proxy
// restoring a REPLY payload directly into the slot's result buffer.
func (rc *requestContext) find(msgid int64) *requestSlot {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.slots[msgid]
}

// takeAndRemove removes and returns the slot for msgid, waking any
// Wait/WaitFor/WaitUntil callers blocked on it.
func (rc *requestContext) takeAndRemove(msgid int64) (*requestSlot, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	slot, ok := rc.slots[msgid]
	if ok {
		delete(rc.slots, msgid)
		rc.cond.Broadcast()
	}
	return slot, ok
}

func (rc *requestContext) pending(msgid int64) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.slots[msgid]
	return ok
}

// wait blocks until msgid is no longer in the table.
func (rc *requestContext) wait(msgid int64) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	for {
		if _, ok := rc.slots[msgid]; !ok {
			return
		}
		rc.cond.Wait()
	}
}

// waitUntil blocks until msgid resolves or deadline passes, returning
// ErrRequestTimeout in the latter case. The request itself is left
// untouched; callers that give up should still AbortRequest.
func (rc *requestContext) waitUntil(msgid int64, deadline time.Time) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.slots[msgid]; !ok {
		return nil
	}

	timer := time.AfterFunc(time.Until(deadline), func() {
		rc.mu.Lock()
		rc.cond.Broadcast()
		rc.mu.Unlock()
	})
	defer timer.Stop()

	for {
		if _, ok := rc.slots[msgid]; !ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return ErrRequestTimeout
		}
		rc.cond.Wait()
	}
}

// Handle is the caller-facing reference to one in-flight AsyncRequest,
// returned by Session.AsyncRequest and consumed by Wait/WaitFor/WaitUntil/
// AbortRequest.
type Handle struct {
	sess  *Session
	msgid int64
}

// Valid reports whether this Handle carries a real request (AsyncRequest
// returns a zero Handle when the session was already expired).
func (h Handle) Valid() bool { return h.sess != nil && h.msgid != 0 }
