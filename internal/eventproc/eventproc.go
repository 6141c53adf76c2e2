// Package eventproc is the host executor a Session posts work onto: three
// independent lanes (internal protocol bookkeeping, inbound handler
// invocation, outbound RPC completion), each with its own ordering
// guarantee but no ordering guarantee across lanes. Grounded on
// default_event_procedure.hxx's post_rpc_completion/post_handler_callback/
// post_internal_message split.
package eventproc

// EventProc is the only thing a Session knows about its host's concurrency
// model. Every Post* call must preserve FIFO order among thunks posted to
// the same lane; no ordering is promised across lanes.
type EventProc interface {
	// PostRPCCompletion runs fn once an outbound request's REPLY has been
	// decoded, delivering the result to the caller that issued it.
	PostRPCCompletion(fn func())

	// PostHandlerCallback runs fn to invoke a routed handler for an inbound
	// REQUEST/NOTIFY, after its parameters have already been restored.
	PostHandlerCallback(fn func())

	// PostInternalMessage runs fn for protocol-internal bookkeeping: the
	// next receive-cycle continuation, session-expiry notification, etc.
	PostInternalMessage(fn func())
}

// InlineEventProc runs every posted thunk synchronously, on the caller's
// own goroutine. Useful for tests and for embedding meshrpc into a program
// that already serializes access to the session itself.
type InlineEventProc struct{}

func (InlineEventProc) PostRPCCompletion(fn func())   { fn() }
func (InlineEventProc) PostHandlerCallback(fn func()) { fn() }
func (InlineEventProc) PostInternalMessage(fn func()) { fn() }
