package protocoladapter_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/objectview"
	"github.com/ocx/meshrpc/internal/protocoladapter"
)

// fakeProxy is a minimal protocoladapter.Proxy used to drive the adapter
// without a real session underneath.
type fakeProxy struct {
	methods map[string]func() (string, int)

	gotMethod string
	gotMsgid  int64
	gotArg    string

	dispatched bool

	repliedResult string
	repliedErr    string
	replyCalled   bool
}

func newFakeProxy() *fakeProxy {
	return &fakeProxy{methods: map[string]func() (string, int){}}
}

func (p *fakeProxy) RequestParameters(method string, msgid int64) ([]objectview.View, bool) {
	if method != "echo" {
		return nil, false
	}
	p.gotMethod, p.gotMsgid = method, msgid
	return []objectview.View{objectview.Of(&p.gotArg)}, true
}

func (p *fakeProxy) NotifyParameters(method string) ([]objectview.View, bool) {
	if method != "echo" {
		return nil, false
	}
	p.gotMethod = method
	return []objectview.View{objectview.Of(&p.gotArg)}, true
}

func (p *fakeProxy) Dispatch() { p.dispatched = true }

func (p *fakeProxy) ReplyResult(msgid int64, r archive.Reader) error {
	p.replyCalled = true
	return r.Read(&p.repliedResult)
}

func (p *fakeProxy) ReplyError(msgid int64, r archive.Reader) error {
	p.replyCalled = true
	return r.Read(&p.repliedErr)
}

func newPairedAdapters() (client, server *protocoladapter.MsgpackRPC) {
	cfg := archive.Config{}
	a, b := bytestream.NewPipe()
	client = protocoladapter.NewMsgpackRPC(cfg, cfg)
	client.Init(a)
	server = protocoladapter.NewMsgpackRPC(cfg, cfg)
	server.Init(b)
	return client, server
}

func TestRequest_EchoRoundTrip(t *testing.T) {
	client, server := newPairedAdapters()
	arg := "hello"
	ok := client.SendRequest("echo", 1, []objectview.ConstView{objectview.ConstOf(&arg)})
	require.True(t, ok)
	require.True(t, client.Flush())

	proxy := newFakeProxy()
	state, err := server.HandleSingleMessage(proxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateOkay, state)
	require.Equal(t, "echo", proxy.gotMethod)
	require.Equal(t, int64(1), proxy.gotMsgid)
	require.Equal(t, "hello", proxy.gotArg)
	require.True(t, proxy.dispatched)
}

func TestRequest_UnknownMethodRepliesError(t *testing.T) {
	client, server := newPairedAdapters()
	arg := "hello"
	require.True(t, client.SendRequest("nope", 7, []objectview.ConstView{objectview.ConstOf(&arg)}))
	require.True(t, client.Flush())

	proxy := newFakeProxy()
	state, err := server.HandleSingleMessage(proxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateWarningUnknownMethod, state)
	require.True(t, state.IsWarning())
	require.False(t, proxy.dispatched)

	// The server wrote an error reply back down the same pipe.
	clientProxy := newFakeProxy()
	replyState, err := client.HandleSingleMessage(clientProxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateOkay, replyState)
	require.True(t, clientProxy.replyCalled)
	require.Equal(t, "ERROR_METHOD_NOT_EXIST", clientProxy.repliedErr)
}

func TestRequest_ParamCountMismatchRepliesError(t *testing.T) {
	client, server := newPairedAdapters()
	a, b := "x", "y"
	require.True(t, client.SendRequest("echo", 3, []objectview.ConstView{
		objectview.ConstOf(&a), objectview.ConstOf(&b),
	}))
	require.True(t, client.Flush())

	proxy := newFakeProxy()
	state, err := server.HandleSingleMessage(proxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateWarningInvalidParamCount, state)
	require.False(t, proxy.dispatched)

	clientProxy := newFakeProxy()
	replyState, err := client.HandleSingleMessage(clientProxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateOkay, replyState)
	require.Equal(t, "invalid parameter", clientProxy.repliedErr)
}

func TestNotify_EchoDoesNotReply(t *testing.T) {
	client, server := newPairedAdapters()
	arg := "quiet"
	require.True(t, client.SendNotify("echo", []objectview.ConstView{objectview.ConstOf(&arg)}))
	require.True(t, client.Flush())

	proxy := newFakeProxy()
	state, err := server.HandleSingleMessage(proxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateOkay, state)
	require.Equal(t, "quiet", proxy.gotArg)
	require.True(t, proxy.dispatched)
}

func TestReply_ResultDeliveredToProxy(t *testing.T) {
	client, server := newPairedAdapters()
	result := "42"
	require.True(t, server.SendReplyResult(9, objectview.ConstOf(&result)))

	proxy := newFakeProxy()
	state, err := client.HandleSingleMessage(proxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateOkay, state)
	require.True(t, proxy.replyCalled)
	require.Equal(t, "42", proxy.repliedResult)
}

func TestReply_ProxyErrorIsWarning(t *testing.T) {
	client, server := newPairedAdapters()
	result := "nope"
	require.True(t, server.SendReplyResult(9, objectview.ConstOf(&result)))

	proxy := newFakeProxy()
	boom := errors.New("boom")
	proxy.repliedResult = ""
	// Wrap ReplyResult to return a non-fatal error without a second proxy type.
	state, err := client.HandleSingleMessage(errorReplyProxy{fakeProxy: proxy, err: boom})
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateWarningInvalidParamType, state)
	require.True(t, state.IsWarning())
}

type errorReplyProxy struct {
	*fakeProxy
	err error
}

func (p errorReplyProxy) ReplyResult(msgid int64, r archive.Reader) error {
	var discard string
	_ = r.Read(&discard)
	return p.err
}
