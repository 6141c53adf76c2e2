package protocoladapter_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/objectview"
	"github.com/ocx/meshrpc/internal/protocoladapter"
)

func newPairedAuthenticatedAdapters(key [32]byte) (client, server *protocoladapter.AuthenticatedMsgpackRPC) {
	cfg := archive.Config{}
	a, b := bytestream.NewPipe()
	client = protocoladapter.NewAuthenticatedMsgpackRPC(key, cfg, cfg)
	client.Init(a)
	server = protocoladapter.NewAuthenticatedMsgpackRPC(key, cfg, cfg)
	server.Init(b)
	return client, server
}

func TestAuthenticatedMsgpackRPC_RequestRoundTrip(t *testing.T) {
	var key [32]byte
	for i := range key {
		key[i] = byte(i)
	}
	client, server := newPairedAuthenticatedAdapters(key)

	arg := "hello"
	require.True(t, client.SendRequest("echo", 1, []objectview.ConstView{objectview.ConstOf(&arg)}))

	proxy := newFakeProxy()
	state, err := server.HandleSingleMessage(proxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateOkay, state)
	require.Equal(t, "echo", proxy.gotMethod)
	require.Equal(t, "hello", proxy.gotArg)
	require.True(t, proxy.dispatched)
}

func TestAuthenticatedMsgpackRPC_WrongKeyFailsAuthentication(t *testing.T) {
	var senderKey, receiverKey [32]byte
	for i := range senderKey {
		senderKey[i] = byte(i)
		receiverKey[i] = byte(i + 1)
	}

	a, b := bytestream.NewPipe()
	cfg := archive.Config{}
	client := protocoladapter.NewAuthenticatedMsgpackRPC(senderKey, cfg, cfg)
	client.Init(a)
	server := protocoladapter.NewAuthenticatedMsgpackRPC(receiverKey, cfg, cfg)
	server.Init(b)

	arg := "hello"
	require.True(t, client.SendRequest("echo", 1, []objectview.ConstView{objectview.ConstOf(&arg)}))

	proxy := newFakeProxy()
	state, err := server.HandleSingleMessage(proxy)
	require.Error(t, err)
	require.ErrorIs(t, err, protocoladapter.ErrFrameAuthFailed)
	require.Equal(t, protocoladapter.StateExpired, state)
}

func TestAuthenticatedMsgpackRPC_NotifyRoundTrip(t *testing.T) {
	var key [32]byte
	client, server := newPairedAuthenticatedAdapters(key)

	arg := "quiet"
	require.True(t, client.SendNotify("echo", []objectview.ConstView{objectview.ConstOf(&arg)}))

	proxy := newFakeProxy()
	state, err := server.HandleSingleMessage(proxy)
	require.NoError(t, err)
	require.Equal(t, protocoladapter.StateOkay, state)
	require.Equal(t, "quiet", proxy.gotArg)
}
