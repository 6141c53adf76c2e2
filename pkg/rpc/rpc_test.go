package rpc_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/eventproc"
	"github.com/ocx/meshrpc/internal/protocoladapter"
	"github.com/ocx/meshrpc/pkg/rpc"
)

func newPairedSessions(t *testing.T, svc *rpc.Service) (client, server *rpc.Session) {
	t.Helper()

	a, b := bytestream.NewPipe()
	cfg := archive.Config{}
	serverProc := eventproc.NewGoroutineEventProc()
	clientProc := eventproc.NewGoroutineEventProc()
	t.Cleanup(func() { serverProc.Close() })
	t.Cleanup(func() { clientProc.Close() })

	var err error
	server, err = rpc.NewSessionBuilder().
		EventProc(serverProc).
		Transport(a).
		Protocol(protocoladapter.NewMsgpackRPC(cfg, cfg)).
		Service(svc).
		Build()
	require.NoError(t, err)

	client, err = rpc.NewSessionBuilder().
		EventProc(clientProc).
		Transport(b).
		Protocol(protocoladapter.NewMsgpackRPC(cfg, cfg)).
		Build()
	require.NoError(t, err)

	t.Cleanup(func() { server.Close() })
	t.Cleanup(func() { client.Close() })

	return client, server
}

func TestSignature_RequestRoundTrip(t *testing.T) {
	echo := rpc.NewSignature[string]("echo")

	builder := rpc.NewServiceBuilder()
	rpc.MustRoute(builder, echo, func(msg string) string {
		return "echo: " + msg
	})
	svc := builder.Build()

	client, _ := newPairedSessions(t, svc)

	result, err := echo.Request(client, time.Second, "hi")
	require.NoError(t, err)
	require.Equal(t, "echo: hi", result)
}

func TestSignature_RequestDisabledReturnsError(t *testing.T) {
	echo := rpc.NewSignature[string]("echo")

	builder := rpc.NewServiceBuilder()
	rpc.MustRoute(builder, echo, func(msg string) string { return msg })
	svc := builder.Build()

	a, b := bytestream.NewPipe()
	cfg := archive.Config{}
	serverProc := eventproc.NewGoroutineEventProc()
	clientProc := eventproc.NewGoroutineEventProc()
	t.Cleanup(func() { serverProc.Close() })
	t.Cleanup(func() { clientProc.Close() })

	server, err := rpc.NewSessionBuilder().
		EventProc(serverProc).
		Transport(a).
		Protocol(protocoladapter.NewMsgpackRPC(cfg, cfg)).
		Service(svc).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { server.Close() })

	client, err := rpc.NewSessionBuilder().
		EventProc(clientProc).
		Transport(b).
		Protocol(protocoladapter.NewMsgpackRPC(cfg, cfg)).
		EnableRequest(false).
		Build()
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	_, err = echo.Request(client, time.Second, "hi")
	require.ErrorIs(t, err, rpc.ErrRequestsDisabled)
}

func TestSignature_NotifyDelivers(t *testing.T) {
	ping := rpc.NewSignature[struct{}]("ping")
	got := make(chan string, 1)

	builder := rpc.NewServiceBuilder()
	rpc.MustRoute(builder, ping, func(msg string) {
		got <- msg
	})
	svc := builder.Build()

	client, _ := newPairedSessions(t, svc)

	require.True(t, ping.Notify(client, "quiet"))
	select {
	case msg := <-got:
		require.Equal(t, "quiet", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notify")
	}
}

func TestSessionGroup_AddAndSnapshot(t *testing.T) {
	builder := rpc.NewServiceBuilder()
	svc := builder.Build()

	client, server := newPairedSessions(t, svc)
	_ = client

	group := rpc.NewSessionGroup()
	require.True(t, group.Add(server.Internal()))
	require.Equal(t, 1, group.Len())

	snap := group.Snapshot()
	require.Len(t, snap, 1)
}
