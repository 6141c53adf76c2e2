package sessiongroup_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/archive"
	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/eventproc"
	"github.com/ocx/meshrpc/internal/objectview"
	"github.com/ocx/meshrpc/internal/protocoladapter"
	"github.com/ocx/meshrpc/internal/service"
	"github.com/ocx/meshrpc/internal/session"
	"github.com/ocx/meshrpc/internal/sessiongroup"
)

// member pairs a server-side Session (the one a Group tracks and notifies)
// with a client-side Session whose "ping" handler records every message it
// receives, so tests can assert on fan-out without a real network.
type member struct {
	server *session.Session
	client *session.Session
	got    chan string
}

func newMember(t *testing.T) *member {
	t.Helper()

	a, b := bytestream.NewPipe()
	cfg := archive.Config{}

	serverProc := eventproc.NewGoroutineEventProc()
	clientProc := eventproc.NewGoroutineEventProc()
	t.Cleanup(func() { serverProc.Close() })
	t.Cleanup(func() { clientProc.Close() })

	m := &member{got: make(chan string, 4)}

	routes := service.NewBuilder()
	routes.MustRoute("ping", func(msg string) {
		m.got <- msg
	})

	server, err := session.NewBuilder().
		EventProc(serverProc).
		Transport(a).
		Protocol(protocoladapter.NewMsgpackRPC(cfg, cfg)).
		Build()
	require.NoError(t, err)

	client, err := session.NewBuilder().
		EventProc(clientProc).
		Transport(b).
		Protocol(protocoladapter.NewMsgpackRPC(cfg, cfg)).
		Service(routes.Build()).
		Build()
	require.NoError(t, err)

	t.Cleanup(func() { server.Close() })
	t.Cleanup(func() { client.Close() })

	m.server, m.client = server, client
	return m
}

func (m *member) expectPing(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-m.got:
		require.Equal(t, want, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for notify")
	}
}

func (m *member) expectNoPing(t *testing.T) {
	t.Helper()
	select {
	case got := <-m.got:
		t.Fatalf("unexpected notify delivered: %q", got)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestGroup_AddRemoveDedup(t *testing.T) {
	m := newMember(t)
	g := sessiongroup.New()

	require.True(t, g.Add(m.server))
	require.False(t, g.Add(m.server), "second Add of the same session is a no-op")
	require.Equal(t, 1, g.Len())

	require.True(t, g.Remove(m.server))
	require.False(t, g.Remove(m.server), "second Remove finds nothing")
	require.Equal(t, 0, g.Len())
}

func TestGroup_AddRejectsExpiredSession(t *testing.T) {
	m := newMember(t)
	require.NoError(t, m.server.Close())

	g := sessiongroup.New()
	require.False(t, g.Add(m.server))
	require.Equal(t, 0, g.Len())
}

func TestGroup_NotifyFansOutToMembers(t *testing.T) {
	m1 := newMember(t)
	m2 := newMember(t)

	g := sessiongroup.New()
	g.Add(m1.server)
	g.Add(m2.server)

	msg := "hello"
	n := g.Notify("ping", objectview.ConstOf(&msg))
	require.Equal(t, 2, n)

	m1.expectPing(t, "hello")
	m2.expectPing(t, "hello")
}

func TestGroup_NotifyFilterSkipsNonMatching(t *testing.T) {
	m1 := newMember(t)
	m2 := newMember(t)

	g := sessiongroup.New()
	g.Add(m1.server)
	g.Add(m2.server)

	msg := "only-one"
	n := g.NotifyFilter("ping", func(s *session.Session) bool {
		return s == m1.server
	}, objectview.ConstOf(&msg))
	require.Equal(t, 1, n)

	m1.expectPing(t, "only-one")
	m2.expectNoPing(t)
}

func TestGroup_GCEvictsExpiredAndFoldsTotals(t *testing.T) {
	m := newMember(t)
	g := sessiongroup.New()
	g.Add(m.server)

	msg := "x"
	g.Notify("ping", objectview.ConstOf(&msg))
	m.expectPing(t, "x")

	before := g.Totals()
	require.Greater(t, before.BytesWritten, uint64(0))

	require.NoError(t, m.server.Close())

	removed := g.GC()
	require.Equal(t, 1, removed)
	require.Equal(t, 0, g.Len())

	after := g.Totals()
	require.Equal(t, before.BytesWritten, after.BytesWritten, "GC folds the departing member's totals in, losing none")
}

func TestGroup_NotifySkipsSessionThatExpiredSinceAdd(t *testing.T) {
	m1 := newMember(t)
	m2 := newMember(t)

	g := sessiongroup.New()
	g.Add(m1.server)
	g.Add(m2.server)
	require.NoError(t, m1.server.Close())

	msg := "still-here"
	n := g.Notify("ping", objectview.ConstOf(&msg))
	require.Equal(t, 1, n)
	require.Equal(t, 1, g.Len(), "the expired member is swept during the notify pass")

	m2.expectPing(t, "still-here")
}
