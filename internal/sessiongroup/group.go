// Package sessiongroup implements Group, a dedup-by-identity container of
// Sessions supporting group-wide Notify/NotifyFilter fan-out. Grounded on
// original_source/refl/rpc/detail/group.hxx.
package sessiongroup

import (
	"log/slog"
	"sync"

	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/objectview"
	"github.com/ocx/meshrpc/internal/pool"
	"github.com/ocx/meshrpc/internal/session"
)

// Group is a set of Sessions, deduplicated by identity, supporting
// group-wide notify fan-out. The zero value is not usable; use New.
type Group struct {
	mu       sync.Mutex
	sessions map[*session.Session]struct{}
	disposed bytestream.Totals

	tmpPool *pool.Pool[[]*session.Session]
	backend *RedisGroupBackend
}

// New returns an empty Group.
func New() *Group {
	g := &Group{sessions: make(map[*session.Session]struct{})}
	g.tmpPool = pool.New(4,
		func() *[]*session.Session {
			s := make([]*session.Session, 0, 16)
			return &s
		},
		func(s *[]*session.Session) { *s = (*s)[:0] },
	)
	return g
}

// SetBackend wires a RedisGroupBackend: every subsequent Notify/NotifyFilter
// also publishes on the backend's channel, in addition to the local
// snapshot-iterate fan-out. Pass nil to detach.
func (g *Group) SetBackend(b *RedisGroupBackend) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.backend = b
}

// Add registers sess, returning false if sess is nil, already expired, or
// already a member.
func (g *Group) Add(sess *session.Session) bool {
	if sess == nil || !sess.Valid() {
		return false
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sessions[sess]; exists {
		return false
	}
	g.sessions[sess] = struct{}{}
	return true
}

// Remove evicts sess, folding its totals into the group's disposed offset.
// Returns false if sess was not a member.
func (g *Group) Remove(sess *session.Session) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.sessions[sess]; !exists {
		return false
	}
	delete(g.sessions, sess)
	g.fold(sess)
	return true
}

// GC evicts every no-longer-Valid member, folding each one's totals into the
// disposed offset, and returns the number removed.
func (g *Group) GC() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	removed := 0
	for sess := range g.sessions {
		if !sess.Valid() {
			delete(g.sessions, sess)
			g.fold(sess)
			removed++
		}
	}
	return removed
}

// Len reports the current membership count, expired members included until
// the next GC or Notify pass observes them.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.sessions)
}

// Snapshot returns the Profile of every current member, for introspection
// callers (e.g. the debug HTTP server in internal/monitoring). Expired
// members are skipped rather than evicted; GC or the next Notify pass
// handles eviction.
func (g *Group) Snapshot() []session.Profile {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]session.Profile, 0, len(g.sessions))
	for sess := range g.sessions {
		if sess.Valid() {
			out = append(out, sess.Profile())
		}
	}
	return out
}

// Totals reports the group's cumulative byte counters: disposed members'
// totals plus every live member's current totals, monotonic across
// membership churn.
func (g *Group) Totals() bytestream.Totals {
	g.mu.Lock()
	defer g.mu.Unlock()
	t := g.disposed
	for sess := range g.sessions {
		p := sess.Profile()
		t.BytesRead += p.TotalRead
		t.BytesWritten += p.TotalWrite
	}
	return t
}

// fold must be called with mu held.
func (g *Group) fold(sess *session.Session) {
	p := sess.Profile()
	g.disposed.BytesRead += p.TotalRead
	g.disposed.BytesWritten += p.TotalWrite
}

// Notify calls method on every member, returning the number of sessions it
// was sent to.
func (g *Group) Notify(method string, params ...objectview.ConstView) int {
	return g.NotifyFilter(method, nil, params...)
}

// NotifyFilter calls method on every member for which filter returns true (or
// every member, if filter is nil), snapshotting alive members under one
// lock and expelling any found expired along the way, then sending outside
// the lock. Grounded on group.hxx's notify_filter. If a RedisGroupBackend
// is wired, the same call is also published on its channel.
func (g *Group) NotifyFilter(method string, filter func(*session.Session) bool, params ...objectview.ConstView) int {
	buf := g.tmpPool.Get()
	defer g.tmpPool.Put(buf)

	g.mu.Lock()
	backend := g.backend
	for sess := range g.sessions {
		if !sess.Valid() {
			delete(g.sessions, sess)
			g.fold(sess)
			continue
		}
		if filter == nil || filter(sess) {
			*buf = append(*buf, sess)
		}
	}
	g.mu.Unlock()

	for _, sess := range *buf {
		sess.Notify(method, params...)
	}

	if backend != nil {
		if err := backend.Publish(method, params); err != nil {
			slog.Warn("sessiongroup: redis publish failed", "channel", backend.channel, "method", method, "error", err)
		}
	}

	return len(*buf)
}
