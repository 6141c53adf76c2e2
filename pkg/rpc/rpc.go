// Package rpc is the public embedding API for meshrpc: build a routed
// service table, build a session over a transport/protocol/event-processor
// trio, and call routed methods through type-safe Signature values. It is
// a thin façade over internal/session, internal/service, and
// internal/sessiongroup, so embedders never need to import those
// directly.
package rpc

import (
	"errors"
	"time"

	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/eventproc"
	"github.com/ocx/meshrpc/internal/monitor"
	"github.com/ocx/meshrpc/internal/objectview"
	"github.com/ocx/meshrpc/internal/protocoladapter"
	"github.com/ocx/meshrpc/internal/service"
	"github.com/ocx/meshrpc/internal/session"
	"github.com/ocx/meshrpc/internal/sessiongroup"
)

// ErrRequestsDisabled is returned by Signature.Request when the Session
// was built with EnableRequest(false): it can still serve inbound calls
// and send Notify, but SessionBuilder opted it out of issuing outbound
// requests.
var ErrRequestsDisabled = errors.New("rpc: session was built with requests disabled")

// Re-exported so callers need only import pkg/rpc for the common path;
// SessionGroup, Profile, and Handle are otherwise internal/sessiongroup
// and internal/session types.
type (
	SessionGroup = sessiongroup.Group
	Profile      = session.Profile
	Handle       = session.Handle
)

// NewSessionGroup returns an empty SessionGroup.
func NewSessionGroup() *SessionGroup { return sessiongroup.New() }

// Service is a routed method table, built once and shared by every
// Session that serves the same set of methods.
type Service struct {
	table *service.Table
}

// ServiceBuilder accumulates routes before Build freezes them into a
// Service.
type ServiceBuilder struct {
	inner *service.Builder
}

// NewServiceBuilder returns an empty ServiceBuilder.
func NewServiceBuilder() *ServiceBuilder {
	return &ServiceBuilder{inner: service.NewBuilder()}
}

// Route registers fn under a Signature's method name. fn's shape follows
// internal/service.Builder.Route: a first Profile argument is optional,
// a final error return is optional, and exactly one non-error return
// value or a pointer first parameter supplies the result.
func Route[Ret any](b *ServiceBuilder, sig Signature[Ret], fn any) error {
	return b.inner.Route(sig.Method, fn)
}

// MustRoute is Route, panicking on error; for fixed method tables built
// at init time where a routing error is a programming mistake.
func MustRoute[Ret any](b *ServiceBuilder, sig Signature[Ret], fn any) *ServiceBuilder {
	if err := Route(b, sig, fn); err != nil {
		panic(err)
	}
	return b
}

// Build freezes the accumulated routes into a Service.
func (b *ServiceBuilder) Build() *Service {
	return &Service{table: b.inner.Build()}
}

// Session is a routed, bidirectional RPC connection: a thin wrapper over
// internal/session.Session that also remembers whether SessionBuilder
// enabled outbound requests.
type Session struct {
	inner           *session.Session
	requestsEnabled bool
}

// Notify sends a one-way call; see Signature.Notify for the typed form.
func (s *Session) Notify(method string, params ...objectview.ConstView) bool {
	return s.inner.Notify(method, params...)
}

// Close expires the session and releases its transport.
func (s *Session) Close() error { return s.inner.Close() }

// Flush forces any buffered outbound bytes to the transport now.
func (s *Session) Flush() bool { return s.inner.Flush() }

// Profile returns the session's current profile snapshot.
func (s *Session) Profile() Profile { return s.inner.Profile() }

// Valid reports whether the session is still Active.
func (s *Session) Valid() bool { return s.inner.Valid() }

// Internal returns the wrapped internal/session.Session, for callers that
// need internal/sessiongroup.Group.Add or other internal-package APIs
// pkg/rpc doesn't re-expose.
func (s *Session) Internal() *session.Session { return s.inner }

// SessionBuilder assembles a Session. Transport, Protocol, and EventProc
// are required; Service and Monitor default to an empty table and a
// no-op monitor.
type SessionBuilder struct {
	inner           *session.Builder
	requestsEnabled bool
}

// NewSessionBuilder returns a SessionBuilder with requests enabled by
// default.
func NewSessionBuilder() *SessionBuilder {
	return &SessionBuilder{inner: session.NewBuilder(), requestsEnabled: true}
}

func (b *SessionBuilder) Transport(s bytestream.Stream) *SessionBuilder {
	b.inner.Transport(s)
	return b
}

func (b *SessionBuilder) Protocol(p protocoladapter.ProtocolAdapter) *SessionBuilder {
	b.inner.Protocol(p)
	return b
}

func (b *SessionBuilder) EventProc(p eventproc.EventProc) *SessionBuilder {
	b.inner.EventProc(p)
	return b
}

func (b *SessionBuilder) Service(svc *Service) *SessionBuilder {
	if svc != nil {
		b.inner.Service(svc.table)
	}
	return b
}

func (b *SessionBuilder) Monitor(m monitor.Monitor) *SessionBuilder {
	b.inner.Monitor(m)
	return b
}

func (b *SessionBuilder) Autoflush(enabled bool) *SessionBuilder {
	b.inner.Autoflush(enabled)
	return b
}

func (b *SessionBuilder) TenantID(id string) *SessionBuilder {
	b.inner.TenantID(id)
	return b
}

// EnableRequest toggles whether Signature.Request may issue outbound
// requests on the built Session; Notify and inbound dispatch are
// unaffected either way. Defaults to true.
func (b *SessionBuilder) EnableRequest(enabled bool) *SessionBuilder {
	b.requestsEnabled = enabled
	return b
}

// Build validates the required fields and performs the Created -> Active
// transition.
func (b *SessionBuilder) Build() (*Session, error) {
	sess, err := b.inner.Build()
	if err != nil {
		return nil, err
	}
	return &Session{inner: sess, requestsEnabled: b.requestsEnabled}, nil
}

// Signature is a type-safe method descriptor: Ret is the type a Request
// call decodes its reply into. Go has no variadic type parameter, so
// parameters are passed as plain values/pointers at the call site, the
// same convention internal/session.Session.AsyncRequest and Notify use,
// rather than encoded into the type itself.
type Signature[Ret any] struct {
	Method string
}

// NewSignature names a method and its reply type.
func NewSignature[Ret any](method string) Signature[Ret] {
	return Signature[Ret]{Method: method}
}

// Request sends a blocking request and decodes the reply into a Ret,
// waiting at most timeout for a reply before aborting and returning
// context.DeadlineExceeded-shaped session.ErrRequestTimeout.
func (sig Signature[Ret]) Request(s *Session, timeout time.Duration, params ...any) (Ret, error) {
	var result Ret
	if !s.requestsEnabled {
		return result, ErrRequestsDisabled
	}

	done := make(chan error, 1)
	h := s.inner.AsyncRequest(sig.Method, &result, func(err error) { done <- err }, constViews(params)...)

	if err := s.inner.WaitFor(h, timeout); err != nil {
		s.inner.AbortRequest(h)
		return result, err
	}
	return result, <-done
}

// Notify sends a one-way call under this Signature's method name,
// reporting false if the session is no longer Active.
func (sig Signature[Ret]) Notify(s *Session, params ...any) bool {
	return s.inner.Notify(sig.Method, constViews(params)...)
}

func constViews(params []any) []objectview.ConstView {
	if len(params) == 0 {
		return nil
	}
	views := make([]objectview.ConstView, len(params))
	for i, p := range params {
		views[i] = objectview.ConstOf(p)
	}
	return views
}
