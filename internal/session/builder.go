package session

import (
	"errors"

	"github.com/spiffe/go-spiffe/v2/workloadapi"

	"github.com/ocx/meshrpc/internal/bytestream"
	"github.com/ocx/meshrpc/internal/eventproc"
	"github.com/ocx/meshrpc/internal/monitor"
	"github.com/ocx/meshrpc/internal/protocoladapter"
	"github.com/ocx/meshrpc/internal/service"
)

// ErrBuilderIncomplete is returned by Build when a required slot
// (EventProc, Transport, Protocol) was never set. Go has no compile-time
// equivalent of session_builder.hxx's slot-flag template parameter, so
// this is checked at Build time instead.
var ErrBuilderIncomplete = errors.New("session: builder missing a required field")

// Builder assembles a Session. EventProc, Transport, and Protocol are
// required; Service, Monitor, Autoflush, and the SPIFFE source default to
// a builder's zero value, a NoopMonitor, enabled, and unset respectively.
// Grounded on original_source/refl/rpc/detail/session_builder.hxx.
type Builder struct {
	eventProc eventproc.EventProc
	mon       monitor.Monitor
	transport bytestream.Stream
	protocol  protocoladapter.ProtocolAdapter
	svc       *service.Table

	autoflush    bool
	tenantID     string
	spiffeSource *workloadapi.X509Source
}

// NewBuilder returns a Builder with autoflush enabled by default.
func NewBuilder() *Builder {
	return &Builder{autoflush: true}
}

func (b *Builder) EventProc(p eventproc.EventProc) *Builder {
	b.eventProc = p
	return b
}

func (b *Builder) Monitor(m monitor.Monitor) *Builder {
	b.mon = m
	return b
}

func (b *Builder) Transport(s bytestream.Stream) *Builder {
	b.transport = s
	return b
}

func (b *Builder) Protocol(p protocoladapter.ProtocolAdapter) *Builder {
	b.protocol = p
	return b
}

func (b *Builder) Service(t *service.Table) *Builder {
	b.svc = t
	return b
}

func (b *Builder) Autoflush(enabled bool) *Builder {
	b.autoflush = enabled
	return b
}

// TenantID seeds SessionProfile.TenantID for multi-tenant routing; empty
// by default.
func (b *Builder) TenantID(id string) *Builder {
	b.tenantID = id
	return b
}

// SPIFFESource opts the session into SPIFFE peer identity resolution: if
// the transport turns out to be a TLS TCPStream, Build resolves and stores
// the peer's verified SVID on Session.Profile().PeerIdentity.
func (b *Builder) SPIFFESource(src *workloadapi.X509Source) *Builder {
	b.spiffeSource = src
	return b
}

// Build validates the required fields, wires the protocol adapter to the
// transport, and performs the Created -> Active transition.
func (b *Builder) Build() (*Session, error) {
	if b.eventProc == nil || b.transport == nil || b.protocol == nil {
		return nil, ErrBuilderIncomplete
	}
	if b.svc == nil {
		b.svc = service.NewBuilder().Build()
	}
	if b.mon == nil {
		b.mon = monitor.NoopMonitor{}
	}

	sess := &Session{
		eventProc: b.eventProc,
		mon:       b.mon,
		transport: b.transport,
		protocol:  b.protocol,
		svc:       b.svc,
		requests:  newRequestContext(),
	}
	sess.profile.TenantID = b.tenantID
	sess.autoflush.Store(b.autoflush)

	sess.protocol.Init(b.transport)
	sess.initialize(b.spiffeSource)

	return sess, nil
}
