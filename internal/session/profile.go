package session

import (
	"github.com/ocx/meshrpc/internal/monitor"
	"github.com/ocx/meshrpc/internal/service"
)

// Profile is the cached, read-only description of one session, shared with
// a handler's first argument, the monitor callbacks, and SessionGroup
// accounting. Grounded on session_profile.hxx's session_profile, with
// TenantID and PeerIdentity added for multi-tenant and SPIFFE-aware
// deployments.
type Profile struct {
	// LocalID uniquely identifies this session within the process; assigned
	// once at session creation and never reused.
	LocalID string

	// RemoteID is the peer-reported identity, if the handshake populates
	// one; empty until then.
	RemoteID string

	// TenantID scopes this session for multi-tenant routing and metrics.
	TenantID string

	// PeerName is the transport-level peer address (e.g. "10.0.0.4:51233"),
	// mirroring session_profile's peer_name.
	PeerName string

	// PeerIdentity is the verified SPIFFE ID of the remote peer, resolved
	// during session creation when the SessionBuilder carries an
	// X509Source and the transport is a TLS TCPStream. Empty otherwise.
	PeerIdentity string

	// TotalRead/TotalWrite are cumulative byte counters, refreshed after
	// every protocol interaction; see Session.Totals.
	TotalRead  uint64
	TotalWrite uint64
}

func (p Profile) monitorProfile() monitor.Profile {
	return monitor.Profile{LocalID: p.LocalID, RemoteID: p.RemoteID, TenantID: p.TenantID}
}

func (p Profile) serviceProfile() service.Profile {
	return service.Profile{LocalID: p.LocalID, RemoteID: p.RemoteID, TenantID: p.TenantID}
}
