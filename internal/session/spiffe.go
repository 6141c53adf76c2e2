package session

import (
	"crypto/tls"
	"fmt"
	"net"

	"github.com/spiffe/go-spiffe/v2/svid/x509svid"
	"github.com/spiffe/go-spiffe/v2/workloadapi"
)

// resolveSPIFFEIdentity extracts the verified peer SVID from a TLS
// transport's already-completed handshake (the handshake's own
// ClientAuth/RootCAs configuration is what actually verified the
// certificate chain; this only reads the result) and confirms source
// recognizes the peer's trust domain before trusting the identity.
// Grounded on SPEC_FULL.md's SPIFFEIdentity wiring, using
// github.com/spiffe/go-spiffe/v2's x509svid.IDFromCert.
func resolveSPIFFEIdentity(conn net.Conn, source *workloadapi.X509Source) (string, error) {
	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		return "", fmt.Errorf("session: spiffe identity requires a TLS transport, got %T", conn)
	}
	certs := tlsConn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", fmt.Errorf("session: spiffe identity requires a peer certificate")
	}

	id, err := x509svid.IDFromCert(certs[0])
	if err != nil {
		return "", fmt.Errorf("session: resolving peer SPIFFE ID: %w", err)
	}

	if _, err := source.GetX509BundleForTrustDomain(id.TrustDomain()); err != nil {
		return "", fmt.Errorf("session: peer trust domain %q not recognized: %w", id.TrustDomain(), err)
	}

	return id.String(), nil
}
