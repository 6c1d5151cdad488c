package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"github.com/cfnet-project/cfnet-go/pkg/version"
)

// TLS constants for cfnet sessions.
const (
	// ALPNProtocol is the ALPN protocol identifier of protocol version 1.
	ALPNProtocol = version.ALPNPrefix + "1"

	// DefaultPort is the default classic protocol port.
	DefaultPort = 5308

	// MinTLSVersion is the lowest TLS version negotiated.
	MinTLSVersion = tls.VersionTLS12
)

// TLSConfig holds the material for building session configs. Trust policy
// is up to the caller: supply pools and a verification callback as needed.
type TLSConfig struct {
	// Certificate is the TLS certificate for this endpoint.
	Certificate tls.Certificate

	// RootCAs is the pool of trusted CA certificates for verifying servers.
	RootCAs *x509.CertPool

	// ClientCAs is the pool of CA certificates for client authentication.
	ClientCAs *x509.CertPool

	// RequireClientCert makes servers demand and verify a client certificate.
	RequireClientCert bool

	// ServerName is the expected server name for client connections.
	ServerName string

	// InsecureSkipVerify disables certificate verification.
	// Only for testing - never use in production!
	InsecureSkipVerify bool

	// VerifyPeerCertificate is an optional callback for custom certificate verification.
	VerifyPeerCertificate func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error
}

// NewServerTLSConfig creates a TLS configuration for the accepting side.
func NewServerTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}
	if len(cfg.Certificate.Certificate) == 0 {
		return nil, fmt.Errorf("server certificate is required")
	}

	tlsConfig := &tls.Config{
		MinVersion:   MinTLSVersion,
		Certificates: []tls.Certificate{cfg.Certificate},
		ClientCAs:    cfg.ClientCAs,
		NextProtos:   version.SupportedALPNProtocols(),

		// Curve preferences for key exchange
		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},

		// Session tickets disabled (no resumption)
		SessionTicketsDisabled: true,

		VerifyPeerCertificate: cfg.VerifyPeerCertificate,
	}

	switch {
	case cfg.RequireClientCert:
		tlsConfig.ClientAuth = tls.RequireAndVerifyClientCert
	case cfg.ClientCAs != nil:
		tlsConfig.ClientAuth = tls.VerifyClientCertIfGiven
	default:
		tlsConfig.ClientAuth = tls.NoClientCert
	}

	return tlsConfig, nil
}

// NewClientTLSConfig creates a TLS configuration for the connecting side.
// A client certificate is optional.
func NewClientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("TLSConfig is required")
	}

	tlsConfig := &tls.Config{
		MinVersion: MinTLSVersion,
		RootCAs:    cfg.RootCAs,
		ServerName: cfg.ServerName,
		NextProtos: version.SupportedALPNProtocols(),

		CurvePreferences: []tls.CurveID{
			tls.X25519,
			tls.CurveP256,
		},

		SessionTicketsDisabled: true,

		VerifyPeerCertificate: cfg.VerifyPeerCertificate,

		// For testing only
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}
	if len(cfg.Certificate.Certificate) > 0 {
		tlsConfig.Certificates = []tls.Certificate{cfg.Certificate}
	}

	return tlsConfig, nil
}

// VerifyVersion checks that a session negotiated at least MinTLSVersion.
func VerifyVersion(state tls.ConnectionState) error {
	if state.Version < MinTLSVersion {
		return fmt.Errorf("TLS version %s is below %s",
			tls.VersionName(state.Version), tls.VersionName(MinTLSVersion))
	}
	return nil
}

// VerifyALPN checks that the negotiated ALPN protocol names a compatible
// protocol version.
func VerifyALPN(state tls.ConnectionState) error {
	major, err := version.MajorFromALPN(state.NegotiatedProtocol)
	if err != nil {
		return err
	}
	if !version.MustCurrent().Compatible(version.ProtocolVersion{Major: major}) {
		return fmt.Errorf("ALPN protocol %q is not compatible with version %s",
			state.NegotiatedProtocol, version.Current)
	}
	return nil
}

// VerifyConnection performs the standard post-handshake checks.
func VerifyConnection(state tls.ConnectionState) error {
	if err := VerifyVersion(state); err != nil {
		return err
	}
	return VerifyALPN(state)
}
