package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"fmt"
	"math/big"
	"net"
	"time"
)

// DefaultValidity is the validity period of generated certificates.
const DefaultValidity = 365 * 24 * time.Hour // 1 year

// Certificate errors.
var (
	ErrInvalidCert     = errors.New("invalid certificate")
	ErrKeyMismatch     = errors.New("private key does not match certificate")
	ErrMissingIdentity = errors.New("certificate and key are both required")
)

// Identity is an endpoint's certificate and its ECDSA P-256 private key.
type Identity struct {
	Certificate *x509.Certificate
	PrivateKey  *ecdsa.PrivateKey
}

// Options controls certificate generation.
type Options struct {
	// CommonName is the subject CN (default "cfnet").
	CommonName string

	// DNSNames and IPAddresses become subject alternative names.
	DNSNames    []string
	IPAddresses []net.IP

	// Validity is the lifetime (default DefaultValidity).
	Validity time.Duration

	// IsCA makes the certificate usable as a trust anchor for the
	// identities it signs.
	IsCA bool
}

// GenerateSelfSigned creates a self-signed identity usable for both the
// server and the client side of a session.
func GenerateSelfSigned(opts Options) (*Identity, error) {
	return generate(opts, nil)
}

// Issue creates an identity signed by ca.
func Issue(ca *Identity, opts Options) (*Identity, error) {
	if ca == nil || ca.Certificate == nil || ca.PrivateKey == nil {
		return nil, ErrMissingIdentity
	}
	return generate(opts, ca)
}

func generate(opts Options, issuer *Identity) (*Identity, error) {
	if opts.CommonName == "" {
		opts.CommonName = "cfnet"
	}
	if opts.Validity == 0 {
		opts.Validity = DefaultValidity
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("generate serial: %w", err)
	}

	ski, err := computeSKI(&key.PublicKey)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{CommonName: opts.CommonName},
		NotBefore:             now.Add(-time.Minute), // Allow small clock skew
		NotAfter:              now.Add(opts.Validity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
		SubjectKeyId:          ski,
		DNSNames:              opts.DNSNames,
		IPAddresses:           opts.IPAddresses,
	}
	if opts.IsCA {
		template.KeyUsage |= x509.KeyUsageCertSign
	}

	parent, signer := template, key
	if issuer != nil {
		parent, signer = issuer.Certificate, issuer.PrivateKey
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, &key.PublicKey, signer)
	if err != nil {
		return nil, fmt.Errorf("create certificate: %w", err)
	}
	c, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("parse certificate: %w", err)
	}

	return &Identity{Certificate: c, PrivateKey: key}, nil
}

// computeSKI derives the subject key identifier from the public key.
func computeSKI(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	sum := sha1.Sum(der)
	return sum[:], nil
}

// TLSCertificate converts the identity for use in a tls.Config.
func (id *Identity) TLSCertificate() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Certificate.Raw},
		PrivateKey:  id.PrivateKey,
		Leaf:        id.Certificate,
	}
}

// Pool returns a pool trusting only this identity's certificate.
func (id *Identity) Pool() *x509.CertPool {
	pool := x509.NewCertPool()
	pool.AddCert(id.Certificate)
	return pool
}

// Validate checks that the key belongs to the certificate.
func (id *Identity) Validate() error {
	if id == nil || id.Certificate == nil || id.PrivateKey == nil {
		return ErrMissingIdentity
	}
	pub, ok := id.Certificate.PublicKey.(*ecdsa.PublicKey)
	if !ok || !pub.Equal(&id.PrivateKey.PublicKey) {
		return ErrKeyMismatch
	}
	return nil
}
