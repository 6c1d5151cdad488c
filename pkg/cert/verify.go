package cert

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Verification errors.
var (
	ErrCertExpired     = errors.New("certificate has expired")
	ErrCertNotYetValid = errors.New("certificate is not yet valid")
	ErrUnknownPeer     = errors.New("peer certificate not pinned")
)

// VerifyValidity checks the validity period of a certificate.
func VerifyValidity(cert *x509.Certificate, now time.Time) error {
	if cert == nil {
		return ErrInvalidCert
	}
	if now.Before(cert.NotBefore) {
		return ErrCertNotYetValid
	}
	if now.After(cert.NotAfter) {
		return ErrCertExpired
	}
	return nil
}

// Fingerprint returns the SHA-256 fingerprint of a certificate as
// colon-separated hex.
func Fingerprint(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	var b strings.Builder
	for i, c := range sum {
		if i > 0 {
			b.WriteByte(':')
		}
		fmt.Fprintf(&b, "%02X", c)
	}
	return b.String()
}

// VerifyPinned creates a verification callback for TLS connections that
// accepts only peers whose leaf certificate matches one of the pinned
// certificates. It is meant for self-signed peers, together with
// InsecureSkipVerify on the client side.
func VerifyPinned(pinned ...*x509.Certificate) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("no peer certificate")
		}

		peer, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("parse peer certificate: %w", err)
		}
		if err := VerifyValidity(peer, time.Now()); err != nil {
			return err
		}

		for _, p := range pinned {
			if p != nil && bytes.Equal(p.Raw, peer.Raw) {
				return nil
			}
		}
		return fmt.Errorf("%w: %s", ErrUnknownPeer, Fingerprint(peer))
	}
}

// CertificateInfo extracts human-readable information from a certificate.
type CertificateInfo struct {
	CommonName  string
	Issuer      string
	NotBefore   time.Time
	NotAfter    time.Time
	IsCA        bool
	Fingerprint string
}

// GetCertificateInfo extracts information from a certificate.
func GetCertificateInfo(cert *x509.Certificate) *CertificateInfo {
	if cert == nil {
		return nil
	}

	return &CertificateInfo{
		CommonName:  cert.Subject.CommonName,
		Issuer:      cert.Issuer.CommonName,
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		IsCA:        cert.IsCA,
		Fingerprint: Fingerprint(cert),
	}
}
