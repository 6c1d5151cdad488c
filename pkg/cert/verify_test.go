package cert

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestVerifyValidity(t *testing.T) {
	id, _ := GenerateSelfSigned(Options{Validity: time.Hour})
	now := time.Now()

	tests := []struct {
		name string
		at   time.Time
		want error
	}{
		{"valid", now, nil},
		{"expired", now.Add(2 * time.Hour), ErrCertExpired},
		{"not yet valid", now.Add(-time.Hour), ErrCertNotYetValid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := VerifyValidity(id.Certificate, tt.at); !errors.Is(err, tt.want) {
				t.Errorf("VerifyValidity() error = %v, want %v", err, tt.want)
			}
		})
	}

	if err := VerifyValidity(nil, now); !errors.Is(err, ErrInvalidCert) {
		t.Errorf("VerifyValidity(nil) error = %v", err)
	}
}

func TestVerifyPinned(t *testing.T) {
	pinned, _ := GenerateSelfSigned(Options{})
	stranger, _ := GenerateSelfSigned(Options{})

	verify := VerifyPinned(pinned.Certificate)

	if err := verify([][]byte{pinned.Certificate.Raw}, nil); err != nil {
		t.Errorf("pinned peer rejected: %v", err)
	}
	if err := verify([][]byte{stranger.Certificate.Raw}, nil); !errors.Is(err, ErrUnknownPeer) {
		t.Errorf("stranger error = %v, want ErrUnknownPeer", err)
	}
	if err := verify(nil, nil); err == nil {
		t.Error("empty chain accepted")
	}
	if err := verify([][]byte{[]byte("junk")}, nil); err == nil {
		t.Error("unparseable certificate accepted")
	}
}

func TestFingerprint(t *testing.T) {
	id, _ := GenerateSelfSigned(Options{})

	fp := Fingerprint(id.Certificate)
	if len(fp) != 32*3-1 {
		t.Errorf("fingerprint length = %d, want %d", len(fp), 32*3-1)
	}
	if strings.Count(fp, ":") != 31 || strings.ToUpper(fp) != fp {
		t.Errorf("fingerprint %q not upper-case colon-separated hex", fp)
	}

	info := GetCertificateInfo(id.Certificate)
	if info.Fingerprint != fp || info.CommonName != "cfnet" {
		t.Errorf("info = %+v", info)
	}
	if GetCertificateInfo(nil) != nil {
		t.Error("GetCertificateInfo(nil) must be nil")
	}
}
