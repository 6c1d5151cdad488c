package cert

import (
	"path/filepath"
	"testing"
)

func TestFileStoreLoadOrGenerate(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "identity"))

	first, created, err := s.LoadOrGenerate(Options{CommonName: "node"})
	if err != nil {
		t.Fatalf("LoadOrGenerate() error = %v", err)
	}
	if !created {
		t.Error("first call must generate")
	}

	second, created, err := s.LoadOrGenerate(Options{CommonName: "other"})
	if err != nil {
		t.Fatalf("LoadOrGenerate() error = %v", err)
	}
	if created {
		t.Error("second call must load the stored identity")
	}
	if !second.Certificate.Equal(first.Certificate) {
		t.Error("loaded identity differs from the generated one")
	}
	if second.Certificate.Subject.CommonName != "node" {
		t.Errorf("CommonName = %q, want node", second.Certificate.Subject.CommonName)
	}
}

func TestFileStorePaths(t *testing.T) {
	s := NewFileStore("/etc/cfnet")
	if s.CertPath() != filepath.Join("/etc/cfnet", CertFileName) {
		t.Errorf("CertPath() = %q", s.CertPath())
	}
	if s.KeyPath() != filepath.Join("/etc/cfnet", KeyFileName) {
		t.Errorf("KeyPath() = %q", s.KeyPath())
	}
}
