package config

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestIdentityStore(t *testing.T) *IdentityStore {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("USERPROFILE", dir)
	return NewIdentityStore("test-cluster")
}

func TestLoadWithNoCacheFileReturnsZeroValue(t *testing.T) {
	s := newTestIdentityStore(t)
	id, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Cluster != "" || len(id.BootstrapPeers) != 0 {
		t.Fatalf("expected a zero-value identity when no cache exists, got %+v", id)
	}
}

func TestAddBootstrapPeerPersistsAcrossLoads(t *testing.T) {
	s := newTestIdentityStore(t)

	if err := s.AddBootstrapPeer("test-cluster", "/ip4/1.2.3.4/tcp/7777/p2p/QmPeer"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, err := s.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id.Cluster != "test-cluster" {
		t.Fatalf("expected cluster to be recorded, got %q", id.Cluster)
	}
	if len(id.BootstrapPeers) != 1 || id.BootstrapPeers[0] != "/ip4/1.2.3.4/tcp/7777/p2p/QmPeer" {
		t.Fatalf("expected the bootstrap peer to be persisted, got %v", id.BootstrapPeers)
	}
}

func TestAddBootstrapPeerDeduplicates(t *testing.T) {
	s := newTestIdentityStore(t)
	peer := "/ip4/1.2.3.4/tcp/7777/p2p/QmPeer"

	if err := s.AddBootstrapPeer("test-cluster", peer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.AddBootstrapPeer("test-cluster", peer); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	id, _ := s.Load()
	if len(id.BootstrapPeers) != 1 {
		t.Fatalf("expected duplicate peer to be deduplicated, got %v", id.BootstrapPeers)
	}
}

func TestIdentityStoreWritesUnderDotfileDir(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("USERPROFILE", dir)

	s := NewIdentityStore("another-cluster")
	if err := s.AddBootstrapPeer("another-cluster", "/ip4/5.6.7.8/tcp/7777/p2p/QmOther"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := filepath.Join(dir, ".pangea-coordinator", "another-cluster_identity.json")
	if _, err := os.Stat(want); err != nil {
		t.Fatalf("expected identity cache at %s: %v", want, err)
	}
}
