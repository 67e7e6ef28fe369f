package registry

import (
	"testing"

	"github.com/libp2p/go-libp2p/core/peer"
)

// Bringing up a real libp2p host is integration-heavy; the one piece of
// pure logic worth unit testing directly is the rendezvous string derived
// from a cluster name, which RegisterServer and findPeers both rely on
// agreeing.
func TestRendezvousIsStableAndScopedPerCluster(t *testing.T) {
	a := rendezvous("cluster-a")
	b := rendezvous("cluster-b")

	if a == b {
		t.Fatalf("expected different clusters to get different rendezvous strings")
	}
	if rendezvous("cluster-a") != a {
		t.Fatalf("expected rendezvous to be deterministic for the same cluster name")
	}
}

func TestShortPeerIDTruncatesLongIDs(t *testing.T) {
	short := peer.ID("abc")
	if got := shortPeerID(short); got != "abc" {
		t.Fatalf("expected a short id to be returned unchanged, got %q", got)
	}

	long := peer.ID("QmSomeVeryLongPeerIdentifierString")
	if got := shortPeerID(long); len(got) != 8 {
		t.Fatalf("expected a long id to be truncated to 8 chars, got %q (len %d)", got, len(got))
	}
}
