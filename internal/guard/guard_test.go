package guard

import (
	"testing"
	"time"
)

func TestAllowPermitsUnderLimit(t *testing.T) {
	g := New(Config{MaxRequestsPerMinute: 5, BanTimeout: time.Minute})
	for i := 0; i < 5; i++ {
		if err := g.Allow("client-a"); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
}

func TestAllowBansAfterLimitExceeded(t *testing.T) {
	g := New(Config{MaxRequestsPerMinute: 3, BanTimeout: time.Minute})
	for i := 0; i < 3; i++ {
		if err := g.Allow("client-a"); err != nil {
			t.Fatalf("request %d: unexpected error: %v", i, err)
		}
	}
	if err := g.Allow("client-a"); err == nil {
		t.Fatalf("expected the 4th request within a minute to trip the limit")
	}
	if err := g.Allow("client-a"); err == nil {
		t.Fatalf("expected a banned client to keep being rejected")
	}
}

func TestAllowTracksClientsIndependently(t *testing.T) {
	g := New(Config{MaxRequestsPerMinute: 1, BanTimeout: time.Minute})
	if err := g.Allow("client-a"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.Allow("client-b"); err != nil {
		t.Fatalf("expected a different client to have its own budget: %v", err)
	}
}

func TestReapDropsOnlyIdleUnbannedClients(t *testing.T) {
	g := New(DefaultConfig())
	now := time.Now()

	g.mu.Lock()
	g.stats["idle"] = &clientStats{lastRequestAt: now.Add(-2 * time.Hour)}
	g.stats["fresh"] = &clientStats{lastRequestAt: now}
	g.stats["banned"] = &clientStats{lastRequestAt: now.Add(-2 * time.Hour), bannedUntil: now.Add(time.Hour)}
	g.mu.Unlock()

	g.Reap()

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.stats["idle"]; ok {
		t.Fatalf("expected idle client to be reaped")
	}
	if _, ok := g.stats["fresh"]; !ok {
		t.Fatalf("expected fresh client to survive reap")
	}
	if _, ok := g.stats["banned"]; !ok {
		t.Fatalf("expected a still-banned client to survive reap despite being idle")
	}
}
