package fetchqueue

import (
	"testing"
	"time"

	"github.com/civicweave/civicdata/pkg/config"
)

func newTestLimiter() *intervalLimiter {
	l := newIntervalLimiter(config.QueueConfig{
		GlobalInterval:        2 * time.Second,
		DefaultDomainInterval: 5 * time.Second,
		DomainIntervals: map[string]time.Duration{
			"congress.gov": 6 * time.Second,
		},
	})
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return t0 }
	return l
}

// TestReserveEnforcesDomainSpacing checks the hard lower bound: consecutive
// reservations for one domain are spaced by at least that domain's interval,
// regardless of how quickly callers ask.
func TestReserveEnforcesDomainSpacing(t *testing.T) {
	l := newTestLimiter()

	var last time.Time
	for i := 0; i < 5; i++ {
		at := l.Reserve("example.com")
		if i > 0 {
			if gap := at.Sub(last); gap < 5*time.Second {
				t.Fatalf("reservation %d spaced %v after previous, want >= 5s", i, gap)
			}
		}
		last = at
	}
}

func TestReserveEnforcesGlobalSpacing(t *testing.T) {
	l := newTestLimiter()

	a := l.Reserve("one.example")
	b := l.Reserve("two.example")
	if gap := b.Sub(a); gap < 2*time.Second {
		t.Errorf("cross-domain reservations spaced %v, want >= 2s (global interval)", gap)
	}
}

func TestReservePerDomainOverride(t *testing.T) {
	l := newTestLimiter()

	a := l.Reserve("congress.gov")
	b := l.Reserve("congress.gov")
	if gap := b.Sub(a); gap != 6*time.Second {
		t.Errorf("congress.gov reservations spaced %v, want 6s override", gap)
	}
}

func TestReserveIdleDomainsDispatchImmediately(t *testing.T) {
	l := newTestLimiter()
	now := l.now()
	if at := l.Reserve("fresh.example"); at.After(now) {
		t.Errorf("first reservation delayed to %v, want immediate", at)
	}
}

func TestExtractDomain(t *testing.T) {
	cases := []struct {
		url  string
		want string
	}{
		{"https://www.reuters.com/world/article", "reuters.com"},
		{"https://apnews.com/x", "apnews.com"},
		{"http://WWW.NPR.ORG/story", "npr.org"},
		{"not a url at all::", ""},
	}
	for _, tc := range cases {
		if got := extractDomain(tc.url); got != tc.want {
			t.Errorf("extractDomain(%q) = %q, want %q", tc.url, got, tc.want)
		}
	}
}
