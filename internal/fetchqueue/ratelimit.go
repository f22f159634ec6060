package fetchqueue

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/civicweave/civicdata/pkg/config"
)

// intervalLimiter enforces minimum inter-request spacing, globally and per
// domain. Reserve hands out dispatch times: each reservation advances both
// the global and the domain clocks, so the gap between any two consecutive
// dispatch times for a domain is at least that domain's interval, and the gap
// between any two dispatches overall is at least the global interval.
type intervalLimiter struct {
	mu              sync.Mutex
	globalInterval  time.Duration
	defaultInterval time.Duration
	domainIntervals map[string]time.Duration
	globalNext      time.Time
	domainNext      map[string]time.Time
	now             func() time.Time
}

func newIntervalLimiter(cfg config.QueueConfig) *intervalLimiter {
	intervals := make(map[string]time.Duration, len(cfg.DomainIntervals))
	for domain, interval := range cfg.DomainIntervals {
		intervals[normalizeDomain(domain)] = interval
	}
	return &intervalLimiter{
		globalInterval:  cfg.GlobalInterval,
		defaultInterval: cfg.DefaultDomainInterval,
		domainIntervals: intervals,
		domainNext:      make(map[string]time.Time),
		now:             time.Now,
	}
}

// Reserve returns the earliest time a request to domain may be dispatched and
// advances both clocks to account for it. Callers sleep until the returned
// time before firing.
func (l *intervalLimiter) Reserve(domain string) time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	at := now
	if l.globalNext.After(at) {
		at = l.globalNext
	}
	if next, ok := l.domainNext[domain]; ok && next.After(at) {
		at = next
	}
	l.globalNext = at.Add(l.globalInterval)
	l.domainNext[domain] = at.Add(l.interval(domain))
	return at
}

// Interval returns the configured minimum spacing for a domain, falling back
// to the default for unknown domains.
func (l *intervalLimiter) Interval(domain string) time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.interval(domain)
}

func (l *intervalLimiter) interval(domain string) time.Duration {
	if interval, ok := l.domainIntervals[domain]; ok {
		return interval
	}
	return l.defaultInterval
}

// extractDomain derives the rate-limiting key from a URL: the hostname with
// any leading "www." stripped. Unparseable URLs share the empty-string key so
// they still respect the default interval.
func extractDomain(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return normalizeDomain(u.Hostname())
}

func normalizeDomain(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
