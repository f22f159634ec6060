package cache

import (
	"fmt"
	"strings"
	"time"
)

// Tier is a named cache bucket with a fixed max-age policy. Entries older
// than their tier's max age are treated as misses and are eligible for
// physical removal by the sweep loop.
type Tier string

const (
	TierLive       Tier = "LIVE"
	TierDaily      Tier = "DAILY"
	TierWeekly     Tier = "WEEKLY"
	TierCampaign   Tier = "CAMPAIGN"
	TierHistorical Tier = "HISTORICAL"
	TierComputed   Tier = "COMPUTED"
)

var tierMaxAges = map[Tier]time.Duration{
	TierLive:       5 * time.Minute,
	TierDaily:      24 * time.Hour,
	TierWeekly:     7 * 24 * time.Hour,
	TierCampaign:   90 * 24 * time.Hour,
	TierHistorical: 0,
	TierComputed:   0,
}

// Tiers lists every tier in declaration order.
func Tiers() []Tier {
	return []Tier{TierLive, TierDaily, TierWeekly, TierCampaign, TierHistorical, TierComputed}
}

// FiniteTiers lists the tiers with a bounded max age, i.e. those the sweep
// loop visits.
func FiniteTiers() []Tier {
	return []Tier{TierLive, TierDaily, TierWeekly, TierCampaign}
}

// MaxAge returns the tier's maximum entry age. Zero means unbounded.
func (t Tier) MaxAge() time.Duration {
	return tierMaxAges[t]
}

// Unbounded reports whether entries in this tier never expire.
func (t Tier) Unbounded() bool {
	return tierMaxAges[t] == 0
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierMaxAges[t]
	return ok
}

// ParseTier converts a case-insensitive tier name into a Tier.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown cache tier %q", s)
	}
	return t, nil
}
