package model

import (
	"strings"
	"time"
)

// Plan is a billing tier. It maps to a daily offer quota.
type Plan string

const (
	PlanFree       Plan = "free"
	PlanPro        Plan = "pro"
	PlanEnterprise Plan = "enterprise"
)

// DailyQuota returns the number of offers a tenant on this plan may send per
// calendar day. Enterprise is unbounded (returns -1).
func (p Plan) DailyQuota() int {
	switch p {
	case PlanPro:
		return 100
	case PlanEnterprise:
		return -1
	default:
		return 20
	}
}

// MessageMode selects how the promotional message body is built.
type MessageMode string

const (
	ModeStandard MessageMode = "standard"
	ModeCustom   MessageMode = "custom"
)

// Tenant is one customer account: affiliate credentials, schedule, messaging
// destination and usage counters.
//
// The scheduler loop re-reads this record on every tick; nothing here is
// cached across ticks.
type Tenant struct {
	ID    string
	Email string

	// PasswordHash is a bcrypt hash; only the management API touches it.
	PasswordHash string

	// Affiliate API credentials.
	AppID     string
	AppSecret string

	// Destination chat for outgoing offers.
	DestinationID string

	// Comma-delimited, user-edited keyword list. May be empty.
	Keywords string

	MessageMode    MessageMode
	CustomTemplate string

	Plan Plan

	// Daily usage. OffersToday is reset to zero on the first tick observed
	// after LastResetDate no longer matches the current date.
	OffersToday   int
	LastResetDate string // "YYYY-MM-DD"

	// Polling interval in milliseconds.
	SearchIntervalMS int

	// Active window boundaries as "HH:MM". The window may wrap past midnight
	// (start > end).
	StartTime string
	EndTime   string

	TrialEndsAt time.Time

	Paused bool
	Active bool
	Admin  bool

	CreatedAt time.Time
}

// SearchInterval returns the polling interval as a duration, or def when the
// stored value is not positive.
func (t *Tenant) SearchInterval(def time.Duration) time.Duration {
	if t == nil || t.SearchIntervalMS <= 0 {
		return def
	}
	return time.Duration(t.SearchIntervalMS) * time.Millisecond
}

// HasCredentials reports whether the fields required for a search-and-send
// cycle are present.
func (t *Tenant) HasCredentials() bool {
	if t == nil {
		return false
	}
	return strings.TrimSpace(t.AppID) != "" &&
		strings.TrimSpace(t.AppSecret) != "" &&
		strings.TrimSpace(t.DestinationID) != ""
}

// KeywordList splits the configured keyword string on commas, trims each
// entry and drops empties. Returns nil when nothing usable is configured.
func (t *Tenant) KeywordList() []string {
	if t == nil || strings.TrimSpace(t.Keywords) == "" {
		return nil
	}
	parts := strings.Split(t.Keywords, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
