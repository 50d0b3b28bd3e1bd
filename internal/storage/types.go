package storage

import (
	"context"
	"errors"
	"time"

	"offerbot/internal/model"
)

var ErrNotFound = errors.New("not found")

// DedupLimit bounds the per-tenant sent-offer history. Oldest entries are
// evicted first once the bound is exceeded.
const DedupLimit = 250

// Config selects and configures a backend.
//
// Driver values:
//   - "sqlite": local database file (modernc.org/sqlite)
//   - "postgres": shared database (pgx through database/sql)
type Config struct {
	Driver      string
	Path        string        // sqlite
	DSN         string        // postgres
	BusyTimeout time.Duration // sqlite; 0 means default
}

// TenantPatch is a partial tenant update. Nil fields are left untouched.
type TenantPatch struct {
	AppID          *string
	AppSecret      *string
	DestinationID  *string
	Keywords       *string
	MessageMode    *string
	CustomTemplate *string
	Plan           *string
	OffersToday    *int
	LastResetDate  *string
	SearchInterval *int // milliseconds
	StartTime      *string
	EndTime        *string
	Paused         *bool
	Active         *bool
}

// Stats is the admin dashboard aggregate.
type Stats struct {
	Tenants       int64 `json:"tenants"`
	ActiveTenants int64 `json:"active_tenants"`
	OffersToday   int64 `json:"offers_today"`
}

// Store is the persistence API used by the bot manager, the scheduler loop,
// the janitor and the management API.
//
// RecordSent MUST persist synchronously before returning and MUST evict the
// oldest entries beyond DedupLimit, so re-sends stay impossible across a
// process restart.
type Store interface {
	TenantByID(ctx context.Context, id string) (*model.Tenant, error)
	TenantByEmail(ctx context.Context, email string) (*model.Tenant, error)
	Tenants(ctx context.Context) ([]*model.Tenant, error)
	CreateTenant(ctx context.Context, t *model.Tenant) error
	UpdateTenant(ctx context.Context, id string, patch TenantPatch) error
	IncrementOffersToday(ctx context.Context, id string) error

	// ResetDailyCounters zeroes offers_today for every tenant whose
	// last_reset_date differs from today ("YYYY-MM-DD"). Returns the number
	// of rows touched. The per-tick lazy reset remains authoritative; this
	// sweep covers tenants idle across midnight.
	ResetDailyCounters(ctx context.Context, today string) (int64, error)

	SentContains(ctx context.Context, tenantID, itemID string) (bool, error)
	RecordSent(ctx context.Context, tenantID, itemID string) error
	// VacuumSent defensively drops history rows beyond DedupLimit for all
	// tenants (RecordSent already trims its own tenant on every append).
	VacuumSent(ctx context.Context) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
