// Package storage persists tenant records, per-tenant sent-offer history and
// daily usage counters.
//
// Two backends are provided: sqlite (modernc.org/sqlite, local file, the
// default) and postgres (jackc/pgx via database/sql, for shared deployments).
// The scheduler loop treats the store as the source of truth: tenant
// configuration is re-read on every tick and never cached across ticks.
package storage
