package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"offerbot/internal/model"
	logx "offerbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const tenantColumns = `id, email, password_hash, app_id, app_secret, destination_id,
	keywords, message_mode, custom_template, plan, offers_today, last_reset_date,
	search_interval_ms, start_time, end_time, trial_ends_at, paused, active, admin, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*model.Tenant, error) {
	var (
		t                       model.Tenant
		mode, trialRaw, created string
	)
	err := row.Scan(
		&t.ID, &t.Email, &t.PasswordHash, &t.AppID, &t.AppSecret, &t.DestinationID,
		&t.Keywords, &mode, &t.CustomTemplate, (*string)(&t.Plan), &t.OffersToday, &t.LastResetDate,
		&t.SearchIntervalMS, &t.StartTime, &t.EndTime, &trialRaw, &t.Paused, &t.Active, &t.Admin, &created,
	)
	if err != nil {
		return nil, err
	}
	t.MessageMode = model.MessageMode(mode)
	if trialRaw != "" {
		t.TrialEndsAt, _ = time.Parse(time.RFC3339Nano, trialRaw)
	}
	if created != "" {
		t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	}
	return &t, nil
}

func fmtTime(v time.Time) string {
	if v.IsZero() {
		return ""
	}
	return v.Format(time.RFC3339Nano)
}

func (s *sqliteStore) TenantByID(ctx context.Context, id string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = ?`, id)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) TenantByEmail(ctx context.Context, email string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE email = ?`, email)
	t, err := scanTenant(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *sqliteStore) Tenants(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Tenant
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.Email, t.PasswordHash, t.AppID, t.AppSecret, t.DestinationID,
		t.Keywords, string(t.MessageMode), t.CustomTemplate, string(t.Plan), t.OffersToday, t.LastResetDate,
		t.SearchIntervalMS, t.StartTime, t.EndTime, fmtTime(t.TrialEndsAt), t.Paused, t.Active, t.Admin, fmtTime(t.CreatedAt),
	)
	return err
}

// patchClauses builds the SET clause for a partial update. The placeholder
// function abstracts over sqlite ("?") and postgres ("$n") syntax.
func patchClauses(p TenantPatch, placeholder func() string) (sets []string, args []any) {
	add := func(col string, v any) {
		sets = append(sets, col+" = "+placeholder())
		args = append(args, v)
	}
	if p.AppID != nil {
		add("app_id", *p.AppID)
	}
	if p.AppSecret != nil {
		add("app_secret", *p.AppSecret)
	}
	if p.DestinationID != nil {
		add("destination_id", *p.DestinationID)
	}
	if p.Keywords != nil {
		add("keywords", *p.Keywords)
	}
	if p.MessageMode != nil {
		add("message_mode", *p.MessageMode)
	}
	if p.CustomTemplate != nil {
		add("custom_template", *p.CustomTemplate)
	}
	if p.Plan != nil {
		add("plan", *p.Plan)
	}
	if p.OffersToday != nil {
		add("offers_today", *p.OffersToday)
	}
	if p.LastResetDate != nil {
		add("last_reset_date", *p.LastResetDate)
	}
	if p.SearchInterval != nil {
		add("search_interval_ms", *p.SearchInterval)
	}
	if p.StartTime != nil {
		add("start_time", *p.StartTime)
	}
	if p.EndTime != nil {
		add("end_time", *p.EndTime)
	}
	if p.Paused != nil {
		add("paused", *p.Paused)
	}
	if p.Active != nil {
		add("active", *p.Active)
	}
	return sets, args
}

func (s *sqliteStore) UpdateTenant(ctx context.Context, id string, patch TenantPatch) error {
	sets, args := patchClauses(patch, func() string { return "?" })
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) IncrementOffersToday(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET offers_today = offers_today + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) ResetDailyCounters(ctx context.Context, today string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET offers_today = 0, last_reset_date = ? WHERE last_reset_date <> ?`,
		today, today)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *sqliteStore) SentContains(ctx context.Context, tenantID, itemID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sent_offers WHERE tenant_id = ? AND item_id = ?`, tenantID, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) RecordSent(ctx context.Context, tenantID, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_offers(tenant_id, item_id) VALUES(?,?)
		 ON CONFLICT(tenant_id, item_id) DO NOTHING`, tenantID, itemID)
	if err != nil {
		return err
	}
	// FIFO eviction: drop everything older than the newest DedupLimit rows.
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM sent_offers WHERE tenant_id = ? AND seq <= (
		    SELECT seq FROM sent_offers WHERE tenant_id = ?
		    ORDER BY seq DESC LIMIT 1 OFFSET ?
		 )`, tenantID, tenantID, DedupLimit)
	return err
}

func (s *sqliteStore) VacuumSent(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT tenant_id FROM sent_offers`)
	if err != nil {
		return err
	}
	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM sent_offers WHERE tenant_id = ? AND seq <= (
			    SELECT seq FROM sent_offers WHERE tenant_id = ?
			    ORDER BY seq DESC LIMIT 1 OFFSET ?
			 )`, id, id, DedupLimit)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN active <> 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(offers_today), 0)
		 FROM tenants`).Scan(&st.Tenants, &st.ActiveTenants, &st.OffersToday)
	return st, err
}
