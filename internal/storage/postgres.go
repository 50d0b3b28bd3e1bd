package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"offerbot/internal/model"
	logx "offerbot/pkg/logx"
)

type postgresStore struct {
	db  *sql.DB
	log logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	st := &postgresStore{db: db, log: log}
	if err := st.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *postgresStore) init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        CREATE TABLE IF NOT EXISTS tenants (
            id                 TEXT PRIMARY KEY,
            email              TEXT NOT NULL UNIQUE,
            password_hash      TEXT NOT NULL DEFAULT '',
            app_id             TEXT NOT NULL DEFAULT '',
            app_secret         TEXT NOT NULL DEFAULT '',
            destination_id     TEXT NOT NULL DEFAULT '',
            keywords           TEXT NOT NULL DEFAULT '',
            message_mode       TEXT NOT NULL DEFAULT 'standard',
            custom_template    TEXT NOT NULL DEFAULT '',
            plan               TEXT NOT NULL DEFAULT 'free',
            offers_today       INTEGER NOT NULL DEFAULT 0,
            last_reset_date    TEXT NOT NULL DEFAULT '',
            search_interval_ms INTEGER NOT NULL DEFAULT 300000,
            start_time         TEXT NOT NULL DEFAULT '00:00',
            end_time           TEXT NOT NULL DEFAULT '23:59',
            trial_ends_at      TIMESTAMPTZ,
            paused             BOOLEAN NOT NULL DEFAULT FALSE,
            active             BOOLEAN NOT NULL DEFAULT TRUE,
            admin              BOOLEAN NOT NULL DEFAULT FALSE,
            created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS sent_offers (
            seq       BIGSERIAL PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            item_id   TEXT NOT NULL,
            UNIQUE (tenant_id, item_id)
        );
        CREATE INDEX IF NOT EXISTS idx_sent_offers_tenant ON sent_offers(tenant_id, seq)`)
	return err
}

func (s *postgresStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func scanTenantPG(row rowScanner) (*model.Tenant, error) {
	var (
		t     model.Tenant
		mode  string
		trial sql.NullTime
	)
	err := row.Scan(
		&t.ID, &t.Email, &t.PasswordHash, &t.AppID, &t.AppSecret, &t.DestinationID,
		&t.Keywords, &mode, &t.CustomTemplate, (*string)(&t.Plan), &t.OffersToday, &t.LastResetDate,
		&t.SearchIntervalMS, &t.StartTime, &t.EndTime, &trial, &t.Paused, &t.Active, &t.Admin, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.MessageMode = model.MessageMode(mode)
	if trial.Valid {
		t.TrialEndsAt = trial.Time
	}
	return &t, nil
}

func (s *postgresStore) TenantByID(ctx context.Context, id string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE id = $1`, id)
	t, err := scanTenantPG(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *postgresStore) TenantByEmail(ctx context.Context, email string) (*model.Tenant, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tenantColumns+` FROM tenants WHERE email = $1`, email)
	t, err := scanTenantPG(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *postgresStore) Tenants(ctx context.Context) ([]*model.Tenant, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+tenantColumns+` FROM tenants ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Tenant
	for rows.Next() {
		t, err := scanTenantPG(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *postgresStore) CreateTenant(ctx context.Context, t *model.Tenant) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	var trial any
	if !t.TrialEndsAt.IsZero() {
		trial = t.TrialEndsAt
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tenants (`+tenantColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)`,
		t.ID, t.Email, t.PasswordHash, t.AppID, t.AppSecret, t.DestinationID,
		t.Keywords, string(t.MessageMode), t.CustomTemplate, string(t.Plan), t.OffersToday, t.LastResetDate,
		t.SearchIntervalMS, t.StartTime, t.EndTime, trial, t.Paused, t.Active, t.Admin, t.CreatedAt,
	)
	return err
}

func (s *postgresStore) UpdateTenant(ctx context.Context, id string, patch TenantPatch) error {
	n := 0
	sets, args := patchClauses(patch, func() string {
		n++
		return fmt.Sprintf("$%d", n)
	})
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET `+strings.Join(sets, ", ")+fmt.Sprintf(` WHERE id = $%d`, n+1), args...)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) IncrementOffersToday(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET offers_today = offers_today + 1 WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) ResetDailyCounters(ctx context.Context, today string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tenants SET offers_today = 0, last_reset_date = $1 WHERE last_reset_date <> $2`,
		today, today)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *postgresStore) SentContains(ctx context.Context, tenantID, itemID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sent_offers WHERE tenant_id = $1 AND item_id = $2`, tenantID, itemID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *postgresStore) RecordSent(ctx context.Context, tenantID, itemID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_offers(tenant_id, item_id) VALUES($1,$2)
		 ON CONFLICT (tenant_id, item_id) DO NOTHING`, tenantID, itemID)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`DELETE FROM sent_offers WHERE tenant_id = $1 AND seq <= (
		    SELECT seq FROM sent_offers WHERE tenant_id = $2
		    ORDER BY seq DESC LIMIT 1 OFFSET $3
		 )`, tenantID, tenantID, DedupLimit)
	return err
}

func (s *postgresStore) VacuumSent(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
        DELETE FROM sent_offers so USING (
            SELECT tenant_id,
                   (SELECT seq FROM sent_offers s2
                    WHERE s2.tenant_id = s1.tenant_id
                    ORDER BY seq DESC LIMIT 1 OFFSET $1) AS cutoff
            FROM (SELECT DISTINCT tenant_id FROM sent_offers) s1
        ) c
        WHERE so.tenant_id = c.tenant_id AND c.cutoff IS NOT NULL AND so.seq <= c.cutoff`,
		DedupLimit)
	return err
}

func (s *postgresStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN active THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(offers_today), 0)
		 FROM tenants`).Scan(&st.Tenants, &st.ActiveTenants, &st.OffersToday)
	return st, err
}
