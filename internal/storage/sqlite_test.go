package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"offerbot/internal/model"
	logx "offerbot/pkg/logx"
)

func openTestStore(t *testing.T, path string) Store {
	t.Helper()
	st, err := Open(Config{Driver: "sqlite", Path: path, BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func seedTenant(t *testing.T, st Store, id string) *model.Tenant {
	t.Helper()
	tn := &model.Tenant{
		ID:            id,
		Email:         id + "@example.com",
		Plan:          model.PlanFree,
		MessageMode:   model.ModeStandard,
		LastResetDate: "2026-01-01",
		StartTime:     "08:00",
		EndTime:       "22:00",
		Active:        true,
	}
	if err := st.CreateTenant(context.Background(), tn); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tn
}

func TestTenantRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	in := &model.Tenant{
		ID:               "t1",
		Email:            "u@example.com",
		PasswordHash:     "$2a$10$hash",
		AppID:            "app",
		AppSecret:        "secret",
		DestinationID:    "g1",
		Keywords:         "fone, mouse",
		MessageMode:      model.ModeCustom,
		CustomTemplate:   "{produto} {preco} {link}",
		Plan:             model.PlanPro,
		OffersToday:      3,
		LastResetDate:    "2026-08-30",
		SearchIntervalMS: 600000,
		StartTime:        "22:00",
		EndTime:          "06:00",
		TrialEndsAt:      time.Date(2026, 9, 6, 12, 0, 0, 0, time.UTC),
		Paused:           true,
	}
	if err := st.CreateTenant(ctx, in); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := st.TenantByID(ctx, "t1")
	if err != nil {
		t.Fatalf("by id: %v", err)
	}
	if got.Email != in.Email || got.Keywords != in.Keywords || got.Plan != model.PlanPro ||
		got.MessageMode != model.ModeCustom || got.OffersToday != 3 || !got.Paused {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if !got.TrialEndsAt.Equal(in.TrialEndsAt) {
		t.Fatalf("TrialEndsAt = %v, want %v", got.TrialEndsAt, in.TrialEndsAt)
	}

	byEmail, err := st.TenantByEmail(ctx, "u@example.com")
	if err != nil || byEmail.ID != "t1" {
		t.Fatalf("by email: %v %+v", err, byEmail)
	}

	if _, err := st.TenantByID(ctx, "ghost"); err != ErrNotFound {
		t.Fatalf("missing tenant err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTenantPatch(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()
	seedTenant(t, st, "t1")

	kw := "notebook"
	paused := true
	if err := st.UpdateTenant(ctx, "t1", TenantPatch{Keywords: &kw, Paused: &paused}); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, err := st.TenantByID(ctx, "t1")
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if got.Keywords != "notebook" || !got.Paused {
		t.Fatalf("patch not applied: %+v", got)
	}
	// Untouched fields keep their values.
	if got.StartTime != "08:00" || got.Email != "t1@example.com" {
		t.Fatalf("patch touched unrelated fields: %+v", got)
	}

	// Empty patch is a no-op, not an error.
	if err := st.UpdateTenant(ctx, "t1", TenantPatch{}); err != nil {
		t.Fatalf("empty patch: %v", err)
	}
	if err := st.UpdateTenant(ctx, "ghost", TenantPatch{Keywords: &kw}); err != ErrNotFound {
		t.Fatalf("missing tenant err = %v, want ErrNotFound", err)
	}
}

func TestIncrementAndReset(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()
	seedTenant(t, st, "stale")
	fresh := seedTenant(t, st, "fresh")
	fresh.LastResetDate = "2026-08-30"
	if err := st.UpdateTenant(ctx, "fresh", TenantPatch{LastResetDate: &fresh.LastResetDate}); err != nil {
		t.Fatalf("prep: %v", err)
	}

	for i := 0; i < 3; i++ {
		if err := st.IncrementOffersToday(ctx, "stale"); err != nil {
			t.Fatalf("increment: %v", err)
		}
	}
	got, _ := st.TenantByID(ctx, "stale")
	if got.OffersToday != 3 {
		t.Fatalf("OffersToday = %d, want 3", got.OffersToday)
	}

	// Only rows with a stale date are swept.
	n, err := st.ResetDailyCounters(ctx, "2026-08-30")
	if err != nil {
		t.Fatalf("reset sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d rows, want 1", n)
	}
	got, _ = st.TenantByID(ctx, "stale")
	if got.OffersToday != 0 || got.LastResetDate != "2026-08-30" {
		t.Fatalf("stale tenant after sweep: %+v", got)
	}
}

func TestDedupFIFOBound(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	total := DedupLimit + 40
	for i := 0; i < total; i++ {
		if err := st.RecordSent(ctx, "t1", fmt.Sprintf("item-%d", i)); err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
	}

	// The oldest entries are gone, the newest DedupLimit remain.
	for i := 0; i < total-DedupLimit; i++ {
		seen, err := st.SentContains(ctx, "t1", fmt.Sprintf("item-%d", i))
		if err != nil {
			t.Fatalf("contains: %v", err)
		}
		if seen {
			t.Fatalf("item-%d should have been evicted", i)
		}
	}
	for i := total - DedupLimit; i < total; i++ {
		seen, err := st.SentContains(ctx, "t1", fmt.Sprintf("item-%d", i))
		if err != nil {
			t.Fatalf("contains: %v", err)
		}
		if !seen {
			t.Fatalf("item-%d should still be present", i)
		}
	}
}

func TestDedupPerTenantIsolation(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	if err := st.RecordSent(ctx, "a", "item-1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	seen, _ := st.SentContains(ctx, "b", "item-1")
	if seen {
		t.Fatal("dedup leaked across tenants")
	}

	// Re-recording the same item is a no-op.
	if err := st.RecordSent(ctx, "a", "item-1"); err != nil {
		t.Fatalf("re-record: %v", err)
	}
	seen, _ = st.SentContains(ctx, "a", "item-1")
	if !seen {
		t.Fatal("item lost after re-record")
	}
}

func TestDedupSurvivesRestart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bot.db")
	ctx := context.Background()

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.RecordSent(ctx, "t1", "item-42"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	st = openTestStore(t, path)
	seen, err := st.SentContains(ctx, "t1", "item-42")
	if err != nil {
		t.Fatalf("contains after reopen: %v", err)
	}
	if !seen {
		t.Fatal("dedup entry lost across restart")
	}
}

func TestVacuumSent(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	for i := 0; i < DedupLimit+10; i++ {
		if err := st.RecordSent(ctx, "t1", fmt.Sprintf("x-%d", i)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if err := st.VacuumSent(ctx); err != nil {
		t.Fatalf("vacuum: %v", err)
	}
	seen, _ := st.SentContains(ctx, "t1", "x-0")
	if seen {
		t.Fatal("vacuum kept an entry past the bound")
	}
}

func TestStats(t *testing.T) {
	t.Parallel()
	st := openTestStore(t, filepath.Join(t.TempDir(), "bot.db"))
	ctx := context.Background()

	seedTenant(t, st, "a")
	b := seedTenant(t, st, "b")
	b.Active = false
	if err := st.UpdateTenant(ctx, "b", TenantPatch{Active: &b.Active}); err != nil {
		t.Fatalf("prep: %v", err)
	}
	_ = st.IncrementOffersToday(ctx, "a")
	_ = st.IncrementOffersToday(ctx, "a")

	stats, err := st.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Tenants != 2 || stats.ActiveTenants != 1 || stats.OffersToday != 2 {
		t.Fatalf("stats = %+v, want 2 tenants, 1 active, 2 offers", stats)
	}
}
