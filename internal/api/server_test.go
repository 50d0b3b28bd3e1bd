package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"offerbot/internal/eventbus"
	"offerbot/internal/manager"
	"offerbot/internal/model"
	"offerbot/internal/notify"
	"offerbot/internal/session"
	"offerbot/internal/storage"
	logx "offerbot/pkg/logx"
)

type memStore struct {
	mu      sync.Mutex
	tenants map[string]*model.Tenant
}

func newMemStore(ts ...*model.Tenant) *memStore {
	s := &memStore{tenants: map[string]*model.Tenant{}}
	for _, t := range ts {
		s.tenants[t.ID] = t
	}
	return s
}

func (s *memStore) TenantByID(_ context.Context, id string) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) TenantByEmail(_ context.Context, email string) (*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.Email == email {
			cp := *t
			return &cp, nil
		}
	}
	return nil, storage.ErrNotFound
}

func (s *memStore) Tenants(context.Context) ([]*model.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*model.Tenant, 0, len(s.tenants))
	for _, t := range s.tenants {
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memStore) CreateTenant(_ context.Context, t *model.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tenants[t.ID] = t
	return nil
}

func (s *memStore) UpdateTenant(_ context.Context, id string, p storage.TenantPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[id]
	if !ok {
		return storage.ErrNotFound
	}
	if p.AppID != nil {
		t.AppID = *p.AppID
	}
	if p.Keywords != nil {
		t.Keywords = *p.Keywords
	}
	if p.MessageMode != nil {
		t.MessageMode = model.MessageMode(*p.MessageMode)
	}
	if p.Paused != nil {
		t.Paused = *p.Paused
	}
	return nil
}

func (s *memStore) IncrementOffersToday(context.Context, string) error       { return nil }
func (s *memStore) ResetDailyCounters(context.Context, string) (int64, error) { return 0, nil }
func (s *memStore) SentContains(context.Context, string, string) (bool, error) {
	return false, nil
}
func (s *memStore) RecordSent(context.Context, string, string) error { return nil }
func (s *memStore) VacuumSent(context.Context) error                 { return nil }
func (s *memStore) Stats(context.Context) (storage.Stats, error) {
	return storage.Stats{Tenants: 2}, nil
}
func (s *memStore) Close() error { return nil }

type fakeBots struct {
	mu      sync.Mutex
	started []string
	stopped []string
	cycles  []string
	err     error
}

func (f *fakeBots) StartBot(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, id)
	return f.err
}

func (f *fakeBots) StopBot(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, id)
	return f.err
}

func (f *fakeBots) RestartBot(_ context.Context, id string) error { return f.err }

func (f *fakeBots) Status(string) manager.Status {
	return manager.Status{Running: true, Connected: true, State: manager.StateConnected}
}

func (f *fakeBots) ForceCycle(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cycles = append(f.cycles, id)
	return f.err
}

func (f *fakeBots) FetchDestinations(context.Context, string) ([]session.Destination, error) {
	return []session.Destination{{ID: "g1", Name: "Ofertas", Group: true}}, nil
}

func (f *fakeBots) TogglePause(context.Context, string) (bool, error) { return true, f.err }

func hashOf(t *testing.T, password string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(h)
}

func newTestServer(t *testing.T, store *memStore, bots *fakeBots) *Server {
	t.Helper()
	return New(Config{Addr: ":0"}, store, bots, notify.New(eventbus.New(), logx.Nop()), logx.Nop())
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRegisterAndLogin(t *testing.T) {
	t.Parallel()
	store := newMemStore()
	s := newTestServer(t, store, &fakeBots{})
	h := s.routes()

	rec := doJSON(t, h, http.MethodPost, "/api/register", "", credentialsRequest{
		Email: "user@example.com", Password: "hunter22",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d: %s", rec.Code, rec.Body)
	}
	var reg authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &reg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if reg.Token == "" || reg.ID == "" {
		t.Fatalf("register returned empty token or id: %+v", reg)
	}

	// Duplicate email is refused.
	rec = doJSON(t, h, http.MethodPost, "/api/register", "", credentialsRequest{
		Email: "user@example.com", Password: "hunter22",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register status = %d, want 409", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/login", "", credentialsRequest{
		Email: "user@example.com", Password: "hunter22",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodPost, "/api/login", "", credentialsRequest{
		Email: "user@example.com", Password: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login status = %d, want 401", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, newMemStore(), &fakeBots{})
	h := s.routes()

	cases := []struct {
		name string
		req  credentialsRequest
	}{
		{"bad email", credentialsRequest{Email: "not-an-email", Password: "hunter22"}},
		{"short password", credentialsRequest{Email: "ok@example.com", Password: "abc"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := doJSON(t, h, http.MethodPost, "/api/register", "", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestAuthRequired(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, newMemStore(), &fakeBots{})
	h := s.routes()

	for _, path := range []string{"/api/config", "/api/status"} {
		rec := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("GET %s without token = %d, want 401", path, rec.Code)
		}
	}
	rec := doJSON(t, h, http.MethodPost, "/api/start", "bogus-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token status = %d, want 401", rec.Code)
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	t.Parallel()
	tenant := &model.Tenant{ID: "t1", Email: "u@example.com", PasswordHash: hashOf(t, "hunter22")}
	store := newMemStore(tenant)
	bots := &fakeBots{}
	s := newTestServer(t, store, bots)
	h := s.routes()
	token := s.tokens.issue("t1")

	if rec := doJSON(t, h, http.MethodPost, "/api/start", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/test-cycle", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("test-cycle status = %d: %s", rec.Code, rec.Body)
	}
	if rec := doJSON(t, h, http.MethodPost, "/api/stop", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d: %s", rec.Code, rec.Body)
	}

	bots.mu.Lock()
	defer bots.mu.Unlock()
	if len(bots.started) != 1 || bots.started[0] != "t1" {
		t.Fatalf("started = %v, want [t1]", bots.started)
	}
	if len(bots.cycles) != 1 || len(bots.stopped) != 1 {
		t.Fatalf("cycles=%v stopped=%v, want one each", bots.cycles, bots.stopped)
	}
}

func TestLifecycleErrorMapping(t *testing.T) {
	t.Parallel()
	tenant := &model.Tenant{ID: "t1", Email: "u@example.com"}
	s := newTestServer(t, newMemStore(tenant), &fakeBots{err: manager.ErrNotRunning})
	h := s.routes()
	token := s.tokens.issue("t1")

	rec := doJSON(t, h, http.MethodPost, "/api/test-cycle", token, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409 for a stopped bot", rec.Code)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()
	tenant := &model.Tenant{ID: "t1", Email: "u@example.com", MessageMode: model.ModeStandard}
	store := newMemStore(tenant)
	s := newTestServer(t, store, &fakeBots{})
	h := s.routes()
	token := s.tokens.issue("t1")

	appID := "shopee-app"
	keywords := "fone, mouse"
	rec := doJSON(t, h, http.MethodPost, "/api/config", token, configPatch{
		AppID:    &appID,
		Keywords: &keywords,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("save status = %d: %s", rec.Code, rec.Body)
	}

	rec = doJSON(t, h, http.MethodGet, "/api/config", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got tenantConfig
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AppID != appID || got.Keywords != keywords {
		t.Fatalf("config = %+v, want saved values", got)
	}

	bad := "shouty"
	rec = doJSON(t, h, http.MethodPost, "/api/config", token, configPatch{MessageMode: &bad})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid mode status = %d, want 400", rec.Code)
	}
}

func TestAdminGate(t *testing.T) {
	t.Parallel()
	user := &model.Tenant{ID: "u1", Email: "u@example.com"}
	admin := &model.Tenant{ID: "a1", Email: "a@example.com", Admin: true}
	s := newTestServer(t, newMemStore(user, admin), &fakeBots{})
	h := s.routes()

	userTok := s.tokens.issue("u1")
	adminTok := s.tokens.issue("a1")

	if rec := doJSON(t, h, http.MethodGet, "/api/admin/stats", userTok, nil); rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", rec.Code)
	}
	rec := doJSON(t, h, http.MethodGet, "/api/admin/stats", adminTok, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("admin status = %d: %s", rec.Code, rec.Body)
	}
	var stats storage.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats.Tenants != 2 {
		t.Fatalf("stats.Tenants = %d, want 2", stats.Tenants)
	}

	if rec := doJSON(t, h, http.MethodGet, "/api/admin/users", adminTok, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin users status = %d", rec.Code)
	}
}
