// Package api is the management plane: account signup and login, tenant
// configuration, bot lifecycle control and the dashboard event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"offerbot/internal/manager"
	"offerbot/internal/notify"
	"offerbot/internal/session"
	"offerbot/internal/storage"
	logx "offerbot/pkg/logx"
)

// BotController is the slice of the bot manager the API drives.
type BotController interface {
	StartBot(ctx context.Context, tenantID string) error
	StopBot(ctx context.Context, tenantID string) error
	RestartBot(ctx context.Context, tenantID string) error
	Status(tenantID string) manager.Status
	ForceCycle(ctx context.Context, tenantID string) error
	FetchDestinations(ctx context.Context, tenantID string) ([]session.Destination, error)
	TogglePause(ctx context.Context, tenantID string) (bool, error)
}

type Config struct {
	Addr string
}

type Server struct {
	cfg      Config
	store    storage.Store
	bots     BotController
	notifier *notify.Notifier
	log      logx.Logger

	tokens *tokenTable
	srv    *http.Server
}

func New(cfg Config, store storage.Store, bots BotController, notifier *notify.Notifier, log logx.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{
		cfg:      cfg,
		store:    store,
		bots:     bots,
		notifier: notifier,
		log:      log,
		tokens:   newTokenTable(),
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/register", s.handleRegister)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.Handle("GET /api/config", s.auth(s.handleGetConfig))
	mux.Handle("POST /api/config", s.auth(s.handleSaveConfig))

	mux.Handle("POST /api/start", s.auth(s.handleStart))
	mux.Handle("POST /api/stop", s.auth(s.handleStop))
	mux.Handle("POST /api/restart", s.auth(s.handleRestart))
	mux.Handle("POST /api/toggle-pause", s.auth(s.handleTogglePause))
	mux.Handle("POST /api/test-cycle", s.auth(s.handleTestCycle))
	mux.Handle("POST /api/refresh-groups", s.auth(s.handleRefreshGroups))
	mux.Handle("GET /api/status", s.auth(s.handleStatus))
	mux.Handle("GET /api/events", s.auth(s.handleEvents))

	mux.Handle("GET /api/admin/stats", s.admin(s.handleAdminStats))
	mux.Handle("GET /api/admin/users", s.admin(s.handleAdminUsers))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

// Start runs the listener until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", logx.String("addr", s.cfg.Addr))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(sctx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// mapManagerError translates lifecycle sentinels to HTTP statuses.
func mapManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, manager.ErrNotRunning):
		writeError(w, http.StatusConflict, "bot is not running")
	case errors.Is(err, manager.ErrNotConnected):
		writeError(w, http.StatusConflict, "session is not connected yet")
	case errors.Is(err, manager.ErrTenantNotFound), errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "account not found")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
