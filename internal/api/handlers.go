package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"offerbot/internal/model"
	"offerbot/internal/storage"
	logx "offerbot/pkg/logx"
)

// tenantConfig is the dashboard's view of the tenant record. The password
// hash and the usage bookkeeping never leave the server.
type tenantConfig struct {
	AppID          string `json:"app_id"`
	AppSecret      string `json:"app_secret"`
	DestinationID  string `json:"destination_id"`
	Keywords       string `json:"keywords"`
	MessageMode    string `json:"message_mode"`
	CustomTemplate string `json:"custom_template"`
	SearchInterval int    `json:"search_interval_ms"`
	StartTime      string `json:"start_time"`
	EndTime        string `json:"end_time"`
	Plan           string `json:"plan"`
	OffersToday    int    `json:"offers_today"`
	Paused         bool   `json:"paused"`
}

func configView(t *model.Tenant) tenantConfig {
	return tenantConfig{
		AppID:          t.AppID,
		AppSecret:      t.AppSecret,
		DestinationID:  t.DestinationID,
		Keywords:       t.Keywords,
		MessageMode:    string(t.MessageMode),
		CustomTemplate: t.CustomTemplate,
		SearchInterval: t.SearchIntervalMS,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		Plan:           string(t.Plan),
		OffersToday:    t.OffersToday,
		Paused:         t.Paused,
	}
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	t, err := s.store.TenantByID(r.Context(), tenantID(r))
	if err != nil {
		mapManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configView(t))
}

// configPatch mirrors tenantConfig with pointer fields so absent keys leave
// the stored value untouched.
type configPatch struct {
	AppID          *string `json:"app_id"`
	AppSecret      *string `json:"app_secret"`
	DestinationID  *string `json:"destination_id"`
	Keywords       *string `json:"keywords"`
	MessageMode    *string `json:"message_mode"`
	CustomTemplate *string `json:"custom_template"`
	SearchInterval *int    `json:"search_interval_ms"`
	StartTime      *string `json:"start_time"`
	EndTime        *string `json:"end_time"`
}

func (s *Server) handleSaveConfig(w http.ResponseWriter, r *http.Request) {
	var req configPatch
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if req.MessageMode != nil {
		mode := strings.TrimSpace(*req.MessageMode)
		if mode != string(model.ModeStandard) && mode != string(model.ModeCustom) {
			writeError(w, http.StatusBadRequest, "message_mode must be standard or custom")
			return
		}
	}

	id := tenantID(r)
	err := s.store.UpdateTenant(r.Context(), id, storage.TenantPatch{
		AppID:          req.AppID,
		AppSecret:      req.AppSecret,
		DestinationID:  req.DestinationID,
		Keywords:       req.Keywords,
		MessageMode:    req.MessageMode,
		CustomTemplate: req.CustomTemplate,
		SearchInterval: req.SearchInterval,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
	})
	if err != nil {
		mapManagerError(w, err)
		return
	}

	// The scheduler loop re-reads the record every tick, so saved changes
	// apply without a restart.
	t, err := s.store.TenantByID(r.Context(), id)
	if err != nil {
		mapManagerError(w, err)
		return
	}
	s.log.Info("config saved", logx.String("tenant", id))
	writeJSON(w, http.StatusOK, configView(t))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if err := s.bots.StartBot(r.Context(), tenantID(r)); err != nil {
		mapManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "starting"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if err := s.bots.StopBot(r.Context(), tenantID(r)); err != nil {
		mapManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.bots.RestartBot(r.Context(), tenantID(r)); err != nil {
		mapManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarting"})
}

func (s *Server) handleTogglePause(w http.ResponseWriter, r *http.Request) {
	paused, err := s.bots.TogglePause(r.Context(), tenantID(r))
	if err != nil {
		mapManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"paused": paused})
}

func (s *Server) handleTestCycle(w http.ResponseWriter, r *http.Request) {
	if err := s.bots.ForceCycle(r.Context(), tenantID(r)); err != nil {
		mapManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cycle executed"})
}

func (s *Server) handleRefreshGroups(w http.ResponseWriter, r *http.Request) {
	dests, err := s.bots.FetchDestinations(r.Context(), tenantID(r))
	if err != nil {
		mapManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, dests)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bots.Status(tenantID(r)))
}

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type adminUser struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	Plan        string `json:"plan"`
	OffersToday int    `json:"offers_today"`
	Active      bool   `json:"active"`
	Paused      bool   `json:"paused"`
}

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	tenants, err := s.store.Tenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := make([]adminUser, 0, len(tenants))
	for _, t := range tenants {
		out = append(out, adminUser{
			ID:          t.ID,
			Email:       t.Email,
			Plan:        string(t.Plan),
			OffersToday: t.OffersToday,
			Active:      t.Active,
			Paused:      t.Paused,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
