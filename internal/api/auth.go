package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"offerbot/internal/model"
	"offerbot/internal/storage"
	logx "offerbot/pkg/logx"
)

// tokenTable maps opaque bearer tokens to tenant IDs. Tokens live in memory
// only; a restart logs everyone out, which is acceptable for a dashboard.
type tokenTable struct {
	mu     sync.Mutex
	tokens map[string]string
}

func newTokenTable() *tokenTable {
	return &tokenTable{tokens: map[string]string{}}
}

func (t *tokenTable) issue(tenantID string) string {
	buf := make([]byte, 24)
	_, _ = rand.Read(buf)
	tok := hex.EncodeToString(buf)
	t.mu.Lock()
	t.tokens[tok] = tenantID
	t.mu.Unlock()
	return tok
}

func (t *tokenTable) lookup(tok string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.tokens[tok]
	return id, ok
}

type tenantKeyType struct{}

var tenantKey tenantKeyType

// auth resolves the bearer token to a tenant and stashes it in the request
// context.
func (s *Server) auth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if tok == "" || tok == r.Header.Get("Authorization") {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		id, ok := s.tokens.lookup(tok)
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		next(w, r.WithContext(contextWithTenant(r.Context(), id)))
	})
}

// admin is auth plus the admin flag on the account.
func (s *Server) admin(next http.HandlerFunc) http.Handler {
	return s.auth(func(w http.ResponseWriter, r *http.Request) {
		t, err := s.store.TenantByID(r.Context(), tenantID(r))
		if err != nil {
			mapManagerError(w, err)
			return
		}
		if !t.Admin {
			writeError(w, http.StatusForbidden, "admin only")
			return
		}
		next(w, r)
	})
}

func contextWithTenant(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, tenantKey, id)
}

func tenantID(r *http.Request) string {
	id, _ := r.Context().Value(tenantKey).(string)
	return id
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Admin bool   `json:"admin,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeError(w, http.StatusBadRequest, "invalid email address")
		return
	}
	if len(req.Password) < 6 {
		writeError(w, http.StatusBadRequest, "password must have at least 6 characters")
		return
	}

	if _, err := s.store.TenantByEmail(r.Context(), req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	t := &model.Tenant{
		ID:            newID(),
		Email:         req.Email,
		PasswordHash:  string(hash),
		Plan:          model.PlanFree,
		MessageMode:   model.ModeStandard,
		LastResetDate: time.Now().Format("2006-01-02"),
		TrialEndsAt:   time.Now().AddDate(0, 0, 7),
		CreatedAt:     time.Now(),
	}
	if err := s.store.CreateTenant(r.Context(), t); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.log.Info("account registered", logx.String("tenant", t.ID))
	writeJSON(w, http.StatusCreated, authResponse{Token: s.tokens.issue(t.ID), ID: t.ID})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	t, err := s.store.TenantByEmail(r.Context(), req.Email)
	if err != nil {
		// Same answer for unknown email and wrong password.
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if bcrypt.CompareHashAndPassword([]byte(t.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: s.tokens.issue(t.ID), ID: t.ID, Admin: t.Admin})
}

func newID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
