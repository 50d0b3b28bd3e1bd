// Package gateway implements session.Transport against the browser-based
// messaging gateway's HTTP API. The gateway owns the actual browser sessions;
// this client only drives them.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"offerbot/internal/session"
	logx "offerbot/pkg/logx"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// StatusPoll is how often a connected session polls the gateway for
	// status transitions. Defaults to 2s.
	StatusPoll time.Duration
}

type Transport struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) (*Transport, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("gateway base url is empty")
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("gateway base url: %w", err)
	}
	cfg.BaseURL = base
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.StatusPoll <= 0 {
		cfg.StatusPoll = 2 * time.Second
	}
	return &Transport{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, log: log}, nil
}

type statusResponse struct {
	Status  string `json:"status"`
	Payload string `json:"payload,omitempty"`
}

// Connect asks the gateway to open (or resume) the tenant's session and
// starts a status poll loop that feeds onStatus until the session is closed.
func (t *Transport) Connect(ctx context.Context, tenantID string, onStatus session.StatusFunc) (session.Session, error) {
	var sr statusResponse
	if err := t.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(tenantID)+"/connect", nil, &sr); err != nil {
		return nil, fmt.Errorf("gateway connect: %w", err)
	}
	t.log.Debug("gateway session opened",
		logx.String("tenant", tenantID), logx.String("status", sr.Status))

	s := &gwSession{
		t:        t,
		tenantID: tenantID,
		done:     make(chan struct{}),
	}
	if onStatus != nil {
		if sr.Status != "" {
			onStatus(sr.Status, sr.Payload)
		}
		go s.pollStatus(onStatus)
	}
	return s, nil
}

// DropCredentials deletes the gateway's cached pairing tokens for the tenant.
func (t *Transport) DropCredentials(tenantID string) error {
	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.Timeout)
	defer cancel()
	return t.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(tenantID)+"/tokens", nil, nil)
}

func (t *Transport) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(raw))
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

type gwSession struct {
	t        *Transport
	tenantID string

	closeOnce sync.Once
	done      chan struct{}
}

// pollStatus forwards gateway status transitions until Close. Repeated
// identical statuses are collapsed; terminal statuses end the loop (the
// manager tears the session down on those).
func (s *gwSession) pollStatus(onStatus session.StatusFunc) {
	ticker := time.NewTicker(s.t.cfg.StatusPoll)
	defer ticker.Stop()

	last := ""
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.t.cfg.StatusPoll)
		var sr statusResponse
		err := s.t.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(s.tenantID)+"/status", nil, &sr)
		cancel()
		if err != nil {
			continue
		}
		if sr.Status == "" || sr.Status == last {
			continue
		}
		last = sr.Status
		onStatus(sr.Status, sr.Payload)
		if session.Translate(sr.Status) == session.DispositionTerminal {
			return
		}
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message,omitempty"`
	Image   string `json:"image,omitempty"`
	Caption string `json:"caption,omitempty"`
}

func (s *gwSession) SendText(ctx context.Context, destID, text string) error {
	return s.t.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(s.tenantID)+"/send-text",
		sendRequest{To: destID, Message: text}, nil)
}

func (s *gwSession) SendImage(ctx context.Context, destID, imageURL, caption string) error {
	return s.t.do(ctx, http.MethodPost, "/sessions/"+url.PathEscape(s.tenantID)+"/send-image",
		sendRequest{To: destID, Image: imageURL, Caption: caption}, nil)
}

func (s *gwSession) ListDestinations(ctx context.Context) ([]session.Destination, error) {
	var out []session.Destination
	err := s.t.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(s.tenantID)+"/chats", nil, &out)
	return out, err
}

func (s *gwSession) ListDestinationsFallback(ctx context.Context) ([]session.Destination, error) {
	var out []session.Destination
	err := s.t.do(ctx, http.MethodGet, "/sessions/"+url.PathEscape(s.tenantID)+"/groups", nil, &out)
	return out, err
}

func (s *gwSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		ctx, cancel := context.WithTimeout(context.Background(), s.t.cfg.Timeout)
		defer cancel()
		err = s.t.do(ctx, http.MethodDelete, "/sessions/"+url.PathEscape(s.tenantID), nil, nil)
	})
	return err
}
