// Package telegram implements session.Transport on a Telegram bot.
//
// Unlike the gateway transport there is no pairing step: one bot token serves
// the whole process, so Connect reports a logged-in session immediately.
// Destinations are the chats the bot has been added to, learned from the
// update stream.
package telegram

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"offerbot/internal/session"
	logx "offerbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Transport struct {
	cfg Config
	log logx.Logger
	bot *tele.Bot

	mu      sync.Mutex
	polling bool
	chats   map[int64]session.Destination
}

func New(cfg Config, log logx.Logger) (*Transport, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	t := &Transport{cfg: cfg, log: log, bot: b, chats: make(map[int64]session.Destination)}
	t.registerHandlers()
	return t, nil
}

// registerHandlers records every chat the bot can see so ListDestinations has
// something to offer. Message content is otherwise ignored.
func (t *Transport) registerHandlers() {
	observe := func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		t.recordChat(m.Chat)
		return nil
	}
	t.bot.Handle(tele.OnText, observe)
	t.bot.Handle(tele.OnAddedToGroup, observe)
}

func (t *Transport) recordChat(c *tele.Chat) {
	name := c.Title
	if name == "" {
		name = strings.TrimSpace(c.FirstName + " " + c.LastName)
	}
	if name == "" {
		name = c.Username
	}
	group := c.Type == tele.ChatGroup || c.Type == tele.ChatSuperGroup || c.Type == tele.ChatChannel

	t.mu.Lock()
	t.chats[c.ID] = session.Destination{
		ID:    strconv.FormatInt(c.ID, 10),
		Name:  name,
		Group: group,
	}
	t.mu.Unlock()
}

// Connect ensures the shared poll loop is running and reports the session as
// logged in. There is no per-tenant pairing with a bot token.
func (t *Transport) Connect(ctx context.Context, tenantID string, onStatus session.StatusFunc) (session.Session, error) {
	t.mu.Lock()
	if !t.polling {
		t.polling = true
		go func() {
			t.log.Info("polling started")
			t.bot.Start()
			t.log.Info("polling stopped")
		}()
	}
	t.mu.Unlock()

	if onStatus != nil {
		onStatus(session.StatusLoggedIn, "")
	}
	return &tgSession{t: t}, nil
}

// DropCredentials is a no-op: the bot token is process configuration, not a
// per-tenant credential.
func (t *Transport) DropCredentials(tenantID string) error { return nil }

// Shutdown stops the shared poll loop. Individual session Close calls leave it
// running for the other tenants.
func (t *Transport) Shutdown() {
	t.mu.Lock()
	wasPolling := t.polling
	t.polling = false
	t.mu.Unlock()
	if wasPolling {
		t.bot.Stop()
	}
}

type tgSession struct {
	t *Transport
}

func (s *tgSession) chat(destID string) (*tele.Chat, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(destID), 10, 64)
	if err != nil {
		return nil, errors.New("destination id is not a telegram chat id")
	}
	return &tele.Chat{ID: id}, nil
}

func (s *tgSession) SendText(ctx context.Context, destID, text string) error {
	chat, err := s.chat(destID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err = s.t.bot.Send(chat, text)
	return err
}

func (s *tgSession) SendImage(ctx context.Context, destID, imageURL, caption string) error {
	chat, err := s.chat(destID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	photo := &tele.Photo{File: tele.FromURL(imageURL), Caption: caption}
	_, err = s.t.bot.Send(chat, photo)
	return err
}

func (s *tgSession) ListDestinations(ctx context.Context) ([]session.Destination, error) {
	return s.list(false), nil
}

func (s *tgSession) ListDestinationsFallback(ctx context.Context) ([]session.Destination, error) {
	return s.list(true), nil
}

func (s *tgSession) list(groupsOnly bool) []session.Destination {
	s.t.mu.Lock()
	out := make([]session.Destination, 0, len(s.t.chats))
	for _, d := range s.t.chats {
		if groupsOnly && !d.Group {
			continue
		}
		out = append(out, d)
	}
	s.t.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Close is a no-op for the shared bot; the poll loop is owned by the
// transport, not by any one tenant.
func (s *tgSession) Close() error { return nil }
