package manager

import (
	"context"
	"fmt"
	"time"

	"offerbot/internal/compose"
	"offerbot/internal/model"
	"offerbot/internal/notify"
	"offerbot/internal/offers"
	"offerbot/internal/storage"
	logx "offerbot/pkg/logx"
)

// runCycle is one scheduled tick: re-read the tenant, walk the gates, search,
// send at most one offer, record it. Whatever happens, the next tick is armed
// before returning (stop is the only thing that breaks the chain).
func (m *Manager) runCycle(b *bot) {
	b.cycleMu.Lock()
	defer b.cycleMu.Unlock()

	if b.ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, 2*time.Minute)
	defer cancel()

	log := m.log.With(logx.String("tenant", b.tenantID))

	// The tenant record is re-read every tick so dashboard edits apply on the
	// very next cycle without a restart.
	t, err := m.opts.Store.TenantByID(ctx, b.tenantID)
	if err != nil {
		log.Warn("cycle: tenant read failed", logx.Err(err))
		m.schedule(b, m.opts.FallbackInterval)
		return
	}
	defer m.schedule(b, t.SearchInterval(m.opts.FallbackInterval))

	if err := m.tick(ctx, b, t, log); err != nil {
		log.Warn("cycle failed", logx.Err(err))
		m.opts.Notifier.Publish(b.tenantID, notify.TypeError, err.Error())
	}
}

// tick walks the gates and performs the send. A nil return covers both "sent"
// and "nothing to do this tick".
func (m *Manager) tick(ctx context.Context, b *bot, t *model.Tenant, log logx.Logger) error {
	now := m.opts.Now()

	if !t.HasCredentials() {
		log.Debug("cycle skipped: credentials or destination missing")
		return nil
	}
	if t.Paused {
		log.Debug("cycle skipped: paused")
		return nil
	}
	if !withinWindow(now, t.StartTime, t.EndTime) {
		log.Debug("cycle skipped: outside active window",
			logx.String("start", t.StartTime), logx.String("end", t.EndTime))
		return nil
	}

	today := dateString(now)
	if t.LastResetDate != today {
		if err := m.opts.Store.UpdateTenant(ctx, t.ID, storage.TenantPatch{
			OffersToday:   ptr(0),
			LastResetDate: ptr(today),
		}); err != nil {
			return fmt.Errorf("daily reset: %w", err)
		}
		t.OffersToday = 0
		t.LastResetDate = today
		log.Info("daily counter reset", logx.String("date", today))
	}

	// Quota is checked before the remote search so an exhausted tenant costs
	// no API calls for the rest of the day.
	if quota := t.Plan.DailyQuota(); quota >= 0 && t.OffersToday >= quota {
		log.Debug("cycle skipped: daily quota reached",
			logx.Int("sent", t.OffersToday), logx.Int("quota", quota))
		return nil
	}

	b.mu.Lock()
	sess := b.sess
	rng := b.rng
	b.mu.Unlock()
	if sess == nil {
		return ErrNotConnected
	}

	keyword := m.pickKeyword(t, rng)
	if keyword == "" {
		log.Debug("cycle skipped: no keyword available")
		return nil
	}

	found, err := m.opts.Offers.SearchRandomPage(ctx, offers.Credentials{
		AppID:     t.AppID,
		AppSecret: t.AppSecret,
	}, keyword)
	if err != nil {
		return fmt.Errorf("search %q: %w", keyword, err)
	}

	offer, err := m.firstUnsent(ctx, t.ID, found)
	if err != nil {
		return err
	}
	if offer == nil {
		log.Debug("cycle: no fresh offer", logx.String("keyword", keyword), logx.Int("candidates", len(found)))
		return nil
	}

	body := compose.Message(compose.Input{
		Offer:          *offer,
		Mode:           t.MessageMode,
		CustomTemplate: t.CustomTemplate,
		Variant:        compose.PickVariant(rng),
	})

	if err := m.send(ctx, sess, t.DestinationID, offer.ImageURL, body, log); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	// Persist the dedup entry before bumping the counter: losing a counter
	// increment is recoverable, re-sending the same offer is not.
	if err := m.opts.Store.RecordSent(ctx, t.ID, offer.ItemID); err != nil {
		return fmt.Errorf("record sent: %w", err)
	}
	if err := m.opts.Store.IncrementOffersToday(ctx, t.ID); err != nil {
		return fmt.Errorf("increment counter: %w", err)
	}

	log.Info("offer sent",
		logx.String("keyword", keyword),
		logx.String("item", offer.ItemID),
		logx.Int("sent_today", t.OffersToday+1))
	m.opts.Notifier.Publish(t.ID, notify.TypeOfferSent, map[string]any{
		"item_id": offer.ItemID,
		"name":    offer.Name,
		"price":   offer.Price,
	})
	return nil
}

// firstUnsent returns the first candidate absent from the dedup history, or
// nil when every candidate has been posted before.
func (m *Manager) firstUnsent(ctx context.Context, tenantID string, found []model.Offer) (*model.Offer, error) {
	for i := range found {
		seen, err := m.opts.Store.SentContains(ctx, tenantID, found[i].ItemID)
		if err != nil {
			return nil, fmt.Errorf("dedup lookup: %w", err)
		}
		if !seen {
			return &found[i], nil
		}
	}
	return nil, nil
}

// send posts the offer as an image with caption when one is available and
// falls back to plain text when the image send fails.
func (m *Manager) send(ctx context.Context, sess sessionSender, destID, imageURL, body string, log logx.Logger) error {
	if imageURL != "" {
		err := sess.SendImage(ctx, destID, imageURL, body)
		if err == nil {
			return nil
		}
		log.Warn("image send failed, falling back to text", logx.Err(err))
	}
	return sess.SendText(ctx, destID, body)
}

// sessionSender is the slice of session.Session the cycle needs; tests supply
// lightweight fakes.
type sessionSender interface {
	SendText(ctx context.Context, destID, text string) error
	SendImage(ctx context.Context, destID, imageURL, caption string) error
}

func dateString(now time.Time) string {
	return now.Format("2006-01-02")
}

// withinWindow reports whether now falls inside the "HH:MM" window, inclusive
// at both boundaries. Windows may wrap past midnight (start > end); equal
// boundaries match only that minute. A missing or malformed boundary disables
// the gate.
func withinWindow(now time.Time, start, end string) bool {
	s, okS := parseMinutes(start)
	e, okE := parseMinutes(end)
	if !okS || !okE {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if s == e {
		return cur == s
	}
	if s < e {
		return cur >= s && cur <= e
	}
	// Wraparound window, e.g. 22:00 to 06:00.
	return cur >= s || cur <= e
}

func parseMinutes(hhmm string) (int, bool) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return 0, false
	}
	return t.Hour()*60 + t.Minute(), true
}
