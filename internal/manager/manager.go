// Package manager owns the per-tenant bot lifecycle: session bring-up, the
// scheduled search-and-send cycle, and teardown. One Manager serves every
// tenant of the process.
package manager

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"offerbot/internal/model"
	"offerbot/internal/notify"
	"offerbot/internal/offers"
	rtsup "offerbot/internal/runtime/supervisor"
	"offerbot/internal/session"
	"offerbot/internal/storage"
	logx "offerbot/pkg/logx"
)

// OfferSearcher is the slice of the offers client the cycle needs.
type OfferSearcher interface {
	SearchRandomPage(ctx context.Context, creds offers.Credentials, keyword string) ([]model.Offer, error)
}

// Options wires the manager's collaborators. Store, Transport, Offers and
// Notifier are required.
type Options struct {
	Store     storage.Store
	Transport session.Transport
	Offers    OfferSearcher
	Notifier  *notify.Notifier
	Log       logx.Logger

	// SettleDelay is the pause between the session reporting connected and
	// the first cycle, letting the transport finish its internal sync.
	SettleDelay time.Duration
	// FallbackInterval is used when the tenant record cannot be re-read at
	// reschedule time.
	FallbackInterval time.Duration
	// DefaultKeywords is the search pool when the tenant configured none.
	DefaultKeywords []string
	// DestinationsCap bounds FetchDestinations results.
	DestinationsCap int

	// Now is swapped in tests.
	Now func() time.Time
}

// Bot states as reported by Status.
const (
	StateInitializing = "initializing"
	StateConnected    = "connected"
)

// Status is the lifecycle snapshot the management API exposes.
type Status struct {
	Running   bool   `json:"running"`
	Connected bool   `json:"connected"`
	State     string `json:"state,omitempty"`
}

type Manager struct {
	opts Options
	log  logx.Logger
	sup  *rtsup.Supervisor

	mu   sync.Mutex
	bots map[string]*bot
}

// bot is one tenant's live handle. Absent from Manager.bots means stopped.
type bot struct {
	tenantID string

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	sess      session.Session
	connected bool
	timer     *time.Timer

	// cycleMu serializes cycles; a forced cycle never overlaps a timed one.
	cycleMu sync.Mutex

	rng *rand.Rand
}

func New(ctx context.Context, opts Options) *Manager {
	if opts.Log.IsZero() {
		opts.Log = logx.Nop()
	}
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = 5 * time.Second
	}
	if opts.FallbackInterval <= 0 {
		opts.FallbackInterval = 5 * time.Minute
	}
	if opts.DestinationsCap <= 0 {
		opts.DestinationsCap = 50
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Manager{
		opts: opts,
		log:  opts.Log,
		sup: rtsup.New(ctx,
			rtsup.WithLogger(opts.Log.With(logx.String("comp", "manager"))),
			rtsup.WithCancelOnError(false),
		),
		bots: make(map[string]*bot),
	}
}

// StartAll brings up every tenant marked active. Called once at boot so
// sessions survive a process restart without dashboard intervention.
func (m *Manager) StartAll(ctx context.Context) error {
	tenants, err := m.opts.Store.Tenants(ctx)
	if err != nil {
		return err
	}
	for _, t := range tenants {
		if !t.Active {
			continue
		}
		if err := m.StartBot(ctx, t.ID); err != nil {
			m.log.Warn("boot start failed", logx.String("tenant", t.ID), logx.Err(err))
		}
	}
	return nil
}

// StartBot brings the tenant's session up and schedules its cycle loop.
// Calling it while the tenant is still initializing is a no-op; a handle in
// any later state is fully retired first and replaced with a fresh one, so
// start doubles as recovery for a wedged session.
func (m *Manager) StartBot(ctx context.Context, tenantID string) error {
	t, err := m.opts.Store.TenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrTenantNotFound
		}
		return err
	}

	replaced := false
	for {
		m.mu.Lock()
		prev, ok := m.bots[tenantID]
		if !ok {
			break
		}
		prev.mu.Lock()
		connected := prev.connected
		prev.mu.Unlock()
		if !connected {
			m.mu.Unlock()
			m.log.Debug("start ignored, bot still initializing", logx.String("tenant", tenantID))
			return nil
		}
		m.mu.Unlock()
		// Past initializing: tear the old handle down (session, timer) before
		// the slot is rebuilt. Loop in case another start raced us.
		if err := m.StopBot(ctx, tenantID); err != nil {
			return err
		}
		replaced = true
	}
	bctx, cancel := context.WithCancel(m.sup.Context())
	b := &bot{
		tenantID: tenantID,
		ctx:      bctx,
		cancel:   cancel,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	m.bots[tenantID] = b
	m.mu.Unlock()

	// StopBot marks the tenant inactive, so a replacement start re-marks it.
	if replaced || !t.Active {
		if err := m.opts.Store.UpdateTenant(ctx, tenantID, storage.TenantPatch{Active: ptr(true)}); err != nil {
			m.log.Warn("mark active failed", logx.String("tenant", tenantID), logx.Err(err))
		}
	}

	m.opts.Notifier.Publish(tenantID, notify.TypeInitializing, nil)
	m.log.Info("starting bot", logx.String("tenant", tenantID))

	m.sup.Go("bot.connect."+tenantID, func(context.Context) error {
		sess, err := m.opts.Transport.Connect(b.ctx, tenantID, func(raw, payload string) {
			m.onStatus(b, raw, payload)
		})
		if err != nil {
			m.log.Error("session connect failed", logx.String("tenant", tenantID), logx.Err(err))
			m.opts.Notifier.Publish(tenantID, notify.TypeError, err.Error())
			m.remove(tenantID)
			return nil
		}
		b.mu.Lock()
		b.sess = sess
		stopped := b.ctx.Err() != nil
		b.mu.Unlock()
		if stopped {
			_ = sess.Close()
		}
		return nil
	})
	return nil
}

// onStatus is the transport callback. It runs on the transport's goroutine,
// so everything here must be quick and lock-light.
func (m *Manager) onStatus(b *bot, raw, payload string) {
	if b.ctx.Err() != nil {
		return
	}
	switch session.Translate(raw) {
	case session.DispositionConnected:
		b.mu.Lock()
		first := !b.connected
		b.connected = true
		b.mu.Unlock()
		if !first {
			return
		}
		m.log.Info("session connected", logx.String("tenant", b.tenantID), logx.String("status", raw))
		m.opts.Notifier.Publish(b.tenantID, notify.TypeConnected, nil)
		m.opts.Notifier.Publish(b.tenantID, notify.TypeOnline, nil)
		m.schedule(b, m.opts.SettleDelay)

	case session.DispositionCode:
		m.opts.Notifier.Publish(b.tenantID, notify.TypeCodeReady, payload)

	case session.DispositionTerminal:
		m.log.Warn("session terminated", logx.String("tenant", b.tenantID), logx.String("status", raw))
		m.opts.Notifier.Publish(b.tenantID, notify.TypeOffline, raw)
		go func() { _ = m.StopBot(context.Background(), b.tenantID) }()
	}
}

// schedule arms the bot's single cycle timer. Any previously armed timer is
// dropped first so a tenant never has two pending ticks.
func (m *Manager) schedule(b *bot, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ctx.Err() != nil {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.timer = time.AfterFunc(d, func() {
		if b.ctx.Err() != nil {
			return
		}
		m.runCycle(b)
	})
}

// StopBot tears the tenant's session down, cancels its pending tick and marks
// it inactive. Stopping a stopped tenant is a no-op.
func (m *Manager) StopBot(ctx context.Context, tenantID string) error {
	b := m.remove(tenantID)
	if b == nil {
		return nil
	}

	b.cancel()
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	sess := b.sess
	b.sess = nil
	b.connected = false
	b.mu.Unlock()

	if sess != nil {
		if err := sess.Close(); err != nil {
			m.log.Warn("session close failed", logx.String("tenant", tenantID), logx.Err(err))
		}
	}

	if err := m.opts.Store.UpdateTenant(ctx, tenantID, storage.TenantPatch{Active: ptr(false)}); err != nil {
		m.log.Warn("mark inactive failed", logx.String("tenant", tenantID), logx.Err(err))
	}
	m.opts.Notifier.Publish(tenantID, notify.TypeOffline, "stopped")
	m.log.Info("bot stopped", logx.String("tenant", tenantID))
	return nil
}

// RestartBot is stop then start with a fresh pairing: cached transport
// credentials are dropped in between.
func (m *Manager) RestartBot(ctx context.Context, tenantID string) error {
	if err := m.StopBot(ctx, tenantID); err != nil {
		return err
	}
	if err := m.opts.Transport.DropCredentials(tenantID); err != nil {
		m.log.Warn("drop credentials failed", logx.String("tenant", tenantID), logx.Err(err))
	}
	return m.StartBot(ctx, tenantID)
}

func (m *Manager) Status(tenantID string) Status {
	m.mu.Lock()
	b, ok := m.bots[tenantID]
	m.mu.Unlock()
	if !ok {
		return Status{}
	}
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	st := Status{Running: true, Connected: connected, State: StateInitializing}
	if connected {
		st.State = StateConnected
	}
	return st
}

// ForceCycle runs one cycle immediately, outside the schedule. The pending
// timer is consumed; the cycle rearms it as usual.
func (m *Manager) ForceCycle(ctx context.Context, tenantID string) error {
	b, err := m.connectedBot(tenantID)
	if err != nil {
		return err
	}
	b.mu.Lock()
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
	m.runCycle(b)
	return nil
}

// FetchDestinations lists the chats the tenant's session can post into,
// filtered to groups and capped. The secondary listing is used when the
// primary returns nothing.
func (m *Manager) FetchDestinations(ctx context.Context, tenantID string) ([]session.Destination, error) {
	b, err := m.connectedBot(tenantID)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	sess := b.sess
	b.mu.Unlock()
	if sess == nil {
		return nil, ErrNotConnected
	}

	dests, err := sess.ListDestinations(ctx)
	if err != nil || len(dests) == 0 {
		fallback, ferr := sess.ListDestinationsFallback(ctx)
		if ferr == nil && len(fallback) > 0 {
			dests, err = fallback, nil
		}
	}
	if err != nil {
		return nil, err
	}

	out := make([]session.Destination, 0, len(dests))
	for _, d := range dests {
		if !d.Group {
			continue
		}
		out = append(out, d)
		if len(out) >= m.opts.DestinationsCap {
			break
		}
	}
	m.opts.Notifier.Publish(tenantID, notify.TypeDestinations, out)
	return out, nil
}

// TogglePause flips the tenant's pause flag and returns the new value. The
// schedule keeps ticking while paused; ticks just skip the send.
func (m *Manager) TogglePause(ctx context.Context, tenantID string) (bool, error) {
	t, err := m.opts.Store.TenantByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, ErrTenantNotFound
		}
		return false, err
	}
	next := !t.Paused
	if err := m.opts.Store.UpdateTenant(ctx, tenantID, storage.TenantPatch{Paused: ptr(next)}); err != nil {
		return false, err
	}
	m.log.Info("pause toggled", logx.String("tenant", tenantID), logx.Bool("paused", next))
	return next, nil
}

// Stop shuts down every bot and waits for in-flight cycles.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	ids := make([]string, 0, len(m.bots))
	for id := range m.bots {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		b := m.remove(id)
		if b == nil {
			continue
		}
		b.cancel()
		b.mu.Lock()
		if b.timer != nil {
			b.timer.Stop()
			b.timer = nil
		}
		sess := b.sess
		b.sess = nil
		b.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
	}
	return m.sup.Stop(ctx)
}

func (m *Manager) connectedBot(tenantID string) (*bot, error) {
	m.mu.Lock()
	b, ok := m.bots[tenantID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotRunning
	}
	b.mu.Lock()
	connected := b.connected
	b.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}
	return b, nil
}

func (m *Manager) remove(tenantID string) *bot {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.bots[tenantID]
	delete(m.bots, tenantID)
	return b
}

// pickKeyword draws from the tenant's list, falling back to the configured
// defaults when the tenant has none.
func (m *Manager) pickKeyword(t *model.Tenant, rng *rand.Rand) string {
	pool := t.KeywordList()
	if len(pool) == 0 {
		pool = m.opts.DefaultKeywords
	}
	if len(pool) == 0 {
		return ""
	}
	return strings.TrimSpace(pool[rng.Intn(len(pool))])
}

func ptr[T any](v T) *T { return &v }
