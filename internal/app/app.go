// Package app assembles the process: configuration, logging, storage, the
// session transport, the offer client, the bot manager, the management API
// and the janitor.
package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"offerbot/internal/api"
	"offerbot/internal/config"
	"offerbot/internal/eventbus"
	"offerbot/internal/janitor"
	"offerbot/internal/manager"
	"offerbot/internal/notify"
	obspprof "offerbot/internal/observability/pprof"
	"offerbot/internal/offers"
	rtsup "offerbot/internal/runtime/supervisor"
	"offerbot/internal/session"
	"offerbot/internal/session/gateway"
	"offerbot/internal/session/telegram"
	"offerbot/internal/storage"
	logx "offerbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store     storage.Store
	transport session.Transport
	// tg is non-nil when the telegram driver is selected; its shared poll
	// loop needs an explicit shutdown.
	tg *telegram.Transport

	notifier *notify.Notifier
	mgr      *manager.Manager
	apiSrv   *api.Server
	jan      *janitor.Janitor
	prof     *obspprof.Service

	apiEnabled bool
	janEnabled bool

	sup *rtsup.Supervisor
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bus := eventbus.New()
	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Bus: logx.BusConfig{
			Enabled:    cfg.Logging.Bus.Enabled,
			MinLevel:   cfg.Logging.Bus.MinLevel,
			RatePerSec: cfg.Logging.Bus.RatePerSec,
		},
	}, bus)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		DSN:         cfg.Storage.DSN,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}

	a := &App{
		cfgPath:    cfgPath,
		cfgm:       cfgm,
		log:        log,
		logs:       logSvc,
		bus:        bus,
		store:      store,
		apiEnabled: cfg.API.Enabled,
		janEnabled: cfg.Janitor.Enabled,
	}

	if err := a.buildTransport(cfg); err != nil {
		_ = store.Close()
		return nil, err
	}

	offersTimeout, err := config.ParseDurationOrDefault("offers.timeout", cfg.Offers.Timeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	offerClient := offers.New(offers.Config{
		Endpoint:   cfg.Offers.Endpoint,
		Timeout:    offersTimeout,
		RatePerSec: cfg.Offers.RatePerSec,
		PageSpread: cfg.Offers.PageSpread,
		PageLimit:  cfg.Offers.PageLimit,
	}, log.With(logx.String("comp", "offers")))

	a.notifier = notify.New(bus, log.With(logx.String("comp", "notify")))
	a.mgr = manager.New(context.Background(), manager.Options{
		Store:            store,
		Transport:        a.transport,
		Offers:           offerClient,
		Notifier:         a.notifier,
		Log:              log.With(logx.String("comp", "manager")),
		SettleDelay:      cfg.SettleDelay(),
		FallbackInterval: cfg.FallbackInterval(),
		DefaultKeywords:  cfg.Manager.DefaultKeywords,
		DestinationsCap:  cfg.Manager.DestinationsCap,
	})

	a.apiSrv = api.New(api.Config{Addr: cfg.API.Addr},
		store, a.mgr, a.notifier, log.With(logx.String("comp", "api")))

	vacuumEvery, err := config.ParseDurationOrDefault("janitor.vacuum_every", cfg.Janitor.VacuumEvery, 0)
	if err != nil {
		return nil, err
	}
	a.jan = janitor.New(janitor.Config{
		ResetSpec:   cfg.Janitor.ResetSpec,
		VacuumEvery: vacuumEvery,
	}, store, log.With(logx.String("comp", "janitor")))

	a.prof = obspprof.New(pprofConfig(cfg), log.With(logx.String("comp", "pprof")))

	return a, nil
}

func pprofConfig(cfg *config.Config) obspprof.Config {
	return obspprof.Config{
		Enabled:       cfg.Pprof.Enabled,
		Addr:          cfg.Pprof.Addr,
		Token:         cfg.Pprof.Token,
		AllowInsecure: cfg.Pprof.AllowInsecure,
	}
}

func (a *App) buildTransport(cfg *config.Config) error {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport.Driver)) {
	case "", "gateway":
		timeout, err := config.ParseDurationOrDefault("transport.gateway.timeout", cfg.Transport.Gateway.Timeout, 30*time.Second)
		if err != nil {
			return err
		}
		gw, err := gateway.New(gateway.Config{
			BaseURL: cfg.Transport.Gateway.BaseURL,
			Timeout: timeout,
		}, a.log.With(logx.String("comp", "gateway")))
		if err != nil {
			return err
		}
		a.transport = gw
	case "telegram":
		pollTimeout, err := config.ParseDurationOrDefault("transport.telegram.poll_timeout", cfg.Transport.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return err
		}
		token := cfg.Transport.Telegram.Token
		if strings.TrimSpace(token) == "" {
			token = os.Getenv("TELEGRAM_BOT_TOKEN")
		}
		tg, err := telegram.New(telegram.Config{
			Token:       token,
			PollTimeout: pollTimeout,
		}, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		a.tg = tg
		a.transport = tg
	default:
		return fmt.Errorf("unknown transport driver %q", cfg.Transport.Driver)
	}
	return nil
}

// Start brings the background services up and resumes tenants marked active.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
	)

	if a.apiEnabled {
		a.sup.Go("api.serve", func(c context.Context) error {
			return a.apiSrv.Start(c)
		})
	}

	if a.janEnabled {
		if err := a.jan.Start(); err != nil {
			return err
		}
	}

	a.prof.Start(a.sup.Context())

	// Config hot reload: the logging and pprof sections apply live. Everything
	// else (storage driver, transport, listen address) needs a restart, and
	// the tenant-level knobs live in storage anyway.
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.logs.Apply(logx.Config{
					Level:   newCfg.Logging.Level,
					Console: newCfg.Logging.Console,
					File: logx.FileConfig{
						Enabled: newCfg.Logging.File.Enabled,
						Path:    newCfg.Logging.File.Path,
					},
					Bus: logx.BusConfig{
						Enabled:    newCfg.Logging.Bus.Enabled,
						MinLevel:   newCfg.Logging.Bus.MinLevel,
						RatePerSec: newCfg.Logging.Bus.RatePerSec,
					},
				})
				a.prof.Reconfigure(c, pprofConfig(newCfg))
				a.log.Info("config reloaded")
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	// Resume tenants that were running before the last shutdown.
	if err := a.mgr.StartAll(ctx); err != nil {
		a.log.Warn("tenant autostart failed", logx.Err(err))
	}

	a.log.Info("app started")
	return nil
}

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Stop drains in dependency order: tenants first, then the services, then the
// shared infrastructure. Each step is bounded so one component cannot stall
// the whole shutdown.
func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		sctx := ctx
		var cancel context.CancelFunc
		if max > 0 {
			sctx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}
		start := time.Now()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step done", logx.String("name", name), logx.Duration("took", time.Since(start)))
	}

	step("manager", 5*time.Second, a.mgr.Stop)
	if a.janEnabled {
		step("janitor", 2*time.Second, a.jan.Stop)
	}
	step("pprof", 2*time.Second, func(c context.Context) error {
		a.prof.Stop(c)
		return nil
	})
	if a.tg != nil {
		step("telegram", 2*time.Second, func(context.Context) error {
			a.tg.Shutdown()
			return nil
		})
	}
	step("supervisor", 3*time.Second, a.sup.Wait)
	step("storage", 2*time.Second, func(context.Context) error {
		return a.store.Close()
	})
	_ = a.logs.Close()

	a.log.Info("stopped")
	return nil
}
