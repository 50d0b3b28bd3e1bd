// Package janitor runs background storage maintenance: the midnight usage
// sweep and the dedup-history vacuum.
//
// The scheduler loop already resets a tenant's counter lazily on its first
// tick of a new day; the cron sweep covers tenants that stay idle across
// midnight so the admin dashboard never shows yesterday's numbers.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"offerbot/internal/storage"
	logx "offerbot/pkg/logx"
)

type Config struct {
	// ResetSpec is a standard 5-field cron spec for the daily sweep.
	ResetSpec string
	// VacuumEvery <= 0 disables the periodic vacuum.
	VacuumEvery time.Duration
}

type Janitor struct {
	cfg   Config
	store storage.Store
	log   logx.Logger
	cron  *cron.Cron
}

func New(cfg Config, store storage.Store, log logx.Logger) *Janitor {
	if cfg.ResetSpec == "" {
		cfg.ResetSpec = "0 0 * * *"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Janitor{cfg: cfg, store: store, log: log, cron: cron.New()}
}

func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc(j.cfg.ResetSpec, j.resetSweep); err != nil {
		return err
	}
	if j.cfg.VacuumEvery > 0 {
		if _, err := j.cron.AddFunc("@every "+j.cfg.VacuumEvery.String(), j.vacuum); err != nil {
			return err
		}
	}
	j.cron.Start()
	j.log.Info("janitor started", logx.String("reset_spec", j.cfg.ResetSpec))
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (j *Janitor) Stop(ctx context.Context) error {
	done := j.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Janitor) resetSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	today := time.Now().Format("2006-01-02")
	n, err := j.store.ResetDailyCounters(ctx, today)
	if err != nil {
		j.log.Error("daily counter sweep failed", logx.Err(err))
		return
	}
	j.log.Info("daily counter sweep", logx.String("date", today), logx.Int64("reset", n))
}

func (j *Janitor) vacuum() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := j.store.VacuumSent(ctx); err != nil {
		j.log.Error("history vacuum failed", logx.Err(err))
		return
	}
	j.log.Debug("history vacuum done")
}
