package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the process configuration. Tenant configuration lives in storage
// and is re-read by the scheduler loop on every tick.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "5m").
type Config struct {
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Transport TransportConfig `json:"transport"`
	Offers    OffersConfig    `json:"offers"`
	API       APIConfig       `json:"api"`
	Janitor   JanitorConfig   `json:"janitor"`
	Manager   ManagerConfig   `json:"manager"`
	Pprof     PprofConfig     `json:"pprof,omitempty"`
}

type LoggingConfig struct {
	Level   string            `json:"level"`
	Console bool              `json:"console"`
	File    LogFileConfig     `json:"file,omitempty"`
	Bus     LogBusConfig      `json:"bus,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LogBusConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the tenant/dedup backing store.
//
// Driver values:
//   - "sqlite": local database file (default)
//   - "postgres": shared database, DSN required
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`         // sqlite only
	DSN         string `json:"dsn,omitempty"`          // postgres only
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// TransportConfig selects the messaging-session transport shared by all
// tenants of this process.
type TransportConfig struct {
	Driver   string                  `json:"driver"` // "gateway" | "telegram"
	Gateway  GatewayTransportConfig  `json:"gateway,omitempty"`
	Telegram TelegramTransportConfig `json:"telegram,omitempty"`
}

type GatewayTransportConfig struct {
	BaseURL string `json:"base_url"`
	Timeout string `json:"timeout,omitempty"`
}

type TelegramTransportConfig struct {
	// Token is the bot token shared by all tenants of this process. It may
	// also be supplied via the TELEGRAM_BOT_TOKEN environment variable.
	Token       string `json:"token,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type OffersConfig struct {
	Endpoint   string `json:"endpoint"`
	Timeout    string `json:"timeout,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	// PageSpread > 1 picks a random page in [1, PageSpread] per search so
	// consecutive cycles don't replay the first result page.
	PageSpread int `json:"page_spread,omitempty"`
	PageLimit  int `json:"page_limit,omitempty"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
}

type JanitorConfig struct {
	Enabled bool `json:"enabled"`
	// ResetSpec is a cron spec for the daily usage-counter sweep.
	ResetSpec   string `json:"reset_spec,omitempty"`
	VacuumEvery string `json:"vacuum_every,omitempty"`
}

// PprofConfig controls the optional profiling endpoint. A non-loopback Addr
// requires Token or AllowInsecure.
type PprofConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`
	Token         string `json:"token,omitempty"`
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
}

type ManagerConfig struct {
	// SettleDelay is the pause between a session connecting and the first
	// scheduler tick, letting the transport finish its internal sync.
	SettleDelay string `json:"settle_delay,omitempty"`
	// FallbackInterval is used when the tenant record cannot be re-read at
	// reschedule time.
	FallbackInterval string   `json:"fallback_interval,omitempty"`
	DefaultKeywords  []string `json:"default_keywords,omitempty"`
	DestinationsCap  int      `json:"destinations_cap,omitempty"`
}

// Normalize fills defaults in place. Call after decoding, before Validate.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && strings.TrimSpace(c.Storage.Path) == "" {
		c.Storage.Path = "./data/offerbot.db"
	}
	if strings.TrimSpace(c.Transport.Driver) == "" {
		c.Transport.Driver = "gateway"
	}
	if strings.TrimSpace(c.Offers.Endpoint) == "" {
		c.Offers.Endpoint = "https://open-api.affiliate.shopee.com.br/graphql"
	}
	if c.Offers.PageLimit <= 0 {
		c.Offers.PageLimit = 10
	}
	if c.Offers.PageSpread <= 0 {
		c.Offers.PageSpread = 1
	}
	if strings.TrimSpace(c.API.Addr) == "" {
		c.API.Addr = ":8080"
	}
	if strings.TrimSpace(c.Janitor.ResetSpec) == "" {
		c.Janitor.ResetSpec = "0 0 * * *"
	}
	if len(c.Manager.DefaultKeywords) == 0 {
		c.Manager.DefaultKeywords = []string{"Celular", "Smartphone", "Monitor Gamer"}
	}
	if c.Manager.DestinationsCap <= 0 {
		c.Manager.DestinationsCap = 50
	}
	if strings.TrimSpace(c.Pprof.Addr) == "" {
		c.Pprof.Addr = "127.0.0.1:6060"
	}
}

// Validate rejects configurations the process cannot run with.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "sqlite":
		if strings.TrimSpace(c.Storage.Path) == "" {
			return errors.New("storage.path is required for the sqlite driver")
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}

	switch strings.ToLower(strings.TrimSpace(c.Transport.Driver)) {
	case "gateway":
		if strings.TrimSpace(c.Transport.Gateway.BaseURL) == "" {
			return errors.New("transport.gateway.base_url is required for the gateway driver")
		}
	case "telegram":
	default:
		return fmt.Errorf("unknown transport driver %q", c.Transport.Driver)
	}

	for _, f := range []struct{ path, raw string }{
		{"storage.busy_timeout", c.Storage.BusyTimeout},
		{"transport.gateway.timeout", c.Transport.Gateway.Timeout},
		{"transport.telegram.poll_timeout", c.Transport.Telegram.PollTimeout},
		{"offers.timeout", c.Offers.Timeout},
		{"janitor.vacuum_every", c.Janitor.VacuumEvery},
		{"manager.settle_delay", c.Manager.SettleDelay},
		{"manager.fallback_interval", c.Manager.FallbackInterval},
	} {
		if _, err := ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	return nil
}

// Convenience accessors with defaults.

func (c *Config) SettleDelay() time.Duration {
	d, _ := ParseDurationOrDefault("manager.settle_delay", c.Manager.SettleDelay, 5*time.Second)
	return d
}

func (c *Config) FallbackInterval() time.Duration {
	d, _ := ParseDurationOrDefault("manager.fallback_interval", c.Manager.FallbackInterval, 5*time.Minute)
	return d
}
