// Package settings exposes typed, hot-reloadable access to the runtime
// configuration keys the polling pipeline reads on every poll. It wraps a
// viper.Viper instance the way the teacher's internal/config package wraps
// static constants, except values here are re-read from disk on a
// fsnotify-triggered change rather than baked in at compile time.
package settings

import (
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/copperbox/depsera/internal/model"
)

const (
	KeyDataRetentionDays            = "data_retention_days"
	KeyRetentionCleanupTime         = "retention_cleanup_time"
	KeyDefaultPollIntervalMs        = "default_poll_interval_ms"
	KeySSRFAllowlist                = "ssrf_allowlist"
	KeyGlobalRateLimit              = "global_rate_limit"
	KeyGlobalRateLimitWindowMinutes = "global_rate_limit_window_minutes"
	KeyAlertCooldownMinutes         = "alert_cooldown_minutes"
	KeyAlertRateLimitPerHour        = "alert_rate_limit_per_hour"
)

// Provider serves typed reads over a viper instance, caching the decoded
// Settings snapshot and only re-decoding it when the underlying config file
// changes.
type Provider struct {
	v *viper.Viper

	mu       sync.RWMutex
	snapshot model.Settings
}

// New constructs a Provider from an optional config file path. When path is
// empty, only defaults and environment variables (DEPSERA_*) are read and
// no file watch is installed.
func New(path string) (*Provider, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("DEPSERA")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	p := &Provider{v: v}
	p.reload()

	if path != "" {
		v.WatchConfig()
		v.OnConfigChange(func(fsnotify.Event) {
			p.reload()
		})
	}

	return p, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataRetentionDays, 365)
	v.SetDefault(KeyRetentionCleanupTime, "02:00")
	v.SetDefault(KeyDefaultPollIntervalMs, 30000)
	v.SetDefault(KeySSRFAllowlist, []string{})
	v.SetDefault(KeyGlobalRateLimit, 0)
	v.SetDefault(KeyGlobalRateLimitWindowMinutes, 1)
	v.SetDefault(KeyAlertCooldownMinutes, 5)
	v.SetDefault(KeyAlertRateLimitPerHour, 30)
}

func (p *Provider) reload() {
	s := model.Settings{
		DataRetentionDays:            clamp(p.v.GetInt(KeyDataRetentionDays), 1, 3650, 365),
		RetentionCleanupTime:         nonEmpty(p.v.GetString(KeyRetentionCleanupTime), "02:00"),
		DefaultPollIntervalMs:        clamp(p.v.GetInt(KeyDefaultPollIntervalMs), 5000, 3600000, 30000),
		SSRFAllowlist:                p.v.GetStringSlice(KeySSRFAllowlist),
		GlobalRateLimit:              p.v.GetInt(KeyGlobalRateLimit),
		GlobalRateLimitWindowMinutes: p.v.GetInt(KeyGlobalRateLimitWindowMinutes),
		AlertCooldownMinutes:         clamp(p.v.GetInt(KeyAlertCooldownMinutes), 0, 1440, 5),
		AlertRateLimitPerHour:        clamp(p.v.GetInt(KeyAlertRateLimitPerHour), 1, 1000, 30),
	}

	p.mu.Lock()
	p.snapshot = s
	p.mu.Unlock()
}

func clamp(v, min, max, def int) int {
	if v == 0 {
		return def
	}
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func nonEmpty(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// Snapshot returns the current settings. Safe to call on every poll; it is
// a read of a cached value, not a re-parse.
func (p *Provider) Snapshot() model.Settings {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snapshot
}

func (p *Provider) DataRetentionDays() int            { return p.Snapshot().DataRetentionDays }
func (p *Provider) RetentionCleanupTime() string       { return p.Snapshot().RetentionCleanupTime }
func (p *Provider) DefaultPollIntervalMs() int         { return p.Snapshot().DefaultPollIntervalMs }
func (p *Provider) SSRFAllowlist() []string            { return p.Snapshot().SSRFAllowlist }
func (p *Provider) AlertCooldownMinutes() int          { return p.Snapshot().AlertCooldownMinutes }
func (p *Provider) AlertRateLimitPerHour() int         { return p.Snapshot().AlertRateLimitPerHour }
