package settings

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"pulse/internal/apperrors"
	"pulse/internal/config"
)

// Analytics setting keys
const (
	KeyAnalyticsEnabled       = "analytics.enable"
	KeyAnalyticsTimezone      = "analytics.timezone"
	KeyAnalyticsPrecisionDays = "analytics.precisionDays"
	KeyAnalyticsRetentionDays = "analytics.retentionDays"
)

const (
	DefaultTimezone      = "UTC"
	DefaultPrecisionDays = 30
	DefaultRetentionDays = 365
)

// AnalyticsSettings is the typed view of the analytics keys.
type AnalyticsSettings struct {
	Enabled  bool
	Timezone string
	// Location is the resolved Timezone, UTC when it could not be loaded.
	Location      *time.Location
	PrecisionDays int
	// RetentionDays of 0 keeps archive buckets forever.
	RetentionDays int
}

// AnalyticsDefaults returns the values seeded into the settings table.
func AnalyticsDefaults(cfg *config.Config) map[string]string {
	return map[string]string{
		KeyAnalyticsEnabled:       strconv.FormatBool(cfg.AnalyticsEnabled),
		KeyAnalyticsTimezone:      cfg.AnalyticsTimezone,
		KeyAnalyticsPrecisionDays: strconv.Itoa(cfg.AnalyticsPrecisionDays),
		KeyAnalyticsRetentionDays: strconv.Itoa(cfg.AnalyticsRetentionDays),
	}
}

// LoadAnalytics reads the analytics keys. Unusable values are logged as
// warnings and replaced by their defaults.
func LoadAnalytics(getter Getter, logger *slog.Logger) AnalyticsSettings {
	s := AnalyticsSettings{
		Enabled:       true,
		Timezone:      DefaultTimezone,
		Location:      time.UTC,
		PrecisionDays: DefaultPrecisionDays,
		RetentionDays: DefaultRetentionDays,
	}

	warn := func(err error) {
		logger.Warn("Invalid analytics setting, using default", slog.Any("error", err))
	}

	if raw := strings.TrimSpace(getter.Get(KeyAnalyticsEnabled, "true")); raw != "" {
		enabled, err := strconv.ParseBool(raw)
		if err != nil {
			warn(&apperrors.ConfigError{Key: KeyAnalyticsEnabled, Value: raw, Err: err})
		} else {
			s.Enabled = enabled
		}
	}

	if raw := strings.TrimSpace(getter.Get(KeyAnalyticsTimezone, DefaultTimezone)); raw != "" {
		loc, err := time.LoadLocation(raw)
		if err != nil {
			warn(&apperrors.ConfigError{Key: KeyAnalyticsTimezone, Value: raw, Err: err})
		} else {
			s.Timezone = raw
			s.Location = loc
		}
	}

	s.PrecisionDays = loadDays(getter, KeyAnalyticsPrecisionDays, DefaultPrecisionDays, warn)
	s.RetentionDays = loadDays(getter, KeyAnalyticsRetentionDays, DefaultRetentionDays, warn)

	return s
}

func loadDays(getter Getter, key string, fallback int, warn func(error)) int {
	raw := strings.TrimSpace(getter.Get(key, strconv.Itoa(fallback)))
	if raw == "" {
		return fallback
	}
	days, err := strconv.Atoi(raw)
	if err != nil {
		warn(&apperrors.ConfigError{Key: key, Value: raw, Err: err})
		return fallback
	}
	if days < 0 {
		warn(&apperrors.ConfigError{Key: key, Value: raw, Err: fmt.Errorf("must not be negative")})
		return fallback
	}
	return days
}
