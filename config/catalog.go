package config

import (
	"time"

	"github.com/AnimaI/SMD-Manager/catalog"
)

// LoadCatalogConfig reads the DigiKey credentials and client limits from the
// environment. Unset values fall back to the catalog package defaults.
func LoadCatalogConfig() catalog.Config {
	return catalog.Config{
		ClientID:       stringFromEnv("DIGIKEY_CLIENT_ID", ""),
		ClientSecret:   stringFromEnv("DIGIKEY_CLIENT_SECRET", ""),
		AuthURL:        stringFromEnv("DIGIKEY_AUTH_URL", ""),
		BaseURL:        stringFromEnv("DIGIKEY_API_BASE_URL", ""),
		LocaleSite:     stringFromEnv("DIGIKEY_LOCALE_SITE", ""),
		LocaleLanguage: stringFromEnv("DIGIKEY_LOCALE_LANGUAGE", ""),
		LocaleCurrency: stringFromEnv("DIGIKEY_LOCALE_CURRENCY", ""),
		RateLimit:      intFromEnv("CATALOG_RATE_LIMIT", 0),
		RateWindow:     time.Duration(intFromEnv("CATALOG_RATE_WINDOW_MS", 0)) * time.Millisecond,
		LocalCacheSize: intFromEnv("CATALOG_LOCAL_CACHE_SIZE", 0),
		LocalCacheTTL:  durationFromEnv("CATALOG_LOCAL_CACHE_TTL", 0),
		HTTPTimeout:    durationFromEnv("CATALOG_HTTP_TIMEOUT", 0),
	}
}

type ImportConfig struct {
	JobTTL        time.Duration
	SweepInterval time.Duration
	LockTTL       time.Duration
	ArchiveBucket string
	EventTopic    string
}

func LoadImportConfig() ImportConfig {
	return ImportConfig{
		JobTTL:        durationFromEnv("IMPORT_JOB_TTL", 6*time.Hour),
		SweepInterval: durationFromEnv("IMPORT_JOB_SWEEP_INTERVAL", 10*time.Minute),
		LockTTL:       durationFromEnv("IMPORT_LOCK_TTL", 2*time.Minute),
		ArchiveBucket: stringFromEnv("BOM_ARCHIVE_BUCKET", ""),
		EventTopic:    stringFromEnv("BOM_IMPORT_TOPIC", ""),
	}
}

// RateLimitConfig drives the inbound per-client limit on the HTTP surface.
type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int64
	Window      time.Duration
}

func LoadRateLimitConfig() RateLimitConfig {
	maxRequests := intFromEnv("RATE_LIMIT_MAX_REQUESTS", 600)
	if maxRequests <= 0 {
		maxRequests = 600
	}
	windowSec := intFromEnv("RATE_LIMIT_WINDOW_SECONDS", 60)
	if windowSec <= 0 {
		windowSec = 60
	}
	return RateLimitConfig{
		Enabled:     BoolFromEnv("RATE_LIMIT_ENABLED", false) && RedisEnabled(),
		MaxRequests: int64(maxRequests),
		Window:      time.Duration(windowSec) * time.Second,
	}
}
