package catalog

import (
	"errors"
	"strings"
	"time"
)

const (
	DefaultAuthURL = "https://api.digikey.com/v1/oauth2/token"
	DefaultBaseURL = "https://api.digikey.com"

	defaultRateLimit      = 5
	defaultRateWindow     = time.Second
	defaultLocalCacheSize = 1024
	defaultLocalCacheTTL  = 24 * time.Hour
	defaultHTTPTimeout    = 30 * time.Second
)

// Config carries everything the catalog client needs. Zero values fall back
// to the DigiKey production endpoints and the documented limits.
type Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	BaseURL      string

	LocaleSite     string
	LocaleLanguage string
	LocaleCurrency string

	// RateLimit requests are admitted per RateWindow.
	RateLimit  int
	RateWindow time.Duration

	LocalCacheSize int
	LocalCacheTTL  time.Duration

	HTTPTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.AuthURL) == "" {
		c.AuthURL = DefaultAuthURL
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.LocaleSite == "" {
		c.LocaleSite = "DE"
	}
	if c.LocaleLanguage == "" {
		c.LocaleLanguage = "de"
	}
	if c.LocaleCurrency == "" {
		c.LocaleCurrency = "EUR"
	}
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.RateWindow <= 0 {
		c.RateWindow = defaultRateWindow
	}
	if c.LocalCacheSize <= 0 {
		c.LocalCacheSize = defaultLocalCacheSize
	}
	if c.LocalCacheTTL <= 0 {
		c.LocalCacheTTL = defaultLocalCacheTTL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	return c
}

func (c Config) validate() error {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return errors.New("digikey client id and secret are required")
	}
	return nil
}
