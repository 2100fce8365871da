package catalog

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	tokenKey          = "digikey_access_token"
	tokenExpiryKey    = "digikey_token_expiry"
	tokenSafetyMargin = 60 * time.Second
)

// SharedStore is the optional cross-process tier (redis in production).
type SharedStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// TokenManager owns the client-credentials bearer token.
type TokenManager struct {
	mu sync.Mutex

	clientID     string
	clientSecret string
	authURL      string
	http         *http.Client
	limiter      *RateLimiter
	shared       SharedStore
	logger       logrus.FieldLogger
	now          func() time.Time

	token  string
	expiry time.Time
}

func NewTokenManager(cfg Config, limiter *RateLimiter, shared SharedStore, logger logrus.FieldLogger) *TokenManager {
	cfg = cfg.withDefaults()
	return &TokenManager{
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		authURL:      cfg.AuthURL,
		http:         &http.Client{Timeout: cfg.HTTPTimeout},
		limiter:      limiter,
		shared:       shared,
		logger:       logger,
		now:          time.Now,
	}
}

// Token returns a bearer token that is valid for at least the safety margin.
// The whole check-then-refresh sequence runs under one lock.
func (m *TokenManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if m.token != "" && now.Before(m.expiry) {
		return m.token, nil
	}

	if tok, exp, ok := m.loadShared(ctx); ok && exp.After(m.expiry) && now.Before(exp) {
		m.token, m.expiry = tok, exp
		return tok, nil
	}

	tok, exp, err := m.exchange(ctx, now)
	if err != nil {
		TokenRefreshesTotal.WithLabelValues("error").Inc()
		m.logger.WithFields(logrus.Fields{
			"module":   "catalog",
			"funcName": "Token",
		}).Error("token error: " + err.Error())
		return "", fmt.Errorf("%w: %v", ErrTokenUnavailable, err)
	}
	TokenRefreshesTotal.WithLabelValues("ok").Inc()
	m.token, m.expiry = tok, exp
	m.storeShared(ctx, tok, exp, now)
	m.logger.WithField("module", "catalog").Info("obtained new catalog access token")
	return tok, nil
}

func (m *TokenManager) exchange(ctx context.Context, now time.Time) (string, time.Time, error) {
	if m.limiter != nil {
		if err := m.limiter.Acquire(ctx); err != nil {
			return "", time.Time{}, err
		}
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", "product.info")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.authURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(m.clientID + ":" + m.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", time.Time{}, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var parsed tokenResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.AccessToken == "" {
		return "", time.Time{}, fmt.Errorf("%w: access_token missing", ErrMalformedResponse)
	}
	expiry := now.Add(time.Duration(parsed.ExpiresIn)*time.Second - tokenSafetyMargin)
	return parsed.AccessToken, expiry, nil
}

// loadShared reads a token another process may have refreshed. Errors are a miss.
func (m *TokenManager) loadShared(ctx context.Context) (string, time.Time, bool) {
	if m.shared == nil {
		return "", time.Time{}, false
	}
	tok, ok, err := m.shared.Get(ctx, tokenKey)
	if err != nil || !ok || tok == "" {
		return "", time.Time{}, false
	}
	raw, ok, err := m.shared.Get(ctx, tokenExpiryKey)
	if err != nil || !ok {
		return "", time.Time{}, false
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return "", time.Time{}, false
	}
	return tok, time.UnixMilli(int64(secs * 1000)), true
}

func (m *TokenManager) storeShared(ctx context.Context, tok string, exp time.Time, now time.Time) {
	if m.shared == nil {
		return
	}
	ttl := exp.Sub(now)
	if ttl <= 0 {
		return
	}
	expRaw := strconv.FormatFloat(float64(exp.UnixMilli())/1000, 'f', 3, 64)
	if err := m.shared.Set(ctx, tokenKey, tok, ttl); err != nil {
		m.logger.WithField("module", "catalog").Warn("could not share token: " + err.Error())
		return
	}
	if err := m.shared.Set(ctx, tokenExpiryKey, expRaw, ttl); err != nil {
		m.logger.WithField("module", "catalog").Warn("could not share token expiry: " + err.Error())
	}
}
