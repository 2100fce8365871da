package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/AnimaI/SMD-Manager/catalog")

const (
	maxAttempts   = 2
	retryBackoff  = 2 * time.Second
	searchTimeout = 10 * time.Second
)

// Client talks to the DigiKey product API. Build it once and share it.
type Client struct {
	cfg     Config
	http    *http.Client
	tokens  *TokenManager
	limiter *RateLimiter
	cache   *ProductCache
	logger  logrus.FieldLogger

	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient wires the limiter, token manager and cache. shared may be nil.
func NewClient(cfg Config, shared SharedStore, logger logrus.FieldLogger) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	limiter := NewRateLimiter(cfg.RateLimit, cfg.RateWindow)
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		tokens:  NewTokenManager(cfg, limiter, shared, logger),
		limiter: limiter,
		cache:   NewProductCache(cfg.LocalCacheSize, cfg.LocalCacheTTL, shared, logger),
		logger:  logger,
		sleep:   sleepCtx,
	}, nil
}

// FetchByID looks up one catalog number and returns the manufacturer number and
// description.
func (c *Client) FetchByID(ctx context.Context, id string) (*Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("no catalog number provided")
	}
	if p, ok := c.cache.GetProduct(ctx, id); ok {
		c.logger.WithFields(logrus.Fields{"module": "catalog", "catalog_number": id}).Debug("cache hit")
		return p, nil
	}

	ctx, span := tracer.Start(ctx, "catalog.FetchByID", trace.WithAttributes(attribute.String("catalog.number", id)))
	defer span.End()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/products/v4/search/%s/productdetails", c.cfg.BaseURL, EncodePartNumber(id))
	body, err := c.do(ctx, "productdetails", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, token)
		return req, nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		c.logger.WithFields(logrus.Fields{"module": "catalog", "catalog_number": id}).Error("product lookup failed: " + err.Error())
		return nil, err
	}

	var parsed productDetailsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if parsed.Product == nil {
		return nil, fmt.Errorf("%w: Product missing", ErrMalformedResponse)
	}

	p := &Product{
		CatalogNumber:      id,
		ManufacturerNumber: parsed.Product.manufacturerNumber(),
		Description:        parsed.Product.detailsDescription(),
		Timestamp:          time.Now().UTC(),
	}
	c.cache.SetProduct(ctx, p)
	return p, nil
}

// SearchByKeyword runs a keyword search. Keywords with a slash are also tried
// with the slash replaced by a space, by a dash and removed.
func (c *Client) SearchByKeyword(ctx context.Context, keyword string, limit int) ([]SearchResult, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if results, ok := c.cache.GetSearch(ctx, keyword, limit); ok {
		return results, nil
	}

	ctx, span := tracer.Start(ctx, "catalog.SearchByKeyword", trace.WithAttributes(
		attribute.String("catalog.keyword", keyword),
		attribute.Int("catalog.limit", limit),
	))
	defer span.End()

	token, err := c.tokens.Token(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	options := []string{"ManufacturerPartSearch", "DiscreteSearch"}
	if IsCatalogNumber(keyword) {
		options[0] = "DigiKeyPartNumberSearch"
	}

	var (
		all     []apiProduct
		lastErr error
		anyOK   bool
	)
	for _, variant := range keywordVariants(keyword) {
		products, err := c.searchOnce(ctx, token, variant, limit, options)
		if err != nil {
			lastErr = err
			c.logger.WithFields(logrus.Fields{"module": "catalog", "keyword": variant}).Error("keyword search failed: " + err.Error())
			continue
		}
		anyOK = true
		all = append(all, products...)
	}
	if !anyOK && lastErr != nil {
		span.SetStatus(codes.Error, lastErr.Error())
		return nil, lastErr
	}

	results := normalizeSearch(all)
	c.cache.SetSearch(ctx, keyword, limit, results)
	return results, nil
}

func keywordVariants(keyword string) []string {
	if !strings.Contains(keyword, "/") {
		return []string{keyword}
	}
	return []string{
		keyword,
		strings.ReplaceAll(keyword, "/", " "),
		strings.ReplaceAll(keyword, "/", "-"),
		strings.ReplaceAll(keyword, "/", ""),
	}
}

func (c *Client) searchOnce(ctx context.Context, token, keyword string, limit int, options []string) ([]apiProduct, error) {
	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	payload, err := json.Marshal(keywordSearchRequest{
		Keywords:            keyword,
		Limit:               limit,
		SearchOptions:       options,
		RecordCount:         limit,
		RecordStartPosition: 0,
		Filters:             searchFilters{AvailabilityFilter: 2},
	})
	if err != nil {
		return nil, err
	}

	endpoint := c.cfg.BaseURL + "/products/v4/search/keyword"
	body, err := c.do(ctx, "keyword", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		c.setHeaders(req, token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var parsed keywordSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	products := parsed.Products
	if len(products) == 0 && parsed.ProductDetails != nil {
		products = []apiProduct{*parsed.ProductDetails}
	}
	return products, nil
}

func (c *Client) setHeaders(req *http.Request, token string) {
	req.Header.Set("X-DIGIKEY-Client-Id", c.cfg.ClientID)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-DIGIKEY-Locale-Site", c.cfg.LocaleSite)
	req.Header.Set("X-DIGIKEY-Locale-Language", c.cfg.LocaleLanguage)
	req.Header.Set("X-DIGIKEY-Locale-Currency", c.cfg.LocaleCurrency)
	req.Header.Set("Accept", "application/json")
}

// do sends the request built by build, retrying a 429 once after a fixed backoff.
func (c *Client) do(ctx context.Context, endpoint string, build func(context.Context) (*http.Request, error)) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}

		start := time.Now()
		resp, err := c.http.Do(req)
		if err != nil {
			APIRequestsTotal.WithLabelValues(endpoint, "error").Inc()
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		APIRequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
		APIRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
		if readErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxAttempts {
			c.logger.WithFields(logrus.Fields{"module": "catalog", "endpoint": endpoint, "attempt": attempt}).Warn("rate limit reached, waiting before retry")
			if err := c.sleep(ctx, retryBackoff); err != nil {
				return nil, err
			}
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
		}
		return body, nil
	}
}
