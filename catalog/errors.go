package catalog

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrTokenUnavailable means no bearer token could be obtained.
	ErrTokenUnavailable = errors.New("catalog access token unavailable")
	// ErrNetwork wraps transport failures talking to the catalog.
	ErrNetwork = errors.New("catalog network error")
	// ErrRateLimited matches an APIError carrying HTTP 429 once retries are spent.
	ErrRateLimited = errors.New("catalog rate limited")
	// ErrMalformedResponse means the catalog answered without the expected payload.
	ErrMalformedResponse = errors.New("catalog response malformed")
)

// APIError is returned for non-2xx catalog responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("digikey api error %d: %s", e.StatusCode, e.Body)
}

func (e *APIError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}
