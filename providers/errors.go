// Package providers wraps the four external services the pipeline calls:
// script generation, speech synthesis, stock media search and video
// rendering. Each adapter owns exactly one external dependency and
// normalizes its responses into internal types.
package providers

import "errors"

// Error kinds shared by all adapters. Steps decide retry behavior by kind:
// auth and malformed-parameter failures are not retried, rate limiting and
// transient unavailability are retried with backoff.
var (
	ErrAuth        = errors.New("provider: invalid or missing credentials")
	ErrRateLimited = errors.New("provider: rate limited")
	ErrBadRequest  = errors.New("provider: malformed parameters")
	ErrUnavailable = errors.New("provider: temporarily unavailable")
	ErrMalformed   = errors.New("provider: malformed response")
)

// classifyStatus maps an HTTP status code to an error kind, or nil for 2xx.
func classifyStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == 401 || code == 403:
		return ErrAuth
	case code == 429:
		return ErrRateLimited
	case code >= 400 && code < 500:
		return ErrBadRequest
	default:
		return ErrUnavailable
	}
}
