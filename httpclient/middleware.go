package httpclient

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const headerRequestID = "X-Request-ID"

// Middleware wraps a transport.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// Chain applies middleware so the first one listed runs first.
func Chain(transport http.RoundTripper, mw ...Middleware) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}
	chained := transport
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// RequestIDMiddleware tags each attempt with a fresh X-Request-ID unless the
// caller set one.
func RequestIDMiddleware(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		if r.Header.Get(headerRequestID) != "" {
			return next.RoundTrip(r)
		}
		clone := r.Clone(r.Context())
		clone.Header.Set(headerRequestID, uuid.New().String())
		return next.RoundTrip(clone)
	})
}

// LoggingMiddleware logs each attempt and its duration at debug level.
func LoggingMiddleware(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
		start := time.Now()
		resp, err := next.RoundTrip(r)

		event := log.Debug().
			Str("method", r.Method).
			Str("url", r.URL.Redacted()).
			Bool("has_token", r.Header.Get("Authorization") != "").
			Str("request_id", r.Header.Get(headerRequestID)).
			Dur("duration", time.Since(start))
		if err != nil {
			event.Err(err).Msg("api request failed")
			return resp, err
		}
		event.Int("status", resp.StatusCode).Msg("api request")
		return resp, nil
	})
}
