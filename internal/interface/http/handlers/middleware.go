package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// MiddlewareFunc decorates an http.Handler.
type MiddlewareFunc func(http.Handler) http.Handler

// Chain composes middlewares so that the first one sees the request first.
func Chain(middlewares ...MiddlewareFunc) MiddlewareFunc {
	return func(h http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			h = middlewares[i](h)
		}
		return h
	}
}

// ChainHandler applies middlewares to h.
func ChainHandler(h http.Handler, middlewares ...MiddlewareFunc) http.Handler {
	return Chain(middlewares...)(h)
}

// ══════════════════════════════════════════════════════════════════════════════
// API KEYS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultAPIKeyHeader is consulted before "Authorization: Bearer".
const DefaultAPIKeyHeader = "X-API-Key"

// APIKeyAuth admits requests carrying one of the configured keys.
// Without keys it admits everything.
type APIKeyAuth struct {
	header string
	keys   [][]byte
}

func NewAPIKeyAuth(header string, keys []string) *APIKeyAuth {
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	a := &APIKeyAuth{header: header}
	for _, k := range keys {
		if k != "" {
			a.keys = append(a.keys, []byte(k))
		}
	}
	return a
}

func (a *APIKeyAuth) Enabled() bool { return len(a.keys) > 0 }

// IsValid compares key against every configured key in constant time.
func (a *APIKeyAuth) IsValid(key string) bool {
	ok := 0
	for _, k := range a.keys {
		ok |= subtle.ConstantTimeCompare(k, []byte(key))
	}
	return ok == 1
}

func (a *APIKeyAuth) presented(r *http.Request) string {
	if key := r.Header.Get(a.header); key != "" {
		return key
	}
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found {
		return ""
	}
	return strings.TrimSpace(token)
}

func (a *APIKeyAuth) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch key := a.presented(r); {
		case key == "":
			WriteError(w, http.StatusUnauthorized, "missing_api_key", "API key is required")
		case !a.IsValid(key):
			WriteError(w, http.StatusUnauthorized, "invalid_api_key", "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE HEADERS
// ══════════════════════════════════════════════════════════════════════════════

func setHeaders(headers map[string]string) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for k, v := range headers {
				w.Header().Set(k, v)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// NoCacheMiddleware marks learner-specific responses as uncacheable.
var NoCacheMiddleware = setHeaders(map[string]string{
	"Cache-Control": "no-store, no-cache, must-revalidate, max-age=0",
	"Pragma":        "no-cache",
	"Expires":       "0",
})

// SecurityHeadersMiddleware sets the headers of a JSON-only API.
var SecurityHeadersMiddleware = setHeaders(map[string]string{
	"X-Content-Type-Options":  "nosniff",
	"X-Frame-Options":         "DENY",
	"Referrer-Policy":         "no-referrer",
	"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
})

// RequestSizeLimitMiddleware rejects declared oversized bodies with 413 and
// caps the bytes a handler can read to maxBytes.
func RequestSizeLimitMiddleware(maxBytes int64) MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				WriteError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// WriteError writes an error in the shape of the API envelope.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	type detail struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(struct {
		Success bool   `json:"success"`
		Error   detail `json:"error"`
	}{Error: detail{Code: code, Message: message}})
}
