package api

import (
	"bytes"
	"context"
	"encoding/hex"
	"io"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/blake2b"

	"github.com/pilot-net/fleet-control/control-plane/internal/cache"
	"github.com/pilot-net/fleet-control/control-plane/internal/config"
)

// IdempotencyKeyHeader carries a client-chosen key that makes a POST safe to retry.
const IdempotencyKeyHeader = "Idempotency-Key"

// ReplayedHeader is set on responses served from the idempotency cache.
const ReplayedHeader = "Idempotent-Replayed"

// Idempotency stores responses by client key. Implemented by *cache.Cache
// and *cache.Local.
type Idempotency interface {
	Reserve(ctx context.Context, scope, key, fingerprint string) (cache.Outcome, *cache.Record, error)
	Complete(ctx context.Context, scope, key, fingerprint string, status int, body []byte) error
	Release(ctx context.Context, scope, key string) error
}

// =============================================================================
// OPERATOR AUTHENTICATION
// =============================================================================

// OperatorAuthMiddleware validates operator API keys against the configured
// bcrypt hashes. While auth is disabled it checks and logs, but never rejects.
func (s *Server) OperatorAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Nothing configured: no check at all
			if !s.auth.Enabled && len(s.auth.OperatorKeyHashes) == 0 {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				if s.auth.Enabled {
					s.logger.Warn("operator auth failed: missing credentials",
						"path", r.URL.Path,
						"has_auth_header", authHeader != "",
					)
					s.writeError(w, http.StatusUnauthorized, "unauthorized: missing credentials")
					return
				}
				s.logger.Debug("operator auth: missing credentials (grace period)", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			apiKey := strings.TrimPrefix(authHeader, "Bearer ")
			if !matchesAnyHash(s.auth.OperatorKeyHashes, apiKey) {
				if s.auth.Enabled {
					s.logger.Warn("operator auth failed: invalid API key", "path", r.URL.Path)
					s.writeError(w, http.StatusUnauthorized, "unauthorized: invalid API key")
					return
				}
				s.logger.Warn("operator auth: invalid API key (grace period - would reject)", "path", r.URL.Path)
				next.ServeHTTP(w, r)
				return
			}

			s.logger.Debug("operator auth successful",
				"path", r.URL.Path,
				"operator_id", r.Header.Get("X-Operator-ID"),
			)
			next.ServeHTTP(w, r)
		})
	}
}

func matchesAnyHash(hashes []string, key string) bool {
	for _, h := range hashes {
		if bcrypt.CompareHashAndPassword([]byte(h), []byte(key)) == nil {
			return true
		}
	}
	return false
}

// wrapHandler converts an http.HandlerFunc to use middleware.
func wrapHandler(h http.HandlerFunc, middleware func(http.Handler) http.Handler) http.HandlerFunc {
	return middleware(h).ServeHTTP
}

// =============================================================================
// RATE LIMITING
// =============================================================================

// rateLimited rejects requests beyond the ingestion token bucket with 429.
func (s *Server) rateLimited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			s.writeError(w, http.StatusTooManyRequests, "ingestion rate limit exceeded")
			return
		}
		next(w, r)
	}
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

// fingerprint identifies a request body sent to a path within a scope.
func fingerprint(scope, path string, body []byte) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(scope))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// idempotent makes a POST handler replayable by Idempotency-Key.
//
// The first request with a key runs the handler and stores its response.
// A retry with the same body gets the stored response back; a retry with a
// different body is rejected with 422, and a retry while the first request is
// still running with 409. Server errors are not stored so the request can be
// retried.
func (s *Server) idempotent(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" {
			next(w, r)
			return
		}
		if len(key) > 255 {
			s.writeError(w, http.StatusBadRequest, "idempotency key too long")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, config.MaxRequestBodyBytes))
		if err != nil {
			s.writeDecodeError(w, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		fp := fingerprint(scope, r.URL.Path, body)

		outcome, record, err := s.idem.Reserve(r.Context(), scope, key, fp)
		if err != nil {
			s.logger.Error("idempotency reservation failed", "scope", scope, "error", err)
			s.writeError(w, http.StatusServiceUnavailable, "idempotency store unavailable")
			return
		}

		switch outcome {
		case cache.Mismatch:
			s.writeError(w, http.StatusUnprocessableEntity, "idempotency key reused with a different request body")
			return
		case cache.InFlight:
			s.writeError(w, http.StatusConflict, "a request with this idempotency key is in progress")
			return
		case cache.Replay:
			s.logger.Debug("replaying idempotent response", "scope", scope, "status", record.Status)
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(ReplayedHeader, "true")
			w.WriteHeader(record.Status)
			w.Write(record.Body)
			return
		}

		rec := &responseRecorder{ResponseWriter: w}
		next(rec, r)

		// The client may have gone away; the outcome must still be recorded.
		ctx := context.WithoutCancel(r.Context())
		if rec.status >= http.StatusInternalServerError || rec.status == 0 {
			if err := s.idem.Release(ctx, scope, key); err != nil {
				s.logger.Warn("releasing idempotency key", "scope", scope, "error", err)
			}
			return
		}
		if err := s.idem.Complete(ctx, scope, key, fp, rec.status, bytes.TrimSpace(rec.body.Bytes())); err != nil {
			s.logger.Warn("storing idempotent response", "scope", scope, "error", err)
		}
	}
}
