package http

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sssemil/dokustatus-sub002/internal/observability/logger"
	"github.com/sssemil/dokustatus-sub002/internal/rate"
)

// ─────────────── Request ID ───────────────

func WithRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if rid == "" {
			var b [16]byte
			_, _ = rand.Read(b[:])
			rid = hex.EncodeToString(b[:])
		}
		w.Header().Set("X-Request-ID", rid)

		log := logger.L().With(logger.String("request_id", rid))
		next.ServeHTTP(w, r.WithContext(logger.ToContext(r.Context(), log)))
	})
}

// ─────────────── Recover de pánicos ───────────────

func WithRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.From(r.Context()).Error("panic recovered",
					logger.String("panic", fmt.Sprint(rec)),
					logger.String("path", r.URL.Path),
				)
				WriteError(w, http.StatusInternalServerError, "internal_error", "")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ─────────────── Security Headers ───────────────

func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}

// WithSecurityHeaders inyecta cabeceras de defensa por defecto. No toca
// Cache-Control: eso lo maneja cada handler sensible a tokens.
func WithSecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")
		if isHTTPS(r) {
			w.Header().Set("Strict-Transport-Security", "max-age=15552000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// ─────────────── Logging ───────────────

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func WithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		logger.From(r.Context()).Info("http",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", rec.status),
			logger.Int("bytes", rec.bytes),
			logger.Int("duration_ms", int(time.Since(start).Milliseconds())),
		)
	})
}

// ─────────────── Rate Limit ───────────────

func clientIP(r *http.Request) string {
	if xf := r.Header.Get("X-Forwarded-For"); xf != "" {
		parts := strings.Split(xf, ",")
		return strings.TrimSpace(parts[0])
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// allowOrReject aplica el limiter sobre key y escribe el 429 si no pasa.
// Devuelve true si el handler puede seguir.
func allowOrReject(w http.ResponseWriter, r *http.Request, l rate.Limiter, key string) bool {
	if l == nil {
		return true
	}
	res, err := l.Allow(r.Context(), key)
	if err != nil {
		// limiter caído: dejamos pasar antes que bloquear logins
		logger.From(r.Context()).Warn("rate limiter error", logger.Err(err))
		return true
	}
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
	if res.Allowed {
		return true
	}
	if res.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", int(res.RetryAfter.Seconds()+0.5)))
	}
	WriteError(w, http.StatusTooManyRequests, "rate_limited", "")
	return false
}
