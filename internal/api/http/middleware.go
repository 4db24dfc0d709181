package http

import (
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"leadmarket-backend/internal/config"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/metrics"
	"leadmarket-backend/internal/security"
)

// AuthMiddleware enforces the security level configured for the matched
// route name. Unknown routes require an admin token.
func AuthMiddleware(tm security.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name := ""
			if route := mux.CurrentRoute(r); route != nil {
				name = route.GetName()
			}
			level := config.GetSecurityLevel(name)
			if level == config.SecurityPublic {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "authorization token is not provided"})
				return
			}
			claims, err := tm.ValidateToken(token)
			if err != nil {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "invalid token: " + err.Error()})
				return
			}
			if claims.Type != security.TokenTypeAccess {
				writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: security.ErrWrongTokenType.Error()})
				return
			}
			if level == config.SecurityAdmin && !claims.IsAdmin() {
				writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "admin role required"})
				return
			}

			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		header = header[7:]
	}
	header = strings.TrimSpace(header)
	return header, header != ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// MetricsMiddleware records request counts and latency per route template.
func MetricsMiddleware(m *metrics.Metrics) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			route := "unknown"
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}
			elapsed := time.Since(start)
			m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
			logger.Debug("HTTP request", "method", r.Method, "route", route, "status", rec.status, "duration", elapsed)
		})
	}
}

// RecoveryMiddleware turns handler panics into 500 responses.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Handler panic recovered", "method", r.Method, "path", r.URL.Path,
					"panic", rec, "stack", string(debug.Stack()))
				writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
