package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/finpulse/finpulse/internal/errs"
)

type ctxKey int

const (
	ctxRequestID ctxKey = iota
	ctxUserID
	ctxRole
)

// authClaims extends the registered claims with an optional role.
type authClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// requestID returns the id stamped on the request, if any.
func requestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}

// userID returns the authenticated user, empty before auth middleware.
func userID(ctx context.Context) string {
	id, _ := ctx.Value(ctxUserID).(string)
	return id
}

func role(ctx context.Context) string {
	r, _ := ctx.Value(ctxRole).(string)
	return r
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()[:8]
		ctx := context.WithValue(r.Context(), ctxRequestID, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		took := time.Since(start)
		route := routeTemplate(r)
		s.met.HTTPRequests.WithLabelValues(r.Method, route, statusClass(ww.status)).Inc()
		s.met.HTTPDuration.WithLabelValues(r.Method, route).Observe(took.Seconds())
		s.log.Info().
			Str("request_id", requestID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.status).
			Dur("took", took).
			Str("remote", clientIP(r)).
			Msg("request")
	})
}

func (s *Server) timeoutMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// authMiddleware resolves the bearer token to a user id. Tokens are
// HS256-signed with the shared secret and carry the user in `sub`.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			s.unauthorized(w, "missing bearer token")
			return
		}
		raw := strings.TrimPrefix(header, "Bearer ")

		claims := authClaims{}
		token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errs.Permission("unexpected signing method")
			}
			return []byte(s.jwtSecret), nil
		})
		if err != nil || !token.Valid || claims.Subject == "" {
			s.unauthorized(w, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserID, claims.Subject)
		ctx = context.WithValue(ctx, ctxRole, claims.Role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"success":false,"error":"` + msg + `"}`))
}

// ipLimitMiddleware applies a per-IP route-class cap.
func (s *Server) ipLimitMiddleware(class limitClass) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := s.ipLimits.Allow(clientIP(r), class); err != nil {
				writeErr(w, s.log, err, s.dev)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// checkUserAction applies the per-user Redis cap for one action.
func (s *Server) checkUserAction(r *http.Request, action string) error {
	return s.userLimits.Allow(r.Context(), userID(r.Context()), action)
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func statusClass(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
