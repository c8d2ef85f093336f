package server

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"crowdfund/internal/auth"
	"crowdfund/pkg/types"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type contextKey string

const (
	contextKeyUserID      contextKey = "user_id"
	contextKeyEmail       contextKey = "email"
	contextKeyAccessToken contextKey = "access_token"
)

var httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "crowdfund",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request latency by method and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "status"})

type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *Service) LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		elapsed := time.Since(started)
		httpRequestDuration.WithLabelValues(r.Method, strconv.Itoa(rw.statusCode)).Observe(elapsed.Seconds())

		s.logger.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      rw.statusCode,
			"duration_ms": elapsed.Milliseconds(),
		}).Info("http request")
	})
}

// accessToken prefers an Authorization bearer token over the session cookie.
func (s *Service) accessToken(r *http.Request) (string, bool) {
	if header := r.Header.Get("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		token = strings.TrimSpace(token)
		return token, ok && token != ""
	}

	cookie, err := r.Cookie(s.config.CookieName)
	if err != nil {
		return "", false
	}

	var token string
	if err := s.cookie.Decode(s.config.CookieName, cookie.Value, &token); err != nil {
		s.logger.WithError(err).Debug("failed to decode session cookie")
		return "", false
	}

	return token, token != ""
}

func withIdentity(ctx context.Context, identity *auth.Identity, token string) context.Context {
	ctx = context.WithValue(ctx, contextKeyUserID, identity.UserID)
	ctx = context.WithValue(ctx, contextKeyAccessToken, token)
	if identity.Email != "" {
		ctx = context.WithValue(ctx, contextKeyEmail, identity.Email)
	}
	return ctx
}

// RequireAuth rejects requests without a valid access token.
func (s *Service) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := s.accessToken(r)
		if !ok {
			s.writeError(w, r, types.ErrUnauthorized)
			return
		}

		identity, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			if types.CodeOf(err) == types.CodeAuthSessionExpired {
				s.clearSessionCookie(w)
			}
			s.writeError(w, r, err)
			return
		}

		s.logger.WithField("user_id", identity.UserID).Debug("authenticated user")

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity, token)))
	})
}

// OptionalAuth attaches the caller's identity when a valid token is present
// and serves the request anonymously otherwise.
func (s *Service) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := s.accessToken(r)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		identity, err := s.verifier.Verify(r.Context(), token)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(withIdentity(r.Context(), identity, token)))
	})
}

func (s *Service) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authLimiter.Allow(clientIP(r)) {
			w.Header().Set("Retry-After", "60")
			s.writeError(w, r, &types.Error{Code: types.CodeRateLimited})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Service) StripTrailingSlash(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		if path != "/" && strings.HasSuffix(path, "/") {
			newURL := *r.URL
			newURL.Path = strings.TrimSuffix(path, "/")

			http.Redirect(w, r, newURL.String(), http.StatusMovedPermanently)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func userIDFromContext(ctx context.Context) string {
	userID, _ := ctx.Value(contextKeyUserID).(string)
	return userID
}

func emailFromContext(ctx context.Context) string {
	email, _ := ctx.Value(contextKeyEmail).(string)
	return email
}

func accessTokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(contextKeyAccessToken).(string)
	return token
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

const maxTrackedClients = 10_000

// ipLimiter keeps one token bucket per client address. A nil limiter allows
// everything.
type ipLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIPLimiter(perWindow int, window time.Duration) *ipLimiter {
	if perWindow <= 0 {
		return nil
	}

	return &ipLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(window / time.Duration(perWindow)),
		burst:    perWindow,
	}
}

func (l *ipLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[key]
	if !ok {
		if len(l.limiters) >= maxTrackedClients {
			l.limiters = make(map[string]*rate.Limiter)
		}
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[key] = limiter
	}

	return limiter.Allow()
}
