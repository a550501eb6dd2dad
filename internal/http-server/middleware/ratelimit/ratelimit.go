// Package ratelimit implements a fixed-window request limiter for the
// public referral endpoints. The counter store is injected, never a
// module-level map: redis in multi-instance deployments, in-memory
// otherwise and in tests.
package ratelimit

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/render"

	"refhub/lib/api/response"
	"refhub/lib/sl"
)

// Store counts hits per key within a fixed window.
type Store interface {
	// Incr bumps the counter for key and returns its value within the
	// current window. The counter expires once the window passes.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// New builds the middleware. Requests beyond limit per window get 429 with
// a Retry-After header. A failing store lets requests through: losing rate
// limiting is better than losing registrations.
func New(log *slog.Logger, store Store, limit int64, window time.Duration) func(next http.Handler) http.Handler {
	mod := sl.Module("middleware.ratelimit")

	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r)

			count, err := store.Incr(r.Context(), key, window)
			if err != nil {
				log.With(mod, slog.String("key", key), sl.Err(err)).Warn("limiter store failed")
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(limit, 10))
			remaining := limit - count
			if remaining < 0 {
				remaining = 0
			}
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				render.Status(r, http.StatusTooManyRequests)
				render.JSON(w, r, response.Error("Too many requests"))
				return
			}

			next.ServeHTTP(w, r)
		}
		return http.HandlerFunc(fn)
	}
}

// clientKey scopes the counter to client address and route.
func clientKey(r *http.Request) string {
	remote := r.RemoteAddr
	if xRemote := r.Header.Get("X-Forwarded-For"); xRemote != "" {
		remote = strings.Split(xRemote, ",")[0]
	}
	if host, _, found := strings.Cut(remote, ":"); found {
		remote = host
	}
	return "ratelimit:" + remote + ":" + r.Method + ":" + r.URL.Path
}
