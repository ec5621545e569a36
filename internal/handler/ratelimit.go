package handler

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/pyquest-jobs/internal/domain"
)

// Limiter counts requests per key in fixed windows
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// rateLimit limits each client IP to limit requests per window for a route group.
// Limiter failures let the request through.
func (h *Handler) rateLimit(group string, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if h.limiter == nil || !h.limits.Enabled || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, resetIn, err := h.limiter.Allow(r.Context(), group+":"+clientIP(r), limit, h.limits.Window)
			if err != nil {
				h.logger.Warn("rate limiter unavailable", "group", group, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				seconds := int(math.Ceil(resetIn.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				h.writeError(w, http.StatusTooManyRequests, domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
