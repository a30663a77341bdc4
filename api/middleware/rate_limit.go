package middleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/maiyom-backend/api/responses"
	"github.com/angelmondragon/maiyom-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
	"github.com/angelmondragon/maiyom-backend/pkg/logger"
)

const (
	RateLimitLimitHeader     = "X-RateLimit-Limit"
	RateLimitRemainingHeader = "X-RateLimit-Remaining"
)

// RateLimitStore counts hits in fixed windows.
type RateLimitStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(policy, dimension, subject string) string
}

// RateLimitPolicy caps hits per client IP and per authenticated user within
// one window. A zero cap leaves that dimension unchecked.
type RateLimitPolicy struct {
	Name    string
	Window  time.Duration
	PerIP   int
	PerUser int
}

func OfferRateLimitPolicy(cfg config.RateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{Name: "offers", Window: cfg.OfferWindow, PerIP: cfg.OfferIPLimit, PerUser: cfg.OfferUserLimit}
}

// OTPRateLimitPolicy guards pickup and delivery code entry on top of the
// per-mission attempt counter.
func OTPRateLimitPolicy(cfg config.RateLimitConfig) RateLimitPolicy {
	return RateLimitPolicy{Name: "otp", Window: cfg.OTPWindow, PerIP: cfg.OTPIPLimit, PerUser: cfg.OTPUserLimit}
}

func (p RateLimitPolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerUser > 0)
}

func (p RateLimitPolicy) retryAfter() string {
	return strconv.Itoa(int(math.Ceil(p.Window.Seconds())))
}

type dimension struct {
	name    string
	subject string
	limit   int
}

// RateLimit must run after Auth so the user dimension sees the caller. The
// tightest checked dimension sets the X-RateLimit headers.
func RateLimit(policy RateLimitPolicy, store RateLimitStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || store == nil {
			return next
		}
		name := strings.ToLower(strings.TrimSpace(policy.Name))
		if name == "" {
			name = "default"
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			dims := [...]dimension{
				{name: "ip", subject: clientIP(r), limit: policy.PerIP},
				{name: "user", subject: UserIDFromContext(ctx), limit: policy.PerUser},
			}

			remaining, limit := int64(math.MaxInt64), 0
			for _, d := range dims {
				if d.limit <= 0 || d.subject == "" {
					continue
				}
				count, err := store.IncrWithTTL(ctx, store.RateLimitKey(name, d.name, d.subject), policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
					return
				}
				if count > int64(d.limit) {
					if logg != nil {
						logg.Warn(logg.WithFields(ctx, map[string]any{
							"policy":    name,
							"dimension": d.name,
							"hits":      count,
							"limit":     d.limit,
						}), "rate limit exceeded")
					}
					w.Header().Set("Retry-After", policy.retryAfter())
					w.Header().Set(RateLimitLimitHeader, strconv.Itoa(d.limit))
					w.Header().Set(RateLimitRemainingHeader, "0")
					responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
					return
				}
				if left := int64(d.limit) - count; left < remaining {
					remaining, limit = left, d.limit
				}
			}
			if limit > 0 {
				w.Header().Set(RateLimitLimitHeader, strconv.Itoa(limit))
				w.Header().Set(RateLimitRemainingHeader, strconv.FormatInt(remaining, 10))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientIP takes the left-most X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for _, hop := range strings.Split(fwd, ",") {
			if ip := strings.TrimSpace(hop); ip != "" {
				return ip
			}
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return host
	}
	return r.RemoteAddr
}
