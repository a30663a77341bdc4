package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/maiyom-backend/pkg/errors"
)

type memoryCounters struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newMemoryCounters() *memoryCounters {
	return &memoryCounters{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (m *memoryCounters) IncrWithTTL(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.counts[key]++
	m.ttls[key] = ttl
	return m.counts[key], nil
}

func (m *memoryCounters) RateLimitKey(policy, dimension, subject string) string {
	return strings.Join([]string{"rl", policy, dimension, subject}, ":")
}

func limited(policy RateLimitPolicy, store RateLimitStore) http.Handler {
	return RateLimit(policy, store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

func hit(h http.Handler, remoteAddr, userID string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/missions/abc/offers", nil)
	req.RemoteAddr = remoteAddr
	if userID != "" {
		req = req.WithContext(WithUserID(req.Context(), userID))
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitReportsTightestDimension(t *testing.T) {
	store := newMemoryCounters()
	h := limited(RateLimitPolicy{Name: "Offers", Window: time.Minute, PerIP: 10, PerUser: 2}, store)

	rec := hit(h, "1.2.3.4:5678", "user-1", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "2", rec.Header().Get(RateLimitLimitHeader))
	assert.Equal(t, "1", rec.Header().Get(RateLimitRemainingHeader))
	assert.Equal(t, time.Minute, store.ttls["rl:offers:user:user-1"])
	assert.EqualValues(t, 1, store.counts["rl:offers:ip:1.2.3.4"])
}

func TestRateLimitUserCapAppliesAcrossIPs(t *testing.T) {
	store := newMemoryCounters()
	h := limited(RateLimitPolicy{Name: "otp", Window: 90 * time.Second, PerUser: 2}, store)

	for i, addr := range []string{"1.1.1.1:1", "2.2.2.2:2"} {
		assert.Equal(t, http.StatusNoContent, hit(h, addr, "runner-1", nil).Code, "hit %d", i)
	}
	rec := hit(h, "3.3.3.3:3", "runner-1", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get(RateLimitRemainingHeader))

	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, string(pkgerrors.CodeRateLimit), body.Error.Code)
}

func TestRateLimitIPCapUsesForwardedClient(t *testing.T) {
	store := newMemoryCounters()
	h := limited(RateLimitPolicy{Name: "offers", Window: time.Minute, PerIP: 1}, store)
	fwd := map[string]string{"X-Forwarded-For": " 5.6.7.8, 10.0.0.1"}

	assert.Equal(t, http.StatusNoContent, hit(h, "10.0.0.1:1", "", fwd).Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1", "", fwd).Code)
	assert.EqualValues(t, 2, store.counts["rl:offers:ip:5.6.7.8"])
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	store := newMemoryCounters()
	store.err = errors.New("redis down")
	rec := hit(limited(RateLimitPolicy{Name: "offers", Window: time.Minute, PerIP: 1}, store), "1.1.1.1:1", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimitInactivePolicyPassesThrough(t *testing.T) {
	store := newMemoryCounters()
	for _, policy := range []RateLimitPolicy{
		{Name: "otp", PerIP: 1, PerUser: 1},
		{Name: "otp", Window: time.Minute},
	} {
		h := limited(policy, store)
		for range 3 {
			assert.Equal(t, http.StatusNoContent, hit(h, "1.1.1.1:1", "u", nil).Code)
		}
	}
	assert.Empty(t, store.counts)

	assert.Equal(t, http.StatusNoContent, hit(limited(RateLimitPolicy{Window: time.Minute, PerIP: 1}, nil), "1.1.1.1:1", "", nil).Code)
}

func TestClientIP(t *testing.T) {
	cases := map[string]struct {
		remote string
		header map[string]string
		want   string
	}{
		"forwarded":   {"10.0.0.1:1", map[string]string{"X-Forwarded-For": "9.9.9.9, 10.0.0.1"}, "9.9.9.9"},
		"real ip":     {"10.0.0.1:1", map[string]string{"X-Real-IP": "8.8.8.8"}, "8.8.8.8"},
		"socket":      {"7.7.7.7:443", nil, "7.7.7.7"},
		"bare remote": {"unix", nil, "unix"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remote
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tc.want, clientIP(req))
		})
	}
}
