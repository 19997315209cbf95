package auth

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newTestGuard(now time.Time) *Guard {
	g := NewGuard(testSecret, 30*time.Second)
	g.now = func() time.Time { return now }
	return g
}

func TestVerify_Valid(t *testing.T) {
	now := time.Now()
	g := newTestGuard(now)

	ts := now.UnixMilli()
	err := g.Verify("Bearer "+testSecret, strconv.FormatInt(ts, 10), Sign(testSecret, ts))
	assert.NoError(t, err)
}

func TestVerify_BadBearer(t *testing.T) {
	now := time.Now()
	g := newTestGuard(now)
	ts := now.UnixMilli()

	cases := []string{
		"",
		"Bearer ",
		"Bearer wrong",
		testSecret,          // missing scheme
		"bearer " + testSecret, // scheme is case-sensitive
	}
	for _, h := range cases {
		err := g.Verify(h, strconv.FormatInt(ts, 10), Sign(testSecret, ts))
		var ae *Error
		require.ErrorAs(t, err, &ae, "header %q", h)
		assert.Equal(t, KindUnauthorized, ae.Kind)
		assert.Equal(t, http.StatusUnauthorized, ae.Status())
	}
}

func TestVerify_MissingSignature(t *testing.T) {
	now := time.Now()
	g := newTestGuard(now)
	ts := now.UnixMilli()

	cases := []struct {
		name      string
		timestamp string
		signature string
	}{
		{"no timestamp", "", Sign(testSecret, ts)},
		{"no signature", strconv.FormatInt(ts, 10), ""},
		{"non-numeric timestamp", "yesterday", Sign(testSecret, ts)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Verify("Bearer "+testSecret, tc.timestamp, tc.signature)
			var ae *Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, KindMissingSignature, ae.Kind)
			assert.Equal(t, http.StatusBadRequest, ae.Status())
		})
	}
}

func TestVerify_ExpiredRequest(t *testing.T) {
	now := time.Now()
	g := newTestGuard(now)

	// 40s in the past, well beyond the 30s skew window.
	ts := now.Add(-40 * time.Second).UnixMilli()
	err := g.Verify("Bearer "+testSecret, strconv.FormatInt(ts, 10), Sign(testSecret, ts))
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindExpiredRequest, ae.Kind)

	// Future timestamps count as skew too.
	ts = now.Add(40 * time.Second).UnixMilli()
	err = g.Verify("Bearer "+testSecret, strconv.FormatInt(ts, 10), Sign(testSecret, ts))
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindExpiredRequest, ae.Kind)
}

func TestVerify_SkewBoundary(t *testing.T) {
	now := time.Now()
	g := newTestGuard(now)

	// Exactly at the limit is still acceptable.
	ts := now.Add(-30 * time.Second).UnixMilli()
	assert.NoError(t, g.Verify("Bearer "+testSecret, strconv.FormatInt(ts, 10), Sign(testSecret, ts)))

	ts = now.Add(-30*time.Second - time.Millisecond).UnixMilli()
	var ae *Error
	require.ErrorAs(t, g.Verify("Bearer "+testSecret, strconv.FormatInt(ts, 10), Sign(testSecret, ts)), &ae)
	assert.Equal(t, KindExpiredRequest, ae.Kind)
}

func TestVerify_InvalidSignature(t *testing.T) {
	now := time.Now()
	g := newTestGuard(now)
	ts := now.UnixMilli()

	err := g.Verify("Bearer "+testSecret, strconv.FormatInt(ts, 10), Sign("wrong-secret", ts))
	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindInvalidSignature, ae.Kind)

	// Signature over a different timestamp is just as invalid.
	err = g.Verify("Bearer "+testSecret, strconv.FormatInt(ts, 10), Sign(testSecret, ts-1))
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindInvalidSignature, ae.Kind)
}

func TestMiddleware_BearerOnlyPath(t *testing.T) {
	g := NewGuard(testSecret, 30*time.Second)

	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := g.Middleware(map[string]struct{}{"/health": {}}, nil, nil)

	// Bearer alone is enough on /health; no signature headers required.
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// A wrong bearer is still rejected there.
	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rec = httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"Unauthorized"}`, rec.Body.String())
}

func TestMiddleware_SkipPath(t *testing.T) {
	g := NewGuard(testSecret, 30*time.Second)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mw := g.Middleware(nil, map[string]struct{}{"/metrics": {}}, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMiddleware_RejectHook(t *testing.T) {
	g := NewGuard(testSecret, 30*time.Second)
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	var got []Kind
	mw := g.Middleware(nil, nil, func(k Kind) { got = append(got, k) })

	req := httptest.NewRequest(http.MethodPost, "/ratelimit", nil)
	req.Header.Set("Authorization", "Bearer "+testSecret)
	rec := httptest.NewRecorder()
	mw(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []Kind{KindMissingSignature}, got)
}
