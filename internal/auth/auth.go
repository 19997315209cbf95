package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Kind classifies why a request was rejected before reaching the engine.
type Kind string

const (
	KindUnauthorized     Kind = "Unauthorized"
	KindMissingSignature Kind = "Missing signature"
	KindExpiredRequest   Kind = "Expired request"
	KindInvalidSignature Kind = "Invalid signature"
)

// Error is a request rejection. All variants are client-caused and are
// never retried server-side.
type Error struct {
	Kind Kind
}

func (e *Error) Error() string { return string(e.Kind) }

// Status maps the rejection to its HTTP status. A missing signature header
// is a malformed request (400); everything else is an auth failure (401).
func (e *Error) Status() int {
	if e.Kind == KindMissingSignature {
		return http.StatusBadRequest
	}
	return http.StatusUnauthorized
}

// Guard validates the bearer token and the HMAC-signed timestamp on every
// request before any counting happens. It holds no mutable state.
type Guard struct {
	secret  string
	maxSkew time.Duration
	now     func() time.Time
}

func NewGuard(secret string, maxSkew time.Duration) *Guard {
	return &Guard{
		secret:  secret,
		maxSkew: maxSkew,
		now:     time.Now,
	}
}

// Sign computes the hex HMAC-SHA256 of the millisecond timestamp rendered
// as a decimal string. Clients send the result in X-Signature.
func Sign(secret string, timestampMS int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestampMS, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyBearer checks only the Authorization header. The health route uses
// this alone; signed routes run the full Verify.
func (g *Guard) VerifyBearer(authorization string) error {
	if authorization != "Bearer "+g.secret {
		return &Error{Kind: KindUnauthorized}
	}
	return nil
}

// Verify runs the full guard: bearer token, signature presence, clock skew,
// then digest match. The first failing step wins.
//
// There is no nonce or replay cache: a captured (timestamp, signature) pair
// stays valid for the remainder of the skew window. Known limitation.
func (g *Guard) Verify(authorization, timestamp, signature string) error {
	if err := g.VerifyBearer(authorization); err != nil {
		return err
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil || signature == "" {
		return &Error{Kind: KindMissingSignature}
	}

	skew := g.now().UnixMilli() - ts
	if skew < 0 {
		skew = -skew
	}
	if time.Duration(skew)*time.Millisecond > g.maxSkew {
		return &Error{Kind: KindExpiredRequest}
	}

	expected := Sign(g.secret, ts)
	if !hmac.Equal([]byte(signature), []byte(expected)) {
		return &Error{Kind: KindInvalidSignature}
	}

	return nil
}

// Middleware enforces the guard and writes JSON errors on failure.
// Paths in bearerOnly skip the signature steps; paths in skip bypass the
// guard entirely (ops endpoints like /metrics). onReject, when non-nil, is
// called with the rejection kind before the response is written.
func (g *Guard) Middleware(bearerOnly, skip map[string]struct{}, onReject func(Kind)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			var err error
			if _, ok := bearerOnly[r.URL.Path]; ok {
				err = g.VerifyBearer(r.Header.Get("Authorization"))
			} else {
				err = g.Verify(
					r.Header.Get("Authorization"),
					r.Header.Get("X-Timestamp"),
					r.Header.Get("X-Signature"),
				)
			}
			if err != nil {
				if ae, ok := err.(*Error); ok && onReject != nil {
					onReject(ae.Kind)
				}
				writeReject(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeReject(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	msg := string(KindUnauthorized)
	if ae, ok := err.(*Error); ok {
		status = ae.Status()
		msg = string(ae.Kind)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
