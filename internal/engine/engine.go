// Package engine turns a counter result into an admission decision. It is
// stateless: all counting state lives in the backend layer.
package engine

import (
	"context"
	"time"

	"github.com/yusufekorman/ratelimit-proxy/internal/counter"
)

// Request is one admission check. Points and Duration are optional and
// pick up the configured defaults when absent; explicit zero or negative
// values are rejected, not defaulted.
type Request struct {
	Key      string `json:"key"`
	Points   *int   `json:"points"`
	Duration *int   `json:"duration"`
}

// ValidationError reports a malformed request field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// Decision is the admission verdict. Remaining is meaningful only when
// allowed, RetryAfter (seconds) only when denied.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter int
}

type Engine struct {
	backend         counter.Backend
	defaultPoints   int
	defaultDuration int
}

func New(backend counter.Backend, defaultPoints, defaultDuration int) *Engine {
	return &Engine{
		backend:         backend,
		defaultPoints:   defaultPoints,
		defaultDuration: defaultDuration,
	}
}

// Check consumes one unit against the request's key and decides. The
// increment is fire-and-forget: a denied or aborted request is not
// compensated with a decrement.
func (e *Engine) Check(ctx context.Context, req Request) (Decision, error) {
	points, duration, err := e.validate(req)
	if err != nil {
		return Decision{}, err
	}

	res, err := e.backend.Increment(ctx, counter.Normalize(req.Key), time.Duration(duration)*time.Second)
	if err != nil {
		return Decision{}, err
	}

	if res.Count > int64(points) {
		return Decision{Allowed: false, RetryAfter: res.TTL}, nil
	}
	return Decision{Allowed: true, Remaining: points - int(res.Count)}, nil
}

func (e *Engine) validate(req Request) (points, duration int, err error) {
	if req.Key == "" {
		return 0, 0, &ValidationError{Field: "key", Reason: "must be a non-empty string"}
	}

	points = e.defaultPoints
	if req.Points != nil {
		if *req.Points < 1 {
			return 0, 0, &ValidationError{Field: "points", Reason: "must be a positive integer"}
		}
		points = *req.Points
	}

	duration = e.defaultDuration
	if req.Duration != nil {
		if *req.Duration < 1 {
			return 0, 0, &ValidationError{Field: "duration", Reason: "must be a positive integer"}
		}
		duration = *req.Duration
	}

	return points, duration, nil
}
