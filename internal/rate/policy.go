package rate

import (
	"context"
	"time"
)

// Policy is a per-operation rate limit.
type Policy struct {
	// MaxRequests admitted within Window. Zero or negative disables limiting.
	MaxRequests int
	// Window is the trailing window length.
	Window time.Duration
	// Block is how long a client is denied after exhausting the window.
	// Zero means no block: the client waits for the oldest hit to age out.
	Block time.Duration
	// RetainHistory keeps window timestamps when a block starts.
	RetainHistory bool
}

// Enabled reports whether p limits anything.
func (p Policy) Enabled() bool {
	return p.MaxRequests > 0
}

// Validate checks p for internally consistent values.
func (p Policy) Validate() error {
	if !p.Enabled() {
		return nil
	}
	if p.Window <= 0 || p.Block < 0 {
		return ErrInvalidPolicy
	}
	return nil
}

// Decision is the outcome of a single Allow call.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
	// Remaining is the number of requests still admissible in the current
	// window after this one. Only meaningful when Allowed.
	Remaining int
}

// Limiter admits or denies a request for a client within a scope.
type Limiter interface {
	Allow(ctx context.Context, clientID, scope string, p Policy) (Decision, error)
}

// Sweeper is implemented by backends that hold buckets in process memory.
type Sweeper interface {
	Sweep(now time.Time) int
}

func unlimited() Decision {
	return Decision{Allowed: true, Remaining: -1}
}
