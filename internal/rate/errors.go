package rate

import "errors"

var (
	// ErrRedisUnavailable is returned when the Redis backend cannot be reached.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrInvalidPolicy is returned for a policy with a positive request budget
	// but a non-positive window, or a negative block duration.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrEmptyClient is returned when Allow is called without a client key.
	ErrEmptyClient = errors.New("empty rate limit client key")
)
