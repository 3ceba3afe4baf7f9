package rate

import "errors"

var (
	// ErrRedisUnavailable wraps Redis failures from the limiter.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
