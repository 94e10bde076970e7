package websocket

import "golang.org/x/time/rate"

// RateLimitConfig limits the frames a session sends on the events socket.
// Heartbeats bypass the limit.
type RateLimitConfig struct {
	// FramesPerSecond defines how many frames may be sent per second
	FramesPerSecond rate.Limit
	// Burst defines the maximum burst size (token bucket capacity)
	Burst int
	// Enabled determines if rate limiting is active
	Enabled bool
}

// DefaultRateLimitConfig allows 10 frames per second with a burst of 20.
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		FramesPerSecond: 10,
		Burst:           20,
		Enabled:         true,
	}
}

// NoRateLimit returns a configuration with rate limiting disabled
func NoRateLimit() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled: false,
	}
}

func (c *RateLimitConfig) limiter() *rate.Limiter {
	if c == nil || !c.Enabled || c.FramesPerSecond <= 0 {
		return nil
	}
	burst := c.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(c.FramesPerSecond, burst)
}
