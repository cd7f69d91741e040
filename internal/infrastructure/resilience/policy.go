package resilience

import "time"

// Config tunes the shared retry and circuit breaker policy applied to
// outbound calls (Ollama generation and embedding, NATS publishes).
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffCeiling time.Duration
	BackoffGrowth  float64

	BreakerEnabled       bool
	BreakerMinRequests   uint32
	BreakerFailureRatio  float64
	BreakerRecovery      time.Duration
	BreakerProbeRequests uint32
}

// DefaultConfig keeps retries short enough to stay inside the query
// pipeline's per-backend timeouts.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		InitialBackoff: 100 * time.Millisecond,
		BackoffCeiling: 400 * time.Millisecond,
		BackoffGrowth:  2.0,

		BreakerEnabled:       true,
		BreakerMinRequests:   10,
		BreakerFailureRatio:  0.5,
		BreakerRecovery:      30 * time.Second,
		BreakerProbeRequests: 2,
	}
}

// sanitized replaces zero and out-of-range fields with defaults so a
// partially filled Config never disables retries by accident.
func (c Config) sanitized() Config {
	def := DefaultConfig()

	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = def.InitialBackoff
	}
	if c.BackoffCeiling < c.InitialBackoff {
		c.BackoffCeiling = c.InitialBackoff
	}
	if c.BackoffGrowth < 1.0 {
		c.BackoffGrowth = def.BackoffGrowth
	}

	if c.BreakerMinRequests == 0 {
		c.BreakerMinRequests = def.BreakerMinRequests
	}
	if c.BreakerFailureRatio <= 0 || c.BreakerFailureRatio > 1 {
		c.BreakerFailureRatio = def.BreakerFailureRatio
	}
	if c.BreakerRecovery <= 0 {
		c.BreakerRecovery = def.BreakerRecovery
	}
	if c.BreakerProbeRequests == 0 {
		c.BreakerProbeRequests = def.BreakerProbeRequests
	}

	return c
}
