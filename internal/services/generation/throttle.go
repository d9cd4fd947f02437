package generation

import (
	"math"
	"time"
)

// ThrottleConfig parameterizes the adaptive pacing of one job run.
type ThrottleConfig struct {
	InitialDelay time.Duration
	MinDelay     time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int
	// SpeedUpAfter consecutive successes the delay shrinks by SpeedUpFactor.
	SpeedUpAfter  int
	SpeedUpFactor float64
}

func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		InitialDelay:  5 * time.Second,
		MinDelay:      2 * time.Second,
		MaxDelay:      120 * time.Second,
		MaxAttempts:   3,
		SpeedUpAfter:  5,
		SpeedUpFactor: 0.9,
	}
}

// throttle is owned by a single run and never shared between jobs.
type throttle struct {
	cfg    ThrottleConfig
	delay  time.Duration
	streak int
}

func newThrottle(cfg ThrottleConfig) *throttle {
	return &throttle{cfg: cfg, delay: cfg.InitialDelay}
}

// Delay is the pause taken before every prompt after the first.
func (t *throttle) Delay() time.Duration {
	return t.delay
}

func (t *throttle) OnSuccess() {
	t.streak++
	if t.streak >= t.cfg.SpeedUpAfter && t.delay > t.cfg.MinDelay {
		t.delay = maxDuration(t.cfg.MinDelay, scale(t.delay, t.cfg.SpeedUpFactor))
		t.streak = 0
	}
}

// OnRateLimit returns how long to wait before retrying. A provider hint is
// honoured as is; otherwise the base delay doubles up to the ceiling.
func (t *throttle) OnRateLimit(retryAfter time.Duration) time.Duration {
	t.streak = 0
	if retryAfter > 0 {
		return retryAfter
	}

	t.delay = minDuration(t.cfg.MaxDelay, scale(t.delay, 2))
	return t.delay
}

// OnProviderError backs off gently without touching the base delay.
func (t *throttle) OnProviderError() time.Duration {
	return minDuration(t.cfg.MaxDelay, scale(t.delay, 1.5))
}

func scale(d time.Duration, f float64) time.Duration {
	return time.Duration(math.Round(float64(d) * f))
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
