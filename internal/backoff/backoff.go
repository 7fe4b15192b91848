// Package backoff computes the delay before each reconnect attempt.
//
// Delays grow as capped exponentials (base * 2^attempt, clamped to a
// cap). Rate-limited disconnects use a separate, larger profile so a
// throttled session backs off harder than one that merely lost its
// network. Jitter spreads retries of many sessions apart so they do not
// hammer the service in lockstep.
package backoff

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/blacksky-md/bslink/internal/errors"
)

// jitterSpread is the fraction of the computed delay that jitter may
// add or subtract.
const jitterSpread = 0.2

// Config holds the scheduler parameters.
type Config struct {
	BaseDelay            time.Duration `mapstructure:"base_delay"`
	MaxDelay             time.Duration `mapstructure:"max_delay"`
	RateLimitedBaseDelay time.Duration `mapstructure:"rate_limited_base_delay"`
	RateLimitedMaxDelay  time.Duration `mapstructure:"rate_limited_max_delay"`
	MaxAttempts          int           `mapstructure:"max_attempts"`
	Jitter               bool          `mapstructure:"jitter"`
}

// DefaultConfig returns the standard retry profile.
func DefaultConfig() Config {
	return Config{
		BaseDelay:            2 * time.Second,
		MaxDelay:             30 * time.Second,
		RateLimitedBaseDelay: 5 * time.Second,
		RateLimitedMaxDelay:  60 * time.Second,
		MaxAttempts:          10,
		Jitter:               true,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.BaseDelay <= 0 {
		return errors.NewConfigurationError("base delay must be positive").
			WithField("base_delay").WithValue(c.BaseDelay)
	}
	if c.MaxDelay < c.BaseDelay {
		return errors.NewConfigurationError("max delay must be at least the base delay").
			WithField("max_delay").WithValue(c.MaxDelay)
	}
	if c.RateLimitedBaseDelay <= 0 {
		return errors.NewConfigurationError("rate-limited base delay must be positive").
			WithField("rate_limited_base_delay").WithValue(c.RateLimitedBaseDelay)
	}
	if c.RateLimitedMaxDelay < c.RateLimitedBaseDelay {
		return errors.NewConfigurationError("rate-limited max delay must be at least its base delay").
			WithField("rate_limited_max_delay").WithValue(c.RateLimitedMaxDelay)
	}
	if c.MaxAttempts < 1 {
		return errors.NewConfigurationError("max attempts must be at least 1").
			WithField("max_attempts").WithValue(c.MaxAttempts)
	}
	return nil
}

// Scheduler produces reconnect delays and enforces the attempt ceiling.
// It is stateless apart from its random source and safe for concurrent
// use when randFloat is (the default rand.Float64 is).
type Scheduler struct {
	cfg       Config
	randFloat func() float64
}

// NewScheduler creates a scheduler with the global random source.
func NewScheduler(cfg Config) (*Scheduler, error) {
	return NewSchedulerWithRand(cfg, rand.Float64)
}

// NewSchedulerWithRand creates a scheduler with an injected random
// source in [0, 1), so tests can pin jitter.
func NewSchedulerWithRand(cfg Config, randFloat func() float64) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if randFloat == nil {
		return nil, errors.NewConfigurationError("random source must not be nil").
			WithField("rand")
	}
	return &Scheduler{cfg: cfg, randFloat: randFloat}, nil
}

// NextDelay returns the delay before the given attempt (0-based) using
// the standard profile.
func (s *Scheduler) NextDelay(attempt int) time.Duration {
	return s.delay(attempt, s.cfg.BaseDelay, s.cfg.MaxDelay)
}

// NextDelayRateLimited returns the delay before the given attempt using
// the rate-limited profile.
func (s *Scheduler) NextDelayRateLimited(attempt int) time.Duration {
	return s.delay(attempt, s.cfg.RateLimitedBaseDelay, s.cfg.RateLimitedMaxDelay)
}

// Exhausted reports whether the given attempt count has reached the
// configured ceiling.
func (s *Scheduler) Exhausted(attempt int) bool {
	return attempt >= s.cfg.MaxAttempts
}

// MaxAttempts returns the configured attempt ceiling.
func (s *Scheduler) MaxAttempts() int {
	return s.cfg.MaxAttempts
}

func (s *Scheduler) delay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	d := base
	// Shifting beyond 62 bits would overflow; the cap is hit long before.
	for i := 0; i < attempt && d < cap; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}

	if s.cfg.Jitter {
		// Uniform in [-jitterSpread, +jitterSpread) of the clamped
		// delay. The cap is a hard ceiling, so upward jitter is clamped
		// again rather than allowed to exceed it.
		factor := 1 + jitterSpread*(2*s.randFloat()-1)
		d = time.Duration(float64(d) * factor)
		if d > cap {
			d = cap
		}
	}
	return d
}

// String describes the profile, for logs.
func (s *Scheduler) String() string {
	return fmt.Sprintf("backoff{base=%s cap=%s rl_base=%s rl_cap=%s max_attempts=%d jitter=%t}",
		s.cfg.BaseDelay, s.cfg.MaxDelay,
		s.cfg.RateLimitedBaseDelay, s.cfg.RateLimitedMaxDelay,
		s.cfg.MaxAttempts, s.cfg.Jitter)
}
