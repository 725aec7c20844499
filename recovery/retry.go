package recovery

import (
	"time"

	"github.com/hazyhaar/applyd/errdetect"
)

// RetryStrategy is the pure retry-eligibility and backoff calculator.
// One instance tracks a single outer action; Reset returns it to baseline.
type RetryStrategy struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
	rateLimitMax      int
	autoRelogin       bool

	attempts             int
	currentBackoff       time.Duration
	consecutiveRateLimit int
}

// NewRetryStrategy creates a strategy from cfg (defaults already applied).
func NewRetryStrategy(cfg Config) *RetryStrategy {
	return &RetryStrategy{
		maxRetries:        cfg.MaxRetries,
		initialBackoff:    cfg.InitialBackoff,
		maxBackoff:        cfg.MaxBackoff,
		backoffMultiplier: cfg.BackoffMultiplier,
		rateLimitMax:      cfg.RateLimitMaxConsecutive,
		autoRelogin:       cfg.AutoRelogin,
		currentBackoff:    cfg.InitialBackoff,
	}
}

// ShouldRetry reports whether another attempt is warranted after an error of
// the given type. RateLimit calls also advance the consecutive-rate-limit
// counter; once it reaches the configured cap the answer is false for the
// rest of this outer action.
func (s *RetryStrategy) ShouldRetry(t errdetect.Type) bool {
	switch t {
	case errdetect.Captcha:
		// Human intervention required, never auto-retried.
		return false
	case errdetect.RateLimit:
		s.consecutiveRateLimit++
		if s.consecutiveRateLimit >= s.rateLimitMax {
			return false
		}
		return s.attempts < s.maxRetries
	case errdetect.SessionTimeout:
		return s.autoRelogin && s.attempts < s.maxRetries
	case errdetect.NetworkError:
		return s.attempts < s.maxRetries
	default:
		return false
	}
}

// Backoff returns the wait before the next attempt, capped at the maximum.
func (s *RetryStrategy) Backoff() time.Duration {
	if s.currentBackoff > s.maxBackoff {
		return s.maxBackoff
	}
	return s.currentBackoff
}

// Advance records a consumed attempt and grows the backoff exponentially.
func (s *RetryStrategy) Advance() {
	s.attempts++
	next := time.Duration(float64(s.currentBackoff) * s.backoffMultiplier)
	if next > s.maxBackoff {
		next = s.maxBackoff
	}
	s.currentBackoff = next
}

// Attempts returns the number of consumed attempts since the last Reset.
func (s *RetryStrategy) Attempts() int { return s.attempts }

// Reset returns the strategy to baseline. Called at the start of every outer
// action and after any outer success.
func (s *RetryStrategy) Reset() {
	s.attempts = 0
	s.currentBackoff = s.initialBackoff
	s.consecutiveRateLimit = 0
}
