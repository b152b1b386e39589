package auth

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/borui/borui/internal/logutil"
)

// Login throttling defaults. Two independent mechanisms apply per key:
//   - Sliding window: at most MaxAttemptsPerMinute attempts per minute.
//   - Lockout: after MaxConsecFailures failed logins in a row the key is
//     blocked for BlockDuration.
const (
	DefaultMaxAttemptsPerMinute = 10
	DefaultMaxConsecFailures    = 5
	DefaultBlockDuration        = 5 * time.Minute
)

type LimiterConfig struct {
	MaxAttemptsPerMinute int
	MaxConsecFailures    int
	BlockDuration        time.Duration
}

func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		MaxAttemptsPerMinute: DefaultMaxAttemptsPerMinute,
		MaxConsecFailures:    DefaultMaxConsecFailures,
		BlockDuration:        DefaultBlockDuration,
	}
}

type limiterState struct {
	attempts       []time.Time
	consecFailures int
	blockedUntil   time.Time
}

// LoginLimiter throttles password attempts. Keys are chosen by the caller,
// typically username plus client address.
type LoginLimiter struct {
	mu     sync.Mutex
	config LimiterConfig
	state  map[string]*limiterState
	nowFn  func() time.Time
}

func NewLoginLimiter(config LimiterConfig) *LoginLimiter {
	return &LoginLimiter{
		config: config,
		state:  make(map[string]*limiterState),
		nowFn:  time.Now,
	}
}

// Allow records an attempt for key and returns an error if it must be
// refused.
func (l *LoginLimiter) Allow(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	s := l.getOrCreate(key)

	if now.Before(s.blockedUntil) {
		remaining := s.blockedUntil.Sub(now).Truncate(time.Second)
		return fmt.Errorf("too many failed logins; retry after %s", remaining)
	}

	cutoff := now.Add(-time.Minute)
	kept := s.attempts[:0]
	for _, t := range s.attempts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.attempts = kept

	if len(s.attempts) >= l.config.MaxAttemptsPerMinute {
		log.Printf("[auth] rate limit: %s exceeded %d attempts/min",
			logutil.SanitizeForLog(key), l.config.MaxAttemptsPerMinute)
		return fmt.Errorf("too many login attempts; max %d per minute", l.config.MaxAttemptsPerMinute)
	}
	s.attempts = append(s.attempts, now)
	return nil
}

// RecordSuccess clears the failure streak for key.
func (l *LoginLimiter) RecordSuccess(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.state, key)
}

// RecordFailure extends the failure streak and blocks key once it reaches
// the threshold.
func (l *LoginLimiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := l.getOrCreate(key)
	s.consecFailures++
	if s.consecFailures >= l.config.MaxConsecFailures {
		s.blockedUntil = l.nowFn().Add(l.config.BlockDuration)
		log.Printf("[auth] rate limit: blocking %s until %s (%d consecutive failures)",
			logutil.SanitizeForLog(key), s.blockedUntil.Format(time.RFC3339), s.consecFailures)
	}
}

// Prune drops state that no longer affects any decision.
func (l *LoginLimiter) Prune() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.nowFn()
	cutoff := now.Add(-time.Minute)
	for key, s := range l.state {
		recent := len(s.attempts) > 0 && s.attempts[len(s.attempts)-1].After(cutoff)
		if !recent && !now.Before(s.blockedUntil) && s.consecFailures < l.config.MaxConsecFailures {
			delete(l.state, key)
		}
	}
}

// must be called with l.mu held
func (l *LoginLimiter) getOrCreate(key string) *limiterState {
	s, ok := l.state[key]
	if !ok {
		s = &limiterState{}
		l.state[key] = s
	}
	return s
}
