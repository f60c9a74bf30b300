package external

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/pharmguard-mcp-server/internal/domain"
)

// CircuitBreakerConfig represents circuit breaker configuration
type CircuitBreakerConfig struct {
	MaxRequests  uint32        `json:"max_requests"`
	Interval     time.Duration `json:"interval"`
	Timeout      time.Duration `json:"timeout"`
	MinRequests  uint32        `json:"min_requests"`
	FailureRatio float64       `json:"failure_ratio"`
}

// DefaultCircuitBreakerConfig trips after 60% failures over at least three calls.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		MaxRequests:  3,
		Interval:     30 * time.Second,
		Timeout:      60 * time.Second,
		MinRequests:  3,
		FailureRatio: 0.6,
	}
}

// ErrProviderUnavailable is returned while the circuit breaker is open.
var ErrProviderUnavailable = errors.New("explanation provider unavailable")

// ResilientGenerator wraps a text generator with a completion cache and a
// circuit breaker. Cached completions are served even while the breaker is open.
type ResilientGenerator struct {
	generator domain.TextGenerator
	cache     domain.ExplanationCache
	cacheTTL  time.Duration
	breaker   *gobreaker.CircuitBreaker
	logger    *logrus.Logger
}

// NewResilientGenerator wraps generator. cache may be nil.
func NewResilientGenerator(
	generator domain.TextGenerator,
	cache domain.ExplanationCache,
	cacheTTL time.Duration,
	config CircuitBreakerConfig,
	logger *logrus.Logger,
) *ResilientGenerator {
	defaults := DefaultCircuitBreakerConfig()
	if config.MaxRequests == 0 {
		config.MaxRequests = defaults.MaxRequests
	}
	if config.Interval == 0 {
		config.Interval = defaults.Interval
	}
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.MinRequests == 0 {
		config.MinRequests = defaults.MinRequests
	}
	if config.FailureRatio == 0 {
		config.FailureRatio = defaults.FailureRatio
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        generator.Name(),
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.WithFields(logrus.Fields{
				"circuit_breaker": name,
				"from_state":      from.String(),
				"to_state":        to.String(),
			}).Warn("Circuit breaker state changed")
		},
	})

	return &ResilientGenerator{
		generator: generator,
		cache:     cache,
		cacheTTL:  cacheTTL,
		breaker:   breaker,
		logger:    logger,
	}
}

// Generate returns a cached completion when one exists, otherwise calls the
// wrapped generator through the breaker and caches non-empty replies.
func (r *ResilientGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	key := ExplanationKey(r.generator.Name(), prompt)

	if r.cache != nil {
		text, found, err := r.cache.Get(ctx, key)
		if err != nil {
			r.logger.WithError(err).Debug("Explanation cache lookup failed")
		} else if found {
			return text, nil
		}
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.generator.Generate(ctx, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %s circuit %s", ErrProviderUnavailable, r.generator.Name(), r.breaker.State())
		}
		return "", err
	}

	text := result.(string)
	if r.cache != nil && text != "" {
		if err := r.cache.Set(ctx, key, text, r.cacheTTL); err != nil {
			r.logger.WithError(err).Warn("Failed to cache explanation")
		}
	}
	return text, nil
}

// Name returns the wrapped provider name
func (r *ResilientGenerator) Name() string {
	return r.generator.Name()
}

// State reports the breaker state for health checks
func (r *ResilientGenerator) State() gobreaker.State {
	return r.breaker.State()
}
