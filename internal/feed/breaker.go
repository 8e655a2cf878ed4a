package feed

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/onnwee/citypulse/internal/item"
)

// Dependency names, used for breakers, metrics and logs.
const (
	DepCandidates  = "candidates"
	DepPreferences = "preferences"
	DepConstraints = "constraints"
	DepHistory     = "history"
	DepFeedback    = "feedback"
	DepViews       = "views"
)

// BreakerConfig tunes the per-dependency circuit breakers.
type BreakerConfig struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint32
	// Timeout is how long an open breaker rejects calls before probing.
	Timeout time.Duration
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
}

// DefaultBreakerConfig returns the breaker defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, Timeout: 30 * time.Second, MaxRequests: 1}
}

type breakers map[string]*gobreaker.CircuitBreaker[any]

func newBreakers(cfg BreakerConfig, logger *slog.Logger) breakers {
	b := make(breakers)
	for _, name := range []string{DepCandidates, DepPreferences, DepConstraints, DepHistory, DepFeedback, DepViews} {
		b[name] = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.MaxRequests,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.FailureThreshold
			},
			IsSuccessful: breakerSuccess,
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("repository circuit breaker changed state",
					slog.String("dependency", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		})
	}
	return b
}

// breakerSuccess keeps lookups of missing items and caller cancellations
// from counting against a dependency.
func breakerSuccess(err error) bool {
	return err == nil || errors.Is(err, item.ErrNotFound) || errors.Is(err, context.Canceled)
}

// guarded runs fn behind the named breaker.
func guarded[T any](b breakers, name string, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b[name].Execute(func() (any, error) {
		return fn()
	})
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, nil
	}
	return out.(T), nil
}

// State reports the named breaker's state for health output.
func (b breakers) State(name string) string {
	if cb, ok := b[name]; ok {
		return cb.State().String()
	}
	return ""
}
