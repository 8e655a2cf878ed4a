package health

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// BreakerStateSource reports circuit breaker states by dependency name.
type BreakerStateSource interface {
	BreakerStates() map[string]string
}

// BreakerChecker fails while any of the watched breakers is open. A
// half-open breaker counts as healthy since it is already probing.
type BreakerChecker struct {
	source BreakerStateSource
}

// NewBreakerChecker creates a checker over source.
func NewBreakerChecker(source BreakerStateSource) *BreakerChecker {
	return &BreakerChecker{source: source}
}

// HealthCheck returns an error naming every open breaker.
func (b *BreakerChecker) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var open []string
	for name, state := range b.source.BreakerStates() {
		if state == "open" {
			open = append(open, name)
		}
	}
	if len(open) == 0 {
		return nil
	}
	sort.Strings(open)
	return fmt.Errorf("circuit open for %s", strings.Join(open, ", "))
}
