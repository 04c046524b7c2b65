package medicalrecord

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Checker is the lookup the reversion guard depends on.
type Checker interface {
	HasRecord(ctx context.Context, appointmentID uuid.UUID) (bool, error)
}

type BreakerSettings struct {
	MaxFailures uint32
	Timeout     time.Duration
}

// BreakerChecker fails fast while the records store is unhealthy. An open
// breaker is reported as an error, never as "no record".
type BreakerChecker struct {
	next Checker
	cb   *gobreaker.CircuitBreaker[bool]
}

func NewBreakerChecker(next Checker, s BreakerSettings, log zerolog.Logger) *BreakerChecker {
	if s.MaxFailures == 0 {
		s.MaxFailures = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}

	cb := gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        "medical-records",
		MaxRequests: 1,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	return &BreakerChecker{next: next, cb: cb}
}

func (b *BreakerChecker) HasRecord(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	has, err := b.cb.Execute(func() (bool, error) {
		return b.next.HasRecord(ctx, appointmentID)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false, fmt.Errorf("%w: %v", ErrCheckerUnavailable, err)
	}
	return has, err
}

func (b *BreakerChecker) State() gobreaker.State {
	return b.cb.State()
}
