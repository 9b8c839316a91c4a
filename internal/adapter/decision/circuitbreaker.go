package decision

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"webpilot/internal/domain"
	"webpilot/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerModel wraps a DecisionModel with circuit breaker protection.
// When the wrapped model fails repeatedly, the circuit opens and subsequent
// calls fail fast without reaching the model, preventing retry storms.
type CircuitBreakerModel struct {
	inner   domain.DecisionModel
	breaker *gobreaker.CircuitBreaker[[]domain.ProposedAction]
	logger  *slog.Logger
}

// NewCircuitBreakerModel wraps inner with a circuit breaker.
// Zero-valued cfg fields fall back to defaults.
func NewCircuitBreakerModel(inner domain.DecisionModel, cfg config.BreakerConfig, logger *slog.Logger) *CircuitBreakerModel {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	name := inner.Name()
	cb := gobreaker.NewCircuitBreaker[[]domain.ProposedAction](gobreaker.Settings{
		Name:        "decision:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &CircuitBreakerModel{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Decide implements domain.DecisionModel. Calls route through the breaker.
func (m *CircuitBreakerModel) Decide(ctx context.Context, snapshot domain.PageSnapshot, goal string) ([]domain.ProposedAction, error) {
	actions, err := m.breaker.Execute(func() ([]domain.ProposedAction, error) {
		return m.inner.Decide(ctx, snapshot, goal)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, fmt.Errorf("model %q circuit open: %w", m.inner.Name(), err)
		}
		return nil, err
	}
	return actions, nil
}

// Name implements domain.DecisionModel.
func (m *CircuitBreakerModel) Name() string { return m.inner.Name() }

// State returns the current circuit breaker state for monitoring.
func (m *CircuitBreakerModel) State() gobreaker.State {
	return m.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (m *CircuitBreakerModel) Counts() gobreaker.Counts {
	return m.breaker.Counts()
}

// Compile-time interface check.
var _ domain.DecisionModel = (*CircuitBreakerModel)(nil)
