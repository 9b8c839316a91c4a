package usecase

import (
	"context"

	"webpilot/internal/domain"
)

// Strategy is one technique in an ordered fallback chain. Run performs the
// technique fully; a nil error means it succeeded and no later strategy is
// tried. Strategies share the uniform signature so the locator, the
// interaction executor, and navigation convergence all iterate the same way.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// TryInOrder runs strategies in priority order, stopping at the first
// success. It returns the winning strategy's result together with the record
// of every attempt made, including the successful one. If all strategies
// fail (or ctx ends first), ok is false and the attempt list holds each
// failure reason in order.
func TryInOrder[T any](ctx context.Context, strategies []Strategy[T]) (result T, attempts []domain.Attempt, ok bool) {
	for _, s := range strategies {
		if err := ctx.Err(); err != nil {
			attempts = append(attempts, domain.Attempt{Technique: s.Name, Error: err.Error()})
			return result, attempts, false
		}

		v, err := s.Run(ctx)
		if err != nil {
			attempts = append(attempts, domain.Attempt{Technique: s.Name, Error: err.Error()})
			continue
		}
		attempts = append(attempts, domain.Attempt{Technique: s.Name, OK: true})
		return v, attempts, true
	}
	return result, attempts, false
}
