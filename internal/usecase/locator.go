package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"webpilot/internal/domain"
)

// locatorPollInterval is the pause between full candidate sweeps while the
// locate timeout has not elapsed. Pages render asynchronously; an element
// absent on the first sweep often exists on the second.
const locatorPollInterval = 500 * time.Millisecond

// Locator finds a visible, interactable element among an ordered list of
// candidate selectors. The first candidate with a usable match wins; later
// candidates are not tried.
type Locator struct {
	driver domain.Driver
	logger *slog.Logger
}

// NewLocator creates a Locator bound to a browser session.
func NewLocator(driver domain.Driver, logger *slog.Logger) *Locator {
	return &Locator{driver: driver, logger: logger}
}

// NotFoundError reports an exhausted candidate list. It carries every
// selector tried so recovery prompts can show the operator what failed.
type NotFoundError struct {
	Name  string
	Tried []domain.Selector
}

func (e *NotFoundError) Error() string {
	exprs := make([]string, len(e.Tried))
	for i, s := range e.Tried {
		exprs[i] = s.Expr
	}
	return fmt.Sprintf("%s: tried %d candidates (%s)", e.Name, len(e.Tried), strings.Join(exprs, ", "))
}

func (e *NotFoundError) Unwrap() error { return domain.ErrElementNotFound }

// Locate searches candidates in priority order until one yields a visible,
// enabled match or the timeout elapses. A candidate whose query errors
// (malformed selector, mid-render page) counts as a non-match and the search
// continues; query errors never propagate. Candidate lists may mix CSS and
// structural-path selectors freely; order alone decides priority.
func (l *Locator) Locate(ctx context.Context, candidates []domain.Selector, name string, timeout time.Duration) (domain.LocatedElement, error) {
	var zero domain.LocatedElement
	if len(candidates) == 0 {
		return zero, domain.NewDomainError("Locator.Locate", domain.ErrElementNotFound, "empty candidate list for "+name)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		strategies := make([]Strategy[domain.LocatedElement], len(candidates))
		for i, sel := range candidates {
			sel := sel
			strategies[i] = Strategy[domain.LocatedElement]{
				Name: string(sel.Kind) + ":" + sel.Expr,
				Run: func(ctx context.Context) (domain.LocatedElement, error) {
					probe, err := l.driver.Probe(ctx, sel)
					if err != nil {
						// Treat as a non-match, not a failure of the search.
						return domain.LocatedElement{}, fmt.Errorf("probe: %w", err)
					}
					if !probe.Usable() {
						return domain.LocatedElement{}, fmt.Errorf("no visible enabled match (count=%d)", probe.Count)
					}
					return domain.LocatedElement{
						Name:     name,
						Selector: sel,
						FoundAt:  time.Now(),
					}, nil
				},
			}
		}

		el, attempts, ok := TryInOrder(ctx, strategies)
		if ok {
			l.logger.Debug("element located",
				"name", name,
				"selector", el.Selector.Expr,
				"kind", el.Selector.Kind,
				"candidates_tried", len(attempts))
			return el, nil
		}

		select {
		case <-ctx.Done():
			l.logger.Debug("element not found", "name", name, "candidates", len(candidates))
			return zero, &NotFoundError{Name: name, Tried: candidates}
		case <-time.After(locatorPollInterval):
		}
	}
}
