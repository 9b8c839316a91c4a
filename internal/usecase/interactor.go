package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"webpilot/internal/domain"
)

// sendButtonCandidates are the selectors tried when submitting via a visible
// send/submit control. Ordered most-specific first.
var sendButtonCandidates = []domain.Selector{
	domain.CSS("button[aria-label*='Send']"),
	domain.CSS("[data-testid='send-button']"),
	domain.CSS(".btn-send"),
	domain.CSS(".send-button"),
	domain.CSS("button[type='submit']"),
	domain.XPath("//button[contains(., 'Send')]"),
}

// InteractionError reports that every technique for a requested effect
// failed, carrying the ordered per-technique failure reasons.
type InteractionError struct {
	Effect   domain.InteractionEffect
	Element  string
	Attempts []domain.Attempt
}

func (e *InteractionError) Error() string {
	return fmt.Sprintf("%s on %s: all %d techniques failed", e.Effect, e.Element, len(e.Attempts))
}

func (e *InteractionError) Unwrap() error { return domain.ErrInteractionFailed }

// Interactor applies an intended effect to a located element, trying a fixed
// order of techniques until one succeeds. Target pages implement input in
// incompatible ways (native controls, contenteditable regions, custom
// widgets), so no single technique is reliable; the executor degrades through
// the chain instead of failing on the first miss.
//
// Techniques may leave partial effects behind (half-typed text, a stray
// click). Nothing is rolled back: callers confirm the final page state with a
// verify step rather than assuming atomicity.
type Interactor struct {
	driver domain.Driver
	logger *slog.Logger
}

// NewInteractor creates an Interactor bound to a browser session.
func NewInteractor(driver domain.Driver, logger *slog.Logger) *Interactor {
	return &Interactor{driver: driver, logger: logger}
}

// TypeInto writes text into the element, trying in order: direct
// focus+clear+keys, programmatic value assignment with a synthetic input
// event, then raw per-key events. A technique only counts as successful when
// the element's content reads back equal to the requested text; completing
// without error but leaving garbled content moves on to the next technique.
// On success the attempt list ends with the winning technique.
func (x *Interactor) TypeInto(ctx context.Context, el domain.LocatedElement, text string) ([]domain.Attempt, error) {
	sel := el.Selector

	verify := func(ctx context.Context) error {
		got, err := x.driver.Value(ctx, sel)
		if err != nil {
			return fmt.Errorf("readback: %w", err)
		}
		// Contenteditable surfaces pad the readback with trailing
		// newlines and non-breaking spaces the operator never typed, so
		// the comparison ignores surrounding whitespace. The typed core
		// must still match exactly.
		if strings.TrimSpace(got) != strings.TrimSpace(text) {
			return fmt.Errorf("content mismatch: want %q, got %q", text, got)
		}
		return nil
	}

	strategies := []Strategy[struct{}]{
		{Name: "focus-clear-keys", Run: func(ctx context.Context) (struct{}, error) {
			if err := x.driver.FocusType(ctx, sel, text); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, verify(ctx)
		}},
		{Name: "js-value-input-event", Run: func(ctx context.Context) (struct{}, error) {
			if err := x.driver.SetValueJS(ctx, sel, text); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, verify(ctx)
		}},
		{Name: "raw-key-events", Run: func(ctx context.Context) (struct{}, error) {
			if err := x.driver.KeyType(ctx, sel, text); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, verify(ctx)
		}},
	}

	_, attempts, ok := TryInOrder(ctx, strategies)
	if !ok {
		x.logger.Warn("typing failed", "element", el.Name, "techniques", len(attempts))
		return attempts, &InteractionError{Effect: domain.EffectType, Element: el.Name, Attempts: attempts}
	}
	x.logger.Debug("typed", "element", el.Name, "technique", attempts[len(attempts)-1].Technique, "chars", len(text))
	return attempts, nil
}

// Click activates the element, trying a native CDP mouse click, then the
// element's click() method, then a dispatched mouse event sequence.
func (x *Interactor) Click(ctx context.Context, el domain.LocatedElement) ([]domain.Attempt, error) {
	sel := el.Selector

	strategies := []Strategy[struct{}]{
		{Name: "native-click", Run: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, x.driver.ClickNative(ctx, sel)
		}},
		{Name: "js-click", Run: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, x.driver.ClickJS(ctx, sel)
		}},
		{Name: "dispatched-mouse-events", Run: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, x.driver.ClickEvents(ctx, sel)
		}},
	}

	_, attempts, ok := TryInOrder(ctx, strategies)
	if !ok {
		x.logger.Warn("click failed", "element", el.Name, "techniques", len(attempts))
		return attempts, &InteractionError{Effect: domain.EffectClick, Element: el.Name, Attempts: attempts}
	}
	x.logger.Debug("clicked", "element", el.Name, "technique", attempts[len(attempts)-1].Technique)
	return attempts, nil
}

// Submit commits the element's pending input: Enter keystroke first, then a
// visible send/submit button near the element, then submitting the enclosing
// form directly.
func (x *Interactor) Submit(ctx context.Context, el domain.LocatedElement, locator *Locator) ([]domain.Attempt, error) {
	sel := el.Selector

	strategies := []Strategy[struct{}]{
		{Name: "enter-key", Run: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, x.driver.PressEnter(ctx, sel)
		}},
		{Name: "send-button", Run: func(ctx context.Context) (struct{}, error) {
			btn, err := locator.Locate(ctx, sendButtonCandidates, "send button", locatorPollInterval*2)
			if err != nil {
				return struct{}{}, err
			}
			_, err = x.Click(ctx, btn)
			return struct{}{}, err
		}},
		{Name: "form-submit", Run: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, x.driver.SubmitForm(ctx, sel)
		}},
	}

	_, attempts, ok := TryInOrder(ctx, strategies)
	if !ok {
		x.logger.Warn("submit failed", "element", el.Name, "techniques", len(attempts))
		return attempts, &InteractionError{Effect: domain.EffectSubmit, Element: el.Name, Attempts: attempts}
	}
	x.logger.Debug("submitted", "element", el.Name, "technique", attempts[len(attempts)-1].Technique)
	return attempts, nil
}
