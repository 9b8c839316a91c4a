package domain

import (
	"context"
	"time"
)

// SelectorKind distinguishes the two selector languages a candidate list
// may mix. Order in the list is priority order regardless of kind.
type SelectorKind string

const (
	// SelectorCSS is a flat attribute-style query ("input[name='q']").
	SelectorCSS SelectorKind = "css"
	// SelectorXPath is a hierarchical structural path ("//input[@type='text']").
	SelectorXPath SelectorKind = "xpath"
)

// Selector is one way of locating a page element.
type Selector struct {
	Kind SelectorKind `json:"kind" yaml:"kind"`
	Expr string       `json:"expr" yaml:"expr"`
}

// CSS builds a CSS selector candidate.
func CSS(expr string) Selector { return Selector{Kind: SelectorCSS, Expr: expr} }

// XPath builds a structural-path selector candidate.
func XPath(expr string) Selector { return Selector{Kind: SelectorXPath, Expr: expr} }

// ElementProbe reports what a selector query found on the current page.
// Visible means non-zero rendered size and not display-suppressed; an element
// covered or hidden by another counts as not visible even if attached.
type ElementProbe struct {
	Count   int  `json:"count"`   // matches on the page
	Visible bool `json:"visible"` // at least one match is rendered
	Enabled bool `json:"enabled"` // the first visible match is interactable
}

// Usable reports whether the probe found a visible, interactable match.
func (p ElementProbe) Usable() bool { return p.Count > 0 && p.Visible && p.Enabled }

// LocatedElement is a handle to a page element: the selector that found it
// plus the time it was found. Handles are owned by the step that located them
// and are invalidated by any navigation.
type LocatedElement struct {
	Name     string    // human-readable element name ("search box")
	Selector Selector  // the candidate that matched
	FoundAt  time.Time // when the match was observed
}

// TabInfo holds information about a browser tab.
type TabInfo struct {
	TargetID string `json:"target_id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Active   bool   `json:"active"`
}

// ElementSummary describes one interactable element for the decision model.
type ElementSummary struct {
	Tag      string `json:"tag"`
	Text     string `json:"text,omitempty"`
	Selector string `json:"selector"`
	Kind     string `json:"kind,omitempty"` // button, input, link, editable
}

// PageSnapshot is the page view handed to the decision model.
type PageSnapshot struct {
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	VisibleText string           `json:"visible_text"`
	Elements    []ElementSummary `json:"elements,omitempty"`
}

// Driver is the explicit browser session handle passed to every component.
// One Driver wraps one remote-controlled browser session; there is no ambient
// shared driver. All blocking operations honor the context.
type Driver interface {
	// Navigate loads a URL in the active tab and waits for the body to exist.
	Navigate(ctx context.Context, url string) error
	// Location returns the active tab's current address.
	Location(ctx context.Context) (string, error)
	// Title returns the active tab's document title.
	Title(ctx context.Context) (string, error)
	// ReadyState returns the active tab's document.readyState value.
	ReadyState(ctx context.Context) (string, error)

	// Probe queries the selector and reports match count and visibility.
	// Malformed selectors return an error; callers treat that as a non-match.
	Probe(ctx context.Context, sel Selector) (ElementProbe, error)

	// FocusType focuses the element, clears it, and types with native keys.
	FocusType(ctx context.Context, sel Selector, text string) error
	// SetValueJS assigns the value programmatically and dispatches a
	// synthetic input event so framework listeners observe the change.
	SetValueJS(ctx context.Context, sel Selector, text string) error
	// KeyType clicks into the element and replays text as raw key events.
	KeyType(ctx context.Context, sel Selector, text string) error
	// Value reads the element's current value or text content back.
	Value(ctx context.Context, sel Selector) (string, error)

	// ClickNative clicks the element with a CDP mouse press at its center.
	ClickNative(ctx context.Context, sel Selector) error
	// ClickJS invokes the element's click() method.
	ClickJS(ctx context.Context, sel Selector) error
	// ClickEvents dispatches a mousedown/mouseup/click event sequence.
	ClickEvents(ctx context.Context, sel Selector) error

	// PressEnter sends an Enter keystroke to the element.
	PressEnter(ctx context.Context, sel Selector) error
	// SubmitForm submits the form enclosing the element.
	SubmitForm(ctx context.Context, sel Selector) error

	// Tabs lists open page targets.
	Tabs(ctx context.Context) ([]TabInfo, error)
	// OpenTab opens a new tab, optionally at a URL, and makes it active.
	OpenTab(ctx context.Context, url string) (string, error)
	// FocusTab switches the active tab.
	FocusTab(ctx context.Context, targetID string) error

	// Snapshot captures the current page for the decision model.
	Snapshot(ctx context.Context) (*PageSnapshot, error)

	// Close detaches from the browser. It never closes tabs or windows the
	// session did not open itself.
	Close() error
}

// ProcessStatus reports the health of the external browser process.
type ProcessStatus struct {
	Running    bool `json:"running"`
	Debuggable bool `json:"debuggable"`
	TabCount   int  `json:"tab_count"`
}

// BrowserProcess is the external browser lifecycle collaborator. The engine
// never starts or stops the browser itself; it only checks readiness.
type BrowserProcess interface {
	// EnsureReady verifies a debuggable browser is reachable. A failure is
	// fatal for the task.
	EnsureReady(ctx context.Context) error
	// Status reports process health.
	Status(ctx context.Context) (ProcessStatus, error)
}

// Severity classifies operator notifications.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// UserInterface is the operator I/O collaborator. The orchestration core
// never reads the terminal directly; any medium implementing this port works.
type UserInterface interface {
	// Prompt blocks for a free-text operator response.
	Prompt(ctx context.Context, text string) (string, error)
	// Choose blocks for a selection among options, returning its index.
	Choose(ctx context.Context, text string, options []string) (int, error)
	// Notify displays a message without blocking task flow.
	Notify(text string, severity Severity)
}
