package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"webpilot/internal/domain"
)

// ChromeConfig holds configuration for the chromedp driver.
type ChromeConfig struct {
	// DebugURL is the DevTools endpoint of the already-running browser
	// (e.g. "http://127.0.0.1:9222"). The driver never launches a browser.
	DebugURL string
	// Timeout is the per-action timeout.
	Timeout time.Duration
}

// cdpTab holds a chromedp tab context and its cancel function.
type cdpTab struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// ChromeDriver implements domain.Driver over CDP against a browser session
// it attaches to but does not own. Detaching leaves every tab as it was.
type ChromeDriver struct {
	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	activeID      string             // target ID of the active tab
	tabs          map[string]*cdpTab // all attached tabs
	timeout       time.Duration
	logger        *slog.Logger
}

// activeTab returns the active tab's context. Caller must hold mu.
func (d *ChromeDriver) activeTab() *cdpTab {
	return d.tabs[d.activeID]
}

// withTimeout creates a timeout-derived context from the active tab context.
// Caller must hold mu.
func (d *ChromeDriver) withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.activeTab().ctx, d.timeout)
}

// NewChromeDriver attaches to the running browser at cfg.DebugURL. It adopts
// the currently active page target, or creates a blank one when the browser
// has no pages open.
func NewChromeDriver(cfg ChromeConfig, logger *slog.Logger) (*ChromeDriver, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	d := &ChromeDriver{
		tabs:    make(map[string]*cdpTab),
		timeout: cfg.Timeout,
		logger:  logger,
	}

	var allocCtx context.Context
	allocCtx, d.allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.DebugURL)
	d.browserCtx, d.browserCancel = chromedp.NewContext(allocCtx)
	logger.Info("chromedp attaching to browser", "url", cfg.DebugURL)

	targets, err := chromedp.Targets(d.browserCtx)
	if err != nil {
		d.Close()
		return nil, domain.NewDomainError("browser.attach", domain.ErrBrowserUnavailable, err.Error())
	}

	var adoptID target.ID
	for _, t := range targets {
		if t.Type == "page" {
			adoptID = t.TargetID
			if t.Attached {
				break
			}
		}
	}
	if adoptID == "" {
		if err := chromedp.Run(d.browserCtx,
			chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				adoptID, err = target.CreateTarget("about:blank").Do(ctx)
				return err
			}),
		); err != nil {
			d.Close()
			return nil, domain.NewDomainError("browser.attach", domain.ErrBrowserUnavailable, err.Error())
		}
	}

	tabCtx, tabCancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(adoptID))

	// Attach by running an empty action. The tab context must not be wrapped
	// in context.WithTimeout here: chromedp binds the CDP session to the
	// context of the first Run, and canceling a derived context would kill
	// the session immediately.
	attachDone := make(chan error, 1)
	go func() { attachDone <- chromedp.Run(tabCtx) }()
	select {
	case err := <-attachDone:
		if err != nil {
			tabCancel()
			d.Close()
			return nil, domain.NewDomainError("browser.attach", domain.ErrBrowserUnavailable, err.Error())
		}
	case <-time.After(cfg.Timeout):
		tabCancel()
		d.Close()
		return nil, domain.NewDomainError("browser.attach", domain.ErrBrowserUnavailable,
			fmt.Sprintf("timed out after %v", cfg.Timeout))
	}

	id := string(adoptID)
	d.tabs[id] = &cdpTab{ctx: tabCtx, cancel: tabCancel}
	d.activeID = id

	logger.Info("chromedp attached", "target_id", id)
	return d, nil
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	return chromedp.Run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (d *ChromeDriver) Location(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	var url string
	if err := chromedp.Run(tctx, chromedp.Location(&url)); err != nil {
		return "", domain.WrapOp("browser.location", err)
	}
	return url, nil
}

func (d *ChromeDriver) Title(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	var title string
	if err := chromedp.Run(tctx, chromedp.Title(&title)); err != nil {
		return "", domain.WrapOp("browser.title", err)
	}
	return title, nil
}

func (d *ChromeDriver) ReadyState(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	var state string
	if err := chromedp.Run(tctx, chromedp.Evaluate("document.readyState", &state)); err != nil {
		return "", domain.WrapOp("browser.readystate", err)
	}
	return state, nil
}

func (d *ChromeDriver) Probe(ctx context.Context, sel domain.Selector) (domain.ElementProbe, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	var raw string
	if err := chromedp.Run(tctx, chromedp.Evaluate(probeJS(sel), &raw)); err != nil {
		return domain.ElementProbe{}, domain.WrapOp("browser.probe", err)
	}
	var probe domain.ElementProbe
	if err := json.Unmarshal([]byte(raw), &probe); err != nil {
		return domain.ElementProbe{}, fmt.Errorf("browser.probe: decode %q: %w", raw, err)
	}
	return probe, nil
}

func (d *ChromeDriver) FocusType(ctx context.Context, sel domain.Selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	opt := queryOpt(sel)
	return chromedp.Run(tctx,
		chromedp.WaitVisible(sel.Expr, opt),
		chromedp.Focus(sel.Expr, opt),
		chromedp.Clear(sel.Expr, opt),
		chromedp.SendKeys(sel.Expr, text, opt),
	)
}

func (d *ChromeDriver) SetValueJS(ctx context.Context, sel domain.Selector, text string) error {
	return d.evalStatus(ctx, "browser.setvalue", setValueJS(sel, text))
}

func (d *ChromeDriver) KeyType(ctx context.Context, sel domain.Selector, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	opt := queryOpt(sel)
	return chromedp.Run(tctx,
		chromedp.WaitVisible(sel.Expr, opt),
		chromedp.Click(sel.Expr, opt),
		chromedp.KeyEvent(text),
	)
}

func (d *ChromeDriver) Value(ctx context.Context, sel domain.Selector) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	var value string
	if err := chromedp.Run(tctx, chromedp.Evaluate(valueJS(sel), &value)); err != nil {
		return "", domain.WrapOp("browser.value", err)
	}
	return value, nil
}

func (d *ChromeDriver) ClickNative(ctx context.Context, sel domain.Selector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	opt := queryOpt(sel)
	return chromedp.Run(tctx,
		chromedp.WaitVisible(sel.Expr, opt),
		chromedp.Click(sel.Expr, opt),
	)
}

func (d *ChromeDriver) ClickJS(ctx context.Context, sel domain.Selector) error {
	return d.evalStatus(ctx, "browser.clickjs", clickJS(sel))
}

func (d *ChromeDriver) ClickEvents(ctx context.Context, sel domain.Selector) error {
	return d.evalStatus(ctx, "browser.clickevents", mouseEventsJS(sel))
}

func (d *ChromeDriver) PressEnter(ctx context.Context, sel domain.Selector) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	return chromedp.Run(tctx, chromedp.SendKeys(sel.Expr, kb.Enter, queryOpt(sel)))
}

func (d *ChromeDriver) SubmitForm(ctx context.Context, sel domain.Selector) error {
	return d.evalStatus(ctx, "browser.submitform", submitFormJS(sel))
}

func (d *ChromeDriver) Tabs(ctx context.Context) ([]domain.TabInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	targets, err := chromedp.Targets(d.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("browser.tabs: %w", err)
	}

	var tabs []domain.TabInfo
	for _, t := range targets {
		if t.Type != "page" {
			continue
		}
		tabs = append(tabs, domain.TabInfo{
			TargetID: string(t.TargetID),
			Title:    t.Title,
			URL:      t.URL,
			Active:   string(t.TargetID) == d.activeID,
		})
	}
	return tabs, nil
}

func (d *ChromeDriver) OpenTab(ctx context.Context, url string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if url == "" {
		url = "about:blank"
	}

	// Explicitly create a new browser target via CDP, then attach a context.
	// Using target.CreateTarget guarantees a new tab (chromedp.NewContext
	// without WithTargetID may reuse an existing blank target).
	var newTargetID target.ID
	if err := chromedp.Run(d.browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			newTargetID, err = target.CreateTarget(url).Do(ctx)
			return err
		}),
	); err != nil {
		return "", fmt.Errorf("browser.opentab: %w", err)
	}

	newCtx, newCancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(newTargetID))
	if err := chromedp.Run(newCtx); err != nil {
		newCancel()
		return "", fmt.Errorf("browser.opentab attach: %w", err)
	}

	newID := string(newTargetID)
	d.tabs[newID] = &cdpTab{ctx: newCtx, cancel: newCancel}
	d.activeID = newID

	d.logger.Debug("opened tab", "target_id", newID, "url", url)
	return newID, nil
}

func (d *ChromeDriver) FocusTab(ctx context.Context, targetID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.tabs[targetID]; !ok {
		// A tab the session has not touched yet; attach to it first.
		newCtx, newCancel := chromedp.NewContext(d.browserCtx, chromedp.WithTargetID(target.ID(targetID)))
		if err := chromedp.Run(newCtx); err != nil {
			newCancel()
			return fmt.Errorf("browser.focustab attach: %w", err)
		}
		d.tabs[targetID] = &cdpTab{ctx: newCtx, cancel: newCancel}
	}

	d.activeID = targetID

	// Activate the target in the browser UI.
	return chromedp.Run(d.browserCtx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			return target.ActivateTarget(target.ID(targetID)).Do(ctx)
		}),
	)
}

func (d *ChromeDriver) Snapshot(ctx context.Context) (*domain.PageSnapshot, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	var raw string
	if err := chromedp.Run(tctx, chromedp.Evaluate(snapshotJS, &raw)); err != nil {
		return nil, domain.WrapOp("browser.snapshot", err)
	}
	var snap domain.PageSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// Fallback: keep the raw text so the model still sees something.
		snap.VisibleText = raw
	}
	return &snap, nil
}

// Close detaches from the browser. Tabs, including those this session
// opened, are left as they are; attached contexts only release their CDP
// sessions.
func (d *ChromeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, tab := range d.tabs {
		tab.cancel()
	}
	d.tabs = nil
	if d.browserCancel != nil {
		d.browserCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.logger.Info("chromedp detached")
	return nil
}

// evalStatus runs a status-returning JS snippet and maps its outcome to an
// error. The snippets return 'ok', 'missing', or 'noform'.
func (d *ChromeDriver) evalStatus(ctx context.Context, op, script string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	tctx, cancel := d.withTimeout()
	defer cancel()

	var status string
	if err := chromedp.Run(tctx, chromedp.Evaluate(script, &status)); err != nil {
		return domain.WrapOp(op, err)
	}
	switch status {
	case "ok":
		return nil
	case "missing":
		return domain.NewDomainError(op, domain.ErrElementNotFound, "element vanished")
	case "noform":
		return domain.NewDomainError(op, domain.ErrInteractionFailed, "no enclosing form")
	default:
		return domain.NewDomainError(op, domain.ErrInteractionFailed, status)
	}
}

// queryOpt maps a selector kind to the chromedp query option.
func queryOpt(sel domain.Selector) chromedp.QueryOption {
	if sel.Kind == domain.SelectorXPath {
		return chromedp.BySearch
	}
	return chromedp.ByQuery
}
