package usecase

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"webpilot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDriver is a scriptable in-memory domain.Driver. Probes and readback
// values are keyed by selector expression; unlisted selectors match nothing.
type fakeDriver struct {
	mu sync.Mutex

	probes    map[string]domain.ElementProbe
	probeErrs map[string]error
	values    map[string]string

	location   string
	readyState string
	snapshot   *domain.PageSnapshot

	navigateErr error
	openTabErr  error

	// redirectTo, when set, makes any navigation land on this address
	// instead of the requested one.
	redirectTo string

	focusTypeErr   error
	setValueErr    error
	keyTypeErr     error
	clickNativeErr error
	clickJSErr     error
	clickEventsErr error
	pressEnterErr  error
	submitFormErr  error

	// onPressEnter lets tests simulate a page change caused by submitting.
	onPressEnter func()
	// garbleFocusType makes FocusType report success while landing the
	// wrong content, so readback verification fails.
	garbleFocusType bool

	calls []string
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		probes:     make(map[string]domain.ElementProbe),
		probeErrs:  make(map[string]error),
		values:     make(map[string]string),
		readyState: "complete",
	}
}

func (d *fakeDriver) addElement(expr string) {
	d.probes[expr] = domain.ElementProbe{Count: 1, Visible: true, Enabled: true}
}

func (d *fakeDriver) record(call string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, call)
}

func (d *fakeDriver) Navigate(_ context.Context, url string) error {
	d.record("navigate:" + url)
	if d.navigateErr != nil {
		return d.navigateErr
	}
	d.mu.Lock()
	if d.redirectTo != "" {
		d.location = d.redirectTo
	} else {
		d.location = url
	}
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Location(context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.location, nil
}

func (d *fakeDriver) Title(context.Context) (string, error)      { return "fake page", nil }
func (d *fakeDriver) ReadyState(context.Context) (string, error) { return d.readyState, nil }

func (d *fakeDriver) Probe(_ context.Context, sel domain.Selector) (domain.ElementProbe, error) {
	d.record("probe:" + sel.Expr)
	if err := d.probeErrs[sel.Expr]; err != nil {
		return domain.ElementProbe{}, err
	}
	return d.probes[sel.Expr], nil
}

func (d *fakeDriver) FocusType(_ context.Context, sel domain.Selector, text string) error {
	d.record("focustype:" + sel.Expr)
	if d.focusTypeErr != nil {
		return d.focusTypeErr
	}
	d.mu.Lock()
	if d.garbleFocusType {
		d.values[sel.Expr] = text + "~"
	} else {
		d.values[sel.Expr] = text
	}
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) SetValueJS(_ context.Context, sel domain.Selector, text string) error {
	d.record("setvalue:" + sel.Expr)
	if d.setValueErr != nil {
		return d.setValueErr
	}
	d.mu.Lock()
	d.values[sel.Expr] = text
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) KeyType(_ context.Context, sel domain.Selector, text string) error {
	d.record("keytype:" + sel.Expr)
	if d.keyTypeErr != nil {
		return d.keyTypeErr
	}
	d.mu.Lock()
	d.values[sel.Expr] = text
	d.mu.Unlock()
	return nil
}

func (d *fakeDriver) Value(_ context.Context, sel domain.Selector) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.values[sel.Expr], nil
}

func (d *fakeDriver) ClickNative(_ context.Context, sel domain.Selector) error {
	d.record("clicknative:" + sel.Expr)
	return d.clickNativeErr
}

func (d *fakeDriver) ClickJS(_ context.Context, sel domain.Selector) error {
	d.record("clickjs:" + sel.Expr)
	return d.clickJSErr
}

func (d *fakeDriver) ClickEvents(_ context.Context, sel domain.Selector) error {
	d.record("clickevents:" + sel.Expr)
	return d.clickEventsErr
}

func (d *fakeDriver) PressEnter(_ context.Context, sel domain.Selector) error {
	d.record("pressenter:" + sel.Expr)
	if d.pressEnterErr != nil {
		return d.pressEnterErr
	}
	if d.onPressEnter != nil {
		d.onPressEnter()
	}
	return nil
}

func (d *fakeDriver) SubmitForm(_ context.Context, sel domain.Selector) error {
	d.record("submitform:" + sel.Expr)
	return d.submitFormErr
}

func (d *fakeDriver) Tabs(context.Context) ([]domain.TabInfo, error) {
	return []domain.TabInfo{{TargetID: "tab-1", URL: d.location, Active: true}}, nil
}

func (d *fakeDriver) OpenTab(_ context.Context, url string) (string, error) {
	d.record("opentab:" + url)
	if d.openTabErr != nil {
		return "", d.openTabErr
	}
	d.mu.Lock()
	d.location = url
	d.mu.Unlock()
	return "tab-2", nil
}

func (d *fakeDriver) FocusTab(_ context.Context, targetID string) error {
	d.record("focustab:" + targetID)
	return nil
}

func (d *fakeDriver) Snapshot(context.Context) (*domain.PageSnapshot, error) {
	if d.snapshot != nil {
		return d.snapshot, nil
	}
	return &domain.PageSnapshot{URL: d.location}, nil
}

func (d *fakeDriver) Close() error { return nil }

// fakeProcess is a scriptable domain.BrowserProcess.
type fakeProcess struct {
	readyErr error
	status   domain.ProcessStatus
}

func (p *fakeProcess) EnsureReady(context.Context) error { return p.readyErr }
func (p *fakeProcess) Status(context.Context) (domain.ProcessStatus, error) {
	return p.status, nil
}

// fakeUI scripts the operator dialogue. Prompts pop answers in order;
// chooseFn picks among options.
type fakeUI struct {
	mu       sync.Mutex
	answers  []string
	chooseFn func(text string, options []string) int
	notices  []string
	prompts  []string
}

func (u *fakeUI) Prompt(_ context.Context, text string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompts = append(u.prompts, text)
	if len(u.answers) == 0 {
		return "", fmt.Errorf("unexpected prompt: %s", text)
	}
	answer := u.answers[0]
	u.answers = u.answers[1:]
	return answer, nil
}

func (u *fakeUI) Choose(_ context.Context, text string, options []string) (int, error) {
	if u.chooseFn == nil {
		return 0, fmt.Errorf("unexpected choose: %s", text)
	}
	return u.chooseFn(text, options), nil
}

func (u *fakeUI) Notify(text string, _ domain.Severity) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.notices = append(u.notices, text)
}

// fakeModel returns scripted proposals.
type fakeModel struct {
	actions []domain.ProposedAction
	err     error
}

func (m *fakeModel) Decide(context.Context, domain.PageSnapshot, string) ([]domain.ProposedAction, error) {
	return m.actions, m.err
}

func (m *fakeModel) Name() string { return "fake" }

// memStore records saved runs in memory.
type memStore struct {
	mu   sync.Mutex
	runs []domain.TaskRun
}

func (s *memStore) SaveRun(_ context.Context, run domain.TaskRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *memStore) GetRun(_ context.Context, id string) (*domain.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.runs {
		if s.runs[i].ID == id {
			return &s.runs[i], nil
		}
	}
	return nil, domain.ErrRunNotFound
}

func (s *memStore) ListRuns(_ context.Context, limit int) ([]domain.TaskRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.runs) {
		limit = len(s.runs)
	}
	return s.runs[:limit], nil
}

// located is a LocatedElement shortcut for interactor tests.
func located(name, expr string) domain.LocatedElement {
	return domain.LocatedElement{Name: name, Selector: domain.CSS(expr), FoundAt: time.Now()}
}
