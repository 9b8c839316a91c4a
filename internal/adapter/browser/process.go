package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"webpilot/internal/domain"
)

// DevToolsProcess implements domain.BrowserProcess by probing the DevTools
// HTTP endpoint of an externally managed browser. It never starts or stops
// the browser; an unreachable endpoint is reported, not repaired.
type DevToolsProcess struct {
	debugURL string
	client   *http.Client
	logger   *slog.Logger
}

// NewDevToolsProcess creates a process probe for the browser behind
// debugURL (e.g. "http://127.0.0.1:9222").
func NewDevToolsProcess(debugURL string, logger *slog.Logger) *DevToolsProcess {
	return &DevToolsProcess{
		debugURL: debugURL,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   logger,
	}
}

// versionInfo is the /json/version payload; only presence matters here.
type versionInfo struct {
	Browser              string `json:"Browser"`
	WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
}

// pageTarget is one entry of the /json/list payload.
type pageTarget struct {
	Type string `json:"type"`
}

// EnsureReady verifies a debuggable browser answers on the DevTools port.
func (p *DevToolsProcess) EnsureReady(ctx context.Context) error {
	var info versionInfo
	if err := p.get(ctx, "/json/version", &info); err != nil {
		return domain.NewDomainError("process.ensure", domain.ErrBrowserUnavailable,
			fmt.Sprintf("no debuggable browser at %s: %v (start it with --remote-debugging-port)", p.debugURL, err))
	}
	p.logger.Debug("browser ready", "browser", info.Browser)
	return nil
}

// Status reports whether the browser answers and how many pages it has open.
func (p *DevToolsProcess) Status(ctx context.Context) (domain.ProcessStatus, error) {
	var status domain.ProcessStatus

	var info versionInfo
	if err := p.get(ctx, "/json/version", &info); err != nil {
		return status, nil
	}
	status.Running = true
	status.Debuggable = info.WebSocketDebuggerURL != ""

	var targets []pageTarget
	if err := p.get(ctx, "/json/list", &targets); err != nil {
		return status, nil
	}
	for _, t := range targets {
		if t.Type == "page" {
			status.TabCount++
		}
	}
	return status, nil
}

func (p *DevToolsProcess) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.debugURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("devtools %s: status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
