package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"webpilot/internal/domain"
)

// NewTabPolicy controls where a navigation lands.
type NewTabPolicy string

const (
	// TabPreserve opens the target in a fresh tab whenever the current tab
	// holds a real page, so the operator's browsing context survives.
	TabPreserve NewTabPolicy = "preserve"
	// TabReuse always navigates the current tab.
	TabReuse NewTabPolicy = "reuse"
)

// redirectGracePolls is how many ready-state polls a converged-but-foreign
// address is given to redirect before the page is accepted as settled.
const redirectGracePolls = 5

// blankAddresses are placeholder pages safe to navigate away from in place.
var blankAddresses = []string{"about:blank", "data:,", "chrome://new-tab-page", "chrome://newtab"}

// NavigationTimeoutError reports a navigation that never converged, carrying
// the last address observed so recovery can show it to the operator.
type NavigationTimeoutError struct {
	Target   string
	LastSeen string
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation to %s did not converge (last address %s)", e.Target, e.LastSeen)
}

func (e *NavigationTimeoutError) Unwrap() error { return domain.ErrNavigationTimeout }

// Navigator moves the browser to a target address and confirms arrival.
type Navigator struct {
	driver  domain.Driver
	process domain.BrowserProcess
	logger  *slog.Logger

	pollInterval time.Duration
	timeout      time.Duration
}

// NewNavigator creates a Navigator bound to a browser session.
func NewNavigator(driver domain.Driver, process domain.BrowserProcess, pollInterval, timeout time.Duration, logger *slog.Logger) *Navigator {
	return &Navigator{
		driver:       driver,
		process:      process,
		logger:       logger,
		pollInterval: pollInterval,
		timeout:      timeout,
	}
}

// Goto navigates to target and waits for convergence: the resolved address's
// domain matches the target's, or the page reaches a stable ready state after
// the redirect grace period. The browser process is checked first; an
// unreachable process is fatal, not a step failure.
func (n *Navigator) Goto(ctx context.Context, target string, policy NewTabPolicy) error {
	if err := n.process.EnsureReady(ctx); err != nil {
		return domain.NewDomainError("Navigator.Goto", domain.ErrBrowserUnavailable, err.Error())
	}

	target = normalizeURL(target)
	wantDomain, err := domainOf(target)
	if err != nil {
		return domain.NewDomainError("Navigator.Goto", domain.ErrInvalidInput, "bad target address "+target)
	}

	current, err := n.driver.Location(ctx)
	if err != nil {
		current = ""
	}

	if policy == TabPreserve && !isBlankAddress(current) {
		n.logger.Info("opening target in new tab", "target", target, "current", current)
		if _, err := n.driver.OpenTab(ctx, target); err != nil {
			// Fall back to in-place navigation rather than giving up.
			n.logger.Warn("new tab failed, navigating in place", "error", err)
			if err := n.driver.Navigate(ctx, target); err != nil {
				return n.timeoutError(ctx, target)
			}
		}
	} else {
		n.logger.Info("navigating in current tab", "target", target)
		if err := n.driver.Navigate(ctx, target); err != nil {
			return n.timeoutError(ctx, target)
		}
	}

	return n.awaitConvergence(ctx, target, wantDomain)
}

// awaitConvergence polls address and ready state until the target domain is
// reached or the page settles after the redirect grace period.
func (n *Navigator) awaitConvergence(ctx context.Context, target, wantDomain string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	settledPolls := 0
	for {
		loc, err := n.driver.Location(ctx)
		if err == nil {
			gotDomain, derr := domainOf(loc)
			if derr == nil && domainsMatch(gotDomain, wantDomain) {
				n.logger.Info("navigation converged", "target", target, "address", loc)
				return nil
			}

			state, serr := n.driver.ReadyState(ctx)
			if serr == nil && state == "complete" {
				settledPolls++
				// A complete page on a foreign domain may still redirect;
				// accept it only after the grace period.
				if settledPolls > redirectGracePolls {
					n.logger.Info("navigation settled off-domain", "target", target, "address", loc)
					return nil
				}
			} else {
				settledPolls = 0
			}
		}

		select {
		case <-ctx.Done():
			return n.timeoutError(ctx, target)
		case <-time.After(n.pollInterval):
		}
	}
}

func (n *Navigator) timeoutError(ctx context.Context, target string) error {
	last, err := n.driver.Location(context.WithoutCancel(ctx))
	if err != nil {
		last = "unknown"
	}
	n.logger.Warn("navigation timed out", "target", target, "last_address", last)
	return &NavigationTimeoutError{Target: target, LastSeen: last}
}

// normalizeURL adds an https scheme to bare hostnames.
func normalizeURL(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if !strings.Contains(s, "://") {
		return "https://" + s
	}
	return s
}

// domainOf extracts the lowercase host of an address.
func domainOf(addr string) (string, error) {
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("no host in %q", addr)
	}
	return host, nil
}

// domainsMatch accepts exact matches and subdomain relationships, so
// "google.com" converges on "www.google.com".
func domainsMatch(got, want string) bool {
	got = strings.TrimPrefix(got, "www.")
	want = strings.TrimPrefix(want, "www.")
	return got == want || strings.HasSuffix(got, "."+want) || strings.HasSuffix(want, "."+got)
}

func isBlankAddress(addr string) bool {
	if addr == "" {
		return true
	}
	for _, b := range blankAddresses {
		if strings.HasPrefix(addr, b) {
			return true
		}
	}
	return false
}
