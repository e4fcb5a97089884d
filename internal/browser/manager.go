// Package browser provides ownership of a single long-lived browser process
// and short-lived isolated contexts for individual login attempts.
// One Chromium instance is launched at startup and reused for every request;
// each attempt gets its own incognito context with a private cookie jar.
package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Rorqualx/browser-login-go/internal/config"
	"github.com/Rorqualx/browser-login-go/internal/security"
	"github.com/Rorqualx/browser-login-go/internal/types"
)

// Manager owns the browser process and tracks its live contexts.
//
// Lock ordering: mu guards the context registry only. Never hold mu
// while performing slow CDP operations.
type Manager struct {
	config  *config.Config
	browser *rod.Browser

	mu       sync.Mutex
	contexts map[*Context]struct{}

	started atomic.Bool
	closed  atomic.Bool
}

// NewManager creates a Manager. The browser process is not launched
// until Start is called.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{
		config:   cfg,
		contexts: make(map[*Context]struct{}),
	}
}

// Start launches the browser process and connects to it over CDP.
// It must be called exactly once before NewContext.
func (m *Manager) Start() error {
	if m.started.Load() {
		return fmt.Errorf("browser already started")
	}

	log.Info().
		Bool("headless", m.config.Headless).
		Str("browser_path", m.config.BrowserPath).
		Str("proxy", security.RedactProxyURL(m.config.ProxyURL)).
		Msg("Launching browser")

	l := m.createLauncher(m.config.ProxyURL)

	url, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(url)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("failed to connect to browser: %w", err)
	}

	m.browser = browser
	m.started.Store(true)

	log.Info().Str("url", url).Msg("Browser launched")
	return nil
}

// createLauncher creates a configured Rod launcher.
// These flags are tuned for anti-detection: no automation markers,
// realistic language and window size, WebRTC leak prevention.
//
// The proxyURL parameter sets the --proxy-server flag for Chrome.
// If empty, no proxy is configured.
func (m *Manager) createLauncher(proxyURL string) *launcher.Launcher {
	l := launcher.New()

	if m.config.BrowserPath != "" {
		l = l.Bin(m.config.BrowserPath)
	}

	// HEADLESS=true uses --headless=new (Chrome 109+). HEADLESS=false is
	// for running under a real display or Xvfb, which is harder to detect.
	if m.config.Headless {
		l = l.Set("headless", "new")
	} else {
		// Rod enables headless by default; it must be explicitly disabled.
		l = l.Headless(false)
	}

	// Container flags
	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage")

	if proxyURL != "" {
		l = l.Set("proxy-server", stripProxyCredentials(proxyURL))
		log.Debug().Str("proxy", security.RedactProxyURL(proxyURL)).Msg("Browser proxy configured")
	}

	// WebRTC can reveal the real egress IP even behind a proxy.
	l = l.Set("force-webrtc-ip-handling-policy", "disable_non_proxied_udp")

	// Anti-detection: prevent navigator.webdriver and automation switches.
	l = l.Set("disable-blink-features", "AutomationControlled")
	l = l.Delete("enable-automation")

	// Realistic browser behavior
	l = l.Set("accept-lang", "en-US,en;q=0.9").
		Set("window-size", "1920,1080").
		Set("no-first-run").
		Set("no-default-browser-check").
		Set("disable-infobars").
		Set("disable-search-engine-choice-screen")

	// Stability
	l = l.Set("disable-background-networking").
		Set("disable-default-apps").
		Set("disable-extensions").
		Set("disable-sync").
		Set("mute-audio")

	return l
}

// NewContext opens a fresh isolated browsing context with its own cookie
// jar, applies stealth patches, and returns it ready for navigation.
// The caller MUST call Close on the returned context.
func (m *Manager) NewContext(ctx context.Context) (*Context, error) {
	if !m.started.Load() || m.browser == nil {
		return nil, types.ErrBrowserNotStarted
	}
	if m.closed.Load() {
		return nil, types.ErrBrowserClosed
	}

	incognito, err := m.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create incognito context: %w", err)
	}

	c, err := newContext(ctx, m, incognito)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.contexts[c] = struct{}{}
	open := len(m.contexts)
	m.mu.Unlock()

	log.Debug().Int("open_contexts", open).Msg("Browser context created")
	return c, nil
}

// release removes a context from the registry. Called by Context.Close.
func (m *Manager) release(c *Context) {
	m.mu.Lock()
	delete(m.contexts, c)
	open := len(m.contexts)
	m.mu.Unlock()

	log.Debug().Int("open_contexts", open).Msg("Browser context closed")
}

// OpenContexts returns the number of currently open contexts.
func (m *Manager) OpenContexts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

// Stop closes all live contexts and shuts down the browser process.
// Safe to call multiple times.
func (m *Manager) Stop() error {
	if m.closed.Swap(true) {
		return nil
	}
	if !m.started.Load() {
		return nil
	}

	m.mu.Lock()
	contexts := make([]*Context, 0, len(m.contexts))
	for c := range m.contexts {
		contexts = append(contexts, c)
	}
	m.mu.Unlock()

	log.Info().Int("open_contexts", len(contexts)).Msg("Stopping browser")

	// Close contexts in parallel, bounded to avoid flooding CDP.
	eg := new(errgroup.Group)
	eg.SetLimit(4)
	for _, c := range contexts {
		c := c
		eg.Go(func() error {
			c.Close()
			return nil
		})
	}
	_ = eg.Wait()

	if err := m.browser.Close(); err != nil {
		log.Warn().Err(err).Msg("Error closing browser process")
		return err
	}

	log.Info().Msg("Browser stopped")
	return nil
}
