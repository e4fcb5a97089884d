package browser

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browser-login-go/internal/types"
	"github.com/Rorqualx/browser-login-go/pkg/version"
)

// Context is an isolated browsing context with a single page.
// It is not safe for concurrent use; each login attempt owns one.
type Context struct {
	manager   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
	owner     *Manager

	closeOnce sync.Once
	closed    bool
}

func newContext(ctx context.Context, owner *Manager, incognito *rod.Browser) (*Context, error) {
	// stealth.Page injects evasion patches before any page script runs.
	page, err := stealth.Page(incognito)
	if err != nil {
		return nil, types.NewNavigationError("", err)
	}

	c := &Context{
		manager:   owner.browser,
		incognito: incognito,
		page:      page.Context(ctx),
		owner:     owner,
	}

	if err := c.applyIdentity(); err != nil {
		c.Close()
		return nil, err
	}
	if owner.config.HasProxy() {
		if err := setPageProxyAuth(c.page, owner.config.ProxyURL); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// applyIdentity sets a consistent user agent and viewport so that
// HTTP headers and JS-visible screen metrics agree with each other.
func (c *Context) applyIdentity() error {
	err := proto.NetworkSetUserAgentOverride{
		UserAgent:      version.UserAgent,
		AcceptLanguage: "en-US,en;q=0.9",
		Platform:       "MacIntel",
	}.Call(c.page)
	if err != nil {
		return &types.BrowserError{Operation: "set_user_agent", Err: err}
	}

	err = c.page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             1920,
		Height:            1080,
		DeviceScaleFactor: 1,
		Mobile:            false,
	})
	if err != nil {
		return &types.BrowserError{Operation: "set_viewport", Err: err}
	}
	return nil
}

// Navigate loads the given URL and waits for the load event. A missed
// load event is logged and tolerated; heavy challenge pages often keep
// the event from firing even though the DOM is usable.
func (c *Context) Navigate(ctx context.Context, url string, timeout time.Duration) error {
	navCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	page := c.page.Context(navCtx)
	if err := page.Navigate(url); err != nil {
		return types.NewNavigationError(url, err)
	}
	if err := page.WaitLoad(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("Load event not observed, continuing")
	}
	return nil
}

// Has reports whether an element matching the selector exists.
func (c *Context) Has(selector string) (bool, error) {
	has, _, err := c.page.Has(selector)
	if err != nil {
		return false, &types.BrowserError{Operation: "has", Message: selector, Err: err}
	}
	return has, nil
}

// Attribute returns the named attribute of the first element matching
// the selector, or "" when the attribute is absent.
func (c *Context) Attribute(selector, name string) (string, error) {
	el, err := c.page.Element(selector)
	if err != nil {
		return "", &types.BrowserError{Operation: "attribute", Message: selector, Err: err}
	}
	val, err := el.Attribute(name)
	if err != nil {
		return "", &types.BrowserError{Operation: "attribute", Message: selector, Err: err}
	}
	if val == nil {
		return "", nil
	}
	return *val, nil
}

// Eval runs a JS function expression in the page with structured
// arguments and returns its result as a string. Arguments are passed
// through CDP, never interpolated into the script source.
func (c *Context) Eval(ctx context.Context, jsFunc string, args ...interface{}) (string, error) {
	res, err := c.page.Context(ctx).Eval(jsFunc, args...)
	if err != nil {
		return "", &types.BrowserError{Operation: "eval", Err: err}
	}
	return res.Value.Str(), nil
}

// Fill types the given value into the element matching the selector.
func (c *Context) Fill(selector, value string) error {
	el, err := c.page.Element(selector)
	if err != nil {
		return &types.BrowserError{Operation: "fill", Message: selector, Err: err}
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(value); err != nil {
		return &types.BrowserError{Operation: "fill", Message: selector, Err: err}
	}
	return nil
}

// Click performs a left click on the element matching the selector.
func (c *Context) Click(selector string) error {
	el, err := c.page.Element(selector)
	if err != nil {
		return &types.BrowserError{Operation: "click", Message: selector, Err: err}
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &types.BrowserError{Operation: "click", Message: selector, Err: err}
	}
	return nil
}

// WaitForURL polls the page URL until it contains pattern or the
// timeout elapses. It returns the final observed URL and whether the
// pattern matched.
func (c *Context) WaitForURL(ctx context.Context, pattern string, timeout time.Duration) (string, bool) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	lastURL := ""
	for {
		if url, err := c.CurrentURL(); err == nil {
			lastURL = url
			if strings.Contains(url, pattern) {
				return url, true
			}
		} else {
			log.Debug().Err(err).Msg("Could not read page URL while waiting")
		}

		select {
		case <-waitCtx.Done():
			return lastURL, false
		case <-ticker.C:
		}
	}
}

// CurrentURL returns the page's current URL.
func (c *Context) CurrentURL() (string, error) {
	info, err := c.page.Info()
	if err != nil {
		return "", &types.BrowserError{Operation: "page_info", Err: err}
	}
	return info.URL, nil
}

// Cookies returns all cookies visible to the page as a name to value map.
// Later duplicates by name overwrite earlier ones.
func (c *Context) Cookies() (map[string]string, error) {
	cookies, err := c.page.Cookies(nil)
	if err != nil {
		return nil, &types.BrowserError{Operation: "cookies", Err: err}
	}
	return cookieMap(cookies), nil
}

func cookieMap(cookies []*proto.NetworkCookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, ck := range cookies {
		if ck == nil || ck.Name == "" {
			continue
		}
		out[ck.Name] = ck.Value
	}
	return out
}

// Close disposes the page and its browsing context. Idempotent.
func (c *Context) Close() {
	c.closeOnce.Do(func() {
		c.closed = true

		if c.page != nil {
			if err := c.page.Close(); err != nil {
				log.Debug().Err(err).Msg("Error closing page")
			}
		}
		if c.incognito != nil && c.incognito.BrowserContextID != "" {
			err := proto.TargetDisposeBrowserContext{
				BrowserContextID: c.incognito.BrowserContextID,
			}.Call(c.manager)
			if err != nil {
				log.Debug().Err(err).Msg("Error disposing browser context")
			}
		}
		if c.owner != nil {
			c.owner.release(c)
		}
	})
}
