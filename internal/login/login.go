// Package login drives a portal login attempt end to end: navigation,
// challenge solving, token injection, credential submission, and
// session cookie harvesting.
package login

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browser-login-go/internal/captcha"
	"github.com/Rorqualx/browser-login-go/internal/config"
	"github.com/Rorqualx/browser-login-go/internal/security"
	"github.com/Rorqualx/browser-login-go/internal/selectors"
	"github.com/Rorqualx/browser-login-go/internal/types"
)

// Page is the subset of browser operations a login attempt needs.
// *browser.Context satisfies it.
type Page interface {
	Navigate(ctx context.Context, url string, timeout time.Duration) error
	Has(selector string) (bool, error)
	Attribute(selector, name string) (string, error)
	Eval(ctx context.Context, jsFunc string, args ...interface{}) (string, error)
	Fill(selector, value string) error
	Click(selector string) error
	WaitForURL(ctx context.Context, pattern string, timeout time.Duration) (string, bool)
	CurrentURL() (string, error)
	Cookies() (map[string]string, error)
	Close()
}

// PageFactory opens fresh isolated pages. *browser.Manager is adapted
// to it via BrowserPages.
type PageFactory interface {
	NewPage(ctx context.Context) (Page, error)
}

// inlineSitekeyPattern matches sitekey declarations inside inline
// widget-rendering scripts, e.g. `sitekey: "0x4AAA..."`.
var inlineSitekeyPattern = regexp.MustCompile(`sitekey:\s*["']([^"']+)["']`)

// JS snippets evaluated in the page. Values always arrive as function
// arguments through CDP, never spliced into the source text.
const (
	jsReadDataSitekey = `() => {
		const el = document.querySelector('[data-sitekey]');
		return el ? (el.getAttribute('data-sitekey') || '') : '';
	}`

	jsCollectInlineScripts = `() => {
		let out = '';
		for (const s of document.querySelectorAll('script:not([src])')) {
			if (s.textContent.includes('sitekey')) out += s.textContent + '\n';
		}
		return out;
	}`

	jsInjectTurnstileToken = `(tokenSel, responseSel, companionSel, token, companion) => {
		const t = document.querySelector(tokenSel);
		if (t) t.value = token;
		const r = document.querySelector(responseSel);
		if (r) r.value = token;
		const q = document.querySelector(companionSel);
		if (q) q.value = companion;
		return '';
	}`

	jsInjectRecaptchaToken = `(sel, token) => {
		const el = document.querySelector(sel);
		if (el) {
			el.value = token;
			el.innerHTML = token;
		}
		return '';
	}`
)

// Service performs portal logins using a browser and a remote
// challenge solver.
type Service struct {
	pages     PageFactory
	solver    captcha.ChallengeSolver
	selectors *selectors.Manager
	config    *config.Config
}

// NewService creates a login Service. All collaborators are injected;
// the service launches nothing on its own.
func NewService(pages PageFactory, solver captcha.ChallengeSolver, sel *selectors.Manager, cfg *config.Config) *Service {
	return &Service{
		pages:     pages,
		solver:    solver,
		selectors: sel,
		config:    cfg,
	}
}

// Login runs one full login attempt. Failures never surface as errors:
// every outcome is folded into the result's tagged variant so callers
// can distinguish bad credentials from broken infrastructure.
func (s *Service) Login(ctx context.Context, req types.LoginRequest) *types.LoginResult {
	start := time.Now()

	log.Info().
		Str("username", security.MaskUsername(req.Username)).
		Str("portal", s.config.PortalURL).
		Msg("Starting login attempt")

	page, err := s.pages.NewPage(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to open browser context")
		return types.NewInfrastructureErrorResult("browser context unavailable")
	}
	defer page.Close()

	result := s.run(ctx, page, req)

	log.Info().
		Str("username", security.MaskUsername(req.Username)).
		Str("outcome", result.Outcome.String()).
		Dur("duration", time.Since(start)).
		Msg("Login attempt finished")

	return result
}

func (s *Service) run(ctx context.Context, page Page, req types.LoginRequest) *types.LoginResult {
	sel := s.selectors.Get()

	if err := page.Navigate(ctx, s.config.PortalURL, s.config.NavigationTimeout); err != nil {
		log.Error().Err(err).Str("url", s.config.PortalURL).Msg("Portal navigation failed")
		return types.NewInfrastructureErrorResult("could not reach login portal")
	}

	// Let challenge widgets render before probing the DOM.
	if !sleepWithContext(ctx, s.config.SettleDelay) {
		return types.NewInfrastructureErrorResult("request canceled")
	}

	if res := s.handleTurnstile(ctx, page, sel); res != nil {
		return res
	}
	if res := s.handleRecaptcha(ctx, page, sel); res != nil {
		return res
	}

	if err := page.Fill(sel.Login.UsernameField, req.Username); err != nil {
		log.Error().Err(err).Msg("Failed to fill username field")
		return types.NewInfrastructureErrorResult("login form not available")
	}
	if err := page.Fill(sel.Login.PasswordField, req.Password); err != nil {
		log.Error().Err(err).Msg("Failed to fill password field")
		return types.NewInfrastructureErrorResult("login form not available")
	}
	if err := page.Click(sel.Login.SubmitButton); err != nil {
		log.Error().Err(err).Msg("Failed to click submit button")
		return types.NewInfrastructureErrorResult("could not submit login form")
	}

	finalURL, matched := page.WaitForURL(ctx, sel.Login.SuccessURLPattern, s.config.SubmitWaitTimeout)
	if !matched {
		if isStillOnLoginPage(finalURL, s.config.PortalURL, sel.Login.LoginURLMarker) {
			log.Info().Str("url", security.RedactURL(finalURL)).Msg("Portal rejected credentials")
			return types.NewCredentialFailureResult("invalid username or password")
		}
		// Some portals land on an interstitial before the dashboard.
		// Cookies may still be valid, so harvest them anyway.
		log.Warn().
			Str("url", security.RedactURL(finalURL)).
			Str("expected", sel.Login.SuccessURLPattern).
			Msg("Unexpected post-submit URL, harvesting cookies anyway")
	}

	cookies, err := page.Cookies()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read session cookies")
		return types.NewInfrastructureErrorResult("could not read session cookies")
	}

	sessionID, ok := cookies[sel.Login.SessionCookie]
	if !ok {
		log.Warn().Str("cookie", sel.Login.SessionCookie).Msg("Session cookie missing from jar")
	}

	return types.NewSuccessResult(cookies, sessionID)
}

// handleTurnstile detects a Cloudflare Turnstile widget and, if present,
// solves and injects its token. A non-nil return aborts the attempt.
func (s *Service) handleTurnstile(ctx context.Context, page Page, sel *selectors.Selectors) *types.LoginResult {
	present, err := s.turnstilePresent(page, sel)
	if err != nil {
		log.Error().Err(err).Msg("Turnstile detection failed")
		return types.NewInfrastructureErrorResult("challenge detection failed")
	}
	if !present {
		log.Debug().Msg("No Turnstile challenge on page")
		return nil
	}

	sitekey := s.extractTurnstileSitekey(ctx, page, sel)

	token, err := s.solver.SolveTurnstile(ctx, s.config.PortalURL, sitekey)
	if err != nil {
		log.Error().Err(err).Str("sitekey", sitekey).Msg("Turnstile solve failed")
		return types.NewInfrastructureErrorResult("challenge solver unavailable")
	}

	_, err = page.Eval(ctx, jsInjectTurnstileToken,
		sel.Turnstile.TokenField,
		sel.Turnstile.ResponseField,
		sel.Turnstile.CompanionField,
		token,
		sel.Turnstile.CompanionValue,
	)
	if err != nil {
		log.Error().Err(err).Msg("Turnstile token injection failed")
		return types.NewInfrastructureErrorResult("challenge token injection failed")
	}

	log.Info().Int("token_len", len(token)).Msg("Turnstile token injected")

	// The portal's own scripts react to the token fields changing.
	if !sleepWithContext(ctx, time.Second) {
		return types.NewInfrastructureErrorResult("request canceled")
	}
	return nil
}

func (s *Service) turnstilePresent(page Page, sel *selectors.Selectors) (bool, error) {
	for _, selector := range []string{
		sel.Turnstile.Frame,
		sel.Turnstile.Container,
		sel.Turnstile.TokenField,
	} {
		if selector == "" {
			continue
		}
		has, err := page.Has(selector)
		if err != nil {
			return false, err
		}
		if has {
			log.Debug().Str("selector", selector).Msg("Turnstile marker found")
			return true, nil
		}
	}
	return false, nil
}

// extractTurnstileSitekey tries the DOM first, then inline scripts, and
// finally falls back to the configured default. The fallback keeps the
// service limping along when the portal changes its markup, but the
// default key goes stale whenever the portal rotates it, so the
// degradation is logged loudly.
func (s *Service) extractTurnstileSitekey(ctx context.Context, page Page, sel *selectors.Selectors) string {
	if key, err := page.Eval(ctx, jsReadDataSitekey); err == nil && key != "" {
		log.Debug().Str("sitekey", key).Msg("Sitekey read from DOM attribute")
		return key
	}

	if scripts, err := page.Eval(ctx, jsCollectInlineScripts); err == nil && scripts != "" {
		if m := inlineSitekeyPattern.FindStringSubmatch(scripts); m != nil {
			log.Debug().Str("sitekey", m[1]).Msg("Sitekey extracted from inline script")
			return m[1]
		}
	}

	log.Warn().
		Str("default_sitekey", sel.Turnstile.DefaultSitekey).
		Msg("Sitekey extraction failed, falling back to configured default")
	return sel.Turnstile.DefaultSitekey
}

// handleRecaptcha detects a reCAPTCHA v2 widget and, if present, solves
// and injects its token. A widget without a readable sitekey is skipped
// rather than treated as fatal.
func (s *Service) handleRecaptcha(ctx context.Context, page Page, sel *selectors.Selectors) *types.LoginResult {
	has, err := page.Has(sel.Recaptcha.Widget)
	if err != nil {
		log.Error().Err(err).Msg("reCAPTCHA detection failed")
		return types.NewInfrastructureErrorResult("challenge detection failed")
	}
	if !has {
		log.Debug().Msg("No reCAPTCHA challenge on page")
		return nil
	}

	sitekey, err := page.Attribute(sel.Recaptcha.Widget, "data-sitekey")
	if err != nil || sitekey == "" {
		log.Warn().Err(err).Msg("reCAPTCHA widget has no readable sitekey, skipping")
		return nil
	}

	token, err := s.solver.SolveRecaptchaV2(ctx, s.config.PortalURL, sitekey)
	if err != nil {
		log.Error().Err(err).Str("sitekey", sitekey).Msg("reCAPTCHA solve failed")
		return types.NewInfrastructureErrorResult("challenge solver unavailable")
	}

	if _, err := page.Eval(ctx, jsInjectRecaptchaToken, sel.Recaptcha.ResponseField, token); err != nil {
		log.Error().Err(err).Msg("reCAPTCHA token injection failed")
		return types.NewInfrastructureErrorResult("challenge token injection failed")
	}

	log.Info().Int("token_len", len(token)).Msg("reCAPTCHA token injected")
	return nil
}

// isStillOnLoginPage reports whether the post-submit URL indicates the
// portal bounced the attempt back to its login form.
func isStillOnLoginPage(currentURL, portalURL, loginMarker string) bool {
	if currentURL == "" {
		return true
	}
	if loginMarker != "" && strings.Contains(strings.ToLower(currentURL), strings.ToLower(loginMarker)) {
		return true
	}
	return strings.TrimRight(currentURL, "/") == strings.TrimRight(portalURL, "/")
}

// sleepWithContext sleeps for d or until ctx is canceled. Returns true
// if the sleep ran to completion.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
