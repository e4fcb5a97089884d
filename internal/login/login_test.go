package login

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Rorqualx/browser-login-go/internal/config"
	"github.com/Rorqualx/browser-login-go/internal/selectors"
	"github.com/Rorqualx/browser-login-go/internal/types"
)

type fakePage struct {
	has        map[string]bool
	attributes map[string]string

	// evalFn handles Eval calls; nil means return "".
	evalFn func(js string, args []interface{}) (string, error)

	fills    map[string]string
	clicked  []string
	navErr   error
	finalURL string
	matched  bool
	cookies  map[string]string

	closeCount int
	evalCalls  [][]interface{}
}

func newFakePage() *fakePage {
	return &fakePage{
		has:        make(map[string]bool),
		attributes: make(map[string]string),
		fills:      make(map[string]string),
		finalURL:   "https://s.amizone.net/Home",
		matched:    true,
		cookies:    map[string]string{"ASP.NET_SessionId": "sess-1"},
	}
}

func (p *fakePage) Navigate(_ context.Context, _ string, _ time.Duration) error { return p.navErr }
func (p *fakePage) Has(selector string) (bool, error)                          { return p.has[selector], nil }
func (p *fakePage) Attribute(selector, _ string) (string, error) {
	return p.attributes[selector], nil
}
func (p *fakePage) Eval(_ context.Context, js string, args ...interface{}) (string, error) {
	p.evalCalls = append(p.evalCalls, args)
	if p.evalFn != nil {
		return p.evalFn(js, args)
	}
	return "", nil
}
func (p *fakePage) Fill(selector, value string) error {
	p.fills[selector] = value
	return nil
}
func (p *fakePage) Click(selector string) error {
	p.clicked = append(p.clicked, selector)
	return nil
}
func (p *fakePage) WaitForURL(_ context.Context, _ string, _ time.Duration) (string, bool) {
	return p.finalURL, p.matched
}
func (p *fakePage) CurrentURL() (string, error)         { return p.finalURL, nil }
func (p *fakePage) Cookies() (map[string]string, error) { return p.cookies, nil }
func (p *fakePage) Close()                              { p.closeCount++ }

type fakeFactory struct {
	page *fakePage
	err  error
}

func (f *fakeFactory) NewPage(_ context.Context) (Page, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.page, nil
}

type fakeSolver struct {
	token string
	err   error

	turnstileCalls []string
	recaptchaCalls []string
}

func (s *fakeSolver) SolveTurnstile(_ context.Context, _, siteKey string) (string, error) {
	s.turnstileCalls = append(s.turnstileCalls, siteKey)
	return s.token, s.err
}

func (s *fakeSolver) SolveRecaptchaV2(_ context.Context, _, siteKey string) (string, error) {
	s.recaptchaCalls = append(s.recaptchaCalls, siteKey)
	return s.token, s.err
}

func testConfig() *config.Config {
	return &config.Config{
		PortalURL:         "https://s.amizone.net/",
		NavigationTimeout: time.Second,
		SettleDelay:       time.Millisecond,
		SubmitWaitTimeout: time.Second,
	}
}

func newTestService(page *fakePage, solver *fakeSolver) *Service {
	return NewService(&fakeFactory{page: page}, solver, selectors.GetManager(), testConfig())
}

func TestLogin_NoChallenge_Success(t *testing.T) {
	page := newFakePage()
	solver := &fakeSolver{token: "tok"}
	svc := newTestService(page, solver)

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want OutcomeSuccess (message: %s)", result.Outcome, result.Message)
	}
	if result.SessionID != "sess-1" {
		t.Errorf("SessionID = %q, want %q", result.SessionID, "sess-1")
	}
	if len(solver.turnstileCalls)+len(solver.recaptchaCalls) != 0 {
		t.Errorf("solver called %d times without a challenge, want 0",
			len(solver.turnstileCalls)+len(solver.recaptchaCalls))
	}
	if page.fills["input[name='_UserName']"] != "student" {
		t.Errorf("username fill = %q, want %q", page.fills["input[name='_UserName']"], "student")
	}
	if page.fills["input[name='_Password']"] != "pw" {
		t.Errorf("password fill = %q, want %q", page.fills["input[name='_Password']"], "pw")
	}
	if page.closeCount != 1 {
		t.Errorf("page closed %d times, want 1", page.closeCount)
	}
}

func TestLogin_Turnstile_SolvedAndInjected(t *testing.T) {
	page := newFakePage()
	page.has["iframe[src*='challenges.cloudflare.com']"] = true
	page.evalFn = func(js string, _ []interface{}) (string, error) {
		if strings.Contains(js, "data-sitekey") {
			return "0xLIVEKEY", nil
		}
		return "", nil
	}
	solver := &fakeSolver{token: "turnstile-token"}
	svc := newTestService(page, solver)

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want OutcomeSuccess (message: %s)", result.Outcome, result.Message)
	}
	if len(solver.turnstileCalls) != 1 || solver.turnstileCalls[0] != "0xLIVEKEY" {
		t.Fatalf("turnstile calls = %v, want one call with 0xLIVEKEY", solver.turnstileCalls)
	}

	injected := false
	for _, args := range page.evalCalls {
		for _, a := range args {
			if a == "turnstile-token" {
				injected = true
			}
		}
	}
	if !injected {
		t.Error("solved token never passed to an Eval call")
	}
}

func TestLogin_Turnstile_DefaultSitekeyFallback(t *testing.T) {
	page := newFakePage()
	page.has["#Capthcadiv"] = true
	solver := &fakeSolver{token: "tok"}
	svc := newTestService(page, solver)

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want OutcomeSuccess (message: %s)", result.Outcome, result.Message)
	}
	want := selectors.GetManager().Get().Turnstile.DefaultSitekey
	if len(solver.turnstileCalls) != 1 || solver.turnstileCalls[0] != want {
		t.Errorf("turnstile calls = %v, want one call with default sitekey %q", solver.turnstileCalls, want)
	}
}

func TestLogin_Turnstile_InlineScriptSitekey(t *testing.T) {
	page := newFakePage()
	page.has["#Capthcadiv"] = true
	page.evalFn = func(js string, _ []interface{}) (string, error) {
		if strings.Contains(js, "script:not([src])") {
			return `turnstile.render('#w', { sitekey: "0xINLINE", theme: 'light' });`, nil
		}
		return "", nil
	}
	solver := &fakeSolver{token: "tok"}
	svc := newTestService(page, solver)

	svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if len(solver.turnstileCalls) != 1 || solver.turnstileCalls[0] != "0xINLINE" {
		t.Errorf("turnstile calls = %v, want one call with 0xINLINE", solver.turnstileCalls)
	}
}

func TestLogin_CredentialFailure(t *testing.T) {
	tests := []struct {
		name     string
		finalURL string
	}{
		{"bounced to login path", "https://s.amizone.net/Login?error=1"},
		{"stuck on portal root", "https://s.amizone.net/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := newFakePage()
			page.matched = false
			page.finalURL = tt.finalURL
			svc := newTestService(page, &fakeSolver{})

			result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "bad"})

			if result.Outcome != types.OutcomeCredentialFailure {
				t.Errorf("Outcome = %v, want OutcomeCredentialFailure", result.Outcome)
			}
			if page.closeCount != 1 {
				t.Errorf("page closed %d times, want 1", page.closeCount)
			}
		})
	}
}

func TestLogin_UnexpectedURLStillHarvestsCookies(t *testing.T) {
	page := newFakePage()
	page.matched = false
	page.finalURL = "https://s.amizone.net/Announcements"
	svc := newTestService(page, &fakeSolver{})

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeSuccess {
		t.Errorf("Outcome = %v, want OutcomeSuccess for off-pattern non-login URL", result.Outcome)
	}
	if result.Cookies["ASP.NET_SessionId"] != "sess-1" {
		t.Errorf("Cookies = %v, want session cookie harvested", result.Cookies)
	}
}

func TestLogin_NavigationFailure(t *testing.T) {
	page := newFakePage()
	page.navErr = errors.New("net::ERR_CONNECTION_REFUSED")
	svc := newTestService(page, &fakeSolver{})

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeInfrastructureError {
		t.Errorf("Outcome = %v, want OutcomeInfrastructureError", result.Outcome)
	}
	if page.closeCount != 1 {
		t.Errorf("page closed %d times, want 1", page.closeCount)
	}
}

func TestLogin_SolverFailure(t *testing.T) {
	page := newFakePage()
	page.has["iframe[src*='challenges.cloudflare.com']"] = true
	solver := &fakeSolver{err: types.NewSolverBalanceError("capsolver")}
	svc := newTestService(page, solver)

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeInfrastructureError {
		t.Errorf("Outcome = %v, want OutcomeInfrastructureError", result.Outcome)
	}
}

func TestLogin_RecaptchaWithoutSitekeySkipped(t *testing.T) {
	page := newFakePage()
	page.has[".g-recaptcha"] = true
	solver := &fakeSolver{token: "tok"}
	svc := newTestService(page, solver)

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeSuccess {
		t.Errorf("Outcome = %v, want OutcomeSuccess when widget has no sitekey", result.Outcome)
	}
	if len(solver.recaptchaCalls) != 0 {
		t.Errorf("recaptcha solver called %d times, want 0", len(solver.recaptchaCalls))
	}
}

func TestLogin_RecaptchaSolved(t *testing.T) {
	page := newFakePage()
	page.has[".g-recaptcha"] = true
	page.attributes[".g-recaptcha"] = "6LcSITE"
	solver := &fakeSolver{token: "rc-token"}
	svc := newTestService(page, solver)

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeSuccess {
		t.Fatalf("Outcome = %v, want OutcomeSuccess (message: %s)", result.Outcome, result.Message)
	}
	if len(solver.recaptchaCalls) != 1 || solver.recaptchaCalls[0] != "6LcSITE" {
		t.Errorf("recaptcha calls = %v, want one call with 6LcSITE", solver.recaptchaCalls)
	}
}

func TestLogin_ContextFactoryFailure(t *testing.T) {
	svc := NewService(&fakeFactory{err: types.ErrBrowserNotStarted}, &fakeSolver{}, selectors.GetManager(), testConfig())

	result := svc.Login(context.Background(), types.LoginRequest{Username: "student", Password: "pw"})

	if result.Outcome != types.OutcomeInfrastructureError {
		t.Errorf("Outcome = %v, want OutcomeInfrastructureError", result.Outcome)
	}
}

func TestIsStillOnLoginPage(t *testing.T) {
	tests := []struct {
		name    string
		current string
		want    bool
	}{
		{"empty url", "", true},
		{"login marker", "https://s.amizone.net/Login", true},
		{"login marker with query", "https://s.amizone.net/login?ReturnUrl=%2fHome", true},
		{"portal root", "https://s.amizone.net/", true},
		{"portal root no slash", "https://s.amizone.net", true},
		{"dashboard", "https://s.amizone.net/Home", false},
		{"other page", "https://s.amizone.net/Announcements", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isStillOnLoginPage(tt.current, "https://s.amizone.net/", "/Login")
			if got != tt.want {
				t.Errorf("isStillOnLoginPage(%q) = %v, want %v", tt.current, got, tt.want)
			}
		})
	}
}
