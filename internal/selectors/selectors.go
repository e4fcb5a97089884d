// Package selectors provides portal markup pattern loading and management.
package selectors

import (
	"embed"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed selectors.yaml
var defaultSelectorsFS embed.FS

// LoginSelectors describes the credential form and result URLs.
type LoginSelectors struct {
	UsernameField     string `yaml:"username_field"`
	PasswordField     string `yaml:"password_field"`
	SubmitButton      string `yaml:"submit_button"`
	SuccessURLPattern string `yaml:"success_url_pattern"`
	LoginURLMarker    string `yaml:"login_url_marker"`
	SessionCookie     string `yaml:"session_cookie"`
}

// TurnstileSelectors describes the Turnstile-style challenge markup.
type TurnstileSelectors struct {
	Frame          string `yaml:"frame"`
	Container      string `yaml:"container"`
	TokenField     string `yaml:"token_field"`
	ResponseField  string `yaml:"response_field"`
	CompanionField string `yaml:"companion_field"`
	CompanionValue string `yaml:"companion_value"`
	DefaultSitekey string `yaml:"default_sitekey"`
}

// RecaptchaSelectors describes the reCAPTCHA v2 widget markup.
type RecaptchaSelectors struct {
	Widget        string `yaml:"widget"`
	ResponseField string `yaml:"response_field"`
}

// Selectors contains all portal markup patterns.
type Selectors struct {
	Login     LoginSelectors     `yaml:"login"`
	Turnstile TurnstileSelectors `yaml:"turnstile"`
	Recaptcha RecaptchaSelectors `yaml:"recaptcha"`
}

var (
	instance *Selectors
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Selectors instance.
// Patterns are loaded from the embedded selectors.yaml file.
func Get() *Selectors {
	once.Do(func() {
		instance, loadErr = load()
		if loadErr != nil {
			log.Error().Err(loadErr).Msg("Failed to load selectors, using defaults")
			instance = defaultSelectors()
		}
	})
	return instance
}

// load reads selectors from the embedded YAML file.
func load() (*Selectors, error) {
	data, err := defaultSelectorsFS.ReadFile("selectors.yaml")
	if err != nil {
		return nil, err
	}

	var s Selectors
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, err
	}

	log.Debug().
		Str("username_field", s.Login.UsernameField).
		Str("turnstile_frame", s.Turnstile.Frame).
		Str("recaptcha_widget", s.Recaptcha.Widget).
		Msg("Selectors loaded")

	return &s, nil
}

// defaultSelectors returns hardcoded fallback patterns.
func defaultSelectors() *Selectors {
	return &Selectors{
		Login: LoginSelectors{
			UsernameField:     "input[name='_UserName']",
			PasswordField:     "input[name='_Password']",
			SubmitButton:      "button[type='submit']",
			SuccessURLPattern: "/Home",
			LoginURLMarker:    "/Login",
			SessionCookie:     "ASP.NET_SessionId",
		},
		Turnstile: TurnstileSelectors{
			Frame:          "iframe[src*='challenges.cloudflare.com']",
			Container:      "#Capthcadiv",
			TokenField:     "#RecaptchaToken",
			ResponseField:  "input[name='cf-turnstile-response']",
			CompanionField: "input[name='_QString']",
			CompanionValue: "test",
			DefaultSitekey: "0x4AAAAAAAwm6_gqjJdfOuzq",
		},
		Recaptcha: RecaptchaSelectors{
			Widget:        ".g-recaptcha",
			ResponseField: "#g-recaptcha-response",
		},
	}
}

// Validate checks that the Selectors carry the minimum required patterns.
func (s *Selectors) Validate() error {
	if s.Login.UsernameField == "" && s.Turnstile.TokenField == "" && s.Recaptcha.Widget == "" {
		return errNoPatterns
	}
	return nil
}
