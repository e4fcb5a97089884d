// Package config provides application configuration management.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Configuration upper bounds to prevent resource exhaustion.
const (
	maxNavigationTimeout = 5 * time.Minute
	maxSubmitWait        = 5 * time.Minute
	maxSettleDelay       = 30 * time.Second
	maxSolverPolls       = 300
	maxRateLimitRPM      = 10000 // Maximum requests per minute per IP
	minAPIKeyLength      = 16    // Minimum API key length for security
)

// Config holds all application configuration.
// Configuration is loaded from environment variables at startup.
type Config struct {
	// Server settings
	Host string
	Port int

	// Portal settings
	PortalURL string

	// Browser settings
	Headless    bool
	BrowserPath string
	ProxyURL    string

	// Login flow timing
	NavigationTimeout time.Duration // Time budget for the initial portal navigation
	SettleDelay       time.Duration // Fixed pause after navigation for widget scripts to render
	SubmitWaitTimeout time.Duration // Time budget for the post-submit redirect

	// Solver settings
	CapSolverAPIKey    string
	CapSolverBaseURL   string // Override for testing
	SolverPollInterval time.Duration
	SolverMaxPolls     int

	// Logging
	LogLevel string

	// Security
	RateLimitEnabled   bool
	RateLimitRPM       int      // Requests per minute per IP
	TrustProxy         bool     // Trust X-Forwarded-For headers (only enable behind a reverse proxy)
	CORSAllowedOrigins []string // Allowed CORS origins (empty = reject all cross-origin)

	// API Key Authentication
	APIKeyEnabled bool   // Enable API key authentication
	APIKey        string // Required API key for requests (only used if APIKeyEnabled is true)

	// Selectors settings
	SelectorsPath      string // Path to external selectors.yaml override file
	SelectorsHotReload bool   // Enable file watching for hot-reload of selectors
}

// Load loads configuration from environment variables.
// A .env file in the working directory is read first if present.
// Returns a Config with values from environment or sensible defaults.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Msg("Failed to load .env file")
	}

	return &Config{
		// Server - default to localhost for security (prevents accidental exposure)
		// Set HOST=0.0.0.0 explicitly to bind to all interfaces
		Host: getEnvString("HOST", "127.0.0.1"),
		Port: getEnvInt("PORT", 8082),

		// Portal
		PortalURL: getEnvString("PORTAL_URL", "https://s.amizone.net/"),

		// Browser
		Headless:    getEnvBool("HEADLESS", true),
		BrowserPath: getEnvString("BROWSER_PATH", ""),
		ProxyURL:    getEnvString("PROXY_URL", ""),

		// Login flow timing
		NavigationTimeout: getEnvDuration("NAVIGATION_TIMEOUT", 60*time.Second),
		SettleDelay:       getEnvDuration("SETTLE_DELAY", 3*time.Second),
		SubmitWaitTimeout: getEnvDuration("SUBMIT_WAIT_TIMEOUT", 30*time.Second),

		// Solver
		CapSolverAPIKey:    getEnvString("CAPSOLVER_API_KEY", ""),
		CapSolverBaseURL:   getEnvString("CAPSOLVER_BASE_URL", ""),
		SolverPollInterval: getEnvDuration("SOLVER_POLL_INTERVAL", 2*time.Second),
		SolverMaxPolls:     getEnvInt("SOLVER_MAX_POLLS", 60),

		// Logging
		LogLevel: getEnvString("LOG_LEVEL", "info"),

		// Security
		RateLimitEnabled:   getEnvBool("RATE_LIMIT_ENABLED", true),
		RateLimitRPM:       getEnvInt("RATE_LIMIT_RPM", 60),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		CORSAllowedOrigins: getEnvStringSlice("CORS_ALLOWED_ORIGINS", nil),

		// API Key Authentication
		APIKeyEnabled: getEnvBool("API_KEY_ENABLED", false),
		APIKey:        getEnvString("API_KEY", ""),

		// Selectors settings
		SelectorsPath:      getEnvString("SELECTORS_PATH", ""),
		SelectorsHotReload: getEnvBool("SELECTORS_HOT_RELOAD", false),
	}
}

// HasProxy returns true if an outbound proxy is configured.
func (c *Config) HasProxy() bool {
	return c.ProxyURL != ""
}

// Validate checks configuration values and logs warnings for invalid values.
// Invalid values are corrected to sensible defaults.
func (c *Config) Validate() {
	// Port validation - allow 0 for system-assigned ports
	if c.Port < 0 || c.Port > 65535 {
		log.Warn().Int("port", c.Port).Msg("Invalid port, using default 8082")
		c.Port = 8082
	}

	// Portal URL is the one setting without a safe fallback beyond the default
	if c.PortalURL == "" {
		log.Warn().Msg("PORTAL_URL is empty, using default")
		c.PortalURL = "https://s.amizone.net/"
	}
	if !strings.Contains(c.PortalURL, "://") {
		log.Error().Str("url", c.PortalURL).Msg("PORTAL_URL missing scheme (should be http:// or https://)")
	}

	// BrowserPath validation - prevent path traversal attacks
	if c.BrowserPath != "" {
		if strings.Contains(c.BrowserPath, "..") {
			log.Error().
				Str("path", c.BrowserPath).
				Msg("BrowserPath contains path traversal sequence (..), ignoring")
			c.BrowserPath = ""
		} else if !strings.HasPrefix(c.BrowserPath, "/") && !strings.HasPrefix(c.BrowserPath, "C:") && !strings.HasPrefix(c.BrowserPath, "c:") {
			log.Warn().
				Str("path", c.BrowserPath).
				Msg("BrowserPath should be an absolute path")
		}
	}

	// Navigation timeout bounds
	if c.NavigationTimeout < time.Second {
		log.Warn().Dur("timeout", c.NavigationTimeout).Msg("Navigation timeout too short, using 60s")
		c.NavigationTimeout = 60 * time.Second
	} else if c.NavigationTimeout > maxNavigationTimeout {
		log.Warn().
			Dur("timeout", c.NavigationTimeout).
			Dur("max", maxNavigationTimeout).
			Msg("Navigation timeout too long, capping to maximum")
		c.NavigationTimeout = maxNavigationTimeout
	}

	// Settle delay bounds
	if c.SettleDelay < 0 {
		log.Warn().Dur("delay", c.SettleDelay).Msg("Settle delay cannot be negative, using 3s")
		c.SettleDelay = 3 * time.Second
	} else if c.SettleDelay > maxSettleDelay {
		log.Warn().
			Dur("delay", c.SettleDelay).
			Dur("max", maxSettleDelay).
			Msg("Settle delay too long, capping to maximum")
		c.SettleDelay = maxSettleDelay
	}

	// Submit wait bounds
	if c.SubmitWaitTimeout < time.Second {
		log.Warn().Dur("timeout", c.SubmitWaitTimeout).Msg("Submit wait too short, using 30s")
		c.SubmitWaitTimeout = 30 * time.Second
	} else if c.SubmitWaitTimeout > maxSubmitWait {
		log.Warn().
			Dur("timeout", c.SubmitWaitTimeout).
			Dur("max", maxSubmitWait).
			Msg("Submit wait too long, capping to maximum")
		c.SubmitWaitTimeout = maxSubmitWait
	}

	// Solver polling bounds
	if c.SolverPollInterval < 500*time.Millisecond {
		log.Warn().Dur("interval", c.SolverPollInterval).Msg("Solver poll interval too short, using 2s")
		c.SolverPollInterval = 2 * time.Second
	}
	if c.SolverMaxPolls < 1 {
		log.Warn().Int("polls", c.SolverMaxPolls).Msg("Invalid solver poll budget, using 60")
		c.SolverMaxPolls = 60
	} else if c.SolverMaxPolls > maxSolverPolls {
		log.Warn().
			Int("polls", c.SolverMaxPolls).
			Int("max", maxSolverPolls).
			Msg("Solver poll budget too high, capping to maximum")
		c.SolverMaxPolls = maxSolverPolls
	}

	// Solver key is required for a functional service; the server still starts
	// so health checks and configuration can be verified without one.
	if c.CapSolverAPIKey == "" {
		log.Error().Msg("CAPSOLVER_API_KEY not set - challenge solving will fail")
	}

	// Rate limit validation with upper bound
	if c.RateLimitEnabled {
		if c.RateLimitRPM < 1 {
			log.Warn().Int("rpm", c.RateLimitRPM).Msg("Invalid rate limit, using 60 RPM")
			c.RateLimitRPM = 60
		} else if c.RateLimitRPM > maxRateLimitRPM {
			log.Warn().
				Int("rpm", c.RateLimitRPM).
				Int("max", maxRateLimitRPM).
				Msg("Rate limit too high, capping to maximum")
			c.RateLimitRPM = maxRateLimitRPM
		}
	}

	// Log level validation
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		log.Warn().Str("level", c.LogLevel).Msg("Invalid log level, using 'info'")
		c.LogLevel = "info"
	}

	// Proxy URL validation
	if c.ProxyURL != "" {
		if !strings.Contains(c.ProxyURL, "://") {
			log.Error().
				Str("proxy_url", c.ProxyURL).
				Msg("ProxyURL missing scheme (should be http://, https://, socks4://, or socks5://)")
		} else {
			scheme := strings.ToLower(strings.Split(c.ProxyURL, "://")[0])
			validSchemes := map[string]bool{"http": true, "https": true, "socks4": true, "socks5": true}
			if !validSchemes[scheme] {
				log.Error().
					Str("scheme", scheme).
					Msg("ProxyURL has invalid scheme (must be http, https, socks4, or socks5)")
			}
			if strings.HasPrefix(scheme, "http") && scheme == "http" && strings.Contains(c.ProxyURL, "@") {
				log.Warn().Msg("Proxy credentials over HTTP - credentials may be intercepted. Consider an HTTPS proxy")
			}
		}
	}

	// Selectors path validation
	if c.SelectorsPath != "" {
		if strings.Contains(c.SelectorsPath, "..") {
			log.Error().
				Str("path", c.SelectorsPath).
				Msg("SelectorsPath contains path traversal sequence (..), ignoring")
			c.SelectorsPath = ""
		}
		if c.SelectorsHotReload && c.SelectorsPath != "" {
			if _, err := os.Stat(c.SelectorsPath); os.IsNotExist(err) {
				log.Warn().
					Str("path", c.SelectorsPath).
					Msg("SelectorsPath does not exist - hot-reload will watch for file creation")
			}
		}
	}

	// Warn if hot-reload is enabled but no path is set
	if c.SelectorsHotReload && c.SelectorsPath == "" {
		log.Warn().Msg("SELECTORS_HOT_RELOAD enabled but SELECTORS_PATH not set - hot-reload disabled")
		c.SelectorsHotReload = false
	}

	// API key validation with minimum length enforcement
	if c.APIKeyEnabled {
		switch {
		case c.APIKey == "":
			log.Error().Msg("API_KEY_ENABLED is true but API_KEY is empty - authentication will always fail")
		case len(c.APIKey) < minAPIKeyLength:
			log.Error().
				Int("length", len(c.APIKey)).
				Int("min_required", minAPIKeyLength).
				Msg("API_KEY is too short for secure authentication - consider using a longer key")
		}
	}
}

// Helper functions for environment variable parsing

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		intValue, err := strconv.ParseInt(value, 10, 32)
		if err == nil {
			return int(intValue)
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Int("default", defaultValue).
			Msg("Invalid integer in environment variable, using default")
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		boolValue, err := strconv.ParseBool(value)
		if err == nil {
			return boolValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Bool("default", defaultValue).
			Msg("Invalid boolean in environment variable, using default")
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err == nil {
			if duration >= 0 {
				return duration
			}
			log.Warn().
				Str("key", key).
				Str("value", value).
				Dur("default", defaultValue).
				Msg("Duration must not be negative, using default")
			return defaultValue
		}
		log.Warn().
			Str("key", key).
			Str("value", value).
			Err(err).
			Dur("default", defaultValue).
			Msg("Invalid duration in environment variable, using default")
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := strings.TrimSpace(part)
			if trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}
