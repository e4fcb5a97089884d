// Package main provides the entry point for the browser login service.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browser-login-go/internal/browser"
	"github.com/Rorqualx/browser-login-go/internal/captcha"
	"github.com/Rorqualx/browser-login-go/internal/config"
	"github.com/Rorqualx/browser-login-go/internal/handlers"
	"github.com/Rorqualx/browser-login-go/internal/login"
	"github.com/Rorqualx/browser-login-go/internal/middleware"
	"github.com/Rorqualx/browser-login-go/internal/selectors"
	"github.com/Rorqualx/browser-login-go/pkg/version"
)

func main() {
	cfg := config.Load()

	// Logging first so validation warnings are visible.
	setupLogging(cfg.LogLevel)
	cfg.Validate()

	printBanner()

	selectorMgr, err := selectors.NewManager(cfg.SelectorsPath, cfg.SelectorsHotReload)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize selectors")
	}

	proxy, err := captcha.ParseProxyURL(cfg.ProxyURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid PROXY_URL")
	}
	solver := captcha.NewClient(captcha.ClientConfig{
		APIKey:       cfg.CapSolverAPIKey,
		BaseURL:      cfg.CapSolverBaseURL,
		Proxy:        proxy,
		PollInterval: cfg.SolverPollInterval,
		MaxPolls:     cfg.SolverMaxPolls,
	})
	if solver.IsConfigured() {
		if balance, err := solver.Balance(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Could not query solver balance")
		} else {
			log.Info().Float64("balance", balance).Msg("Solver account balance")
		}
	}

	log.Info().Msg("Launching browser...")
	browserMgr := browser.NewManager(cfg)
	if err := browserMgr.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to launch browser")
	}

	loginSvc := login.NewService(login.BrowserPages{Manager: browserMgr}, solver, selectorMgr, cfg)
	handler := handlers.New(loginSvc, cfg)

	// Middleware runs outside-in: Recovery catches everything,
	// Logging sees every request, auth and limits gate the rest.
	var finalHandler http.Handler = handler.Routes()
	finalHandler = middleware.SecurityHeaders(finalHandler)
	finalHandler = middleware.CORS(middleware.CORSConfig{AllowedOrigins: cfg.CORSAllowedOrigins})(finalHandler)
	finalHandler = middleware.APIKey(cfg)(finalHandler)

	var rateLimiter *middleware.RateLimitMiddleware
	if cfg.RateLimitEnabled {
		log.Info().
			Int("requests_per_minute", cfg.RateLimitRPM).
			Bool("trust_proxy", cfg.TrustProxy).
			Msg("Rate limiting enabled")
		rateLimiter = middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.TrustProxy)
		finalHandler = rateLimiter.Handler()(finalHandler)
	}

	finalHandler = middleware.Logging(finalHandler)
	finalHandler = middleware.Recovery(finalHandler)

	// A login attempt can legitimately take navigation + solve + submit
	// wait, so the write timeout sits above that sum.
	requestBudget := cfg.NavigationTimeout + cfg.SubmitWaitTimeout +
		time.Duration(cfg.SolverMaxPolls)*cfg.SolverPollInterval

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      finalHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: requestBudget + 10*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().
			Str("address", addr).
			Str("portal", cfg.PortalURL).
			Bool("solver_configured", solver.IsConfigured()).
			Bool("rate_limit_enabled", cfg.RateLimitEnabled).
			Msg("Service is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	if rateLimiter != nil {
		rateLimiter.Close()
	}
	if err := selectorMgr.Close(); err != nil {
		log.Error().Err(err).Msg("Selector manager close error")
	}
	if err := browserMgr.Stop(); err != nil {
		log.Error().Err(err).Msg("Browser stop error")
	}

	log.Info().Msg("Shutdown complete")
}

// setupLogging configures zerolog based on the log level.
func setupLogging(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printBanner prints the startup banner.
func printBanner() {
	banner := `
 ____                                  _                _
| __ ) _ __ _____      _____  ___ _ __| |    ___   __ _(_)_ __
|  _ \| '__/ _ \ \ /\ / / __|/ _ \ '__| |   / _ \ / _' | | '_ \
| |_) | | | (_) \ V  V /\__ \  __/ |  | |__| (_) | (_| | | | | |
|____/|_|  \___/ \_/\_/ |___/\___|_|  |_____\___/ \__, |_|_| |_|
                                                  |___/
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting browser login service")
}
