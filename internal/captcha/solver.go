// Package captcha provides external challenge solver integration.
package captcha

import "context"

// ChallengeSolver is the interface the login flow depends on.
// Implementations submit a solve task to a remote service and
// return the resulting token string.
type ChallengeSolver interface {
	// SolveTurnstile solves a Cloudflare Turnstile challenge for the given page.
	SolveTurnstile(ctx context.Context, pageURL, siteKey string) (string, error)

	// SolveRecaptchaV2 solves a Google reCAPTCHA v2 challenge for the given page.
	SolveRecaptchaV2(ctx context.Context, pageURL, siteKey string) (string, error)
}
