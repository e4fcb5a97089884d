package captcha

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browser-login-go/internal/types"
)

const (
	// CapSolver API endpoints
	capSolverBaseURL    = "https://api.capsolver.com"
	capSolverCreateTask = "/createTask"
	capSolverGetResult  = "/getTaskResult"
	capSolverGetBalance = "/getBalance"

	// Task types. The proxyless variants let the service solve from its
	// own egress; the proxied variants route through our proxy.
	taskTurnstile          = "AntiTurnstileTask"
	taskTurnstileProxyless = "AntiTurnstileTaskProxyLess"
	taskRecaptcha          = "ReCaptchaV2Task"
	taskRecaptchaProxyless = "ReCaptchaV2TaskProxyLess"

	defaultPollInterval = 2 * time.Second
	defaultMaxPolls     = 60
)

// challengeKind selects the task type and the solution field to read.
type challengeKind int

const (
	kindTurnstile challengeKind = iota
	kindRecaptchaV2
)

// Client talks to the CapSolver HTTP API.
type Client struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	proxy        *ProxyDescriptor
	pollInterval time.Duration
	maxPolls     int
}

// ClientConfig contains configuration for the CapSolver client.
type ClientConfig struct {
	APIKey       string
	BaseURL      string // Override for testing
	Proxy        *ProxyDescriptor
	PollInterval time.Duration
	MaxPolls     int
}

// NewClient creates a new CapSolver client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = capSolverBaseURL
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}

	maxPolls := cfg.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}

	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      baseURL,
		proxy:        cfg.Proxy,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "capsolver"
}

// IsConfigured returns true if an API key is set.
func (c *Client) IsConfigured() bool {
	return c.apiKey != ""
}

// createTaskRequest is the request body for createTask.
type createTaskRequest struct {
	ClientKey string   `json:"clientKey"`
	Task      taskSpec `json:"task"`
}

// taskSpec is the task specification for a challenge solve.
type taskSpec struct {
	Type       string           `json:"type"`
	WebsiteURL string           `json:"websiteURL"`
	WebsiteKey string           `json:"websiteKey"`
	Proxy      *ProxyDescriptor `json:"proxy,omitempty"`
}

// createTaskResponse is the response from createTask.
type createTaskResponse struct {
	ErrorID          int    `json:"errorId"`
	ErrorCode        string `json:"errorCode,omitempty"`
	ErrorDescription string `json:"errorDescription,omitempty"`
	TaskID           string `json:"taskId,omitempty"`
}

// getResultRequest is the request body for getTaskResult.
type getResultRequest struct {
	ClientKey string `json:"clientKey"`
	TaskID    string `json:"taskId"`
}

// getResultResponse is the response from getTaskResult.
type getResultResponse struct {
	ErrorID          int       `json:"errorId"`
	ErrorCode        string    `json:"errorCode,omitempty"`
	ErrorDescription string    `json:"errorDescription,omitempty"`
	Status           string    `json:"status"` // "idle", "processing", "ready", or "failed"
	Solution         *solution `json:"solution,omitempty"`
}

// solution carries the token. Turnstile solves populate Token,
// reCAPTCHA v2 solves populate GRecaptchaResponse.
type solution struct {
	Token              string `json:"token,omitempty"`
	GRecaptchaResponse string `json:"gRecaptchaResponse,omitempty"`
}

// balanceResponse is the response from getBalance.
type balanceResponse struct {
	ErrorID          int     `json:"errorId"`
	ErrorCode        string  `json:"errorCode,omitempty"`
	ErrorDescription string  `json:"errorDescription,omitempty"`
	Balance          float64 `json:"balance"`
}

// SolveTurnstile solves a Cloudflare Turnstile challenge and returns the token.
func (c *Client) SolveTurnstile(ctx context.Context, pageURL, siteKey string) (string, error) {
	return c.solve(ctx, kindTurnstile, pageURL, siteKey)
}

// SolveRecaptchaV2 solves a Google reCAPTCHA v2 challenge and returns the token.
func (c *Client) SolveRecaptchaV2(ctx context.Context, pageURL, siteKey string) (string, error) {
	return c.solve(ctx, kindRecaptchaV2, pageURL, siteKey)
}

// solve creates a task and polls until a token is ready, the poll budget is
// exhausted, or the provider reports an error.
func (c *Client) solve(ctx context.Context, kind challengeKind, pageURL, siteKey string) (string, error) {
	if !c.IsConfigured() {
		return "", fmt.Errorf("capsolver API key not configured")
	}

	startTime := time.Now()

	taskID, err := c.createTask(ctx, kind, pageURL, siteKey)
	if err != nil {
		return "", err
	}

	log.Debug().
		Str("task_id", taskID).
		Str("sitekey", truncateKey(siteKey)).
		Bool("proxied", c.proxy != nil).
		Msg("CapSolver task created")

	token, err := c.pollResult(ctx, kind, taskID)
	if err != nil {
		return "", err
	}

	log.Info().
		Str("task_id", taskID).
		Dur("solve_time", time.Since(startTime)).
		Msg("Challenge solved")

	return token, nil
}

// taskType selects the task type based on challenge kind and proxy presence.
func (c *Client) taskType(kind challengeKind) string {
	switch kind {
	case kindRecaptchaV2:
		if c.proxy != nil {
			return taskRecaptcha
		}
		return taskRecaptchaProxyless
	default:
		if c.proxy != nil {
			return taskTurnstile
		}
		return taskTurnstileProxyless
	}
}

// createTask submits a new solving task.
func (c *Client) createTask(ctx context.Context, kind challengeKind, pageURL, siteKey string) (string, error) {
	taskReq := createTaskRequest{
		ClientKey: c.apiKey,
		Task: taskSpec{
			Type:       c.taskType(kind),
			WebsiteURL: pageURL,
			WebsiteKey: siteKey,
			Proxy:      c.proxy,
		},
	}

	var taskResp createTaskResponse
	if err := c.post(ctx, capSolverCreateTask, taskReq, &taskResp); err != nil {
		return "", fmt.Errorf("failed to create task: %w", err)
	}

	if taskResp.ErrorID != 0 {
		return "", c.handleError(taskResp.ErrorCode, taskResp.ErrorDescription, "")
	}
	if taskResp.TaskID == "" {
		return "", types.NewSolverRejectedError(c.Name(), "empty_task_id", "provider returned no task id")
	}

	return taskResp.TaskID, nil
}

// pollResult polls for the task result until ready or the budget is exhausted.
// A non-zero errorId from the provider terminates polling immediately.
func (c *Client) pollResult(ctx context.Context, kind challengeKind, taskID string) (string, error) {
	for poll := 0; poll < c.maxPolls; poll++ {
		if !sleepWithContext(ctx, c.pollInterval) {
			return "", fmt.Errorf("solve canceled: %w", ctx.Err())
		}

		result, err := c.getResult(ctx, taskID)
		if err != nil {
			return "", err
		}

		switch result.Status {
		case "ready":
			token := tokenFromSolution(kind, result.Solution)
			if token == "" {
				return "", types.NewSolverRejectedError(c.Name(), "empty_solution", "ready status but no token")
			}
			return token, nil
		case "failed":
			return "", types.NewSolverRejectedError(c.Name(), "failed", "task failed")
		default:
			log.Debug().
				Str("task_id", taskID).
				Str("status", result.Status).
				Int("poll", poll+1).
				Msg("CapSolver task still processing")
		}
	}

	return "", types.NewSolverTimeoutError(c.Name(), taskID)
}

// getResult retrieves the result for a task.
func (c *Client) getResult(ctx context.Context, taskID string) (*getResultResponse, error) {
	resultReq := getResultRequest{
		ClientKey: c.apiKey,
		TaskID:    taskID,
	}

	var resultResp getResultResponse
	if err := c.post(ctx, capSolverGetResult, resultReq, &resultResp); err != nil {
		return nil, fmt.Errorf("failed to get task result: %w", err)
	}

	if resultResp.ErrorID != 0 {
		return nil, c.handleError(resultResp.ErrorCode, resultResp.ErrorDescription, taskID)
	}

	return &resultResp, nil
}

// Balance retrieves the current account balance.
func (c *Client) Balance(ctx context.Context) (float64, error) {
	if !c.IsConfigured() {
		return 0, fmt.Errorf("capsolver API key not configured")
	}

	reqBody := map[string]string{"clientKey": c.apiKey}

	var balanceResp balanceResponse
	if err := c.post(ctx, capSolverGetBalance, reqBody, &balanceResp); err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}

	if balanceResp.ErrorID != 0 {
		return 0, c.handleError(balanceResp.ErrorCode, balanceResp.ErrorDescription, "")
	}

	return balanceResp.Balance, nil
}

// post sends a JSON POST request and decodes the JSON response.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody interface{}) error {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := json.Unmarshal(data, respBody); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	return nil
}

// tokenFromSolution extracts the token for the given challenge kind.
func tokenFromSolution(kind challengeKind, sol *solution) string {
	if sol == nil {
		return ""
	}
	if kind == kindRecaptchaV2 {
		return sol.GRecaptchaResponse
	}
	return sol.Token
}

// handleError converts CapSolver error codes to appropriate error types.
func (c *Client) handleError(code, description, taskID string) error {
	switch code {
	case "ERROR_ZERO_BALANCE":
		return types.NewSolverBalanceError(c.Name())
	case "ERROR_NO_AVAILABLE_WORKERS":
		return types.NewSolverRejectedError(c.Name(), code, "no workers available, try again later")
	case "ERROR_INVALID_TASK_DATA", "ERROR_WRONG_WEBSITEKEY":
		return types.NewSolverRejectedError(c.Name(), code, "invalid sitekey or task data")
	case "ERROR_CAPTCHA_UNSOLVABLE":
		return types.NewSolverRejectedError(c.Name(), code, "challenge could not be solved")
	case "ERROR_KEY_DENIED", "ERROR_INVALID_CLIENTKEY":
		return types.NewSolverRejectedError(c.Name(), code, "invalid API key")
	case "ERROR_TASK_NOT_FOUND":
		return types.NewSolverRejectedError(c.Name(), code, "task not found or expired")
	default:
		msg := description
		if msg == "" {
			msg = code
		}
		return &types.SolverError{
			Provider: c.Name(),
			TaskID:   taskID,
			Code:     code,
			Message:  fmt.Sprintf("CapSolver error: %s", msg),
			Err:      types.ErrSolverRejected,
		}
	}
}

// sleepWithContext sleeps for the specified duration or until context is canceled.
// Returns true if the sleep completed normally.
func sleepWithContext(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

// truncateKey shortens a sitekey for logging.
func truncateKey(key string) string {
	if len(key) <= 10 {
		return key
	}
	return key[:10] + "..."
}
