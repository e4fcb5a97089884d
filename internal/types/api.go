package types

// Request validation limits.
const (
	MaxUsernameLength = 256
	MaxPasswordLength = 256
)

// LoginRequest represents an incoming login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Validate validates the request and returns an error if invalid.
func (r *LoginRequest) Validate() error {
	if r.Username == "" {
		return &FieldError{Field: "username", Reason: "is required"}
	}
	if r.Password == "" {
		return &FieldError{Field: "password", Reason: "is required"}
	}
	if len(r.Username) > MaxUsernameLength {
		return &FieldError{Field: "username", Reason: "exceeds maximum length"}
	}
	if len(r.Password) > MaxPasswordLength {
		return &FieldError{Field: "password", Reason: "exceeds maximum length"}
	}
	return nil
}

// FieldError describes a validation failure for a single request field.
type FieldError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	return e.Field + " " + e.Reason
}

// Unwrap allows errors.Is(err, ErrInvalidRequest) checks.
func (e *FieldError) Unwrap() error {
	return ErrInvalidRequest
}

// Outcome classifies the result of a login attempt.
type Outcome int

// Outcome values.
const (
	// OutcomeSuccess means the portal accepted the credentials and a session was established.
	OutcomeSuccess Outcome = iota
	// OutcomeCredentialFailure means the portal rejected the credentials.
	// This is a normal result, not an infrastructure fault.
	OutcomeCredentialFailure
	// OutcomeInfrastructureError means the attempt could not be completed:
	// browser failure, solver failure, timeout, or an unexpected page state.
	OutcomeInfrastructureError
)

// String returns the wire representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeCredentialFailure:
		return "credential_failure"
	case OutcomeInfrastructureError:
		return "infrastructure_error"
	default:
		return "unknown"
	}
}

// LoginResult is the outcome of a single login attempt.
// Every attempt produces a result; failures are values, not panics.
type LoginResult struct {
	Outcome   Outcome
	Message   string
	Cookies   map[string]string // All cookies from the browser context, name -> value
	SessionID string            // Value of the designated session cookie, if present
}

// Succeeded reports whether the attempt established a session.
func (r *LoginResult) Succeeded() bool {
	return r.Outcome == OutcomeSuccess
}

// NewSuccessResult builds a successful result carrying the harvested cookies.
func NewSuccessResult(cookies map[string]string, sessionID string) *LoginResult {
	return &LoginResult{
		Outcome:   OutcomeSuccess,
		Message:   "login successful",
		Cookies:   cookies,
		SessionID: sessionID,
	}
}

// NewCredentialFailureResult builds a result for rejected credentials.
func NewCredentialFailureResult(message string) *LoginResult {
	return &LoginResult{
		Outcome: OutcomeCredentialFailure,
		Message: message,
	}
}

// NewInfrastructureErrorResult builds a result for attempts that could not complete.
func NewInfrastructureErrorResult(message string) *LoginResult {
	return &LoginResult{
		Outcome: OutcomeInfrastructureError,
		Message: message,
	}
}

// LoginResponse is the wire shape returned by the login endpoint.
type LoginResponse struct {
	Success   bool              `json:"success"`
	Message   string            `json:"message"`
	Outcome   string            `json:"outcome"`
	Cookies   map[string]string `json:"cookies,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
}

// ToResponse converts a result to its wire representation.
func (r *LoginResult) ToResponse() *LoginResponse {
	return &LoginResponse{
		Success:   r.Succeeded(),
		Message:   r.Message,
		Outcome:   r.Outcome.String(),
		Cookies:   r.Cookies,
		SessionID: r.SessionID,
	}
}

// HealthResponse is the wire shape returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
