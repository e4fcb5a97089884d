package types

import (
	"errors"
	"strings"
	"testing"
)

func TestLoginRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     LoginRequest
		wantErr bool
		errPart string
	}{
		{
			name: "valid request",
			req:  LoginRequest{Username: "student01", Password: "hunter2"},
		},
		{
			name:    "missing username",
			req:     LoginRequest{Password: "hunter2"},
			wantErr: true,
			errPart: "username",
		},
		{
			name:    "missing password",
			req:     LoginRequest{Username: "student01"},
			wantErr: true,
			errPart: "password",
		},
		{
			name:    "username too long",
			req:     LoginRequest{Username: strings.Repeat("a", MaxUsernameLength+1), Password: "x"},
			wantErr: true,
			errPart: "username",
		},
		{
			name:    "password too long",
			req:     LoginRequest{Username: "student01", Password: strings.Repeat("b", MaxPasswordLength+1)},
			wantErr: true,
			errPart: "password",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				if !errors.Is(err, ErrInvalidRequest) {
					t.Errorf("Validate() error does not wrap ErrInvalidRequest: %v", err)
				}
				if !strings.Contains(err.Error(), tt.errPart) {
					t.Errorf("Validate() error = %q, want mention of %q", err, tt.errPart)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() error = %v, want nil", err)
			}
		})
	}
}

func TestOutcome_String(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{OutcomeSuccess, "success"},
		{OutcomeCredentialFailure, "credential_failure"},
		{OutcomeInfrastructureError, "infrastructure_error"},
		{Outcome(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.outcome.String(); got != tt.want {
			t.Errorf("Outcome(%d).String() = %q, want %q", tt.outcome, got, tt.want)
		}
	}
}

func TestLoginResult_ToResponse(t *testing.T) {
	cookies := map[string]string{"ASP.NET_SessionId": "abc123", "other": "v"}
	result := NewSuccessResult(cookies, "abc123")

	resp := result.ToResponse()
	if !resp.Success {
		t.Error("Success = false, want true")
	}
	if resp.Outcome != "success" {
		t.Errorf("Outcome = %q, want %q", resp.Outcome, "success")
	}
	if resp.SessionID != "abc123" {
		t.Errorf("SessionID = %q, want %q", resp.SessionID, "abc123")
	}
	if len(resp.Cookies) != 2 {
		t.Errorf("len(Cookies) = %d, want 2", len(resp.Cookies))
	}
}

func TestLoginResult_CredentialFailure(t *testing.T) {
	result := NewCredentialFailureResult("still on login page")

	if result.Succeeded() {
		t.Error("Succeeded() = true, want false")
	}
	resp := result.ToResponse()
	if resp.Success {
		t.Error("Success = true, want false")
	}
	if resp.Outcome != "credential_failure" {
		t.Errorf("Outcome = %q, want %q", resp.Outcome, "credential_failure")
	}
	if len(resp.Cookies) != 0 {
		t.Errorf("Cookies = %v, want empty", resp.Cookies)
	}
}

func TestSolverError_Unwrap(t *testing.T) {
	err := NewSolverTimeoutError("capsolver", "task-1")
	if !errors.Is(err, ErrSolverTimeout) {
		t.Error("timeout error does not wrap ErrSolverTimeout")
	}

	rejected := NewSolverRejectedError("capsolver", "ERROR_INVALID_TASK_DATA", "bad sitekey")
	if !errors.Is(rejected, ErrSolverRejected) {
		t.Error("rejected error does not wrap ErrSolverRejected")
	}
	if !strings.Contains(rejected.Error(), "bad sitekey") {
		t.Errorf("Error() = %q, want reason included", rejected.Error())
	}
}
