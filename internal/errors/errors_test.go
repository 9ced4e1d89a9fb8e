package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "error without cause",
			err: &AppError{
				Code:    ErrCodeNotFound,
				Message: "user not found",
			},
			want: "user not found",
		},
		{
			name: "error with cause",
			err: &AppError{
				Code:    ErrCodeRoleQuery,
				Message: "role lookup failed",
				Cause:   errors.New("connection reset"),
			},
			want: "role lookup failed: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("AppError.Error() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := errors.New("underlying error")
	err := Network(cause, "provider unreachable")

	if !errors.Is(err, cause) {
		t.Errorf("errors.Is(Network(...), cause) = false, want true")
	}
}

func TestConstructors(t *testing.T) {
	cause := errors.New("boom")
	tests := []struct {
		name string
		err  *AppError
		want ErrorCode
	}{
		{name: "not found", err: NotFound("x"), want: ErrCodeNotFound},
		{name: "not foundf", err: NotFoundf("user %s", "u1"), want: ErrCodeNotFound},
		{name: "conflict", err: Conflict("x"), want: ErrCodeConflict},
		{name: "validation", err: Validation("x"), want: ErrCodeValidation},
		{name: "internal", err: Internal("x"), want: ErrCodeInternal},
		{name: "unsupported", err: Unsupported("x"), want: ErrCodeUnsupported},
		{name: "invalid credentials", err: InvalidCredentials("x"), want: ErrCodeInvalidCredentials},
		{name: "network", err: Network(cause, "x"), want: ErrCodeNetwork},
		{name: "role query", err: RoleQuery(cause, "x"), want: ErrCodeRoleQuery},
		{name: "resolution timeout", err: ResolutionTimeout("x"), want: ErrCodeResolutionTimeout},
		{name: "redirect guard", err: RedirectGuardViolation("x"), want: ErrCodeRedirectGuard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.want {
				t.Errorf("Code = %v, want %v", tt.err.Code, tt.want)
			}
		})
	}
}

func TestValidationField(t *testing.T) {
	err := ValidationField("email", "email is required")
	if err.Code != ErrCodeValidation {
		t.Errorf("ValidationField().Code = %v, want %v", err.Code, ErrCodeValidation)
	}
	if err.Field != "email" {
		t.Errorf("ValidationField().Field = %v, want email", err.Field)
	}
}

func TestWrap_NilError(t *testing.T) {
	if err := Wrap(nil, ErrCodeInternal, "ignored"); err != nil {
		t.Errorf("Wrap(nil) = %v, want nil", err)
	}
}

func TestWrapf(t *testing.T) {
	err := Wrapf(errors.New("eof"), ErrCodeNetwork, "get session for %s", "c1")
	if err.Message != "get session for c1" {
		t.Errorf("Wrapf().Message = %q", err.Message)
	}
}

func TestPredicates_ThroughWrapping(t *testing.T) {
	base := InvalidCredentials("Invalid login credentials")
	wrapped := fmt.Errorf("sign in: %w", base)

	if !IsInvalidCredentials(wrapped) {
		t.Error("IsInvalidCredentials() = false through fmt.Errorf wrapping")
	}
	if IsConflict(wrapped) {
		t.Error("IsConflict() = true for invalid credentials")
	}
	if !IsAppError(wrapped, ErrCodeInvalidCredentials) {
		t.Error("IsAppError() = false for matching code")
	}
	if IsNotFound(errors.New("plain")) {
		t.Error("IsNotFound() = true for plain error")
	}
	if !IsUnsupported(Unsupported("sign-up disabled")) {
		t.Error("IsUnsupported() = false")
	}
	if !IsTimeout(&AppError{Code: ErrCodeTimeout}) || !IsCanceled(&AppError{Code: ErrCodeCanceled}) {
		t.Error("IsTimeout/IsCanceled mismatch")
	}
	if !IsValidation(ValidationField("role", "bad role")) {
		t.Error("IsValidation() = false")
	}
}

func TestGetCodeAndField(t *testing.T) {
	if got := GetCode(errors.New("plain")); got != "" {
		t.Errorf("GetCode(plain) = %q, want empty", got)
	}
	err := fmt.Errorf("ctx: %w", ValidationField("password", "too short"))
	if got := GetCode(err); got != ErrCodeValidation {
		t.Errorf("GetCode() = %q", got)
	}
	if got := GetField(err); got != "password" {
		t.Errorf("GetField() = %q", got)
	}
	if got := GetField(errors.New("plain")); got != "" {
		t.Errorf("GetField(plain) = %q", got)
	}
}

func TestUserMessage(t *testing.T) {
	err := fmt.Errorf("sign in: %w", InvalidCredentials("Invalid login credentials"))
	if got := UserMessage(err, "fallback"); got != "Invalid login credentials" {
		t.Errorf("UserMessage() = %q", got)
	}
	if got := UserMessage(errors.New("boom"), "Something went wrong"); got != "Something went wrong" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
}
