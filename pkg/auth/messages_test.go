package auth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"wrong credentials", fmt.Errorf("login: %w", ErrInvalidCredentials), MsgInvalidCredentials},
		{"bad signature", fmt.Errorf("token validation failed: %w", jwt.ErrTokenSignatureInvalid), MsgInvalidCredentials},
		{"too many attempts", ErrTooManyAttempts, MsgTooManyAttempts},
		{"disabled", ErrAccountDisabled, MsgAccountDisabled},
		{"expired", fmt.Errorf("token validation failed: %w", jwt.ErrTokenExpired), MsgSessionExpired},
		{"network", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, MsgNetwork},
		{"timeout", context.DeadlineExceeded, MsgNetwork},
		{"missing", ErrMissingAuthorization, MsgGeneric},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("UserMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}
