package auth

import (
	"context"
	"errors"
	"net"

	"github.com/golang-jwt/jwt/v5"
)

// Errors reported by identity providers in front of the API.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTooManyAttempts    = errors.New("too many attempts")
	ErrAccountDisabled    = errors.New("account disabled")
)

// User-facing authentication messages.
const (
	MsgInvalidCredentials = "Invalid email or password. Please try again."
	MsgTooManyAttempts    = "Too many attempts. Please wait a moment and try again."
	MsgNetwork            = "Unable to reach the authentication service. Check your connection and try again."
	MsgAccountDisabled    = "This account has been disabled. Contact your administrator."
	MsgSessionExpired     = "Your session has expired. Please sign in again."
	MsgGeneric            = "Authentication required."
)

// UserMessage maps an authentication failure to a message safe to show users.
func UserMessage(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTooManyAttempts):
		return MsgTooManyAttempts
	case errors.Is(err, ErrAccountDisabled):
		return MsgAccountDisabled
	case errors.Is(err, jwt.ErrTokenExpired):
		return MsgSessionExpired
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenMalformed),
		errors.Is(err, jwt.ErrTokenUnverifiable):
		return MsgInvalidCredentials
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return MsgNetwork
	default:
		return MsgGeneric
	}
}
