package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

// CookieName is the cookie browser clients send the JWT in.
const CookieName = "survey_jwt"

// Common authentication errors.
var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
	ErrMissingSubject       = errors.New("missing subject in token")
)

// AuthService defines the interface for authentication operations.
type AuthService interface {
	// ValidateRequest extracts and validates a JWT from the request.
	// It checks for the token in:
	//   1. Cookie named "survey_jwt" (browser clients)
	//   2. Authorization header with "Bearer" scheme (API clients)
	// Returns the validated claims, the raw token string, or an error.
	ValidateRequest(r *http.Request) (*Claims, string, error)
}

type authService struct {
	validator TokenValidator
	// devUserID stands in for a missing token when non-empty.
	devUserID string
	logger    *zap.Logger
}

// NewAuthService creates a new AuthService. A non-empty devUserID lets
// requests without any token through as that user; pass it only when
// signature verification is disabled.
func NewAuthService(validator TokenValidator, devUserID string, logger *zap.Logger) AuthService {
	return &authService{
		validator: validator,
		devUserID: devUserID,
		logger:    logger,
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	var tokenString string
	var tokenSource string

	if cookie, err := r.Cookie(CookieName); err == nil {
		tokenString = cookie.Value
		tokenSource = "cookie"
	} else {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if s.devUserID != "" {
				claims := &Claims{}
				claims.Subject = s.devUserID
				return claims, "", nil
			}
			s.logger.Debug("No JWT found in request",
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method))
			return nil, "", ErrMissingAuthorization
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			s.logger.Debug("Invalid Authorization header format",
				zap.String("path", r.URL.Path))
			return nil, "", ErrInvalidAuthFormat
		}
		tokenString = parts[1]
		tokenSource = "header"
	}

	claims, err := s.validator.ValidateToken(tokenString)
	if err != nil {
		s.logger.Debug("JWT validation failed",
			zap.Error(err),
			zap.String("path", r.URL.Path),
			zap.String("token_source", tokenSource))
		return nil, "", err
	}
	if claims.Subject == "" {
		return nil, "", ErrMissingSubject
	}

	return claims, tokenString, nil
}

var _ AuthService = (*authService)(nil)
