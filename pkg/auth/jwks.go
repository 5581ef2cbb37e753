package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// TokenValidator validates JWT strings.
type TokenValidator interface {
	// ValidateToken validates a JWT token string and returns the claims.
	ValidateToken(tokenString string) (*Claims, error)
	// Close releases any resources held by the validator.
	Close()
}

// JWKSConfig contains configuration for the JWKS client.
type JWKSConfig struct {
	// EnableVerification controls whether JWT signatures are verified.
	// Set to false for development mode (parses tokens without verification).
	EnableVerification bool
	// JWKSURL verifies RS256/ES256 tokens against a key set.
	JWKSURL string
	// Secret verifies HS256 tokens when JWKSURL is empty.
	Secret string
}

// JWKSClient validates JWT tokens against a JWKS endpoint or a shared secret.
type JWKSClient struct {
	jwks   keyfunc.Keyfunc
	cancel context.CancelFunc
	config *JWKSConfig
}

// NewJWKSClient creates a new JWKS client with the given configuration.
// If EnableVerification is true and JWKSURL is set, the key set is fetched now
// and refreshed in the background until Close.
func NewJWKSClient(config *JWKSConfig) (*JWKSClient, error) {
	client := &JWKSClient{config: config}

	if !config.EnableVerification {
		return client, nil
	}

	switch {
	case config.JWKSURL != "":
		ctx, cancel := context.WithCancel(context.Background())
		jwks, err := keyfunc.NewDefaultCtx(ctx, []string{config.JWKSURL})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to create JWKS client for %s: %w", config.JWKSURL, err)
		}
		client.jwks = jwks
		client.cancel = cancel
	case config.Secret == "":
		return nil, errors.New("verification requires a JWKS URL or a secret")
	}

	return client, nil
}

// ValidateToken validates a JWT token and returns the claims.
// If verification is disabled, it parses the token without signature validation.
func (c *JWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	if !c.config.EnableVerification {
		return c.parseUnverifiedToken(tokenString)
	}

	var keyFn jwt.Keyfunc
	methods := []string{"HS256"}
	if c.jwks != nil {
		keyFn = c.jwks.Keyfunc
		methods = []string{"RS256", "ES256"}
	} else {
		secret := []byte(c.config.Secret)
		keyFn = func(*jwt.Token) (interface{}, error) { return secret, nil }
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, keyFn, jwt.WithValidMethods(methods))
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}
	if claims.Subject == "" {
		return nil, ErrMissingSubject
	}

	return claims, nil
}

// parseUnverifiedToken parses a JWT without verifying the signature.
// Used in development mode when EnableVerification is false.
func (c *JWKSClient) parseUnverifiedToken(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, _, err := parser.ParseUnverified(tokenString, &Claims{})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, errors.New("invalid claims type")
	}

	return claims, nil
}

// Close stops the background key refresh.
func (c *JWKSClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

var _ TokenValidator = (*JWKSClient)(nil)
