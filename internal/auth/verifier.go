package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wallet-adapter/connector/internal/config"
)

// Scope constants
const (
	ScopeConnect = "wallet:connect"
	ScopeControl = "wallet:control"
	ScopeRead    = "wallet:read"
	ScopeSign    = "wallet:sign"
)

// Claims represents the parsed token claims.
type Claims struct {
	Subject string   `json:"sub"`
	Scopes  []string `json:"scopes"`
}

// HasScope reports whether the claims grant scope.
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// tokenClaims is the JWT body.
type tokenClaims struct {
	Scopes []string `json:"scopes"`
	jwt.RegisteredClaims
}

// VerifierConfig holds configuration for JWT verification.
type VerifierConfig struct {
	// RS256 configuration
	PublicKeyPEM string

	// HS256 configuration
	SecretKey string

	// Algorithm preference
	Algorithm string // "RS256" or "HS256"

	// Issuer, when set, must match the iss claim
	Issuer string
}

// Verifier handles JWT token verification with support for RS256 and HS256.
type Verifier struct {
	config    VerifierConfig
	publicKey *rsa.PublicKey
}

// NewVerifier creates a new JWT verifier.
func NewVerifier(config VerifierConfig) (*Verifier, error) {
	v := &Verifier{config: config}

	switch config.Algorithm {
	case "RS256":
		if err := v.loadPublicKeyFromPEM(config.PublicKeyPEM); err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
	case "HS256":
		if config.SecretKey == "" {
			return nil, fmt.Errorf("HS256 requires secret key")
		}
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", config.Algorithm)
	}

	return v, nil
}

// NewVerifierFromConfig builds a verifier from the auth section. It returns
// nil when neither a secret nor a public key file is configured.
func NewVerifierFromConfig(cfg config.AuthConfig) (*Verifier, error) {
	switch {
	case cfg.Secret != "":
		return NewVerifier(VerifierConfig{Algorithm: "HS256", SecretKey: cfg.Secret, Issuer: cfg.Issuer})
	case cfg.PublicKeyFile != "":
		pemData, err := os.ReadFile(cfg.PublicKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read public key: %w", err)
		}
		return NewVerifier(VerifierConfig{Algorithm: "RS256", PublicKeyPEM: string(pemData), Issuer: cfg.Issuer})
	default:
		return nil, nil
	}
}

// VerifyToken verifies a JWT token and returns the claims.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{v.config.Algorithm}),
		jwt.WithExpirationRequired(),
	}
	if v.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.config.Issuer))
	}

	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keyFunc, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return v.extractClaims(claims)
}

func (v *Verifier) keyFunc(token *jwt.Token) (interface{}, error) {
	switch v.config.Algorithm {
	case "RS256":
		return v.publicKey, nil
	case "HS256":
		return []byte(v.config.SecretKey), nil
	default:
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
}

// extractClaims validates the subject and scopes of a parsed token.
func (v *Verifier) extractClaims(claims *tokenClaims) (*Claims, error) {
	if claims.Subject == "" {
		return nil, fmt.Errorf("missing or invalid 'sub' claim")
	}

	if !validateScopes(claims.Scopes) {
		return nil, fmt.Errorf("invalid scopes: %v", claims.Scopes)
	}

	return &Claims{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
	}, nil
}

// validateScopes validates that all scopes are known and at least one is present.
func validateScopes(scopes []string) bool {
	validScopes := map[string]bool{
		ScopeConnect: true,
		ScopeControl: true,
		ScopeRead:    true,
		ScopeSign:    true,
	}

	for _, scope := range scopes {
		if !validScopes[scope] {
			return false
		}
	}

	return len(scopes) > 0
}

// loadPublicKeyFromPEM loads a public key from PEM format.
func (v *Verifier) loadPublicKeyFromPEM(pemData string) error {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return fmt.Errorf("failed to decode PEM block")
	}

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return fmt.Errorf("failed to parse public key: %w", err)
	}

	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("not an RSA public key")
	}

	v.publicKey = rsaPub
	return nil
}
