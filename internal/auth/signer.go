package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wallet-adapter/connector/internal/config"
)

// SignerConfig holds configuration for HS256 token issuance.
type SignerConfig struct {
	SecretKey string
	Issuer    string
	TTL       time.Duration
}

// Signer issues HS256 tokens.
type Signer struct {
	config SignerConfig
	now    func() time.Time
}

// NewSigner creates a token signer.
func NewSigner(config SignerConfig) (*Signer, error) {
	if config.SecretKey == "" {
		return nil, fmt.Errorf("HS256 requires secret key")
	}
	if config.TTL <= 0 {
		return nil, fmt.Errorf("token TTL must be positive, got %v", config.TTL)
	}
	return &Signer{config: config, now: time.Now}, nil
}

// NewSignerFromConfig builds a signer from the auth section. It returns nil
// when no secret is configured.
func NewSignerFromConfig(cfg config.AuthConfig) (*Signer, error) {
	if cfg.Secret == "" {
		return nil, nil
	}
	return NewSigner(SignerConfig{SecretKey: cfg.Secret, Issuer: cfg.Issuer, TTL: cfg.TokenTTL})
}

// Sign issues a token for subject carrying scopes.
func (s *Signer) Sign(subject string, scopes ...string) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("subject cannot be empty")
	}
	if !validateScopes(scopes) {
		return "", fmt.Errorf("invalid scopes: %v", scopes)
	}

	now := s.now()
	claims := tokenClaims{
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.TTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
