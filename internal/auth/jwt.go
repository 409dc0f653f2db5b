// Package auth verifies the bearer tokens presented to admin routes.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coursebay/coursebay/backend/go-services/internal/config"
	"github.com/coursebay/coursebay/backend/go-services/pkg/middleware"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNotConfigured = errors.New("no token verifier configured")

// claimsToken exposes parsed JWT claims through middleware.Token.
type claimsToken struct {
	claims jwt.MapClaims
}

func (t *claimsToken) Claims(v interface{}) error {
	b, err := json.Marshal(t.claims)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// JWTVerifier accepts HS256 tokens signed with a shared secret.
type JWTVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

func (v *JWTVerifier) Verify(_ context.Context, raw string) (middleware.Token, error) {
	claims := jwt.MapClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}); err != nil {
		return nil, err
	}
	return &claimsToken{claims: claims}, nil
}

// SignToken issues an HS256 token for service-to-service calls and tests.
func SignToken(secret, subject string, roles []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   subject,
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// NewVerifier picks Keycloak OIDC verification when configured, then the
// shared JWT secret.
func NewVerifier(ctx context.Context, cfg config.AuthConfig) (middleware.Verifier, error) {
	if cfg.KeycloakURL != "" && cfg.KeycloakRealm != "" {
		issuer := strings.TrimRight(cfg.KeycloakURL, "/") + "/realms/" + cfg.KeycloakRealm
		v, err := NewOIDCVerifier(ctx, issuer, cfg.KeycloakClientID)
		if err != nil {
			return nil, fmt.Errorf("keycloak verifier: %w", err)
		}
		return v, nil
	}
	if cfg.JWTSecret != "" {
		return NewJWTVerifier(cfg.JWTSecret), nil
	}
	return nil, ErrNotConfigured
}
