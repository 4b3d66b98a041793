// Package jwttoken issues and validates the HS256 tokens that authenticate
// administrators on the audit API.
package jwttoken

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	dErrors "workspace-audit/pkg/domain-errors"
	"workspace-audit/pkg/platform/middleware/requesttime"
)

// DevSigningKey signs tokens outside production when JWT_SIGNING_KEY is unset.
// cmd/tokengen uses the same key.
const DevSigningKey = "dev-secret-key-change-in-production"

// AdminClaims are the claims carried by an admin access token. The subject is
// the admin ID.
type AdminClaims struct {
	SessionID string   `json:"sid,omitempty"`
	Roles     []string `json:"roles"`
	jwt.RegisteredClaims
}

// JWTService handles admin token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	tokenTTL   time.Duration
}

func NewJWTService(signingKey, issuer string, tokenTTL time.Duration) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		tokenTTL:   tokenTTL,
	}
}

// GenerateAdminToken signs a token for adminID holding roles.
func (s *JWTService) GenerateAdminToken(ctx context.Context, adminID, sessionID string, roles []string) (string, error) {
	if adminID == "" {
		return "", dErrors.New(dErrors.CodeValidation, "admin id is required")
	}
	if len(roles) == 0 {
		return "", dErrors.New(dErrors.CodeValidation, "roles cannot be empty")
	}

	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	now := requesttime.Now(ctx)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		SessionID: sessionID,
		Roles:     roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   adminID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        hex.EncodeToString(b),
		},
	})
	return token.SignedString(s.signingKey)
}

// clockSkew is tolerated on exp, nbf and iat.
const clockSkew = 30 * time.Second

// ValidateToken verifies signature, algorithm, expiry and issuer. Expiry is
// judged against the request time carried by ctx.
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*AdminClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return requesttime.Now(ctx) }),
		jwt.WithLeeway(clockSkew),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	parsed, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(*jwt.Token) (any, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*AdminClaims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Subject == "" {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token has no subject")
	}
	return claims, nil
}
