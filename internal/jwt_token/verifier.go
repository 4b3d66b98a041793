package jwttoken

import (
	"context"

	"workspace-audit/pkg/platform/middleware/auth"
)

// Verifier lets the auth middleware check tokens issued by a JWTService.
type Verifier struct {
	service *JWTService
}

func NewVerifier(service *JWTService) *Verifier {
	return &Verifier{service: service}
}

func (v *Verifier) VerifyAdminToken(ctx context.Context, raw string) (*auth.Principal, error) {
	claims, err := v.service.ValidateToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	return &auth.Principal{
		AdminID:   claims.Subject,
		SessionID: claims.SessionID,
		Roles:     claims.Roles,
	}, nil
}

var _ auth.Verifier = (*Verifier)(nil)
