package jwttoken

import (
	dErrors "namereg/pkg/domain-errors"
	authmw "namereg/pkg/platform/middleware/auth"
)

// JWTServiceAdapter exposes JWTService through the auth middleware's validator interface.
type JWTServiceAdapter struct {
	service *JWTService
}

func NewJWTServiceAdapter(service *JWTService) *JWTServiceAdapter {
	return &JWTServiceAdapter{service: service}
}

func (a *JWTServiceAdapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	identity, err := claims.Identity()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnauthorized, "token subject is not an identity")
	}
	if identity.IsZero() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "token subject is the null identity")
	}
	return &authmw.JWTClaims{
		Caller: identity,
		JTI:    claims.ID,
	}, nil
}
