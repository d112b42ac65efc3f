// Package token validates the HS256 bearer tokens issued by the CRM's main
// application for operators and for the workflow engine's service account.
package token

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"leadgate/pkg/platform/middleware/auth"
)

// Validator parses and verifies signed JWTs.
type Validator struct {
	signingKey []byte
}

func NewValidator(signingKey string) *Validator {
	return &Validator{signingKey: []byte(signingKey)}
}

// ValidateToken verifies the signature and expiry, and extracts the subject
// and role claims the middleware cares about.
func (v *Validator) ValidateToken(tokenString string) (*auth.Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	subject, _ := claims.GetSubject()
	if subject == "" {
		return nil, fmt.Errorf("token missing sub claim")
	}

	role, _ := claims["role"].(string)
	if role == "" {
		role = auth.RoleOperator
	}

	return &auth.Claims{Subject: subject, Role: role}, nil
}
