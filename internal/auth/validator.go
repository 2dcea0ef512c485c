// Package auth validates the bearer tokens presented on channel-open and by
// the admin HTTP surface, grounded on the HS256 JWT shape in
// mama165-chat-lab/auth/token.go.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/confplane/signaling-core/internal/domain"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the JWT payload issued for a session: subject, display name,
// and the system-wide role that gates admin.* messages and moderator join.
type Claims struct {
	UserID string         `json:"sub"`
	Name   string         `json:"name"`
	Role   domain.UserRole `json:"role"`
	jwt.RegisteredClaims
}

// Validator checks bearer tokens against a shared HS256 secret. There is no
// user directory in this control plane: the token itself is the directory
// entry, matching the Auth Provider described as an external collaborator
// in spec.md §1.
type Validator struct {
	secret []byte
}

func NewValidator(secret string) *Validator {
	return &Validator{secret: []byte(secret)}
}

// ValidateToken parses and verifies raw, returning the principal it encodes.
// A zero-value token is never valid.
func (v *Validator) ValidateToken(raw string) (*domain.User, error) {
	if raw == "" {
		return nil, ErrInvalidToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	role := claims.Role
	if role != domain.UserRoleAdmin {
		role = domain.UserRoleUser
	}

	return &domain.User{
		ID:   claims.UserID,
		Name: claims.Name,
		Role: role,
	}, nil
}

// GenerateToken issues a signed token for principal, valid for ttl. Used by
// tests and by any out-of-band token-issuing tool; the running server never
// mints its own tokens.
func (v *Validator) GenerateToken(user domain.User, ttl time.Duration) (string, error) {
	claims := Claims{
		UserID: user.ID,
		Name:   user.Name,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
