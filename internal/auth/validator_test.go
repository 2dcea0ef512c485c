package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/confplane/signaling-core/internal/domain"
)

func TestValidator_RoundTrip(t *testing.T) {
	// Given a validator and a signed token for an admin user
	v := NewValidator("test-secret")
	token, err := v.GenerateToken(domain.User{ID: "u1", Name: "Ada", Role: domain.UserRoleAdmin}, time.Hour)
	require.NoError(t, err)

	// When the token is validated
	user, err := v.ValidateToken(token)

	// Then the original principal is recovered
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.Equal(t, domain.UserRoleAdmin, user.Role)
}

func TestValidator_RejectsEmptyToken(t *testing.T) {
	v := NewValidator("test-secret")
	_, err := v.ValidateToken("")
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_RejectsTokenFromDifferentSecret(t *testing.T) {
	signer := NewValidator("secret-a")
	verifier := NewValidator("secret-b")

	token, err := signer.GenerateToken(domain.User{ID: "u1", Role: domain.UserRoleUser}, time.Hour)
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_RejectsExpiredToken(t *testing.T) {
	v := NewValidator("test-secret")
	token, err := v.GenerateToken(domain.User{ID: "u1", Role: domain.UserRoleUser}, -time.Hour)
	require.NoError(t, err)

	_, err = v.ValidateToken(token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestValidator_NonAdminRoleNeverEscalates(t *testing.T) {
	v := NewValidator("test-secret")
	token, err := v.GenerateToken(domain.User{ID: "u1", Role: domain.UserRole("superuser")}, time.Hour)
	require.NoError(t, err)

	user, err := v.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, domain.UserRoleUser, user.Role)
}
