package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domuser "example.com/shopcore/internal/domain/user"
)

func TestJWTService_RoundTrip(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)

	token, err := svc.GenerateToken(domuser.Actor{UserID: "u1", Role: domuser.RoleAdmin})
	require.NoError(t, err)

	claims, err := svc.ParseToken(token)
	require.NoError(t, err)
	require.Equal(t, "u1", claims.UserID)
	require.Equal(t, domuser.RoleAdmin, claims.Role)
}

func TestJWTService_RejectsForeignSecretAndExpired(t *testing.T) {
	token, err := NewJWTService("other", time.Hour).GenerateToken(domuser.Actor{UserID: "u1", Role: domuser.RoleCustomer})
	require.NoError(t, err)
	_, err = NewJWTService("test-secret", time.Hour).ParseToken(token)
	require.Error(t, err)

	expired, err := NewJWTService("test-secret", -time.Minute).GenerateToken(domuser.Actor{UserID: "u1", Role: domuser.RoleCustomer})
	require.NoError(t, err)
	_, err = NewJWTService("test-secret", time.Hour).ParseToken(expired)
	require.Error(t, err)
}

func TestJWTService_RejectsUnknownRole(t *testing.T) {
	svc := NewJWTService("test-secret", time.Hour)
	token, err := svc.GenerateToken(domuser.Actor{UserID: "u1", Role: "root"})
	require.NoError(t, err)

	_, err = svc.ParseToken(token)
	require.ErrorIs(t, err, domuser.ErrInvalidRole)
}
