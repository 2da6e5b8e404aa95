package auth

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	domuser "example.com/shopcore/internal/domain/user"
)

type mockTokenService struct {
	claims map[string]*Claims
}

func (m *mockTokenService) GenerateToken(actor domuser.Actor) (string, error) {
	return "token-" + actor.UserID, nil
}

func (m *mockTokenService) ParseToken(token string) (*Claims, error) {
	if c, ok := m.claims[token]; ok {
		return c, nil
	}
	return nil, errors.New("bad token")
}

func TestAuthenticate(t *testing.T) {
	svc := NewService(&mockTokenService{claims: map[string]*Claims{
		"good":  {UserID: "u1", Role: domuser.RoleAdmin},
		"blank": {Role: domuser.RoleCustomer},
	}})

	actor, err := svc.Authenticate(" good ")
	require.NoError(t, err)
	require.Equal(t, domuser.Actor{UserID: "u1", Role: domuser.RoleAdmin}, actor)

	for _, token := range []string{"", "bad", "blank"} {
		_, err := svc.Authenticate(token)
		require.ErrorIs(t, err, domuser.ErrUnauthorized, token)
	}
}
