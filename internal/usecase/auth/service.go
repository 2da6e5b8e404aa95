package auth

import (
	"strings"

	domuser "example.com/shopcore/internal/domain/user"
)

type Claims struct {
	UserID string
	Role   domuser.Role
}

type TokenService interface {
	GenerateToken(actor domuser.Actor) (string, error)
	ParseToken(token string) (*Claims, error)
}

type Service struct {
	tokens TokenService
}

func NewService(tokens TokenService) *Service {
	return &Service{tokens: tokens}
}

// Authenticate resolves a raw bearer token to the calling actor.
func (s *Service) Authenticate(token string) (domuser.Actor, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domuser.Actor{}, domuser.ErrUnauthorized
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil || claims == nil || claims.UserID == "" {
		return domuser.Actor{}, domuser.ErrUnauthorized
	}
	return domuser.Actor{UserID: claims.UserID, Role: claims.Role}, nil
}
