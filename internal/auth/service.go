package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidUsername is returned when a token is requested for a blank name.
var ErrInvalidUsername = errors.New("invalid username")

// Service mints and checks upload tokens.
type Service struct {
	jwtConfig *JWTConfig
	now       func() time.Time
}

// NewService creates a new token service.
func NewService(jwtConfig *JWTConfig) *Service {
	return &Service{
		jwtConfig: jwtConfig,
		now:       time.Now,
	}
}

// IssueUploadToken returns a token that lets username use the upload endpoint.
func (s *Service) IssueUploadToken(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrInvalidUsername
	}

	token, err := GenerateToken(s.jwtConfig, username, s.now())
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
