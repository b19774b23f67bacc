package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"settlement-gateway/internal/core/ports"
	"settlement-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// AdminCredentials is the single operator account configured for the admin API.
type AdminCredentials struct {
	Username     string
	PasswordHash string // argon2id
}

// AuthServiceImpl implements ports.AuthService.
type AuthServiceImpl struct {
	admin    AdminCredentials
	hashSvc  ports.HashService
	tokenSvc ports.TokenService
	log      zerolog.Logger
}

// NewAuthService creates a new AuthServiceImpl.
func NewAuthService(
	admin AdminCredentials,
	hashSvc ports.HashService,
	tokenSvc ports.TokenService,
	log zerolog.Logger,
) *AuthServiceImpl {
	return &AuthServiceImpl{
		admin:    admin,
		hashSvc:  hashSvc,
		tokenSvc: tokenSvc,
		log:      log,
	}
}

// AdminLogin validates operator credentials and returns a JWT with the admin role.
func (s *AuthServiceImpl) AdminLogin(_ context.Context, username, password string) (string, time.Time, error) {
	if s.admin.PasswordHash == "" {
		s.log.Warn().Msg("admin login attempted but no password hash is configured")
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	// Verify the password even on a username mismatch so both paths cost the same.
	valid, err := s.hashSvc.Verify(password, s.admin.PasswordHash)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("verify password: %w", err))
	}
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.admin.Username)) == 1
	if !valid || !userOK {
		return "", time.Time{}, apperror.ErrInvalidCredentials()
	}

	token, expiry, err := s.tokenSvc.Generate(username, ports.RoleAdmin)
	if err != nil {
		return "", time.Time{}, apperror.InternalError(fmt.Errorf("generate token: %w", err))
	}

	return token, expiry, nil
}
