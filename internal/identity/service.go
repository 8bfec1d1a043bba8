package identity

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/crypto/bcrypt"

	dErrors "passgate/pkg/domain-errors"
	"passgate/pkg/platform/sentinel"
)

// Service authenticates staff and issues identity tokens.
type Service struct {
	admins Store
	tokens *Tokens
	logger *slog.Logger

	// masterPassword, when non-empty, is accepted for any account.
	masterPassword string
}

func NewService(admins Store, tokens *Tokens, masterPassword string, logger *slog.Logger) *Service {
	return &Service{
		admins:         admins,
		tokens:         tokens,
		masterPassword: masterPassword,
		logger:         logger,
	}
}

// Login verifies credentials and returns a signed identity token. Unknown
// accounts and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", dErrors.New(dErrors.CodeBadRequest, "email and password are required")
	}

	admin, err := s.admins.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		return "", dErrors.Wrap(dErrors.CodeInternal, "lookup account", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(admin.PasswordHash), []byte(password)) != nil {
		if !s.masterPasswordMatches(password) {
			return "", dErrors.New(dErrors.CodeUnauthorized, "invalid credentials")
		}
		s.logger.WarnContext(ctx, "master password login", "email", admin.Email)
	}

	token, err := s.tokens.Issue(Actor{
		Email:      admin.Email,
		Role:       admin.Role,
		Department: admin.Department,
	})
	if err != nil {
		return "", dErrors.Wrap(dErrors.CodeInternal, "issue token", err)
	}
	return token, nil
}

func (s *Service) masterPasswordMatches(password string) bool {
	if s.masterPassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(s.masterPassword)) == 1
}
