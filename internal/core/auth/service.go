// Package auth registers users, issues login tokens and checks transfer passwords.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
	"github.com/ibrahimkeyboad/gobank/internal/core/security"
)

type userStore interface {
	Create(ctx context.Context, u domain.User) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	FindByID(ctx context.Context, id uuid.UUID) (domain.User, error)
}

type tokenIssuer interface {
	Issue(u domain.User) (string, error)
}

type RegisterInput struct {
	Email    string
	Password string
	Role     domain.Role
}

type Service struct {
	users  userStore
	tokens tokenIssuer
	cost   int
	logger *zap.Logger

	// compared against when the email is unknown so both paths cost one bcrypt round
	dummyHash string
}

func NewService(users userStore, tokens tokenIssuer, bcryptCost int, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	dummy, err := security.HashPassword(uuid.NewString(), bcryptCost)
	if err != nil {
		return nil, err
	}
	return &Service{
		users:     users,
		tokens:    tokens,
		cost:      bcryptCost,
		logger:    logger,
		dummyHash: dummy,
	}, nil
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	s.logger.Info("registration attempt", zap.String("email", email))

	_, err := s.users.FindByEmail(ctx, email)
	switch {
	case err == nil:
		s.logger.Warn("registration failed: email already registered", zap.String("email", email))
		return domain.User{}, domain.ErrEmailTaken
	case !errors.Is(err, domain.ErrUserNotFound):
		return domain.User{}, fmt.Errorf("failed to look up user: %w", err)
	}

	role := in.Role
	if role == "" {
		role = domain.RoleUser
	}

	hash, err := security.HashPassword(in.Password, s.cost)
	if err != nil {
		return domain.User{}, err
	}

	u, err := s.users.Create(ctx, domain.User{Email: email, PasswordHash: hash, Role: role})
	if errors.Is(err, domain.ErrDataIntegrity) {
		// lost a race with a concurrent registration
		return domain.User{}, domain.ErrEmailTaken
	}
	if err != nil {
		return domain.User{}, fmt.Errorf("failed to create user: %w", err)
	}

	s.logger.Info("user registered", zap.String("email", email), zap.String("role", string(u.Role)))
	return u, nil
}

// Login returns a bearer token. Every failure is reported as domain.ErrAuthentication
// so callers cannot tell an unknown email from a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			s.logger.Error("login lookup failed", zap.String("email", email), zap.Error(err))
		}
		_ = security.ComparePassword(s.dummyHash, password)
		s.logger.Warn("failed login attempt", zap.String("email", email))
		return "", domain.ErrAuthentication
	}

	if err := security.ComparePassword(u.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.logger.Error("stored password hash unusable", zap.String("user_id", u.ID.String()), zap.Error(err))
		}
		s.logger.Warn("failed login attempt", zap.String("email", email))
		return "", domain.ErrAuthentication
	}

	token, err := s.tokens.Issue(u)
	if err != nil {
		return "", err
	}
	s.logger.Info("user authenticated", zap.String("email", email))
	return token, nil
}

// VerifyCredential checks a transfer password against the account owner's password.
func (s *Service) VerifyCredential(ctx context.Context, ownerID uuid.UUID, credential string) error {
	u, err := s.users.FindByID(ctx, ownerID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return domain.ErrInvalidCredentials
	}
	if err != nil {
		return fmt.Errorf("failed to load account owner: %w", err)
	}

	if err := security.ComparePassword(u.PasswordHash, credential); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.logger.Error("stored password hash unusable", zap.String("user_id", u.ID.String()), zap.Error(err))
		}
		return domain.ErrInvalidCredentials
	}
	return nil
}
