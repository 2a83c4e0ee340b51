package memory

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/ibrahimkeyboad/gobank/internal/core/domain"
)

type UserRepository struct {
	s *Store
}

func (r *UserRepository) Create(_ context.Context, u domain.User) (domain.User, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, taken := s.byEmail[email]; taken {
		return domain.User{}, &domain.IntegrityError{Constraint: "users_email_key", Detail: "email already exists"}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	u.CreatedAt = s.now()
	s.users[u.ID] = u
	s.byEmail[email] = u.ID
	return u, nil
}

func (r *UserRepository) FindByEmail(_ context.Context, email string) (domain.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return s.users[id], nil
}

func (r *UserRepository) FindByID(_ context.Context, id uuid.UUID) (domain.User, error) {
	s := r.s
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}
