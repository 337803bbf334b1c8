package auth

import (
	"context"
	"errors"
	"fmt"

	"aichatgo/internal/models"
	"aichatgo/internal/store"
)

// ErrInvalidCredentials covers both a missing account and a wrong password
// or token. Login and Identify return this one value for every failure so
// callers cannot probe which accounts exist.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service composes the password hasher, the token service, and the store
// into register/login/identify operations. It is stateless between calls.
type Service struct {
	store  *store.Store
	tokens *TokenService
}

func NewService(st *store.Store, tokens *TokenService) *Service {
	return &Service{store: st, tokens: tokens}
}

// Register hashes the password and inserts the user. A duplicate email
// surfaces as store.ErrDuplicateEmail from the uniqueness constraint.
func (s *Service) Register(ctx context.Context, email, password string) (*models.User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user, err := s.store.CreateUser(ctx, email, hash)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return nil, err
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	return user, nil
}

// Login validates credentials and issues a bearer token with the user's
// email as subject.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("login: %w", err)
	}
	if !VerifyPassword(password, user.PasswordHash) {
		return "", ErrInvalidCredentials
	}
	token, err := s.tokens.Issue(user.Email)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// Identify verifies the token and resolves its subject to a user. Every
// failure along the way collapses to ErrInvalidCredentials.
func (s *Service) Identify(ctx context.Context, token string) (*models.User, error) {
	subject, err := s.tokens.Verify(token)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	user, err := s.store.GetUserByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("identify: %w", err)
	}
	return user, nil
}
