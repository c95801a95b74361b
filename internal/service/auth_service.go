package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"groupchat/internal/domain"
	"groupchat/internal/security"
)

// AuthService handles registration and login.
type AuthService struct {
	users  domain.UserRepository
	tokens *security.TokenService
	hash   *security.PasswordHasher
	now    func() time.Time
}

func NewAuthService(users domain.UserRepository, tokens *security.TokenService, hash *security.PasswordHasher) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		hash:   hash,
		now:    time.Now,
	}
}

type RegisterInput struct {
	Username    string
	Email       *string
	DisplayName string
	Password    string
}

type LoginInput struct {
	Username string
	Password string
}

type TokenResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *domain.User `json:"user"`
}

func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	if in.Username == "" || in.Password == "" || len(in.Username) > 50 {
		return nil, domain.ErrInvalidRequest
	}
	if len(in.Password) < 8 {
		return nil, fmt.Errorf("password too short: %w", domain.ErrInvalidRequest)
	}

	if _, err := s.users.GetByUsername(ctx, in.Username); err == nil {
		return nil, domain.ErrConflict
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	if in.Email != nil && *in.Email != "" {
		if _, err := s.users.GetByEmail(ctx, *in.Email); err == nil {
			return nil, domain.ErrConflict
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("check email: %w", err)
		}
	} else {
		in.Email = nil
	}

	hashed, err := s.hash.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	display := in.DisplayName
	if display == "" {
		display = in.Username
	}
	now := s.now()
	user := &domain.User{
		ID:                  newID(),
		Username:            in.Username,
		Email:               in.Email,
		DisplayName:         display,
		HashedPassword:      hashed,
		IsActive:            true,
		UnreadConversations: []domain.UnreadEntry{},
		CreatedAt:           now,
		LastSeen:            now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *AuthService) Login(ctx context.Context, in LoginInput) (*TokenResponse, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(in.Username))
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if !user.IsActive {
		return nil, domain.ErrUnauthenticated
	}
	if err := s.hash.Verify(in.Password, user.HashedPassword); err != nil {
		return nil, domain.ErrUnauthenticated
	}

	token, err := s.tokens.CreateForUser(user.ID)
	if err != nil {
		return nil, fmt.Errorf("create token: %w", err)
	}

	return &TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		User:        user,
	}, nil
}

// Authenticate resolves a bearer token to an active user.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	userID, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrUnauthenticated
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, domain.ErrUnauthenticated
	}
	return user, nil
}
