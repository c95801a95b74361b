package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"groupchat/internal/domain"
	"groupchat/internal/security"
	"groupchat/internal/service"
)

type MockUserRepo struct {
	mock.Mock
}

func (m *MockUserRepo) Create(ctx context.Context, u *domain.User) error {
	args := m.Called(ctx, u)
	return args.Error(0)
}

func (m *MockUserRepo) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepo) ListActive(ctx context.Context, offset, limit int) ([]*domain.User, error) {
	return nil, nil
}

func (m *MockUserRepo) UpdateProfile(ctx context.Context, id string, patch domain.ProfilePatch) error {
	return nil
}

func (m *MockUserRepo) SoftDelete(ctx context.Context, id string) error {
	return nil
}

func (m *MockUserRepo) SetOnlineStatus(ctx context.Context, id string, online bool, at time.Time) error {
	args := m.Called(ctx, id, online)
	return args.Error(0)
}

func (m *MockUserRepo) BumpUnread(ctx context.Context, id string, entry domain.UnreadEntry) error {
	return nil
}

func (m *MockUserRepo) ClearUnread(ctx context.Context, id, conversationID string) error {
	return nil
}

func TestRegister(t *testing.T) {
	mockRepo := new(MockUserRepo)
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4)

	svc := service.NewAuthService(mockRepo, tokenSvc, hasher)

	t.Run("Success", func(t *testing.T) {
		input := service.RegisterInput{
			Username: "newuser",
			Password: "Password1!",
		}

		mockRepo.On("GetByUsername", mock.Anything, "newuser").Return(nil, domain.ErrNotFound)
		mockRepo.On("Create", mock.Anything, mock.MatchedBy(func(u *domain.User) bool {
			return u.Username == "newuser"
		})).Return(nil)

		user, err := svc.Register(context.Background(), input)
		assert.NoError(t, err)
		require.NotNil(t, user)
		assert.Equal(t, "newuser", user.Username)
		assert.Equal(t, "newuser", user.DisplayName)
		assert.NotEmpty(t, user.ID)
		assert.NotEqual(t, "Password1!", user.HashedPassword)
	})

	t.Run("UsernameTaken", func(t *testing.T) {
		input := service.RegisterInput{
			Username: "existing",
			Password: "Password1!",
		}

		existing := &domain.User{Username: "existing"}
		mockRepo.On("GetByUsername", mock.Anything, "existing").Return(existing, nil)

		user, err := svc.Register(context.Background(), input)
		assert.Error(t, err)
		assert.Nil(t, user)
		assert.Equal(t, domain.ErrConflict, err)
	})

	t.Run("EmailTaken", func(t *testing.T) {
		email := "taken@example.com"
		mockRepo.On("GetByUsername", mock.Anything, "fresh").Return(nil, domain.ErrNotFound)
		mockRepo.On("GetByEmail", mock.Anything, email).Return(&domain.User{}, nil)

		_, err := svc.Register(context.Background(), service.RegisterInput{
			Username: "fresh",
			Email:    &email,
			Password: "Password1!",
		})
		assert.Equal(t, domain.ErrConflict, err)
	})

	t.Run("ShortPassword", func(t *testing.T) {
		_, err := svc.Register(context.Background(), service.RegisterInput{Username: "a", Password: "short"})
		assert.ErrorIs(t, err, domain.ErrInvalidRequest)
	})
}

func TestLoginAndAuthenticate(t *testing.T) {
	mockRepo := new(MockUserRepo)
	tokenSvc := security.NewTokenService("secret", time.Hour)
	hasher := security.NewPasswordHasher(4)
	svc := service.NewAuthService(mockRepo, tokenSvc, hasher)

	hashed, err := hasher.Hash("Password1!")
	require.NoError(t, err)
	alice := &domain.User{ID: "u-alice", Username: "alice", HashedPassword: hashed, IsActive: true}
	mockRepo.On("GetByUsername", mock.Anything, "alice").Return(alice, nil)
	mockRepo.On("GetByUsername", mock.Anything, "nobody").Return(nil, domain.ErrNotFound)
	mockRepo.On("GetByID", mock.Anything, "u-alice").Return(alice, nil)

	t.Run("WrongPassword", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginInput{Username: "alice", Password: "nope"})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("UnknownUser", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginInput{Username: "nobody", Password: "x"})
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})

	t.Run("TokenResolvesToUser", func(t *testing.T) {
		resp, err := svc.Login(context.Background(), service.LoginInput{Username: "alice", Password: "Password1!"})
		require.NoError(t, err)
		assert.Equal(t, "bearer", resp.TokenType)

		user, err := svc.Authenticate(context.Background(), resp.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "u-alice", user.ID)
	})

	t.Run("GarbageToken", func(t *testing.T) {
		_, err := svc.Authenticate(context.Background(), "not-a-token")
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	})
}
