package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gwi.com/chattyagent/internal/auth"
	"gwi.com/chattyagent/internal/store"
)

const minPasswordLength = 6

// unknownUserPassword is hashed once so logins for unknown emails cost a
// bcrypt comparison like any other.
const unknownUserPassword = "chattyagent-unknown-user"

// Session is what register and login hand back to the client.
type Session struct {
	Token string      `json:"token"`
	User  *store.User `json:"user"`
}

type AuthService struct {
	store      store.Store
	tokens     *auth.TokenManager
	bcryptCost int
	logger     *zap.Logger
	dummyHash  func() (string, error)
}

func NewAuthService(s store.Store, tokens *auth.TokenManager, bcryptCost int, logger *zap.Logger) *AuthService {
	svc := &AuthService{
		store:      s,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		logger:     logger,
	}
	svc.dummyHash = sync.OnceValues(func() (string, error) {
		return auth.HashPassword(unknownUserPassword, bcryptCost)
	})
	return svc
}

func (s *AuthService) Register(ctx context.Context, email, password, name string) (*Session, error) {
	email = store.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalidInput("Email and password are required")
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	if _, err := s.store.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name, _, _ = strings.Cut(email, "@")
	}

	user := &store.User{Email: email, PasswordHash: hash, Name: name}
	if err := s.store.CreateUser(ctx, user); err != nil {
		// lost a race with a concurrent registration of the same email
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	s.logger.Info("User registered", zap.String("user_id", user.ID))

	return s.session(user)
}

// Login fails with ErrInvalidCredentials for an unknown email and for a wrong
// password alike.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	email = store.NormalizeEmail(email)
	if email == "" || password == "" {
		return nil, invalidInput("Email and password are required")
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if hash, hashErr := s.dummyHash(); hashErr == nil {
				auth.CheckPasswordHash(password, hash)
			}
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return s.session(user)
}

func (s *AuthService) session(user *store.User) (*Session, error) {
	token, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, User: user}, nil
}

// Authenticate resolves a bearer token to a user that still exists.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*store.User, error) {
	identity, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUserByID(ctx, identity.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to validate user: %w", err)
	}
	return user, nil
}

func (s *AuthService) Profile(ctx context.Context, userID string) (*store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, userID, name string) (*store.User, error) {
	user, err := s.store.UpdateUserName(ctx, userID, strings.TrimSpace(name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}
