package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"wolf-backend/internal/auth"
	"wolf-backend/internal/config"
	"wolf-backend/internal/models"
	"wolf-backend/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const minPasswordLength = 6

// Custom errors for auth service
var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrHashingPassword    = errors.New("failed to hash password")
	ErrCreatingToken      = errors.New("failed to create access token")
	ErrValidation         = errors.New("input validation failed") // Generic validation error
)

type AuthService struct {
	store  store.Store
	cfg    *config.Config
	logger *zap.SugaredLogger
}

func NewAuthService(s store.Store, cfg *config.Config, logger *zap.SugaredLogger) *AuthService {
	return &AuthService{
		store:  s,
		cfg:    cfg,
		logger: logger,
	}
}

// Signup creates a new user.
func (s *AuthService) Signup(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password cannot be empty", ErrValidation)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email address is malformed", ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrValidation, minPasswordLength)
	}

	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		s.logger.Errorf("Error hashing password for %s: %v", email, err)
		return nil, ErrHashingPassword
	}

	user := &models.User{
		ID:             uuid.New(),
		Email:          email,
		HashedPassword: hashedPassword,
	}
	// The unique index on email settles concurrent signups.
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, ErrUserAlreadyExists
		}
		s.logger.Errorf("Error creating user for %s: %v", email, err)
		return nil, fmt.Errorf("creating user failed: %w", err)
	}

	s.logger.Infof("Successfully signed up user %s (ID: %s)", email, user.ID)
	return user, nil
}

// Login verifies user credentials and issues an access token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*models.AuthResponse, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials // Basic check before hitting DB
	}

	user, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidCredentials // Don't reveal if user exists or password is wrong
		}
		s.logger.Errorf("Error retrieving user %s during login: %v", email, err)
		return nil, fmt.Errorf("failed to retrieve user: %w", err)
	}

	ok, err := auth.CheckPasswordHash(password, user.HashedPassword)
	if err != nil {
		s.logger.Warnf("Error comparing password hash for user %s: %v", user.ID, err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	token, expiresAt, err := auth.NewAccessToken(user.ID, s.cfg.JWTSecret, s.cfg.TokenExpiration)
	if err != nil {
		s.logger.Errorf("Error generating JWT for user %s (ID: %s): %v", email, user.ID, err)
		return nil, ErrCreatingToken
	}

	s.logger.Infof("Successfully logged in user %s (ID: %s)", email, user.ID)
	return &models.AuthResponse{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		User:        models.UserResponse{ID: user.ID, Email: user.Email},
	}, nil
}
