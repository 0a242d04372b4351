package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/yukikurage/tasker/internal/identity"
	"github.com/yukikurage/tasker/internal/models"
	"github.com/yukikurage/tasker/internal/repository"
)

var (
	ErrInvalidCredentials  = errors.New("invalid or expired identity token")
	ErrEmailRequired       = errors.New("identity has no email address")
	ErrUserNotFound        = errors.New("user not found")
	ErrProfileTrashed      = errors.New("user profile is in the trash")
	ErrIdentityUnavailable = errors.New("identity provider is not configured")
)

// AuthService exchanges identity provider tokens for local profiles.
type AuthService struct {
	userRepo repository.UserRepository
	verifier identity.Verifier
}

// NewAuthService creates a new AuthService. verifier may be nil, in which
// case sign-in is unavailable.
func NewAuthService(userRepo repository.UserRepository, verifier identity.Verifier) *AuthService {
	return &AuthService{
		userRepo: userRepo,
		verifier: verifier,
	}
}

// SignIn verifies an ID token and returns the matching profile, creating it
// on first sign-in.
func (s *AuthService) SignIn(ctx context.Context, idToken string) (*models.User, error) {
	if s.verifier == nil {
		return nil, ErrIdentityUnavailable
	}
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidCredentials
	}

	claims, err := s.verifier.VerifyToken(ctx, idToken)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidToken) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to verify token: %w", err)
	}
	if claims.Email == "" {
		return nil, ErrEmailRequired
	}

	user, err := s.userRepo.EnsureProfile(ctx, &models.User{
		ID:    claims.UID,
		Email: claims.Email,
		Name:  claims.Name,
	})
	if err != nil {
		if errors.Is(err, repository.ErrProfileTrashed) {
			return nil, ErrProfileTrashed
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	return user, nil
}

// GetUser retrieves a user by ID.
func (s *AuthService) GetUser(ctx context.Context, id string) (*models.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}
