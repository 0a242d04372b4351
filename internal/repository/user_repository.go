package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/yukikurage/tasker/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound is returned when no live profile has the id.
	ErrUserNotFound = errors.New("user not found")
	// ErrProfileTrashed is returned when the profile exists but is in the trash.
	ErrProfileTrashed = errors.New("user profile is in the trash")
)

// GormUserRepository is a GORM implementation of UserRepository
type GormUserRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

// FindByID finds a live user profile
func (r *GormUserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// EnsureProfile returns the stored profile for user.ID, creating it from
// user when there is none. A trashed profile is not revived here.
func (r *GormUserRepository) EnsureProfile(ctx context.Context, user *models.User) (*models.User, error) {
	var stored models.User
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Unscoped().Where("id = ?", user.ID).First(&stored).Error
		switch {
		case err == nil && stored.DeletedAt.Valid:
			return ErrProfileTrashed
		case err == nil:
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if err := tx.Create(user).Error; err != nil {
			return fmt.Errorf("failed to create profile: %w", err)
		}
		stored = *user
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &stored, nil
}
