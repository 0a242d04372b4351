// Package prefs stores small per-user, per-scope view preferences.
package prefs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yukikurage/tasker/internal/models"
)

// Store is a namespaced key/value store.
type Store interface {
	// Get returns the value and whether it was present.
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	Set(ctx context.Context, namespace, key, value string) error
}

// Namespace builds the namespace for a user's view of a scope.
func Namespace(userID, scope string) string {
	return fmt.Sprintf("user:%s:%s", userID, scope)
}

// GormStore keeps preferences in the settings table.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var setting models.Setting
	err := s.db.WithContext(ctx).
		Where("namespace = ? AND pref_key = ?", namespace, key).
		First(&setting).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read setting: %w", err)
	}
	return setting.Value, true, nil
}

// Set upserts the value.
func (s *GormStore) Set(ctx context.Context, namespace, key, value string) error {
	setting := models.Setting{
		Namespace: namespace,
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "namespace"}, {Name: "pref_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&setting).Error
	if err != nil {
		return fmt.Errorf("failed to write setting: %w", err)
	}
	return nil
}

// RedisStore keeps each namespace in a Redis hash.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	val, err := s.client.HGet(ctx, s.prefix+namespace, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", false, nil
		}
		return "", false, fmt.Errorf("prefs get error: %w", err)
	}
	return val, true, nil
}

func (s *RedisStore) Set(ctx context.Context, namespace, key, value string) error {
	if err := s.client.HSet(ctx, s.prefix+namespace, key, value).Err(); err != nil {
		return fmt.Errorf("prefs set error: %w", err)
	}
	return nil
}
