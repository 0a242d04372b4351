package cascade

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yukikurage/tasker/internal/database"
	"github.com/yukikurage/tasker/internal/utils"
)

// RowState filters rows by their deletion timestamp.
type RowState int

const (
	AnyRows RowState = iota
	LiveRows
	TrashedRows
)

// TrashedRow is one soft-deleted row as listed in the trash.
type TrashedRow struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	DeletedAt time.Time `json:"deleted_at"`
}

// Store is the record-removal primitive the manager drives. Every method
// addresses rows by table and key column and ignores soft-delete scoping, so
// trashed rows are always visible to it. Operations on rows that are already
// in the target state affect nothing and do not fail.
type Store interface {
	Pluck(ctx context.Context, table, column, key string, values []string, state RowState) ([]string, error)
	// TrashedAt returns the row's deleted_at, nil for a live or missing row.
	TrashedAt(ctx context.Context, table, id string) (*time.Time, error)
	// Stamped returns the ids among values whose row was trashed exactly at at.
	Stamped(ctx context.Context, table string, values []string, at time.Time) ([]string, error)
	// Mark sets deleted_at on live rows.
	Mark(ctx context.Context, table, key string, values []string, at time.Time) (int64, error)
	// Unmark clears deleted_at on rows trashed exactly at at.
	Unmark(ctx context.Context, table, key string, values []string, at time.Time) (int64, error)
	Remove(ctx context.Context, table, key string, values []string) (int64, error)
	Nullify(ctx context.Context, table, column string, values []string) (int64, error)
	Reassign(ctx context.Context, table, column, from, to string) (int64, error)
	Count(ctx context.Context, table, column string, values []string, state RowState) (int64, error)
	Exists(ctx context.Context, table, id string) (bool, error)
	Expired(ctx context.Context, table string, before time.Time) ([]string, error)
	Trashed(ctx context.Context, table, label string, page utils.PaginationParams) ([]TrashedRow, int64, error)
}

// GormStore implements Store with table-level gorm queries.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func withState(db *gorm.DB, state RowState) *gorm.DB {
	switch state {
	case LiveRows:
		return db.Where("deleted_at IS NULL")
	case TrashedRows:
		return db.Where("deleted_at IS NOT NULL")
	}
	return db
}

func (s *GormStore) Pluck(ctx context.Context, table, column, key string, values []string, state RowState) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	var out []string
	q := s.db.WithContext(ctx).Table(table).Distinct(column).Where(key+" IN ?", values)
	if err := withState(q, state).Pluck(column, &out).Error; err != nil {
		return nil, fmt.Errorf("failed to read %s.%s: %w", table, column, err)
	}
	return out, nil
}

func (s *GormStore) TrashedAt(ctx context.Context, table, id string) (*time.Time, error) {
	var row struct {
		DeletedAt *time.Time
	}
	err := s.db.WithContext(ctx).Table(table).
		Select("deleted_at").
		Where("id = ?", id).
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read %s.deleted_at: %w", table, err)
	}
	return row.DeletedAt, nil
}

func (s *GormStore) Stamped(ctx context.Context, table string, values []string, at time.Time) ([]string, error) {
	if len(values) == 0 {
		return nil, nil
	}
	var out []string
	err := s.db.WithContext(ctx).Table(table).
		Where("id IN ? AND deleted_at = ?", values, at).
		Pluck("id", &out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read %s.id: %w", table, err)
	}
	return out, nil
}

func (s *GormStore) Mark(ctx context.Context, table, key string, values []string, at time.Time) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Table(table).
		Where(key+" IN ? AND deleted_at IS NULL", values).
		Update("deleted_at", at)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Unmark(ctx context.Context, table, key string, values []string, at time.Time) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Table(table).
		Where(key+" IN ? AND deleted_at = ?", values, at).
		Update("deleted_at", nil)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to update %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Remove(ctx context.Context, table, key string, values []string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Exec(fmt.Sprintf("DELETE FROM %s WHERE %s IN ?", table, key), values)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to delete from %s: %w", table, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Nullify(ctx context.Context, table, column string, values []string) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	res := s.db.WithContext(ctx).Table(table).Where(column+" IN ?", values).Update(column, nil)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear %s.%s: %w", table, column, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Reassign(ctx context.Context, table, column, from, to string) (int64, error) {
	res := s.db.WithContext(ctx).Table(table).Where(column+" = ?", from).Update(column, to)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reassign %s.%s: %w", table, column, res.Error)
	}
	return res.RowsAffected, nil
}

func (s *GormStore) Count(ctx context.Context, table, column string, values []string, state RowState) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	var n int64
	q := s.db.WithContext(ctx).Table(table).Where(column+" IN ?", values)
	if err := withState(q, state).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

// Exists reports whether a live row with the id exists.
func (s *GormStore) Exists(ctx context.Context, table, id string) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Table(table).
		Where("id = ? AND deleted_at IS NULL", id).
		Count(&n).Error
	if err != nil {
		return false, fmt.Errorf("failed to look up %s: %w", table, err)
	}
	return n > 0, nil
}

// Expired returns ids of rows trashed before the cutoff.
func (s *GormStore) Expired(ctx context.Context, table string, before time.Time) ([]string, error) {
	var out []string
	err := s.db.WithContext(ctx).Table(table).
		Where("deleted_at IS NOT NULL AND deleted_at < ?", before).
		Order("deleted_at").
		Pluck("id", &out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read expired %s: %w", table, err)
	}
	return out, nil
}

func (s *GormStore) Trashed(ctx context.Context, table, label string, page utils.PaginationParams) ([]TrashedRow, int64, error) {
	var total int64
	base := s.db.WithContext(ctx).Table(table).Where("deleted_at IS NOT NULL")
	if err := base.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count trashed %s: %w", table, err)
	}

	var rows []TrashedRow
	err := s.db.WithContext(ctx).Table(table).
		Select(fmt.Sprintf("id, %s AS label, deleted_at", label)).
		Where("deleted_at IS NOT NULL").
		Order("deleted_at DESC").
		Scopes(database.Paginate(page)).
		Scan(&rows).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list trashed %s: %w", table, err)
	}
	return rows, total, nil
}
