package cascade

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/yukikurage/tasker/internal/utils"
)

// TrashItem is a trashed record. References is the number of live rows still
// pointing at a trashed lookup value.
type TrashItem struct {
	TrashedRow
	References int64 `json:"references,omitempty"`
}

// Trash lists trashed records of one entity type, most recently deleted first.
func (m *Manager) Trash(ctx context.Context, entity EntityType, page utils.PaginationParams) ([]TrashItem, int64, error) {
	def, err := m.registry.Get(entity)
	if err != nil {
		return nil, 0, err
	}
	rows, total, err := m.store.Trashed(ctx, def.Table, def.Label, page)
	if err != nil {
		return nil, 0, err
	}

	items := make([]TrashItem, 0, len(rows))
	for _, row := range rows {
		item := TrashItem{TrashedRow: row}
		if def.Lookup {
			if item.References, err = m.references(ctx, def, row.ID, LiveRows); err != nil {
				return nil, 0, err
			}
		}
		items = append(items, item)
	}
	return items, total, nil
}

// PurgeResult lists what a purge removed and what it had to leave behind.
type PurgeResult struct {
	Purged  []string `json:"purged"`
	Skipped []string `json:"skipped"`
}

// Purge hard deletes records of one entity type trashed before the cutoff.
// Lookup values that are still referenced are skipped. The first other
// failure stops the purge.
func (m *Manager) Purge(ctx context.Context, entity EntityType, before time.Time) (*PurgeResult, error) {
	def, err := m.registry.Get(entity)
	if err != nil {
		return nil, err
	}
	ids, err := m.store.Expired(ctx, def.Table, before.UTC())
	if err != nil {
		return nil, err
	}

	result := &PurgeResult{Purged: []string{}, Skipped: []string{}}
	for _, id := range ids {
		if _, err := m.HardDelete(ctx, entity, id); err != nil {
			if errors.Is(err, ErrReferencesRemain) {
				result.Skipped = append(result.Skipped, id)
				continue
			}
			return result, err
		}
		result.Purged = append(result.Purged, id)
	}
	log.Printf("[cascade] Purged %d %s records (%d skipped)", len(result.Purged), entity, len(result.Skipped))
	return result, nil
}
