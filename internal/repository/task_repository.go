package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/yukikurage/tasker/internal/calendar"
	"github.com/yukikurage/tasker/internal/models"
	"github.com/yukikurage/tasker/internal/realtime"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormTaskRepository is a GORM implementation of TaskRepository. Every write
// is announced on the change feed after it commits.
type GormTaskRepository struct {
	db   *gorm.DB
	feed realtime.Publisher
}

// NewTaskRepository creates a new TaskRepository. feed may be nil.
func NewTaskRepository(db *gorm.DB, feed realtime.Publisher) TaskRepository {
	return &GormTaskRepository{db: db, feed: feed}
}

// Create creates a new task with its links
func (r *GormTaskRepository) Create(ctx context.Context, task *models.Task, assigneeIDs, projectIDs []string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(task).Error; err != nil {
			return err
		}
		if err := replaceAssignees(tx, task.ID, assigneeIDs); err != nil {
			return err
		}
		return replaceProjects(tx, task.ID, projectIDs)
	})
	if err != nil {
		return err
	}

	r.publish(ctx, "tasks", realtime.Insert, task.ID, task)
	return nil
}

// FindByID finds a live task row
func (r *GormTaskRepository) FindByID(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&task).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// Update writes the given columns of a live task
func (r *GormTaskRepository) Update(ctx context.Context, id string, columns map[string]any) error {
	if len(columns) == 0 {
		_, err := r.FindByID(ctx, id)
		return err
	}

	res := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Updates(columns)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}

	row := make(map[string]any, len(columns)+1)
	for k, v := range columns {
		row[k] = v
	}
	row["id"] = id
	r.publish(ctx, "tasks", realtime.Update, id, row)
	return nil
}

// ReplaceAssignees makes userIDs the exact set of assignees
func (r *GormTaskRepository) ReplaceAssignees(ctx context.Context, taskID string, userIDs []string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceAssignees(tx, taskID, userIDs)
	})
	if err != nil {
		return err
	}
	r.publish(ctx, "task_users", realtime.Update, taskID, map[string]any{"task_id": taskID})
	return nil
}

// ReplaceProjects makes projectIDs the exact set of linked projects
func (r *GormTaskRepository) ReplaceProjects(ctx context.Context, taskID string, projectIDs []string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return replaceProjects(tx, taskID, projectIDs)
	})
	if err != nil {
		return err
	}
	r.publish(ctx, "task_projects", realtime.Update, taskID, map[string]any{"task_id": taskID})
	return nil
}

// Live links are dropped and recreated. Trashed links are left alone so a
// later restore of their other side still finds them, unless the same pair
// is linked again, which revives the row.
func replaceAssignees(tx *gorm.DB, taskID string, userIDs []string) error {
	if err := tx.Unscoped().Where("task_id = ? AND deleted_at IS NULL", taskID).Delete(&models.TaskUser{}).Error; err != nil {
		return fmt.Errorf("failed to clear assignees: %w", err)
	}
	userIDs = uniqueStrings(userIDs)
	if len(userIDs) == 0 {
		return nil
	}
	rows := make([]models.TaskUser, len(userIDs))
	for i, id := range userIDs {
		rows[i] = models.TaskUser{TaskID: taskID, UserID: id}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"deleted_at": gorm.Expr("NULL")}),
	}).Create(&rows).Error
}

func replaceProjects(tx *gorm.DB, taskID string, projectIDs []string) error {
	if err := tx.Unscoped().Where("task_id = ? AND deleted_at IS NULL", taskID).Delete(&models.TaskProject{}).Error; err != nil {
		return fmt.Errorf("failed to clear project links: %w", err)
	}
	projectIDs = uniqueStrings(projectIDs)
	if len(projectIDs) == 0 {
		return nil
	}
	rows := make([]models.TaskProject, len(projectIDs))
	for i, id := range projectIDs {
		rows[i] = models.TaskProject{TaskID: taskID, ProjectID: id}
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "task_id"}, {Name: "project_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"deleted_at": gorm.Expr("NULL")}),
	}).Create(&rows).Error
}

// FetchScope returns every live task in the scope, joined for display
func (r *GormTaskRepository) FetchScope(ctx context.Context, scope calendar.Scope) ([]calendar.Task, error) {
	query := r.db.WithContext(ctx).Model(&models.Task{})
	if scope.ProjectID != "" {
		linked := r.db.Model(&models.TaskProject{}).Select("task_id").Where("project_id = ?", scope.ProjectID)
		query = query.Where("id IN (?)", linked)
	}

	var rows []models.Task
	if err := query.Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch tasks: %w", err)
	}
	return r.enrich(ctx, rows)
}

// FetchTask returns one joined task, or nil when it is missing or trashed
func (r *GormTaskRepository) FetchTask(ctx context.Context, id string) (*calendar.Task, error) {
	row, err := r.FindByID(ctx, id)
	if errors.Is(err, ErrTaskNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch task: %w", err)
	}

	tasks, err := r.enrich(ctx, []models.Task{*row})
	if err != nil {
		return nil, err
	}
	return &tasks[0], nil
}

// UpdateDueDates moves all ids to one day in a single statement
func (r *GormTaskRepository) UpdateDueDates(ctx context.Context, ids []string, due time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	day := calendar.DateOf(due)
	if err := r.db.WithContext(ctx).Model(&models.Task{}).Where("id IN ?", ids).Update("due_date", day).Error; err != nil {
		return err
	}
	for _, id := range ids {
		r.publish(ctx, "tasks", realtime.Update, id, map[string]any{"id": id, "due_date": day})
	}
	return nil
}

// SetCompletion sets or clears end_at
func (r *GormTaskRepository) SetCompletion(ctx context.Context, id string, endAt *time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Task{}).Where("id = ?", id).Update("end_at", endAt)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	r.publish(ctx, "tasks", realtime.Update, id, map[string]any{"id": id, "end_at": endAt})
	return nil
}

type projectLink struct {
	TaskID    string
	ProjectID string
	Name      string
}

// enrich joins assignees, live projects and lookups onto task rows. Trashed
// lookups are still shown: soft-deleting a lookup keeps its references.
func (r *GormTaskRepository) enrich(ctx context.Context, rows []models.Task) ([]calendar.Task, error) {
	out := make([]calendar.Task, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	db := r.db.WithContext(ctx)

	ids := make([]string, len(rows))
	var statusIDs, priorityIDs []string
	for i, row := range rows {
		ids[i] = row.ID
		if row.StatusID != nil {
			statusIDs = append(statusIDs, *row.StatusID)
		}
		if row.PriorityID != nil {
			priorityIDs = append(priorityIDs, *row.PriorityID)
		}
	}

	var assignees []models.TaskUser
	if err := db.Where("task_id IN ?", ids).Find(&assignees).Error; err != nil {
		return nil, fmt.Errorf("failed to load assignees: %w", err)
	}
	byTask := make(map[string][]string)
	for _, a := range assignees {
		byTask[a.TaskID] = append(byTask[a.TaskID], a.UserID)
	}

	var links []projectLink
	if err := db.Table("task_projects").
		Select("task_projects.task_id, task_projects.project_id, projects.name").
		Joins("JOIN projects ON projects.id = task_projects.project_id AND projects.deleted_at IS NULL").
		Where("task_projects.task_id IN ? AND task_projects.deleted_at IS NULL", ids).
		Order("projects.name, projects.id").
		Scan(&links).Error; err != nil {
		return nil, fmt.Errorf("failed to load projects: %w", err)
	}
	projects := make(map[string][]projectLink)
	for _, l := range links {
		projects[l.TaskID] = append(projects[l.TaskID], l)
	}

	statuses, err := lookups(db, "statuses", statusIDs)
	if err != nil {
		return nil, err
	}
	priorities, err := lookups(db, "priorities", priorityIDs)
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		t := calendar.Task{
			ID:          row.ID,
			Name:        row.Name,
			Note:        row.Note,
			DueDate:     row.DueDate,
			StartAt:     row.StartAt,
			EndAt:       row.EndAt,
			ParentID:    row.ParentID,
			AssigneeIDs: byTask[row.ID],
		}
		for i, l := range projects[row.ID] {
			if i == 0 {
				t.ProjectName = l.Name
			}
			t.ProjectIDs = append(t.ProjectIDs, l.ProjectID)
		}
		if row.StatusID != nil {
			t.Status = lookupCopy(statuses, *row.StatusID)
		}
		if row.PriorityID != nil {
			t.Priority = lookupCopy(priorities, *row.PriorityID)
		}
		out = append(out, calendar.Normalize(t))
	}
	return out, nil
}

func lookups(db *gorm.DB, table string, ids []string) (map[string]calendar.Lookup, error) {
	out := make(map[string]calendar.Lookup)
	ids = uniqueStrings(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []calendar.Lookup
	if err := db.Table(table).Select("id, name, color").Where("id IN ?", ids).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", table, err)
	}
	for _, l := range rows {
		out[l.ID] = l
	}
	return out, nil
}

func lookupCopy(m map[string]calendar.Lookup, id string) *calendar.Lookup {
	l, ok := m[id]
	if !ok {
		return nil
	}
	return &l
}

func (r *GormTaskRepository) publish(ctx context.Context, table string, typ realtime.EventType, id string, row any) {
	if r.feed == nil {
		return
	}
	ev, err := realtime.NewChangeEvent(table, typ, id, row)
	if err == nil {
		err = r.feed.Publish(ctx, ev)
	}
	if err != nil {
		log.Printf("[feed] Failed to publish %s %s for %s: %v", typ, table, id, err)
	}
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, exists := seen[v]; exists {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
