package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"task-api.com/task-api/internal/exceptions"
	model "task-api.com/task-api/internal/models"
)

// TaskRepository is the only code that queries the tasks table.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) List(ctx context.Context) ([]model.Task, error) {
	tasks := []model.Task{}
	err := r.db.WithContext(ctx).Order("id asc").Find(&tasks).Error
	return tasks, err
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search returns tasks whose title contains query, ignoring case for any
// script. A blank query returns every task.
func (r *TaskRepository) Search(ctx context.Context, query string) ([]model.Task, error) {
	if strings.TrimSpace(query) == "" {
		return r.List(ctx)
	}

	pattern := "%" + likeEscaper.Replace(query) + "%"

	fold := "LOWER"
	if r.db.Dialector.Name() == "sqlite" {
		fold = "casefold"
	}

	tasks := []model.Task{}
	err := r.db.WithContext(ctx).
		Where(fold+`(title) LIKE `+fold+`(?) ESCAPE '\'`, pattern).
		Order("id asc").
		Find(&tasks).Error
	return tasks, err
}

func (r *TaskRepository) FindByID(ctx context.Context, id int64) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, exceptions.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// Update overwrites title and completion in a single statement.
func (r *TaskRepository) Update(ctx context.Context, id int64, changes model.TaskChanges) error {
	res := r.db.WithContext(ctx).Model(&model.Task{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"title":        model.NormalizeTitle(changes.Title),
			"is_completed": changes.IsCompleted,
		})

	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return exceptions.ErrTaskNotFound
	}

	return nil
}

func (r *TaskRepository) Delete(ctx context.Context, id int64) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Task{})

	if res.Error != nil {
		return res.Error
	}

	if res.RowsAffected == 0 {
		return exceptions.ErrTaskNotFound
	}

	return nil
}

func (r *TaskRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Task{}).Count(&count).Error
	return count, err
}

// SeedIfEmpty inserts seeds only when the table has no rows and reports how
// many were inserted. The check and the insert share one transaction.
func (r *TaskRepository) SeedIfEmpty(ctx context.Context, seeds []*model.Task) (int, error) {
	inserted := 0

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.Task{}).Count(&count).Error; err != nil {
			return fmt.Errorf("count tasks: %w", err)
		}
		if count > 0 || len(seeds) == 0 {
			return nil
		}

		if err := tx.Create(&seeds).Error; err != nil {
			return fmt.Errorf("insert seed tasks: %w", err)
		}
		inserted = len(seeds)
		return nil
	})

	return inserted, err
}

// Ping checks that the store is reachable.
func (r *TaskRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
