package services

import (
	"context"
	"fmt"
	"log/slog"

	model "task-api.com/task-api/internal/models"
	repository "task-api.com/task-api/internal/repositories"
)

type TaskService struct {
	repo *repository.TaskRepository
}

func NewTaskService(repo *repository.TaskRepository) *TaskService {
	return &TaskService{repo: repo}
}

func (s *TaskService) ListTasks(ctx context.Context) ([]model.Task, error) {
	return s.repo.List(ctx)
}

func (s *TaskService) SearchTasks(ctx context.Context, query string) ([]model.Task, error) {
	return s.repo.Search(ctx, query)
}

func (s *TaskService) GetTask(ctx context.Context, id int64) (*model.Task, error) {
	return s.repo.FindByID(ctx, id)
}

// CreateTask persists a new task. createdBy is the authenticated subject;
// tasks carry no owner column so it is only logged.
func (s *TaskService) CreateTask(ctx context.Context, title string, completed bool, createdBy string) (*model.Task, error) {
	task := model.NewTask(title, completed)

	if err := s.repo.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}

	slog.InfoContext(ctx, "task created", "task_id", task.ID, "created_by", createdBy)
	return task, nil
}

func (s *TaskService) UpdateTask(ctx context.Context, id int64, title string, completed bool) error {
	if err := s.repo.Update(ctx, id, model.NewTaskChanges(title, completed)); err != nil {
		return fmt.Errorf("update task %d: %w", id, err)
	}
	return nil
}

func (s *TaskService) DeleteTask(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	return nil
}

func (s *TaskService) Ping(ctx context.Context) error {
	return s.repo.Ping(ctx)
}
