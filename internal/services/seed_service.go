package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"task-api.com/task-api/internal/locks"
	model "task-api.com/task-api/internal/models"
	repository "task-api.com/task-api/internal/repositories"
)

const seedLockName = "seed"

// DefaultSeeds are the sample tasks written into an empty store.
func DefaultSeeds() []*model.Task {
	return []*model.Task{
		model.NewTask("Install Docker", true),
		model.NewTask("Learn C# Dependency Injection", true),
		model.NewTask("Build a Portfolio API", false),
	}
}

type SeedService struct {
	repo        *repository.TaskRepository
	locker      locks.Locker
	lockTimeout time.Duration
}

func NewSeedService(repo *repository.TaskRepository, locker locks.Locker) *SeedService {
	return &SeedService{
		repo:        repo,
		locker:      locker,
		lockTimeout: 30 * time.Second,
	}
}

// SeedIfEmpty writes DefaultSeeds when the store has no tasks. Instances
// sharing a lock backend take turns, so only the first one seeds.
func (s *SeedService) SeedIfEmpty(ctx context.Context) (int, error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()

	release, err := s.locker.Acquire(lockCtx, seedLockName)
	if err != nil {
		return 0, fmt.Errorf("acquire seed lock: %w", err)
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			slog.Warn("failed to release seed lock", "error", err)
		}
	}()

	inserted, err := s.repo.SeedIfEmpty(ctx, DefaultSeeds())
	if err != nil {
		return 0, err
	}

	if inserted > 0 {
		slog.InfoContext(ctx, "database seeded", "tasks", inserted)
	} else {
		slog.DebugContext(ctx, "database already has tasks, skipping seed")
	}
	return inserted, nil
}
