package model

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

const DefaultTitle = "Untitled Task"

type Task struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Title       string    `gorm:"not null" json:"title"`
	IsCompleted bool      `gorm:"not null" json:"isCompleted"`
	CreatedAt   time.Time `gorm:"not null" json:"createdAt"`
}

// TaskChanges holds the fields an update may overwrite.
type TaskChanges struct {
	Title       string
	IsCompleted bool
}

// NormalizeTitle is the only place a title value is decided.
func NormalizeTitle(title string) string {
	if strings.TrimSpace(title) == "" {
		return DefaultTitle
	}
	return title
}

func NewTask(title string, completed bool) *Task {
	return &Task{
		Title:       NormalizeTitle(title),
		IsCompleted: completed,
		CreatedAt:   time.Now().UTC(),
	}
}

func NewTaskChanges(title string, completed bool) TaskChanges {
	return TaskChanges{
		Title:       NormalizeTitle(title),
		IsCompleted: completed,
	}
}

// BeforeSave keeps rows written through gorm's struct paths normalized.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	t.Title = NormalizeTitle(t.Title)
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return nil
}
