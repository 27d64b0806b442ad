package db

import (
	"context"
	"errors"
	"log"
	"testing"
	"time"

	"github.com/asad-bukhari/task-flow-organizer/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// setupTasksDB opens a single-connection in-memory sqlite database with the
// tasks schema applied.
func setupTasksDB(t *testing.T) *DB {
	t.Helper()
	dbx, err := Connect(context.Background(), DriverSQLite, ":memory:", 1, 1)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := dbx.Migrate(context.Background()); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		if err := dbx.Close(); err != nil {
			log.Printf("close db: %v", err)
		}
	})
	return dbx
}

func newTask(title string, status models.Status, priority models.Priority) *models.Task {
	now := models.Now()
	return &models.Task{
		Title:     title,
		Priority:  priority,
		Status:    status,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestTaskRepository_Create_Get_Update_Delete(t *testing.T) {
	dbx := setupTasksDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()

	desc := "hello"
	due := models.NewTimestamp(time.Date(2030, 1, 2, 15, 4, 5, 123456000, time.UTC))
	task := newTask("First task", models.StatusTodo, models.PriorityHigh)
	task.Description = &desc
	task.DueDate = &due

	if err := repo.Create(ctx, task); err != nil {
		t.Fatalf("TaskRepository.Create: %v", err)
	}
	if task.ID == 0 {
		t.Fatal("expected generated id")
	}

	got, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("TaskRepository.GetByID: %v", err)
	}
	if got.Title != "First task" || got.Status != models.StatusTodo || got.Priority != models.PriorityHigh {
		t.Errorf("GetByID mismatch: %#v", got)
	}
	if got.Description == nil || *got.Description != "hello" {
		t.Errorf("description not stored: %v", got.Description)
	}
	if got.DueDate == nil || !got.DueDate.Equal(due.Time) {
		t.Errorf("due date mismatch: got %v want %v", got.DueDate, due)
	}

	got.Title = "Updated"
	got.Status = models.StatusInProgress
	got.Description = nil
	got.DueDate = nil
	if err := repo.Update(ctx, got); err != nil {
		t.Fatalf("TaskRepository.Update: %v", err)
	}
	after, err := repo.GetByID(ctx, task.ID)
	if err != nil {
		t.Fatalf("TaskRepository.GetByID after update: %v", err)
	}
	if after.Title != "Updated" || after.Status != models.StatusInProgress {
		t.Errorf("Update not applied: %#v", after)
	}
	if after.Description != nil || after.DueDate != nil {
		t.Errorf("nullable fields not cleared: %#v", after)
	}

	if err := repo.Delete(ctx, task.ID); err != nil {
		t.Fatalf("TaskRepository.Delete: %v", err)
	}
	if _, err := repo.GetByID(ctx, task.ID); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("expected ErrTaskNotFound after delete, got %v", err)
	}
}

func TestTaskRepository_IDsAreUnique(t *testing.T) {
	dbx := setupTasksDB(t)
	repo := NewTaskRepository(dbx)

	seen := map[int64]bool{}
	for i := 0; i < 5; i++ {
		task := newTask("same title", models.StatusTodo, models.PriorityMedium)
		if err := repo.Create(context.Background(), task); err != nil {
			t.Fatalf("create: %v", err)
		}
		if seen[task.ID] {
			t.Fatalf("duplicate id %d", task.ID)
		}
		seen[task.ID] = true
	}
}

func TestTaskRepository_NotFound(t *testing.T) {
	dbx := setupTasksDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, 999999); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("GetByID: expected ErrTaskNotFound, got %v", err)
	}
	if err := repo.Delete(ctx, 999999); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Delete: expected ErrTaskNotFound, got %v", err)
	}
	task := newTask("ghost", models.StatusTodo, models.PriorityLow)
	task.ID = 999999
	if err := repo.Update(ctx, task); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("Update: expected ErrTaskNotFound, got %v", err)
	}
}

func TestTaskRepository_ListAndCount(t *testing.T) {
	dbx := setupTasksDB(t)
	repo := NewTaskRepository(dbx)
	ctx := context.Background()

	fixtures := []struct {
		status   models.Status
		priority models.Priority
	}{
		{models.StatusTodo, models.PriorityLow},
		{models.StatusTodo, models.PriorityHigh},
		{models.StatusDone, models.PriorityHigh},
		{models.StatusInProgress, models.PriorityMedium},
		{models.StatusTodo, models.PriorityHigh},
	}
	for i, f := range fixtures {
		if err := repo.Create(ctx, newTask("task", f.status, f.priority)); err != nil {
			t.Fatalf("create fixture %d: %v", i, err)
		}
	}

	todo := models.StatusTodo
	high := models.PriorityHigh
	tests := []struct {
		name   string
		filter models.TaskFilter
		want   int
	}{
		{"no filter", models.TaskFilter{}, 5},
		{"status", models.TaskFilter{Status: &todo}, 3},
		{"priority", models.TaskFilter{Priority: &high}, 3},
		{"status and priority", models.TaskFilter{Status: &todo, Priority: &high}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total, err := repo.Count(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Count: %v", err)
			}
			if total != tt.want {
				t.Errorf("Count = %d, want %d", total, tt.want)
			}
			list, err := repo.List(ctx, tt.filter, 0, 100)
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("List returned %d tasks, want %d", len(list), tt.want)
			}
		})
	}

	first, err := repo.List(ctx, models.TaskFilter{}, 0, 2)
	if err != nil {
		t.Fatalf("List page 1: %v", err)
	}
	rest, err := repo.List(ctx, models.TaskFilter{}, 2, 100)
	if err != nil {
		t.Fatalf("List page 2: %v", err)
	}
	if len(first) != 2 || len(rest) != 3 {
		t.Fatalf("unexpected page sizes %d and %d", len(first), len(rest))
	}
	if first[1].ID >= rest[0].ID {
		t.Errorf("pages overlap or are out of order: %d then %d", first[1].ID, rest[0].ID)
	}
}

func TestDB_WithTx_RollsBackOnError(t *testing.T) {
	dbx := setupTasksDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := dbx.WithTx(ctx, func(tx DBTX) error {
		if err := NewTaskRepository(tx).Create(ctx, newTask("temp", models.StatusTodo, models.PriorityLow)); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	total, err := NewTaskRepository(dbx).Count(ctx, models.TaskFilter{})
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if total != 0 {
		t.Errorf("expected rollback to leave no rows, got %d", total)
	}
}

func TestDB_Migrate_UnknownDriver(t *testing.T) {
	d := &DB{Driver: "mysql"}
	if err := d.Migrate(context.Background()); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}
