package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/asad-bukhari/task-flow-organizer/internal/db"
	"github.com/asad-bukhari/task-flow-organizer/internal/models"
	"github.com/asad-bukhari/task-flow-organizer/internal/validation"
)

// StatsSampleLimit caps how many tasks Stats loads.
const StatsSampleLimit = 1000

// Transactor runs fn inside one transaction.
type Transactor interface {
	WithTx(ctx context.Context, fn func(tx db.DBTX) error) error
}

// EventPublisher receives task events once the change is committed.
type EventPublisher interface {
	Publish(event models.TaskEvent)
}

type TaskService struct {
	store     Transactor
	newRepo   func(db.DBTX) db.TaskRepositoryInterface
	publisher EventPublisher
	now       func() time.Time
}

type Option func(*TaskService)

func WithPublisher(p EventPublisher) Option {
	return func(s *TaskService) { s.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *TaskService) { s.now = now }
}

func NewTaskService(store Transactor, opts ...Option) *TaskService {
	s := &TaskService{
		store: store,
		newRepo: func(tx db.DBTX) db.TaskRepositoryInterface {
			return db.NewTaskRepository(tx)
		},
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *TaskService) timestamp() models.Timestamp {
	return models.NewTimestamp(s.now().UTC())
}

func (s *TaskService) publish(event models.TaskEvent) {
	if s.publisher != nil {
		s.publisher.Publish(event)
	}
}

func (s *TaskService) Create(ctx context.Context, input models.TaskCreate) (*models.Task, error) {
	if err := validation.Struct(validation.Body, &input); err != nil {
		return nil, err
	}
	task := input.NewTask(s.timestamp())
	err := s.store.WithTx(ctx, func(tx db.DBTX) error {
		return s.newRepo(tx).Create(ctx, task)
	})
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	s.publish(models.TaskEvent{Event: models.TaskCreated, TaskID: task.ID, Task: task})
	return task, nil
}

// Get returns nil and no error when the task does not exist.
func (s *TaskService) Get(ctx context.Context, id int64) (*models.Task, error) {
	var task *models.Task
	err := s.store.WithTx(ctx, func(tx db.DBTX) error {
		var err error
		task, err = s.newRepo(tx).GetByID(ctx, id)
		return err
	})
	if errors.Is(err, db.ErrTaskNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

// List returns one page of tasks and the total number matching the filter.
// Both queries run in the same transaction.
func (s *TaskService) List(ctx context.Context, params models.ListParams) (*models.TaskPage, error) {
	if err := validation.Struct(validation.Query, &params); err != nil {
		return nil, err
	}
	page := &models.TaskPage{}
	err := s.store.WithTx(ctx, func(tx db.DBTX) error {
		repo := s.newRepo(tx)
		filter := params.Filter()
		total, err := repo.Count(ctx, filter)
		if err != nil {
			return err
		}
		items, err := repo.List(ctx, filter, params.Skip, params.Limit)
		if err != nil {
			return err
		}
		page.Total, page.Items = total, items
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return page, nil
}

// Update applies the present fields of input and refreshes updated_at. It
// returns nil and no error when the task does not exist.
func (s *TaskService) Update(ctx context.Context, id int64, input models.TaskUpdate) (*models.Task, error) {
	if err := validation.Struct(validation.Body, &input); err != nil {
		return nil, err
	}
	var (
		task    *models.Task
		changed bool
	)
	err := s.store.WithTx(ctx, func(tx db.DBTX) error {
		repo := s.newRepo(tx)
		var err error
		if task, err = repo.GetByID(ctx, id); err != nil {
			return err
		}
		if changed = input.Apply(task); !changed {
			return nil
		}
		task.UpdatedAt = s.timestamp()
		return repo.Update(ctx, task)
	})
	if errors.Is(err, db.ErrTaskNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if changed {
		s.publish(models.TaskEvent{Event: models.TaskUpdated, TaskID: task.ID, Task: task})
	}
	return task, nil
}

// Delete removes the task for good. It reports false when there was nothing to delete.
func (s *TaskService) Delete(ctx context.Context, id int64) (bool, error) {
	err := s.store.WithTx(ctx, func(tx db.DBTX) error {
		return s.newRepo(tx).Delete(ctx, id)
	})
	if errors.Is(err, db.ErrTaskNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("delete task: %w", err)
	}
	s.publish(models.TaskEvent{Event: models.TaskDeleted, TaskID: id})
	return true, nil
}

// Stats counts tasks per status and priority over at most StatsSampleLimit
// tasks; Total is the number of tasks examined.
func (s *TaskService) Stats(ctx context.Context) (*models.TaskStats, error) {
	var tasks []*models.Task
	err := s.store.WithTx(ctx, func(tx db.DBTX) error {
		var err error
		tasks, err = s.newRepo(tx).List(ctx, models.TaskFilter{}, 0, StatsSampleLimit)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("task stats: %w", err)
	}
	return models.NewTaskStats(tasks), nil
}
