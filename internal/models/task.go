package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"reflect"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Priorities lists every priority in display order.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh}

type Status string

const (
	StatusTodo       Status = "todo"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusCancelled  Status = "cancelled"
)

// Statuses lists every status in workflow order.
var Statuses = []Status{StatusTodo, StatusInProgress, StatusDone, StatusCancelled}

type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Priority    Priority   `json:"priority"`
	Status      Status     `json:"status"`
	DueDate     *Timestamp `json:"due_date"`
	CreatedAt   Timestamp  `json:"created_at"`
	UpdatedAt   Timestamp  `json:"updated_at"`
}

// TaskCreate is the payload accepted when creating a task. Priority and
// status fall back to medium and todo only when they are left out.
type TaskCreate struct {
	Title       string     `json:"title" validate:"required,min=1,max=200"`
	Description *string    `json:"description" validate:"omitnil,max=2000"`
	Priority    *Priority  `json:"priority" validate:"omitnil,oneof=low medium high"`
	Status      *Status    `json:"status" validate:"omitnil,oneof=todo in_progress done cancelled"`
	DueDate     *Timestamp `json:"due_date"`
}

func (c *TaskCreate) UnmarshalJSON(data []byte) error {
	if err := requireObject(data); err != nil {
		return err
	}
	type plain TaskCreate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if isNull(raw["priority"]) {
		return nullFieldError("priority", reflect.TypeFor[Priority]())
	}
	if isNull(raw["status"]) {
		return nullFieldError("status", reflect.TypeFor[Status]())
	}
	*c = TaskCreate(p)
	return nil
}

// NewTask builds an unsaved task from the payload, filling defaults.
func (c TaskCreate) NewTask(now Timestamp) *Task {
	task := &Task{
		Title:       c.Title,
		Description: c.Description,
		Priority:    PriorityMedium,
		Status:      StatusTodo,
		DueDate:     c.DueDate,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if c.Priority != nil {
		task.Priority = *c.Priority
	}
	if c.Status != nil {
		task.Status = *c.Status
	}
	return task
}

// TaskUpdate is a partial update. Nil fields are left untouched. An explicit
// JSON null clears the nullable fields (description, due_date) and is ignored
// for the others.
type TaskUpdate struct {
	Title       *string    `json:"title" validate:"omitnil,min=1,max=200"`
	Description *string    `json:"description" validate:"omitnil,max=2000"`
	Priority    *Priority  `json:"priority" validate:"omitnil,oneof=low medium high"`
	Status      *Status    `json:"status" validate:"omitnil,oneof=todo in_progress done cancelled"`
	DueDate     *Timestamp `json:"due_date"`

	ClearDescription bool `json:"-"`
	ClearDueDate     bool `json:"-"`
}

func (u *TaskUpdate) UnmarshalJSON(data []byte) error {
	if err := requireObject(data); err != nil {
		return err
	}
	type plain TaskUpdate
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*u = TaskUpdate(p)
	u.ClearDescription = isNull(raw["description"])
	u.ClearDueDate = isNull(raw["due_date"])
	return nil
}

func isNull(v json.RawMessage) bool {
	return v != nil && bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// ErrNotObject is returned when a task payload is not a JSON object.
var ErrNotObject = errors.New("input should be a valid dictionary or object")

func requireObject(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return ErrNotObject
	}
	return nil
}

func nullFieldError(field string, typ reflect.Type) error {
	return &json.UnmarshalTypeError{Value: "null", Type: typ, Field: field}
}

// Empty reports whether the update carries no field at all.
func (u TaskUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.Priority == nil &&
		u.Status == nil && u.DueDate == nil && !u.ClearDescription && !u.ClearDueDate
}

// Apply copies the present fields onto task and reports whether anything was applied.
func (u TaskUpdate) Apply(task *Task) bool {
	if u.Empty() {
		return false
	}
	if u.Title != nil {
		task.Title = *u.Title
	}
	switch {
	case u.Description != nil:
		desc := *u.Description
		task.Description = &desc
	case u.ClearDescription:
		task.Description = nil
	}
	if u.Priority != nil {
		task.Priority = *u.Priority
	}
	if u.Status != nil {
		task.Status = *u.Status
	}
	switch {
	case u.DueDate != nil:
		due := *u.DueDate
		task.DueDate = &due
	case u.ClearDueDate:
		task.DueDate = nil
	}
	return true
}

// TaskFilter narrows list and count queries. Nil fields match everything.
type TaskFilter struct {
	Status   *Status
	Priority *Priority
}

// ListParams are the query parameters of the list endpoint.
type ListParams struct {
	Skip     int       `json:"skip" validate:"gte=0"`
	Limit    int       `json:"limit" validate:"gte=1,lte=100"`
	Status   *Status   `json:"status" validate:"omitnil,oneof=todo in_progress done cancelled"`
	Priority *Priority `json:"priority" validate:"omitnil,oneof=low medium high"`
}

const DefaultListLimit = 100

func (p ListParams) Filter() TaskFilter {
	return TaskFilter{Status: p.Status, Priority: p.Priority}
}

// TaskPage is one page of tasks plus the number of tasks matching the filter.
type TaskPage struct {
	Items []*Task
	Total int
}

type TaskStats struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"by_status"`
	ByPriority map[Priority]int `json:"by_priority"`
}

// NewTaskStats counts tasks per status and per priority. Every known value is
// present in the maps, with zero when no task has it.
func NewTaskStats(tasks []*Task) *TaskStats {
	stats := &TaskStats{
		Total:      len(tasks),
		ByStatus:   make(map[Status]int, len(Statuses)),
		ByPriority: make(map[Priority]int, len(Priorities)),
	}
	for _, s := range Statuses {
		stats.ByStatus[s] = 0
	}
	for _, p := range Priorities {
		stats.ByPriority[p] = 0
	}
	for _, t := range tasks {
		stats.ByStatus[t.Status]++
		stats.ByPriority[t.Priority]++
	}
	return stats
}

type TaskEventType string

const (
	TaskCreated TaskEventType = "task_created"
	TaskUpdated TaskEventType = "task_updated"
	TaskDeleted TaskEventType = "task_deleted"
)

// TaskEvent is broadcast to websocket subscribers after a change is committed.
type TaskEvent struct {
	Event  TaskEventType `json:"event"`
	TaskID int64         `json:"task_id"`
	Task   *Task         `json:"task,omitempty"`
}
