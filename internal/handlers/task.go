package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/asad-bukhari/task-flow-organizer/internal/models"
)

/*
handles routes:
- GET /api/v1/tasks/ - list tasks, paginated and filtered
- POST /api/v1/tasks/ - create a task
- GET /api/v1/tasks/stats - counts per status and priority
- GET, PATCH, DELETE /api/v1/tasks/{id}
*/

func notFound(w http.ResponseWriter, id int64) {
	sendError(w, fmt.Sprintf("Task with id %d not found", id), http.StatusNotFound)
}

func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var input models.TaskCreate
	if verr := decodeJSON(w, r, &input); verr != nil {
		sendValidationError(w, verr)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	task, err := h.Tasks.Create(ctx, input)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", h.APIPrefix+"/tasks/"+strconv.FormatInt(task.ID, 10))
	sendJSON(w, http.StatusCreated, task)
}

// ListTasks responds with a JSON array; the number of tasks matching the
// filter goes in X-Total-Count.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	params, verr := parseListParams(r)
	if verr != nil {
		sendValidationError(w, verr)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	page, err := h.Tasks.List(ctx, params)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	items := page.Items
	if items == nil {
		items = []*models.Task{}
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(page.Total))
	sendJSON(w, http.StatusOK, items)
}

func (h *Handler) TaskStats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.requestContext(r)
	defer cancel()
	stats, err := h.Tasks.Stats(ctx)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	sendJSON(w, http.StatusOK, stats)
}

func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	id, verr := parseTaskID(r)
	if verr != nil {
		sendValidationError(w, verr)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	task, err := h.Tasks.Get(ctx, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if task == nil {
		notFound(w, id)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) UpdateTask(w http.ResponseWriter, r *http.Request) {
	id, verr := parseTaskID(r)
	if verr != nil {
		sendValidationError(w, verr)
		return
	}
	var input models.TaskUpdate
	if verr := decodeJSON(w, r, &input); verr != nil {
		sendValidationError(w, verr)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	task, err := h.Tasks.Update(ctx, id, input)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if task == nil {
		notFound(w, id)
		return
	}
	sendJSON(w, http.StatusOK, task)
}

func (h *Handler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id, verr := parseTaskID(r)
	if verr != nil {
		sendValidationError(w, verr)
		return
	}

	ctx, cancel := h.requestContext(r)
	defer cancel()
	deleted, err := h.Tasks.Delete(ctx, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	if !deleted {
		notFound(w, id)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
