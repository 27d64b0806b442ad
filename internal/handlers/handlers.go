package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/asad-bukhari/task-flow-organizer/internal/middleware"
	"github.com/asad-bukhari/task-flow-organizer/internal/models"
	"github.com/asad-bukhari/task-flow-organizer/internal/validation"
)

const maxBodyBytes = 1 << 20 // 1MB

// TaskService is what the task handlers need from the service layer.
// Get and Update return a nil task, and Delete false, when the id is unknown.
type TaskService interface {
	Create(ctx context.Context, input models.TaskCreate) (*models.Task, error)
	Get(ctx context.Context, id int64) (*models.Task, error)
	List(ctx context.Context, params models.ListParams) (*models.TaskPage, error)
	Update(ctx context.Context, id int64, input models.TaskUpdate) (*models.Task, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Stats(ctx context.Context) (*models.TaskStats, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	Tasks          TaskService
	WSHub          *WSHub
	DB             Pinger
	Logger         logrus.FieldLogger
	ProjectName    string
	Version        string
	APIPrefix      string
	RequestTimeout time.Duration
}

// Route binds a ServeMux pattern to a handler under a rate-limit route name.
type Route struct {
	Name      string
	Pattern   string
	PerMinute int
	Handler   http.HandlerFunc
}

// Routes lists every endpoint with its quota. Patterns sharing a name share
// one counter per client.
func (h *Handler) Routes() []Route {
	tasks := h.APIPrefix + "/tasks"
	return []Route{
		{"root", "GET /{$}", 100, h.Root},
		{"health", "GET /health", 200, h.Health},
		{"list_tasks", "GET " + tasks + "/{$}", 100, h.ListTasks},
		{"list_tasks", "GET " + tasks, 100, h.ListTasks},
		{"create_task", "POST " + tasks + "/{$}", 20, h.CreateTask},
		{"create_task", "POST " + tasks, 20, h.CreateTask},
		{"task_stats", "GET " + tasks + "/stats", 50, h.TaskStats},
		{"task_events", "GET " + tasks + "/ws", 20, h.HandleWebSocket},
		{"get_task", "GET " + tasks + "/{id}", 100, h.GetTask},
		{"update_task", "PATCH " + tasks + "/{id}", 30, h.UpdateTask},
		{"delete_task", "DELETE " + tasks + "/{id}", 20, h.DeleteTask},
	}
}

func (h *Handler) logger() logrus.FieldLogger {
	if h.Logger == nil {
		return logrus.StandardLogger()
	}
	return h.Logger
}

func (h *Handler) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	timeout := h.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return context.WithTimeout(r.Context(), timeout)
}

func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{
		"message": "Welcome to " + h.ProjectName,
		"version": h.Version,
	})
}

// Health reports unhealthy with 503 when the database does not answer a ping.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := h.requestContext(r)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			h.logger().WithError(err).Warn("health check: database ping failed")
			sendJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "unhealthy",
				"database": "unreachable",
			})
			return
		}
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type errorResponse struct {
	Detail any `json:"detail"`
}

func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func sendError(w http.ResponseWriter, message string, status int) {
	sendJSON(w, status, errorResponse{Detail: message})
}

func sendValidationError(w http.ResponseWriter, verr *validation.Error) {
	sendJSON(w, http.StatusUnprocessableEntity, errorResponse{Detail: verr.Fields})
}

// handleServiceError writes 422 for validation failures and a bare 500 for
// anything else; the cause only goes to the log.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := validation.As(err); ok {
		sendValidationError(w, verr)
		return
	}
	h.logger().WithError(err).WithFields(logrus.Fields{
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": middleware.RequestIDFromContext(r.Context()),
	}).Error("request failed")
	sendError(w, "Internal Server Error", http.StatusInternalServerError)
}

func isJSONContentType(r *http.Request) bool {
	ct := r.Header.Get("Content-Type")
	return strings.HasPrefix(strings.ToLower(ct), "application/json")
}

// decodeJSON reads the request body into dst. Every failure is reported as a
// validation error against the body.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) *validation.Error {
	if !isJSONContentType(r) {
		return validation.New(validation.Body, "", "Content-Type must be application/json", "content_type")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	err := dec.Decode(dst)
	if err == nil {
		if _, err := dec.Token(); !errors.Is(err, io.EOF) {
			return validation.New(validation.Body, "", "JSON decode error", "json_invalid")
		}
		return nil
	}

	var (
		syntaxErr   *json.SyntaxError
		typeErr     *json.UnmarshalTypeError
		tooLargeErr *http.MaxBytesError
	)
	switch {
	case errors.Is(err, io.EOF):
		return validation.New(validation.Body, "", "Field required", "missing")
	case errors.Is(err, models.ErrNotObject):
		return validation.New(validation.Body, "", "Input should be a valid dictionary or object to extract fields from", "model_attributes_type")
	case errors.As(err, &syntaxErr), errors.Is(err, io.ErrUnexpectedEOF):
		return validation.New(validation.Body, "", "JSON decode error", "json_invalid")
	case errors.As(err, &typeErr):
		return validation.New(validation.Body, typeErr.Field, "Input should be a valid "+jsonKind(typeErr.Type.Kind().String()), "type_error")
	case errors.As(err, &tooLargeErr):
		return validation.New(validation.Body, "", fmt.Sprintf("Body must not exceed %d bytes", tooLargeErr.Limit), "too_large")
	default:
		return validation.New(validation.Body, "", err.Error(), "value_error")
	}
}

func jsonKind(kind string) string {
	switch kind {
	case "int", "int8", "int16", "int32", "int64":
		return "integer"
	case "ptr", "struct":
		return "object"
	}
	return kind
}

func parseTaskID(r *http.Request) (int64, *validation.Error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, validation.New(validation.Path, "task_id",
			"Input should be a valid integer, unable to parse string as an integer", "int_parsing")
	}
	return id, nil
}

// parseListParams reads skip, limit, status and priority from the query.
// Range and enum checks happen when the params are validated by the service.
func parseListParams(r *http.Request) (models.ListParams, *validation.Error) {
	q := r.URL.Query()
	params := models.ListParams{Limit: models.DefaultListLimit}

	var fields []validation.FieldError
	parseInt := func(name string, dst *int) {
		raw := q.Get(name)
		if raw == "" {
			return
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			fields = append(fields, validation.FieldError{
				Loc:  []string{validation.Query, name},
				Msg:  "Input should be a valid integer, unable to parse string as an integer",
				Type: "int_parsing",
			})
			return
		}
		*dst = n
	}
	parseInt("skip", &params.Skip)
	parseInt("limit", &params.Limit)

	if raw := q.Get("status"); raw != "" {
		status := models.Status(raw)
		params.Status = &status
	}
	if raw := q.Get("priority"); raw != "" {
		priority := models.Priority(raw)
		params.Priority = &priority
	}

	if len(fields) > 0 {
		return params, &validation.Error{Fields: fields}
	}
	return params, nil
}
