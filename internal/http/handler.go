package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	middleware "task-api.com/task-api/internal/http/middlewares"
	"task-api.com/task-api/internal/http/validators"
	"task-api.com/task-api/internal/services"
)

type Handler struct {
	taskService *services.TaskService
}

func NewHandler(taskService *services.TaskService) *Handler {
	return &Handler{
		taskService: taskService,
	}
}

func (h *Handler) ListTasks(c echo.Context) error {
	tasks, err := h.taskService.ListTasks(c.Request().Context())
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tasks)
}

func (h *Handler) SearchTasks(c echo.Context) error {
	tasks, err := h.taskService.SearchTasks(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, tasks)
}

func (h *Handler) GetTask(c echo.Context) error {
	id, err := validators.ParseTaskID(c)
	if err != nil {
		return err
	}

	task, err := h.taskService.GetTask(c.Request().Context(), id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, task)
}

func (h *Handler) CreateTask(c echo.Context) error {
	req, err := validators.BindTaskRequest(c)
	if err != nil {
		return err
	}

	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		slog.WarnContext(c.Request().Context(), "task created without an authenticated caller",
			"path", c.Request().URL.Path,
			"request_id", c.Response().Header().Get(echo.HeaderXRequestID))
	}

	task, err := h.taskService.CreateTask(c.Request().Context(), req.Title, req.IsCompleted, identity.Subject)
	if err != nil {
		return err
	}

	c.Response().Header().Set(echo.HeaderLocation, "/tasks/"+strconv.FormatInt(task.ID, 10))
	return c.JSON(http.StatusCreated, task)
}

func (h *Handler) UpdateTask(c echo.Context) error {
	id, err := validators.ParseTaskID(c)
	if err != nil {
		return err
	}

	req, err := validators.BindTaskRequest(c)
	if err != nil {
		return err
	}

	if err := h.taskService.UpdateTask(c.Request().Context(), id, req.Title, req.IsCompleted); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) DeleteTask(c echo.Context) error {
	id, err := validators.ParseTaskID(c)
	if err != nil {
		return err
	}

	if err := h.taskService.DeleteTask(c.Request().Context(), id); err != nil {
		return err
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Health(c echo.Context) error {
	if err := h.taskService.Ping(c.Request().Context()); err != nil {
		return err
	}

	return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
}
