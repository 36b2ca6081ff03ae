package http

import (
	"github.com/labstack/echo/v4"
)

// Register mounts the task routes. requireAuth always guards creation;
// protectAllWrites extends it to update and delete.
func Register(e *echo.Echo, h *Handler, requireAuth echo.MiddlewareFunc, protectAllWrites bool) {
	var writeGuards []echo.MiddlewareFunc
	if protectAllWrites {
		writeGuards = append(writeGuards, requireAuth)
	}

	e.GET("/healthz", h.Health)

	e.GET("/tasks", h.ListTasks)
	e.GET("/tasks/search", h.SearchTasks)
	e.GET("/tasks/:id", h.GetTask)
	e.POST("/tasks", h.CreateTask, requireAuth)
	e.PUT("/tasks/:id", h.UpdateTask, writeGuards...)
	e.DELETE("/tasks/:id", h.DeleteTask, writeGuards...)
}
