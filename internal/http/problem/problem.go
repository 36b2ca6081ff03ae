// Package problem writes the JSON error body shared by every error path.
package problem

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const ContentType = "application/problem+json"

type Problem struct {
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

func New(status int, detail string) Problem {
	return Problem{
		Status: status,
		Title:  http.StatusText(status),
		Detail: detail,
	}
}

func Write(c echo.Context, p Problem) error {
	c.Response().Header().Set(echo.HeaderContentType, ContentType)
	if c.Request().Method == http.MethodHead {
		return c.NoContent(p.Status)
	}
	return c.JSON(p.Status, p)
}
