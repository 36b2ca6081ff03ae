package http

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"task-api.com/task-api/internal/exceptions"
	"task-api.com/task-api/internal/http/problem"
)

// ServerError is the only body callers see for failures we did not expect.
var ServerError = problem.Problem{
	Status: http.StatusInternalServerError,
	Title:  "Server Error",
	Detail: "An unexpected error occurred on our end. Please try again later.",
}

// NewErrorHandler returns the last-resort handler for everything the
// handlers and middlewares return. Client errors keep their own status and
// message; anything else is logged in full and answered with ServerError.
func NewErrorHandler(logger *slog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		p, ok := clientProblem(err)
		if !ok {
			req := c.Request()
			logger.ErrorContext(req.Context(), "unhandled error",
				"error", err,
				"error_type", fmt.Sprintf("%T", err),
				"method", req.Method,
				"path", req.URL.Path,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			p = ServerError
		}

		if werr := problem.Write(c, p); werr != nil {
			logger.Error("failed to write error response", "error", werr)
		}
	}
}

func clientProblem(err error) (problem.Problem, bool) {
	var exc *exceptions.Exception
	if errors.As(err, &exc) && exc.StatusCode < http.StatusInternalServerError {
		return problem.New(exc.StatusCode, exc.Message), true
	}

	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) && httpErr.Code < http.StatusInternalServerError {
		return problem.New(httpErr.Code, fmt.Sprint(httpErr.Message)), true
	}

	return problem.Problem{}, false
}
