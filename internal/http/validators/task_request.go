package validators

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	dto "task-api.com/task-api/internal/data_models"
	"task-api.com/task-api/internal/exceptions"
)

var bodyBinder = &echo.DefaultBinder{}

// BindTaskRequest decodes the JSON body. A missing or malformed body is a
// client error; a wrong content type keeps echo's 415.
func BindTaskRequest(c echo.Context) (*dto.TaskRequestData, error) {
	if c.Request().ContentLength == 0 {
		return nil, exceptions.ErrInvalidJSON
	}

	var req dto.TaskRequestData
	if err := bodyBinder.BindBody(c, &req); err != nil {
		var httpErr *echo.HTTPError
		if errors.As(err, &httpErr) && httpErr.Code == http.StatusUnsupportedMediaType {
			return nil, err
		}
		return nil, exceptions.ErrInvalidJSON
	}

	return &req, nil
}

func ParseTaskID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return 0, exceptions.ErrInvalidTaskID
	}
	return id, nil
}
