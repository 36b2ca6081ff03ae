package exceptions

import "net/http"

var ErrInvalidTaskID = &Exception{
	Message:    "task id must be an integer",
	StatusCode: http.StatusBadRequest,
}
