package exceptions

import "net/http"

var ErrUnauthorized = &Exception{
	Message:    "a valid bearer token is required",
	StatusCode: http.StatusUnauthorized,
}
