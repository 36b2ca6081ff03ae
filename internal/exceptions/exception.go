package exceptions

// Exception is an error that is safe to show to API clients.
type Exception struct {
	Message    string
	StatusCode int
}

func (e *Exception) Error() string {
	return e.Message
}
