package dto

// TaskRequestData is the body accepted by create and update. Other task
// fields such as id or createdAt are ignored when present.
type TaskRequestData struct {
	Title       string `json:"title"`
	IsCompleted bool   `json:"isCompleted"`
}
