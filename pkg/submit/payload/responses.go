package payload

// Receipt represents a 200 OK response to a submission.
type Receipt struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Bytes    int    `json:"bytes"`
}

// ErrorResponse represents any non-200 response to a submission.
type ErrorResponse struct {
	Message string `json:"message"`
}
