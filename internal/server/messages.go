package server

// Message types.
type Message struct {
	Type string `json:"type"`
}

type ProgressMessage struct {
	Type    string `json:"type"`
	JobID   string `json:"job_id"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

type DoneMessage struct {
	Type     string `json:"type"`
	JobID    string `json:"job_id"`
	Document string `json:"document"`
}

type FailedMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// CancelMessage is sent by clients to stop a job.
type CancelMessage struct {
	Type  string `json:"type"`
	JobID string `json:"job_id"`
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// CreateJobRequest is the body of POST /api/jobs.
type CreateJobRequest struct {
	Input string `json:"input"`
	Title string `json:"title"`
}
