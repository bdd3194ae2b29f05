package model

// GradingJob is the queue message consumed by the grading worker. Delivery is
// at-least-once; processing must stay safe to repeat.
type GradingJob struct {
	SubmissionID string `json:"submission_id"`
	Attempts     int    `json:"attempts"`
}
