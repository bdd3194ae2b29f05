package model

import "time"

type SubmissionStatus string

const (
	StatusPending SubmissionStatus = "pending"
	StatusSuccess SubmissionStatus = "success"
	StatusFailed  SubmissionStatus = "failed"
)

// Submission is an append-only grading record. It is created by the submit
// path in status pending and moved to exactly one terminal status by the
// grading pipeline; terminal writes are idempotent overwrites.
type Submission struct {
	ID               string           `json:"id"`
	UserID           string           `json:"user_id"`
	ChallengeID      string           `json:"challenge_id"`
	Code             string           `json:"code"`
	Language         string           `json:"language"`
	Status           SubmissionStatus `json:"status"`
	Passed           bool             `json:"passed"`
	IsOfficial       bool             `json:"is_official"` // Test runs are scratch records, never eligible for XP
	ExecutionTimeSec *float64         `json:"execution_time_sec,omitempty"`
	Output           *string          `json:"output,omitempty"`
	ErrorOutput      *string          `json:"error_output,omitempty"`
	JudgeStatusID    *int             `json:"judge_status_id,omitempty"`
	Feedback         *string          `json:"feedback,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	TestCaseResults  []TestCaseResult `json:"test_case_results,omitempty"`
}

// TestCaseResult exists for the duration of grading one submission and is
// serialized onto the submission record at the persistence boundary.
type TestCaseResult struct {
	Index            int     `json:"index"`
	Input            string  `json:"input"`
	ExpectedOutput   string  `json:"expected_output"`
	ActualOutput     string  `json:"actual_output"`
	Passed           bool    `json:"passed"`
	ExecutionTimeSec float64 `json:"execution_time_sec"`
	MemoryKb         int     `json:"memory_kb"`
	CompileOutput    string  `json:"compile_output,omitempty"`
	Error            string  `json:"error,omitempty"`
	JudgeStatusID    int     `json:"judge_status_id,omitempty"`
}

// ChallengeCompletion marks the first successful official submission for a
// (user, challenge) pair. The unique index on (user_id, challenge_id) is the
// atomic gate for XP awards.
type ChallengeCompletion struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ChallengeID  string    `json:"challenge_id"`
	SubmissionID string    `json:"submission_id"`
	CreatedAt    time.Time `json:"created_at"`
}
