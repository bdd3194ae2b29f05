package model

import (
	"time"
)

type ChallengeDifficulty string

const (
	DifficultyEasy   ChallengeDifficulty = "easy"
	DifficultyMedium ChallengeDifficulty = "medium"
	DifficultyHard   ChallengeDifficulty = "hard"
)

type Challenge struct {
	ID          string              `json:"id"`
	Title       string              `json:"title"`
	Slug        string              `json:"slug"`
	Description string              `json:"description"`
	Difficulty  ChallengeDifficulty `json:"difficulty"`
	Language    string              `json:"language"` // Language constraint for submissions
	CreatedByID *string             `json:"created_by_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	TestCases   []TestCase          `json:"test_cases,omitempty"` // Hidden, admin only view
}

// TestCase is a hidden input/expected-output pair a submission is graded against.
type TestCase struct {
	ID             string    `json:"id"`
	ChallengeID    string    `json:"challenge_id"`
	Input          string    `json:"input"`
	ExpectedOutput string    `json:"expected_output"`
	SortOrder      int       `json:"sort_order"`
	CreatedAt      time.Time `json:"created_at"`
}
