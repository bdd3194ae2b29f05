package service

import (
	"context"
	"database/sql"
	"log"

	"github.com/Anzful/devtrain/internal/common"
	"github.com/Anzful/devtrain/internal/domain/model"
	"github.com/Anzful/devtrain/internal/domain/repository"
	"github.com/Anzful/devtrain/internal/judge"
	"github.com/Anzful/devtrain/internal/progression"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
)

type ChallengeService struct {
	challengeRepo repository.ChallengeRepository
	db            *sql.DB // For transactions
}

func NewChallengeService(challengeRepo repository.ChallengeRepository, db *sql.DB) *ChallengeService {
	return &ChallengeService{challengeRepo: challengeRepo, db: db}
}

type CreateChallengeRequest struct {
	Title       string                    `json:"title"`
	Description string                    `json:"description"`
	Difficulty  model.ChallengeDifficulty `json:"difficulty"`
	Language    string                    `json:"language"`
	TestCases   []TestCaseInput           `json:"test_cases"`
}

type TestCaseInput struct {
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
}

func (s *ChallengeService) CreateChallenge(ctx context.Context, userID string, req CreateChallengeRequest) (*model.Challenge, error) {
	if req.Title == "" || req.Description == "" {
		return nil, common.Errorf("title and description are required: %w", common.ErrValidation)
	}
	// A challenge without test cases can never be graded.
	if len(req.TestCases) == 0 {
		return nil, common.Errorf("at least one test case is required: %w", common.ErrValidation)
	}
	// Difficulty must map to a point value; the award step relies on it.
	if _, err := progression.Points(req.Difficulty); err != nil {
		return nil, err
	}
	if req.Language != "" {
		if _, err := judge.LanguageID(req.Language); err != nil {
			return nil, err
		}
	}

	challenge := &model.Challenge{
		ID:          uuid.NewString(),
		Title:       req.Title,
		Slug:        slug.Make(req.Title),
		Description: req.Description,
		Difficulty:  req.Difficulty,
		Language:    req.Language,
		CreatedByID: &userID,
	}

	testCases := make([]model.TestCase, len(req.TestCases))
	for i, tc := range req.TestCases {
		testCases[i] = model.TestCase{
			ID:             uuid.NewString(),
			ChallengeID:    challenge.ID,
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			SortOrder:      i,
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.challengeRepo.CreateChallenge(ctx, tx, challenge); err != nil {
		return nil, common.Errorf("failed to create challenge: %w", err)
	}
	if err := s.challengeRepo.CreateTestCases(ctx, tx, testCases); err != nil {
		return nil, common.Errorf("failed to create test cases: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, common.Errorf("failed to commit transaction: %w", err)
	}

	challenge.TestCases = testCases
	log.Printf("INFO: Challenge %s (%s) created with %d test cases.", challenge.ID, challenge.Slug, len(testCases))
	return challenge, nil
}

// GetChallenge returns a challenge. Test cases are hidden from non-admin
// callers; they exist only for grading.
func (s *ChallengeService) GetChallenge(ctx context.Context, id, role string) (*model.Challenge, error) {
	challenge, err := s.challengeRepo.FindChallengeByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if role != model.RoleAdmin {
		challenge.TestCases = nil
	}
	return challenge, nil
}

func (s *ChallengeService) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	return s.challengeRepo.ListChallenges(ctx)
}
