package service

import (
	"context"
	"encoding/json"
	"log"
	"strings"

	"github.com/Anzful/devtrain/internal/common"
	"github.com/Anzful/devtrain/internal/domain/model"
	"github.com/Anzful/devtrain/internal/domain/repository"
	"github.com/Anzful/devtrain/internal/judge"
	"github.com/Anzful/devtrain/internal/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// gradingQueue is the slice of the redis client used to enqueue grading jobs.
type gradingQueue interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
}

type SubmissionService struct {
	submissionRepo repository.SubmissionRepository
	challengeRepo  repository.ChallengeRepository
	gradingService *GradingService
	rdb            gradingQueue
}

func NewSubmissionService(
	subRepo repository.SubmissionRepository,
	challengeRepo repository.ChallengeRepository,
	gradingService *GradingService,
	rdb gradingQueue,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo: subRepo,
		challengeRepo:  challengeRepo,
		gradingService: gradingService,
		rdb:            rdb,
	}
}

type SubmitRequest struct {
	ChallengeID string `json:"challenge_id"`
	Code        string `json:"code"`
	Language    string `json:"language"`
	IsOfficial  bool   `json:"is_official"`
}

type SubmitResponse struct {
	Success          bool                   `json:"success"`
	Submission       *model.Submission      `json:"submission"`
	TestResults      []model.TestCaseResult `json:"test_results"`
	OverallPass      bool                   `json:"overall_pass"`
	AlreadyCompleted bool                   `json:"already_completed,omitempty"`
	UserUpdates      *UserUpdates           `json:"user_updates,omitempty"`
}

// Submit creates a submission and grades it inline, blocking the caller for
// the duration of sequential test-case execution. Official submissions go
// through the full grade-and-award flow; test runs grade only.
func (s *SubmissionService) Submit(ctx context.Context, userID string, req SubmitRequest) (*SubmitResponse, error) {
	sub, err := s.createSubmission(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	outcome, err := s.gradingService.Grade(ctx, sub.ID)
	if err != nil {
		// The inline path has no redelivery of its own, so hand the pending
		// submission to the queue before surfacing the error. Detached from
		// the request context: the caller may already be gone.
		if qErr := s.enqueueGradingJob(context.WithoutCancel(ctx), sub.ID); qErr != nil {
			log.Printf("ERROR: Failed to enqueue retry for submission %s: %v", sub.ID, qErr)
		}
		return nil, err
	}

	return &SubmitResponse{
		Success:          true,
		Submission:       outcome.Submission,
		TestResults:      outcome.TestResults,
		OverallPass:      outcome.OverallPass,
		AlreadyCompleted: outcome.AlreadyCompleted,
		UserUpdates:      outcome.UserUpdates,
	}, nil
}

// SubmitAsync creates the submission and enqueues a grading job instead of
// grading inline. Delivery is at-least-once; the worker's processing is
// idempotent, so redelivery is safe.
func (s *SubmissionService) SubmitAsync(ctx context.Context, userID string, req SubmitRequest) (*model.Submission, error) {
	sub, err := s.createSubmission(ctx, userID, req)
	if err != nil {
		return nil, err
	}

	if err := s.enqueueGradingJob(ctx, sub.ID); err != nil {
		return nil, err
	}

	log.Printf("INFO: Submission %s created and grading job enqueued.", sub.ID)
	return sub, nil
}

func (s *SubmissionService) enqueueGradingJob(ctx context.Context, submissionID string) error {
	job := model.GradingJob{SubmissionID: submissionID}
	payload, err := json.Marshal(job)
	if err != nil {
		return common.Errorf("failed to marshal grading job: %w", err)
	}
	if err := s.rdb.LPush(ctx, config.AppConfig.GradingQueueName, payload).Err(); err != nil {
		return common.Errorf("failed to enqueue grading job for submission %s: %w", submissionID, err)
	}
	return nil
}

// GetSubmission returns a submission to its owner (admins can read any).
func (s *SubmissionService) GetSubmission(ctx context.Context, userID, role, submissionID string) (*model.Submission, error) {
	sub, err := s.submissionRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID != userID && role != model.RoleAdmin {
		return nil, common.ErrForbidden
	}
	return sub, nil
}

// createSubmission validates the request and persists a pending submission.
// Validation failures are rejected here, before any grading work is queued
// or started.
func (s *SubmissionService) createSubmission(ctx context.Context, userID string, req SubmitRequest) (*model.Submission, error) {
	if strings.TrimSpace(req.Code) == "" {
		return nil, common.Errorf("code is required: %w", common.ErrValidation)
	}
	if req.Language == "" {
		return nil, common.Errorf("language is required: %w", common.ErrValidation)
	}
	if _, err := judge.LanguageID(req.Language); err != nil {
		return nil, err
	}

	challenge, err := s.challengeRepo.FindChallengeByID(ctx, req.ChallengeID)
	if err != nil {
		return nil, common.Errorf("challenge not found: %w", err)
	}
	if challenge.Language != "" && challenge.Language != req.Language {
		return nil, common.Errorf("challenge requires language %q: %w", challenge.Language, common.ErrValidation)
	}
	if len(challenge.TestCases) == 0 {
		return nil, common.Errorf("challenge has no test cases and cannot be graded: %w", common.ErrValidation)
	}

	sub := &model.Submission{
		ID:          uuid.NewString(),
		UserID:      userID,
		ChallengeID: challenge.ID,
		Code:        req.Code,
		Language:    req.Language,
		Status:      model.StatusPending,
		IsOfficial:  req.IsOfficial,
	}
	if err := s.submissionRepo.CreateSubmission(ctx, nil, sub); err != nil {
		return nil, common.Errorf("failed to create submission: %w", err)
	}
	return sub, nil
}
