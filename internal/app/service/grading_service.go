package service

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/Anzful/devtrain/internal/common"
	"github.com/Anzful/devtrain/internal/domain/model"
	"github.com/Anzful/devtrain/internal/domain/repository"
	"github.com/Anzful/devtrain/internal/feedback"
	"github.com/Anzful/devtrain/internal/grader"
	"github.com/Anzful/devtrain/internal/progression"

	"github.com/google/uuid"
)

// GradingService runs the whole grading pipeline for one submission: test
// harness, advisory feedback, the terminal submission write and -- for
// official submissions -- the exactly-once XP award. Both the synchronous
// submit path and the queue worker call Grade, so the first-success gating
// rule lives in exactly one place.
type GradingService struct {
	submissionRepo repository.SubmissionRepository
	challengeRepo  repository.ChallengeRepository
	userRepo       repository.UserRepository
	harness        *grader.Harness
	feedback       feedback.Provider
	db             *sql.DB
}

func NewGradingService(
	subRepo repository.SubmissionRepository,
	challengeRepo repository.ChallengeRepository,
	userRepo repository.UserRepository,
	harness *grader.Harness,
	feedbackProvider feedback.Provider,
	db *sql.DB,
) *GradingService {
	return &GradingService{
		submissionRepo: subRepo,
		challengeRepo:  challengeRepo,
		userRepo:       userRepo,
		harness:        harness,
		feedback:       feedbackProvider,
		db:             db,
	}
}

// UserUpdates describes the progression change produced by a first success.
type UserUpdates struct {
	ExperiencePointsEarned int               `json:"experience_points_earned"`
	NewExperiencePoints    int               `json:"new_experience_points"`
	NewLevel               int               `json:"new_level"`
	NewBadge               progression.Badge `json:"new_badge"`
	ProgressPercent        float64           `json:"progress_percent"`
}

// GradeOutcome is the result of one grading run.
type GradeOutcome struct {
	Submission       *model.Submission
	TestResults      []model.TestCaseResult
	OverallPass      bool
	AlreadyCompleted bool
	UserUpdates      *UserUpdates
}

// Grade grades the submission end to end and commits the terminal state.
// Re-running it against the same submission id is safe: the terminal write
// overwrites the same fields and the completion marker rejects a second
// award. A returned error means the attempt did not reach its commit point
// and should be retried via redelivery.
func (s *GradingService) Grade(ctx context.Context, submissionID string) (*GradeOutcome, error) {
	sub, err := s.submissionRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, common.Errorf("failed to load submission %s: %w", submissionID, err)
	}

	challenge, err := s.challengeRepo.FindChallengeByID(ctx, sub.ChallengeID)
	if err != nil {
		return nil, common.Errorf("failed to load challenge %s for submission %s: %w", sub.ChallengeID, sub.ID, err)
	}

	if len(challenge.TestCases) == 0 {
		// Configuration error on the challenge, not a judgment on the code.
		return s.failWithDiagnostic(ctx, sub, "challenge has no test cases; it cannot be graded")
	}

	overallPass, results, err := s.harness.Grade(ctx, sub.Code, sub.Language, challenge.TestCases)
	if err != nil {
		if errors.Is(err, common.ErrValidation) {
			// Retrying will not make the language supported.
			return s.failWithDiagnostic(ctx, sub, err.Error())
		}
		return nil, common.Errorf("grading attempt for submission %s failed: %w", sub.ID, err)
	}

	// Feedback is advisory: a failure here degrades to empty feedback and
	// must never affect the verdict.
	feedbackText, err := s.feedback.Review(ctx, sub.Code, sub.Language)
	if err != nil {
		log.Printf("WARN: Feedback unavailable for submission %s: %v", sub.ID, err)
		feedbackText = ""
	}

	applyVerdict(sub, overallPass, results, feedbackText)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, common.Errorf("failed to begin grading transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.submissionRepo.FinalizeGrading(ctx, tx, sub); err != nil {
		return nil, common.Errorf("failed to finalize submission %s: %w", sub.ID, err)
	}

	outcome := &GradeOutcome{
		Submission:  sub,
		TestResults: results,
		OverallPass: overallPass,
	}

	if overallPass && sub.IsOfficial {
		if err := s.award(ctx, tx, sub, challenge, outcome); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, common.Errorf("failed to commit grading transaction for submission %s: %w", sub.ID, err)
	}

	log.Printf("INFO: Submission %s graded: status=%s pass=%t official=%t", sub.ID, sub.Status, overallPass, sub.IsOfficial)
	return outcome, nil
}

// award applies the first-success rule inside the grading transaction. The
// ledger read answers the common already-completed case cheaply; the
// insert-if-absent completion marker is the authoritative gate that closes
// the race between concurrent submissions.
func (s *GradingService) award(ctx context.Context, tx *sql.Tx, sub *model.Submission, challenge *model.Challenge, outcome *GradeOutcome) error {
	hadPriorSuccess, err := s.submissionRepo.HasPriorSuccess(ctx, sub.UserID, sub.ChallengeID, sub.ID)
	if err != nil {
		return common.Errorf("failed to query prior successes for submission %s: %w", sub.ID, err)
	}
	if hadPriorSuccess {
		outcome.AlreadyCompleted = true
		return nil
	}

	marker := &model.ChallengeCompletion{
		ID:           uuid.NewString(),
		UserID:       sub.UserID,
		ChallengeID:  sub.ChallengeID,
		SubmissionID: sub.ID,
	}
	if err := s.submissionRepo.CreateCompletion(ctx, tx, marker); err != nil {
		if errors.Is(err, common.ErrConflict) {
			// Lost the race to a concurrent submission; not an error.
			outcome.AlreadyCompleted = true
			return nil
		}
		return common.Errorf("failed to record completion for submission %s: %w", sub.ID, err)
	}

	points, err := progression.Points(challenge.Difficulty)
	if err != nil {
		return common.Errorf("cannot award XP for challenge %s: %w", challenge.ID, err)
	}

	user, err := s.userRepo.FindByIDForUpdate(ctx, tx, sub.UserID)
	if err != nil {
		return common.Errorf("failed to load user %s for award: %w", sub.UserID, err)
	}

	newXP := user.ExperiencePoints + points
	newLevel := progression.Level(newXP)
	newBadge := progression.BadgeForXP(newXP)

	if err := s.userRepo.UpdateProgression(ctx, tx, user.ID, newXP, newLevel, newBadge.Name, newBadge.Image); err != nil {
		return common.Errorf("failed to update progression for user %s: %w", user.ID, err)
	}

	outcome.UserUpdates = &UserUpdates{
		ExperiencePointsEarned: points,
		NewExperiencePoints:    newXP,
		NewLevel:               newLevel,
		NewBadge:               newBadge,
		ProgressPercent:        progression.ProgressPercent(newXP),
	}
	log.Printf("INFO: Awarded %d XP to user %s for challenge %s (now %d XP, level %d)",
		points, user.ID, challenge.ID, newXP, newLevel)
	return nil
}

// MarkFailed records a terminal failure with a diagnostic message. Used when
// an attempt is known to have executed but cannot produce a verdict, so the
// submission never stays pending. A submission that already holds a terminal
// verdict is left untouched.
func (s *GradingService) MarkFailed(ctx context.Context, submissionID, diagnostic string) error {
	sub, err := s.submissionRepo.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return common.Errorf("failed to load submission %s: %w", submissionID, err)
	}
	_, err = s.failWithDiagnostic(ctx, sub, diagnostic)
	return err
}

func (s *GradingService) failWithDiagnostic(ctx context.Context, sub *model.Submission, diagnostic string) (*GradeOutcome, error) {
	// Terminal verdicts are final. A duplicate delivery that runs out of
	// attempts must not demote a committed result.
	if sub.Status != model.StatusPending {
		log.Printf("WARN: Submission %s is already terminal (%s), keeping its verdict: %s", sub.ID, sub.Status, diagnostic)
		return &GradeOutcome{Submission: sub, OverallPass: sub.Passed}, nil
	}

	sub.Status = model.StatusFailed
	sub.Passed = false
	sub.ErrorOutput = &diagnostic
	if err := s.submissionRepo.FinalizeGrading(ctx, nil, sub); err != nil {
		return nil, common.Errorf("failed to record grading failure for submission %s: %w", sub.ID, err)
	}
	log.Printf("WARN: Submission %s failed without a verdict: %s", sub.ID, diagnostic)
	return &GradeOutcome{Submission: sub, OverallPass: false}, nil
}

func applyVerdict(sub *model.Submission, overallPass bool, results []model.TestCaseResult, feedbackText string) {
	if overallPass {
		sub.Status = model.StatusSuccess
	} else {
		sub.Status = model.StatusFailed
	}
	sub.Passed = overallPass
	sub.TestCaseResults = results
	if feedbackText != "" {
		sub.Feedback = &feedbackText
	}

	// Aggregate judge metadata: total runtime, and the first failing case
	// (or the last case when everything passed) as the representative
	// output for display.
	total := 0.0
	representative := -1
	for i, res := range results {
		total += res.ExecutionTimeSec
		if representative == -1 && !res.Passed {
			representative = i
		}
	}
	sub.ExecutionTimeSec = &total
	if representative == -1 && len(results) > 0 {
		representative = len(results) - 1
	}
	if representative >= 0 {
		res := results[representative]
		output := res.ActualOutput
		sub.Output = &output
		sub.JudgeStatusID = &res.JudgeStatusID
		if res.Error != "" {
			errOut := res.Error
			sub.ErrorOutput = &errOut
		}
	}
}
