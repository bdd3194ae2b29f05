package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Anzful/devtrain/internal/common"
	"github.com/Anzful/devtrain/internal/domain/model"
)

// SubmissionRepository is the submission ledger: an append-only record of all
// grading attempts plus the first-completion markers gating XP awards.
type SubmissionRepository interface {
	CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error)
	// FinalizeGrading is the single commit point of a grading run. It
	// overwrites the same fields on every re-run, which makes redelivered
	// jobs idempotent.
	FinalizeGrading(ctx context.Context, tx *sql.Tx, sub *model.Submission) error
	// HasPriorSuccess reports whether the user already has another official
	// passed submission for the challenge.
	HasPriorSuccess(ctx context.Context, userID, challengeID, excludeSubmissionID string) (bool, error)
	// CreateCompletion attempts the insert-if-absent first-completion marker.
	// A lost race returns common.ErrConflict.
	CreateCompletion(ctx context.Context, tx *sql.Tx, completion *model.ChallengeCompletion) error
	CountCompletedChallenges(ctx context.Context, userID string) (int, error)
}

type pgSubmissionRepository struct {
	db *sql.DB
}

func NewPgSubmissionRepository(db *sql.DB) SubmissionRepository {
	return &pgSubmissionRepository{db: db}
}

func (r *pgSubmissionRepository) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	query := `INSERT INTO submissions (id, user_id, challenge_id, code, language, status, passed, is_official)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := execer(r.db, tx).ExecContext(ctx, query,
		sub.ID, sub.UserID, sub.ChallengeID, sub.Code, sub.Language,
		sub.Status, sub.Passed, sub.IsOfficial,
	)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateSubmission: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	query := `SELECT id, user_id, challenge_id, code, language, status, passed, is_official,
	                 execution_time_sec, output, error_output, judge_status_id, feedback, results,
	                 created_at, updated_at
	          FROM submissions WHERE id = $1`
	sub := &model.Submission{}
	var results []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&sub.ID, &sub.UserID, &sub.ChallengeID, &sub.Code, &sub.Language,
		&sub.Status, &sub.Passed, &sub.IsOfficial,
		&sub.ExecutionTimeSec, &sub.Output, &sub.ErrorOutput, &sub.JudgeStatusID,
		&sub.Feedback, &results, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID: %w", err)
	}
	if len(results) > 0 {
		if err := json.Unmarshal(results, &sub.TestCaseResults); err != nil {
			return nil, fmt.Errorf("pgSubmissionRepository.GetSubmissionByID unmarshal results: %w", err)
		}
	}
	return sub, nil
}

func (r *pgSubmissionRepository) FinalizeGrading(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	results, err := json.Marshal(sub.TestCaseResults)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.FinalizeGrading marshal results: %w", err)
	}

	query := `UPDATE submissions
	          SET status = $1, passed = $2, execution_time_sec = $3, output = $4,
	              error_output = $5, judge_status_id = $6, feedback = $7, results = $8,
	              updated_at = CURRENT_TIMESTAMP
	          WHERE id = $9`
	_, err = execer(r.db, tx).ExecContext(ctx, query,
		sub.Status, sub.Passed, sub.ExecutionTimeSec, sub.Output,
		sub.ErrorOutput, sub.JudgeStatusID, sub.Feedback, results, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.FinalizeGrading: %w", err)
	}
	return nil
}

func (r *pgSubmissionRepository) HasPriorSuccess(ctx context.Context, userID, challengeID, excludeSubmissionID string) (bool, error) {
	query := `SELECT EXISTS (
	            SELECT 1 FROM submissions
	            WHERE user_id = $1 AND challenge_id = $2 AND passed = TRUE
	              AND is_official = TRUE AND id <> $3
	          )`
	var exists bool
	err := r.db.QueryRowContext(ctx, query, userID, challengeID, excludeSubmissionID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("pgSubmissionRepository.HasPriorSuccess: %w", err)
	}
	return exists, nil
}

func (r *pgSubmissionRepository) CreateCompletion(ctx context.Context, tx *sql.Tx, completion *model.ChallengeCompletion) error {
	// ON CONFLICT DO NOTHING instead of surfacing 23505: a statement error
	// would abort the enclosing transaction and take the terminal submission
	// write down with it. Zero rows affected means the race was lost.
	query := `INSERT INTO challenge_completions (id, user_id, challenge_id, submission_id)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (user_id, challenge_id) DO NOTHING`
	result, err := execer(r.db, tx).ExecContext(ctx, query,
		completion.ID, completion.UserID, completion.ChallengeID, completion.SubmissionID,
	)
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateCompletion: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("pgSubmissionRepository.CreateCompletion rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("challenge already completed by user: %w", common.ErrConflict)
	}
	return nil
}

func (r *pgSubmissionRepository) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM challenge_completions WHERE user_id = $1`
	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("pgSubmissionRepository.CountCompletedChallenges: %w", err)
	}
	return count, nil
}
