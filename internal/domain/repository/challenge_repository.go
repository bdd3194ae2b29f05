package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Anzful/devtrain/internal/common"
	"github.com/Anzful/devtrain/internal/domain/model"

	"github.com/jackc/pgx/v5/pgconn"
)

type ChallengeRepository interface {
	CreateChallenge(ctx context.Context, tx *sql.Tx, challenge *model.Challenge) error
	CreateTestCases(ctx context.Context, tx *sql.Tx, testCases []model.TestCase) error
	FindChallengeByID(ctx context.Context, id string) (*model.Challenge, error)
	GetTestCasesByChallengeID(ctx context.Context, challengeID string) ([]model.TestCase, error)
	ListChallenges(ctx context.Context) ([]model.Challenge, error)
}

type pgChallengeRepository struct {
	db *sql.DB
}

func NewPgChallengeRepository(db *sql.DB) ChallengeRepository {
	return &pgChallengeRepository{db: db}
}

func (r *pgChallengeRepository) CreateChallenge(ctx context.Context, tx *sql.Tx, challenge *model.Challenge) error {
	query := `INSERT INTO challenges (id, title, slug, description, difficulty, language, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := execer(r.db, tx).ExecContext(ctx, query,
		challenge.ID, challenge.Title, challenge.Slug, challenge.Description,
		challenge.Difficulty, challenge.Language, challenge.CreatedByID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("challenge with given slug already exists: %w", common.ErrConflict)
		}
		return fmt.Errorf("pgChallengeRepository.CreateChallenge: %w", err)
	}
	return nil
}

func (r *pgChallengeRepository) CreateTestCases(ctx context.Context, tx *sql.Tx, testCases []model.TestCase) error {
	query := `INSERT INTO test_cases (id, challenge_id, input, expected_output, sort_order)
	          VALUES ($1, $2, $3, $4, $5)`
	for _, tc := range testCases {
		_, err := execer(r.db, tx).ExecContext(ctx, query,
			tc.ID, tc.ChallengeID, tc.Input, tc.ExpectedOutput, tc.SortOrder,
		)
		if err != nil {
			return fmt.Errorf("pgChallengeRepository.CreateTestCases: %w", err)
		}
	}
	return nil
}

func (r *pgChallengeRepository) FindChallengeByID(ctx context.Context, id string) (*model.Challenge, error) {
	query := `SELECT id, title, slug, description, difficulty, language, created_by, created_at, updated_at
	          FROM challenges WHERE id = $1`
	challenge := &model.Challenge{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&challenge.ID, &challenge.Title, &challenge.Slug, &challenge.Description,
		&challenge.Difficulty, &challenge.Language, &challenge.CreatedByID,
		&challenge.CreatedAt, &challenge.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgChallengeRepository.FindChallengeByID: %w", err)
	}

	testCases, err := r.GetTestCasesByChallengeID(ctx, id)
	if err != nil {
		return nil, err
	}
	challenge.TestCases = testCases
	return challenge, nil
}

func (r *pgChallengeRepository) GetTestCasesByChallengeID(ctx context.Context, challengeID string) ([]model.TestCase, error) {
	query := `SELECT id, challenge_id, input, expected_output, sort_order, created_at
	          FROM test_cases WHERE challenge_id = $1 ORDER BY sort_order ASC`
	rows, err := r.db.QueryContext(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("pgChallengeRepository.GetTestCasesByChallengeID: %w", err)
	}
	defer rows.Close()

	var testCases []model.TestCase
	for rows.Next() {
		var tc model.TestCase
		if err := rows.Scan(&tc.ID, &tc.ChallengeID, &tc.Input, &tc.ExpectedOutput, &tc.SortOrder, &tc.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgChallengeRepository.GetTestCasesByChallengeID scan: %w", err)
		}
		testCases = append(testCases, tc)
	}
	return testCases, rows.Err()
}

func (r *pgChallengeRepository) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	query := `SELECT id, title, slug, description, difficulty, language, created_at, updated_at
	          FROM challenges ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("pgChallengeRepository.ListChallenges: %w", err)
	}
	defer rows.Close()

	var challenges []model.Challenge
	for rows.Next() {
		var c model.Challenge
		if err := rows.Scan(&c.ID, &c.Title, &c.Slug, &c.Description, &c.Difficulty, &c.Language, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("pgChallengeRepository.ListChallenges scan: %w", err)
		}
		challenges = append(challenges, c)
	}
	return challenges, rows.Err()
}
