package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Anzful/devtrain/internal/common"
	"github.com/Anzful/devtrain/internal/domain/model"
	"github.com/Anzful/devtrain/internal/grader"
	"github.com/Anzful/devtrain/internal/judge"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- stub sql driver -------------------------------------------------------
// The repositories are faked below, so the *sql.DB only has to hand out
// transactions that commit and roll back without a live database.

type stubDriver struct{}

func (stubDriver) Open(name string) (driver.Conn, error) { return stubConn{}, nil }

type stubConn struct{}

func (stubConn) Prepare(query string) (driver.Stmt, error) {
	return nil, errors.New("stub driver does not prepare statements")
}
func (stubConn) Close() error              { return nil }
func (stubConn) Begin() (driver.Tx, error) { return stubTx{}, nil }

type stubTx struct{}

func (stubTx) Commit() error   { return nil }
func (stubTx) Rollback() error { return nil }

var registerStubDriver sync.Once

func newStubDB(t *testing.T) *sql.DB {
	t.Helper()
	registerStubDriver.Do(func() { sql.Register("gradingstub", stubDriver{}) })
	db, err := sql.Open("gradingstub", "")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// --- in-memory fakes -------------------------------------------------------

type fakeSubmissionRepo struct {
	mu          sync.Mutex
	subs        map[string]*model.Submission
	completions map[string]string // "user|challenge" -> submission id
	finalized   int
}

func newFakeSubmissionRepo() *fakeSubmissionRepo {
	return &fakeSubmissionRepo{
		subs:        make(map[string]*model.Submission),
		completions: make(map[string]string),
	}
}

func completionKey(userID, challengeID string) string { return userID + "|" + challengeID }

func (r *fakeSubmissionRepo) CreateSubmission(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *sub
	r.subs[sub.ID] = &copied
	return nil
}

func (r *fakeSubmissionRepo) GetSubmissionByID(ctx context.Context, id string) (*model.Submission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, ok := r.subs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *sub
	return &copied, nil
}

func (r *fakeSubmissionRepo) FinalizeGrading(ctx context.Context, tx *sql.Tx, sub *model.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *sub
	r.subs[sub.ID] = &copied
	r.finalized++
	return nil
}

func (r *fakeSubmissionRepo) HasPriorSuccess(ctx context.Context, userID, challengeID, excludeSubmissionID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	// A committed first success always carries a completion marker, so the
	// marker stands in for the ledger scan. It also keeps uncommitted
	// finalize writes invisible, matching read-committed behavior.
	winner, ok := r.completions[completionKey(userID, challengeID)]
	return ok && winner != excludeSubmissionID, nil
}

func (r *fakeSubmissionRepo) CreateCompletion(ctx context.Context, tx *sql.Tx, completion *model.ChallengeCompletion) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := completionKey(completion.UserID, completion.ChallengeID)
	if _, exists := r.completions[key]; exists {
		return fmt.Errorf("challenge already completed by user: %w", common.ErrConflict)
	}
	r.completions[key] = completion.SubmissionID
	return nil
}

func (r *fakeSubmissionRepo) CountCompletedChallenges(ctx context.Context, userID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for key := range r.completions {
		if strings.HasPrefix(key, userID+"|") {
			count++
		}
	}
	return count, nil
}

type fakeChallengeRepo struct {
	challenges map[string]*model.Challenge
}

func newFakeChallengeRepo(challenges ...*model.Challenge) *fakeChallengeRepo {
	repo := &fakeChallengeRepo{challenges: make(map[string]*model.Challenge)}
	for _, c := range challenges {
		repo.challenges[c.ID] = c
	}
	return repo
}

func (r *fakeChallengeRepo) CreateChallenge(ctx context.Context, tx *sql.Tx, c *model.Challenge) error {
	r.challenges[c.ID] = c
	return nil
}

func (r *fakeChallengeRepo) CreateTestCases(ctx context.Context, tx *sql.Tx, tcs []model.TestCase) error {
	return nil
}

func (r *fakeChallengeRepo) FindChallengeByID(ctx context.Context, id string) (*model.Challenge, error) {
	c, ok := r.challenges[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *c
	return &copied, nil
}

func (r *fakeChallengeRepo) GetTestCasesByChallengeID(ctx context.Context, challengeID string) ([]model.TestCase, error) {
	c, ok := r.challenges[challengeID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return c.TestCases, nil
}

func (r *fakeChallengeRepo) ListChallenges(ctx context.Context) ([]model.Challenge, error) {
	var out []model.Challenge
	for _, c := range r.challenges {
		out = append(out, *c)
	}
	return out, nil
}

type fakeUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newFakeUserRepo(users ...*model.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[string]*model.User)}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (r *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users[user.ID] = user
	return nil
}

func (r *fakeUserRepo) find(id string) (*model.User, error) {
	user, ok := r.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *fakeUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(id)
}

func (r *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email {
			return r.find(u.ID)
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeUserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Username == username {
			return r.find(u.ID)
		}
	}
	return nil, common.ErrNotFound
}

func (r *fakeUserRepo) FindByIDForUpdate(ctx context.Context, tx *sql.Tx, id string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.find(id)
}

func (r *fakeUserRepo) UpdateProgression(ctx context.Context, tx *sql.Tx, userID string, xp, level int, badgeName, badgeImage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[userID]
	if !ok {
		return common.ErrNotFound
	}
	user.ExperiencePoints = xp
	user.Level = level
	user.BadgeName = badgeName
	user.BadgeImage = badgeImage
	return nil
}

// echoRunner answers every unit with a fixed stdout, concurrency-safe.
type echoRunner struct {
	stdout string
	err    error
}

func (r echoRunner) RunUnit(ctx context.Context, code string, languageID int, stdin string) (*judge.UnitResult, error) {
	if r.err != nil {
		return nil, r.err
	}
	return &judge.UnitResult{Stdout: r.stdout, StatusID: 3, StatusDescription: "Accepted", TimeSec: 0.01}, nil
}

type feedbackFunc func(ctx context.Context, code, language string) (string, error)

func (f feedbackFunc) Review(ctx context.Context, code, language string) (string, error) {
	return f(ctx, code, language)
}

// --- fixture ---------------------------------------------------------------

type gradingFixture struct {
	service  *GradingService
	subs     *fakeSubmissionRepo
	users    *fakeUserRepo
	user     *model.User
	chal     *model.Challenge
	feedback feedbackFunc
}

func newGradingFixture(t *testing.T, runner grader.Runner) *gradingFixture {
	t.Helper()
	user := &model.User{ID: uuid.NewString(), Username: "ada", ExperiencePoints: 0, Level: 1, BadgeName: "Novice"}
	chal := &model.Challenge{
		ID:         uuid.NewString(),
		Title:      "Sum Two Numbers",
		Difficulty: model.DifficultyEasy,
		TestCases: []model.TestCase{
			{ID: uuid.NewString(), Input: "1 3", ExpectedOutput: "4", SortOrder: 0},
			{ID: uuid.NewString(), Input: "2 2", ExpectedOutput: "4", SortOrder: 1},
		},
	}

	fix := &gradingFixture{
		subs:  newFakeSubmissionRepo(),
		users: newFakeUserRepo(user),
		user:  user,
		chal:  chal,
		feedback: func(ctx context.Context, code, language string) (string, error) {
			return "Consider handling negative numbers.", nil
		},
	}
	fix.service = NewGradingService(
		fix.subs,
		newFakeChallengeRepo(chal),
		fix.users,
		grader.NewHarness(runner),
		feedbackFunc(func(ctx context.Context, code, language string) (string, error) {
			return fix.feedback(ctx, code, language)
		}),
		newStubDB(t),
	)
	return fix
}

func (f *gradingFixture) newSubmission(t *testing.T, official bool) *model.Submission {
	t.Helper()
	sub := &model.Submission{
		ID:          uuid.NewString(),
		UserID:      f.user.ID,
		ChallengeID: f.chal.ID,
		Code:        "print(4)",
		Language:    "python",
		Status:      model.StatusPending,
		IsOfficial:  official,
	}
	require.NoError(t, f.subs.CreateSubmission(context.Background(), nil, sub))
	return sub
}

func (f *gradingFixture) userXP(t *testing.T) int {
	t.Helper()
	user, err := f.users.FindByID(context.Background(), f.user.ID)
	require.NoError(t, err)
	return user.ExperiencePoints
}

// --- tests -----------------------------------------------------------------

func TestGradeFirstSuccessAwardsXP(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4\n"})
	sub := fix.newSubmission(t, true)

	outcome, err := fix.service.Grade(context.Background(), sub.ID)
	require.NoError(t, err)

	assert.True(t, outcome.OverallPass)
	assert.False(t, outcome.AlreadyCompleted)
	assert.Equal(t, model.StatusSuccess, outcome.Submission.Status)
	require.Len(t, outcome.TestResults, 2)

	require.NotNil(t, outcome.UserUpdates)
	assert.Equal(t, 10, outcome.UserUpdates.ExperiencePointsEarned)
	assert.Equal(t, 10, outcome.UserUpdates.NewExperiencePoints)
	assert.Equal(t, 1, outcome.UserUpdates.NewLevel)
	assert.Equal(t, "Novice", outcome.UserUpdates.NewBadge.Name)
	assert.Equal(t, 10, fix.userXP(t))

	stored, err := fix.subs.GetSubmissionByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.True(t, stored.Passed)
	require.NotNil(t, stored.Feedback)
	assert.Equal(t, "Consider handling negative numbers.", *stored.Feedback)
}

func TestGradeSecondPassAlreadyCompleted(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4"})

	first := fix.newSubmission(t, true)
	_, err := fix.service.Grade(context.Background(), first.ID)
	require.NoError(t, err)
	require.Equal(t, 10, fix.userXP(t))

	second := fix.newSubmission(t, true)
	outcome, err := fix.service.Grade(context.Background(), second.ID)
	require.NoError(t, err)

	assert.True(t, outcome.OverallPass)
	assert.True(t, outcome.AlreadyCompleted)
	assert.Nil(t, outcome.UserUpdates)
	assert.Equal(t, 10, fix.userXP(t), "XP unchanged on repeat completion")
}

func TestGradeFailedSubmissionNoAward(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "5"})
	sub := fix.newSubmission(t, true)

	outcome, err := fix.service.Grade(context.Background(), sub.ID)
	require.NoError(t, err)

	assert.False(t, outcome.OverallPass)
	assert.Equal(t, model.StatusFailed, outcome.Submission.Status)
	assert.Nil(t, outcome.UserUpdates)
	assert.Equal(t, 0, fix.userXP(t))
	assert.Empty(t, fix.subs.completions)
}

func TestGradeTestRunLeavesProgressionUntouched(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4"})
	sub := fix.newSubmission(t, false) // test run, not official

	outcome, err := fix.service.Grade(context.Background(), sub.ID)
	require.NoError(t, err)

	assert.True(t, outcome.OverallPass)
	assert.Equal(t, model.StatusSuccess, outcome.Submission.Status)
	assert.Nil(t, outcome.UserUpdates)
	assert.Equal(t, 0, fix.userXP(t))
	assert.Empty(t, fix.subs.completions, "test runs never create a first-success marker")
}

func TestGradeChallengeWithoutTestCasesFails(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4"})
	fix.chal.TestCases = nil
	sub := fix.newSubmission(t, true)

	outcome, err := fix.service.Grade(context.Background(), sub.ID)
	require.NoError(t, err, "a misconfigured challenge is a failed grading, not an error")

	assert.False(t, outcome.OverallPass)
	assert.Equal(t, model.StatusFailed, outcome.Submission.Status)
	require.NotNil(t, outcome.Submission.ErrorOutput)
	assert.Contains(t, *outcome.Submission.ErrorOutput, "no test cases")
}

func TestGradeFeedbackFailureIsSwallowed(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4"})
	fix.feedback = func(ctx context.Context, code, language string) (string, error) {
		return "", errors.New("feedback service down")
	}
	sub := fix.newSubmission(t, true)

	outcome, err := fix.service.Grade(context.Background(), sub.ID)
	require.NoError(t, err)

	assert.True(t, outcome.OverallPass)
	assert.Equal(t, model.StatusSuccess, outcome.Submission.Status)
	assert.Nil(t, outcome.Submission.Feedback)
	assert.Equal(t, 10, fix.userXP(t), "verdict and award unaffected by feedback failure")
}

func TestGradeRerunIsIdempotent(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4"})
	sub := fix.newSubmission(t, true)

	first, err := fix.service.Grade(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NotNil(t, first.UserUpdates)

	// Simulated redelivery of the same job.
	second, err := fix.service.Grade(context.Background(), sub.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Submission.Status, second.Submission.Status)
	assert.True(t, second.AlreadyCompleted, "the completion marker rejects the second award attempt")
	assert.Nil(t, second.UserUpdates)
	assert.Equal(t, 10, fix.userXP(t), "XP awarded exactly once across re-runs")
}

func TestGradeConcurrentSubmissionsAwardExactlyOnce(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4"})

	const n = 8
	subs := make([]*model.Submission, n)
	for i := range subs {
		subs[i] = fix.newSubmission(t, true)
	}

	outcomes := make([]*GradeOutcome, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range subs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = fix.service.Grade(context.Background(), subs[i].ID)
		}(i)
	}
	wg.Wait()

	awards := 0
	for i, outcome := range outcomes {
		require.NoError(t, errs[i])
		assert.True(t, outcome.OverallPass)
		if outcome.UserUpdates != nil {
			awards++
			assert.Equal(t, 10, outcome.UserUpdates.ExperiencePointsEarned)
		}
	}
	assert.Equal(t, 1, awards, "exactly one concurrent submission wins the award")
	assert.Equal(t, 10, fix.userXP(t), "XP increased by the point value, not n * points")
}

func TestGradeTransportFailureLeavesSubmissionRetryable(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{err: errors.New("judge unreachable")})
	sub := fix.newSubmission(t, true)

	_, err := fix.service.Grade(context.Background(), sub.ID)
	require.Error(t, err, "a submit-call failure aborts the attempt for redelivery")

	stored, err := fix.subs.GetSubmissionByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status, "no terminal write happened")
	assert.Equal(t, 0, fix.userXP(t))
}

func TestMarkFailedKeepsCommittedVerdict(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4"})
	sub := fix.newSubmission(t, true)

	_, err := fix.service.Grade(context.Background(), sub.ID)
	require.NoError(t, err)
	require.Equal(t, 10, fix.userXP(t))

	// A redelivered duplicate that exhausts its attempts (say the judge went
	// down after the first run committed) must not demote the verdict.
	require.NoError(t, fix.service.MarkFailed(context.Background(), sub.ID, "grading failed after 3 attempts"))

	stored, err := fix.subs.GetSubmissionByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSuccess, stored.Status, "terminal states are final")
	assert.True(t, stored.Passed)
	assert.Equal(t, 10, fix.userXP(t), "the award from the committed run stands")
}

func TestMarkFailed(t *testing.T) {
	fix := newGradingFixture(t, echoRunner{stdout: "4"})
	sub := fix.newSubmission(t, true)

	require.NoError(t, fix.service.MarkFailed(context.Background(), sub.ID, "grading failed after 3 attempts"))

	stored, err := fix.subs.GetSubmissionByID(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, stored.Status)
	require.NotNil(t, stored.ErrorOutput)
	assert.Contains(t, *stored.ErrorOutput, "after 3 attempts")
}
