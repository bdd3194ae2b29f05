package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/Anzful/devtrain/internal/common"
	"github.com/Anzful/devtrain/internal/domain/model"
	"github.com/Anzful/devtrain/internal/grader"
	"github.com/Anzful/devtrain/internal/platform/config"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQueue records enqueued payloads instead of talking to Redis.
type fakeQueue struct {
	mu       sync.Mutex
	payloads [][]byte
	err      error
}

func (q *fakeQueue) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx, "lpush", key)
	if q.err != nil {
		cmd.SetErr(q.err)
		return cmd
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, v := range values {
		q.payloads = append(q.payloads, v.([]byte))
	}
	cmd.SetVal(int64(len(q.payloads)))
	return cmd
}

func (q *fakeQueue) jobs(t *testing.T) []model.GradingJob {
	t.Helper()
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.GradingJob, len(q.payloads))
	for i, payload := range q.payloads {
		require.NoError(t, json.Unmarshal(payload, &out[i]))
	}
	return out
}

func newSubmissionFixture(t *testing.T) (*SubmissionService, *gradingFixture, *fakeQueue) {
	t.Helper()
	if config.AppConfig == nil {
		config.Load()
	}
	fix := newGradingFixture(t, echoRunner{stdout: "4"})
	queue := &fakeQueue{}
	svc := NewSubmissionService(fix.subs, newFakeChallengeRepo(fix.chal), fix.service, queue)
	return svc, fix, queue
}

func TestSubmitGradesInline(t *testing.T) {
	svc, fix, _ := newSubmissionFixture(t)

	resp, err := svc.Submit(context.Background(), fix.user.ID, SubmitRequest{
		ChallengeID: fix.chal.ID,
		Code:        "print(4)",
		Language:    "python",
		IsOfficial:  true,
	})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.True(t, resp.OverallPass)
	assert.Equal(t, model.StatusSuccess, resp.Submission.Status)
	require.NotNil(t, resp.UserUpdates)
	assert.Equal(t, 10, resp.UserUpdates.ExperiencePointsEarned)
}

func TestSubmitValidation(t *testing.T) {
	svc, fix, _ := newSubmissionFixture(t)

	valid := SubmitRequest{
		ChallengeID: fix.chal.ID,
		Code:        "print(4)",
		Language:    "python",
	}

	tests := []struct {
		name    string
		mutate  func(req *SubmitRequest)
		wantErr error
	}{
		{
			name:    "empty code",
			mutate:  func(req *SubmitRequest) { req.Code = "   \n" },
			wantErr: common.ErrValidation,
		},
		{
			name:    "missing language",
			mutate:  func(req *SubmitRequest) { req.Language = "" },
			wantErr: common.ErrValidation,
		},
		{
			name:    "unsupported language",
			mutate:  func(req *SubmitRequest) { req.Language = "cobol" },
			wantErr: common.ErrValidation,
		},
		{
			name:    "unknown challenge",
			mutate:  func(req *SubmitRequest) { req.ChallengeID = uuid.NewString() },
			wantErr: common.ErrNotFound,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := svc.Submit(context.Background(), fix.user.ID, req)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}

	assert.Empty(t, fix.subs.subs, "rejected requests never create a submission")
}

func TestSubmitLanguageConstraintMismatch(t *testing.T) {
	svc, fix, _ := newSubmissionFixture(t)
	fix.chal.Language = "javascript"

	_, err := svc.Submit(context.Background(), fix.user.ID, SubmitRequest{
		ChallengeID: fix.chal.ID,
		Code:        "print(4)",
		Language:    "python",
	})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestGetSubmissionOwnership(t *testing.T) {
	svc, fix, _ := newSubmissionFixture(t)
	sub := fix.newSubmission(t, true)

	got, err := svc.GetSubmission(context.Background(), fix.user.ID, model.RoleUser, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	_, err = svc.GetSubmission(context.Background(), uuid.NewString(), model.RoleUser, sub.ID)
	assert.ErrorIs(t, err, common.ErrForbidden)

	got, err = svc.GetSubmission(context.Background(), uuid.NewString(), model.RoleAdmin, sub.ID)
	require.NoError(t, err, "admins can read any submission")
	assert.Equal(t, sub.ID, got.ID)

	_, err = svc.GetSubmission(context.Background(), fix.user.ID, model.RoleUser, uuid.NewString())
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestSubmitGradingErrorEnqueuesRetry(t *testing.T) {
	if config.AppConfig == nil {
		config.Load()
	}
	fix := newGradingFixture(t, echoRunner{err: errors.New("judge unreachable")})
	queue := &fakeQueue{}
	svc := NewSubmissionService(fix.subs, newFakeChallengeRepo(fix.chal), fix.service, queue)

	_, err := svc.Submit(context.Background(), fix.user.ID, SubmitRequest{
		ChallengeID: fix.chal.ID,
		Code:        "print(4)",
		Language:    "python",
		IsOfficial:  true,
	})
	require.Error(t, err)

	require.Len(t, fix.subs.subs, 1)
	var subID string
	for _, sub := range fix.subs.subs {
		subID = sub.ID
		assert.Equal(t, model.StatusPending, sub.Status)
	}

	// The inline path cannot redeliver, so the submission goes to the queue
	// rather than staying pending forever.
	jobs := queue.jobs(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, subID, jobs[0].SubmissionID)
}

func TestSubmitAsyncEnqueuesJob(t *testing.T) {
	svc, fix, queue := newSubmissionFixture(t)

	sub, err := svc.SubmitAsync(context.Background(), fix.user.ID, SubmitRequest{
		ChallengeID: fix.chal.ID,
		Code:        "print(4)",
		Language:    "python",
		IsOfficial:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, sub.Status, "grading happens on the worker, not inline")

	jobs := queue.jobs(t)
	require.Len(t, jobs, 1)
	assert.Equal(t, sub.ID, jobs[0].SubmissionID)
	assert.Zero(t, jobs[0].Attempts)
}

func TestSubmitAsyncEnqueueFailureSurfaced(t *testing.T) {
	svc, fix, queue := newSubmissionFixture(t)
	queue.err = errors.New("redis down")

	_, err := svc.SubmitAsync(context.Background(), fix.user.ID, SubmitRequest{
		ChallengeID: fix.chal.ID,
		Code:        "print(4)",
		Language:    "python",
	})
	require.Error(t, err)
}

var _ grader.Runner = echoRunner{}
