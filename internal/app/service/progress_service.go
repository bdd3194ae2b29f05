package service

import (
	"context"

	"github.com/Anzful/devtrain/internal/domain/repository"
	"github.com/Anzful/devtrain/internal/progression"
)

// ProgressService is the user-facing read path over progression state.
type ProgressService struct {
	userRepo       repository.UserRepository
	submissionRepo repository.SubmissionRepository
}

func NewProgressService(userRepo repository.UserRepository, subRepo repository.SubmissionRepository) *ProgressService {
	return &ProgressService{userRepo: userRepo, submissionRepo: subRepo}
}

type UserProgress struct {
	UserID              string            `json:"user_id"`
	Username            string            `json:"username"`
	ExperiencePoints    int               `json:"experience_points"`
	Level               int               `json:"level"`
	Badge               progression.Badge `json:"badge"`
	ProgressPercent     float64           `json:"progress_percent"`
	XPForNextLevel      int               `json:"xp_for_next_level"`
	CompletedChallenges int               `json:"completed_challenges"`
}

func (s *ProgressService) GetUserProgress(ctx context.Context, userID string) (*UserProgress, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	completed, err := s.submissionRepo.CountCompletedChallenges(ctx, userID)
	if err != nil {
		return nil, err
	}

	xp := user.ExperiencePoints
	level := progression.Level(xp)
	return &UserProgress{
		UserID:              user.ID,
		Username:            user.Username,
		ExperiencePoints:    xp,
		Level:               level,
		Badge:               progression.BadgeForXP(xp),
		ProgressPercent:     progression.ProgressPercent(xp),
		XPForNextLevel:      progression.XPCeilForLevel(level),
		CompletedChallenges: completed,
	}, nil
}
