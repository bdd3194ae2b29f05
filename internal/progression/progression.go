// Package progression holds the pure experience-point derivations: level,
// badge and progress percentage are always computed from XP, never stored
// independently.
package progression

import (
	"math"

	"github.com/Anzful/devtrain/internal/common"
	"github.com/Anzful/devtrain/internal/domain/model"
)

type Badge struct {
	Name  string `json:"name"`
	Image string `json:"image"`
	MinXP int    `json:"min_xp"`
}

// Ascending by MinXP. A user's badge is the highest entry whose threshold
// their XP has reached.
var badgeTable = []Badge{
	{Name: "Novice", Image: "/badges/novice.png", MinXP: 0},
	{Name: "Learner", Image: "/badges/learner.png", MinXP: 100},
	{Name: "Solver", Image: "/badges/solver.png", MinXP: 250},
	{Name: "Achiever", Image: "/badges/achiever.png", MinXP: 500},
	{Name: "Expert", Image: "/badges/expert.png", MinXP: 1000},
	{Name: "Master", Image: "/badges/master.png", MinXP: 2000},
	{Name: "Legend", Image: "/badges/legend.png", MinXP: 5000},
}

var difficultyPoints = map[model.ChallengeDifficulty]int{
	model.DifficultyEasy:   10,
	model.DifficultyMedium: 20,
	model.DifficultyHard:   30,
}

// Points is the single difficulty-to-points mapping. An unrecognized
// difficulty is a validation error, not a silent zero.
func Points(d model.ChallengeDifficulty) (int, error) {
	points, ok := difficultyPoints[d]
	if !ok {
		return 0, common.Errorf("unknown challenge difficulty %q: %w", d, common.ErrValidation)
	}
	return points, nil
}

// Level is floor(1 + sqrt(xp/100)). Level 1 starts at 0 XP, level 2 at 100,
// level 3 at 400.
func Level(xp int) int {
	if xp < 0 {
		xp = 0
	}
	return int(math.Floor(1 + math.Sqrt(float64(xp)/100)))
}

// XPFloorForLevel is the XP at which the given level begins.
func XPFloorForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return (level - 1) * (level - 1) * 100
}

// XPCeilForLevel is the XP at which the next level begins.
func XPCeilForLevel(level int) int {
	if level < 1 {
		level = 1
	}
	return level * level * 100
}

// ProgressPercent reports how far through the current level the given XP is,
// clamped to [0, 100].
func ProgressPercent(xp int) float64 {
	if xp < 0 {
		xp = 0
	}
	level := Level(xp)
	floor := XPFloorForLevel(level)
	ceil := XPCeilForLevel(level)
	percent := float64(xp-floor) / float64(ceil-floor) * 100
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// BadgeForXP returns the highest-threshold badge earned at the given XP.
func BadgeForXP(xp int) Badge {
	badge := badgeTable[0]
	for _, b := range badgeTable {
		if xp >= b.MinXP {
			badge = b
		}
	}
	return badge
}
