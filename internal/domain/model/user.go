package model

import (
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email"`
	HashedPassword string    `json:"-"` // Not exposed
	Role           string    `json:"role"`
	// Progression fields. Level and badge are cached derivations of
	// experience points; only the award step writes them.
	ExperiencePoints int       `json:"experience_points"`
	Level            int       `json:"level"`
	BadgeName        string    `json:"badge_name"`
	BadgeImage       string    `json:"badge_image"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}
