package users

import (
	"strings"
	"time"
)

// Profile captures the public-facing attributes of a verified user. Identity
// issuance lives elsewhere; this table only mirrors what presence deltas need.
type Profile struct {
	UserID     string    `gorm:"column:user_id;primaryKey;size:190;not null"`
	Username   string    `gorm:"column:username;size:320;not null"`
	LastSeenAt time.Time `gorm:"column:last_seen_at"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName exposes the table backing user profiles.
func (Profile) TableName() string {
	return "user_profiles"
}

func normalize(value string) string {
	return strings.TrimSpace(value)
}
