package users

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"
)

// ServiceConfig describes the dependencies required for profile resolution.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service resolves display usernames for verified user identifiers. Lookups
// are cached in process; presence dispatch resolves on every broadcast.
type Service struct {
	db    *gorm.DB
	now   func() time.Time
	cache sync.Map
}

// NewService constructs the profile service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:    cfg.Database,
		now:   clock,
		cache: sync.Map{},
	}, nil
}

// ResolveUsername returns the display name for the user identifier, or the
// empty string when no profile exists. Unknown users are not an error; the
// caller decides whether an anonymous delta is acceptable.
func (s *Service) ResolveUsername(userID string) string {
	trimmed := normalize(userID)
	if trimmed == "" {
		return ""
	}

	if cached, ok := s.cache.Load(trimmed); ok {
		if username, ok := cached.(string); ok {
			return username
		}
	}

	var profile Profile
	err := s.db.
		Where("user_id = ?", trimmed).
		First(&profile).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ""
	}
	if err != nil {
		return ""
	}

	s.cache.Store(trimmed, profile.Username)
	return profile.Username
}

// Touch marks the user as recently active. Failures are swallowed; activity
// tracking is advisory.
func (s *Service) Touch(userID string) {
	trimmed := normalize(userID)
	if trimmed == "" {
		return
	}
	_ = s.db.Model(&Profile{}).
		Where("user_id = ?", trimmed).
		Update("last_seen_at", s.now()).
		Error
}

// Register upserts a profile mapping. Intended for provisioning and tests.
func (s *Service) Register(userID, username string) error {
	trimmed := normalize(userID)
	if trimmed == "" {
		return fmt.Errorf("users: user id required")
	}
	profile := Profile{
		UserID:   trimmed,
		Username: normalize(username),
	}
	if err := s.db.Save(&profile).Error; err != nil {
		return err
	}
	s.cache.Store(trimmed, profile.Username)
	return nil
}
