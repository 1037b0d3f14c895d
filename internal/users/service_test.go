package users

import (
	"testing"
	"time"

	githubsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestService(t *testing.T, clock func() time.Time) (*Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(githubsqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&Profile{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db, Clock: clock})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, db
}

func TestResolveUsernameReturnsRegisteredName(t *testing.T) {
	service, _ := newTestService(t, nil)

	if err := service.Register("user-123", "ada"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	if got := service.ResolveUsername("user-123"); got != "ada" {
		t.Fatalf("expected ada, got %q", got)
	}
	if got := service.ResolveUsername("  user-123  "); got != "ada" {
		t.Fatalf("expected normalization before lookup, got %q", got)
	}
}

func TestResolveUsernameUnknownUserIsEmpty(t *testing.T) {
	service, _ := newTestService(t, nil)

	if got := service.ResolveUsername("missing"); got != "" {
		t.Fatalf("expected empty username, got %q", got)
	}
	if got := service.ResolveUsername(""); got != "" {
		t.Fatalf("expected empty username for blank id, got %q", got)
	}
}

func TestResolveUsernameServesFromCache(t *testing.T) {
	service, db := newTestService(t, nil)

	if err := service.Register("user-123", "ada"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if got := service.ResolveUsername("user-123"); got != "ada" {
		t.Fatalf("expected ada, got %q", got)
	}

	// A direct database change must not be observed until the cache entry is
	// replaced through Register.
	if err := db.Model(&Profile{}).Where("user_id = ?", "user-123").Update("username", "grace").Error; err != nil {
		t.Fatalf("failed to mutate profile: %v", err)
	}
	if got := service.ResolveUsername("user-123"); got != "ada" {
		t.Fatalf("expected cached ada, got %q", got)
	}
	if err := service.Register("user-123", "grace"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if got := service.ResolveUsername("user-123"); got != "grace" {
		t.Fatalf("expected grace after re-register, got %q", got)
	}
}

func TestRegisterRejectsBlankUserID(t *testing.T) {
	service, _ := newTestService(t, nil)
	if err := service.Register("   ", "ada"); err == nil {
		t.Fatal("expected error for blank user id")
	}
}

func TestTouchUpdatesLastSeen(t *testing.T) {
	seen := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	service, db := newTestService(t, func() time.Time { return seen })

	if err := service.Register("user-123", "ada"); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	service.Touch("user-123")

	var profile Profile
	if err := db.Where("user_id = ?", "user-123").First(&profile).Error; err != nil {
		t.Fatalf("failed to load profile: %v", err)
	}
	if !profile.LastSeenAt.Equal(seen) {
		t.Fatalf("expected last seen %v, got %v", seen, profile.LastSeenAt)
	}
}
