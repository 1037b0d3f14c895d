package venues

import (
	"context"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/moveehq/movee/backend/internal/geo"
	"gorm.io/gorm"
)

func openMasterStore(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	if err := db.AutoMigrate(&VenueRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return db
}

func TestLoadSnapshotSeedsStoreAndIndex(t *testing.T) {
	db := openMasterStore(t)
	records := []VenueRecord{
		{VenueID: "venue-1", Name: "Klub A", Latitude: 52.52, Longitude: 13.405, MaxCapacity: 100, CurrentCapacity: 30, Version: 4},
		{VenueID: "venue-2", Name: "Bar B", Latitude: 52.53, Longitude: 13.41, MaxCapacity: 40},
	}
	if err := db.Create(&records).Error; err != nil {
		t.Fatalf("failed to seed master records: %v", err)
	}

	store := NewStore(StoreConfig{})
	index := geo.NewIndex()
	if err := LoadSnapshot(context.Background(), db, store, index, nil); err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if store.Len() != 2 {
		t.Fatalf("expected 2 venues in store, got %d", store.Len())
	}
	if index.Len() != 2 {
		t.Fatalf("expected 2 venues indexed, got %d", index.Len())
	}

	venue, err := store.Get("venue-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if venue.CurrentCapacity != 30 || venue.Version != 4 || venue.Name != "Klub A" {
		t.Fatalf("unexpected loaded venue: %#v", venue)
	}

	ids := index.Query(geo.Point{Latitude: 52.52, Longitude: 13.405}, 100)
	if len(ids) != 1 || ids[0] != "venue-1" {
		t.Fatalf("expected venue-1 indexed at its master location, got %v", ids)
	}
}

func TestLoadSnapshotRejectsCorruptCoordinates(t *testing.T) {
	db := openMasterStore(t)
	record := VenueRecord{VenueID: "venue-1", Name: "Broken", Latitude: 123.4, Longitude: 0, MaxCapacity: 10}
	if err := db.Create(&record).Error; err != nil {
		t.Fatalf("failed to seed master record: %v", err)
	}

	store := NewStore(StoreConfig{})
	index := geo.NewIndex()
	if err := LoadSnapshot(context.Background(), db, store, index, nil); err == nil {
		t.Fatal("expected load to fail on out-of-range latitude")
	}
}

func TestLoadSnapshotRequiresDatabase(t *testing.T) {
	store := NewStore(StoreConfig{})
	if err := LoadSnapshot(context.Background(), nil, store, geo.NewIndex(), nil); err == nil {
		t.Fatal("expected error for missing database handle")
	}
}
