package venues

import (
	"errors"
	"sync"
	"testing"

	"github.com/moveehq/movee/backend/internal/geo"
)

type recordingSink struct {
	mu        sync.Mutex
	snapshots []Venue
}

func (s *recordingSink) VenueChanged(snapshot Venue) {
	s.mu.Lock()
	s.snapshots = append(s.snapshots, snapshot)
	s.mu.Unlock()
}

func (s *recordingSink) all() []Venue {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Venue(nil), s.snapshots...)
}

func seedVenue(t *testing.T, store *Store, id string, current uint64) {
	t.Helper()
	err := store.Add(Venue{
		ID:              id,
		Name:            "Venue " + id,
		Location:        geo.Point{Latitude: 10, Longitude: 20},
		CurrentCapacity: current,
		MaxCapacity:     50,
		Version:         0,
	})
	if err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
}

func TestStoreCommitIncrementsVersionByOne(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(StoreConfig{Sink: sink})
	seedVenue(t, store, "venue-1", 10)

	snapshot, err := store.CommitCapacity("venue-1", 45, 0)
	if err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if snapshot.Version != 1 {
		t.Fatalf("expected version 1, got %d", snapshot.Version)
	}
	if snapshot.CurrentCapacity != 45 {
		t.Fatalf("expected capacity 45, got %d", snapshot.CurrentCapacity)
	}

	emitted := sink.all()
	if len(emitted) != 1 {
		t.Fatalf("expected exactly one emitted snapshot, got %d", len(emitted))
	}
	if emitted[0] != snapshot {
		t.Fatalf("emitted snapshot %#v differs from returned %#v", emitted[0], snapshot)
	}
}

func TestStoreCommitVersionChasing(t *testing.T) {
	store := NewStore(StoreConfig{})
	seedVenue(t, store, "venue-1", 0)

	for i := int64(0); i < 5; i++ {
		snapshot, err := store.CommitCapacity("venue-1", uint64(i+1), i)
		if err != nil {
			t.Fatalf("commit %d failed: %v", i, err)
		}
		if snapshot.Version != i+1 {
			t.Fatalf("expected version %d, got %d", i+1, snapshot.Version)
		}
	}

	final, err := store.Get("venue-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if final.CurrentCapacity != 5 || final.Version != 5 {
		t.Fatalf("expected current=5 version=5, got %#v", final)
	}
}

func TestStoreCommitStaleVersionIsConflict(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(StoreConfig{Sink: sink})
	seedVenue(t, store, "venue-1", 10)

	if _, err := store.CommitCapacity("venue-1", 20, 0); err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}

	_, err := store.CommitCapacity("venue-1", 30, 0)
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected version conflict, got %v", err)
	}
	var conflict *ConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ConflictError, got %T", err)
	}
	if conflict.Latest.Version != 1 || conflict.Latest.CurrentCapacity != 20 {
		t.Fatalf("conflict should carry latest snapshot, got %#v", conflict.Latest)
	}

	snapshot, err := store.Get("venue-1")
	if err != nil {
		t.Fatalf("unexpected get error: %v", err)
	}
	if snapshot.CurrentCapacity != 20 || snapshot.Version != 1 {
		t.Fatalf("conflicting commit must not mutate state, got %#v", snapshot)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("conflicting commit must not emit, got %d events", len(sink.all()))
	}
}

func TestStoreCommitUnknownVenueIsNotFound(t *testing.T) {
	store := NewStore(StoreConfig{})
	if _, err := store.CommitCapacity("missing", 1, 0); !errors.Is(err, ErrVenueNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreValueEqualCommitStillEmits(t *testing.T) {
	sink := &recordingSink{}
	store := NewStore(StoreConfig{Sink: sink})
	seedVenue(t, store, "venue-1", 10)

	snapshot, err := store.CommitCapacity("venue-1", 10, 0)
	if err != nil {
		t.Fatalf("unexpected commit error: %v", err)
	}
	if snapshot.Version != 1 {
		t.Fatalf("no-op commit must still advance the version, got %d", snapshot.Version)
	}
	if len(sink.all()) != 1 {
		t.Fatalf("no-op commit must still emit, got %d events", len(sink.all()))
	}
}

func TestStoreGetUnknownVenueIsNotFound(t *testing.T) {
	store := NewStore(StoreConfig{})
	if _, err := store.Get("missing"); !errors.Is(err, ErrVenueNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestStoreAddRejectsInvalidID(t *testing.T) {
	store := NewStore(StoreConfig{})
	if err := store.Add(Venue{ID: "  "}); !errors.Is(err, ErrInvalidVenueID) {
		t.Fatalf("expected invalid id error, got %v", err)
	}
}

func TestStoreConcurrentCommitsOnDistinctVenues(t *testing.T) {
	store := NewStore(StoreConfig{})
	seedVenue(t, store, "venue-a", 0)
	seedVenue(t, store, "venue-b", 0)

	var wg sync.WaitGroup
	for _, id := range []string{"venue-a", "venue-b"} {
		wg.Add(1)
		go func(venueID string) {
			defer wg.Done()
			for i := int64(0); i < 100; i++ {
				if _, err := store.CommitCapacity(venueID, uint64(i), i); err != nil {
					t.Errorf("commit %d on %s failed: %v", i, venueID, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"venue-a", "venue-b"} {
		snapshot, err := store.Get(id)
		if err != nil {
			t.Fatalf("unexpected get error: %v", err)
		}
		if snapshot.Version != 100 {
			t.Fatalf("expected version 100 on %s, got %d", id, snapshot.Version)
		}
	}
}
