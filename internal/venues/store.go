package venues

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// maxCommitRetries bounds the internal revalidation loop before a version
// mismatch is surfaced as a conflict.
const maxCommitRetries = 3

// ErrVersionConflict indicates the supplied expected version is stale.
var ErrVersionConflict = errors.New("venues: version conflict")

// ConflictError carries the latest committed snapshot so callers can re-chase
// the version without a second read.
type ConflictError struct {
	Latest Venue
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: latest version %d", ErrVersionConflict, e.Latest.Version)
}

func (e *ConflictError) Unwrap() error {
	return ErrVersionConflict
}

// EventSink receives the committed snapshot synchronously with each capacity
// commit. Implementations must not block; the store holds the venue's entry
// lock while emitting so per-venue delivery order matches commit order.
type EventSink interface {
	VenueChanged(snapshot Venue)
}

// Store is the authoritative in-memory state of venue capacity. Mutations are
// serialized per venue; distinct venues commit concurrently.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
	sink    EventSink
	logger  *zap.Logger
}

type storeEntry struct {
	mu    sync.Mutex
	venue Venue
}

// StoreConfig describes the dependencies of the venue state store.
type StoreConfig struct {
	Sink   EventSink
	Logger *zap.Logger
}

// NewStore constructs an empty venue state store.
func NewStore(cfg StoreConfig) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entries: make(map[string]*storeEntry),
		sink:    cfg.Sink,
		logger:  logger,
	}
}

// SetSink installs the change sink. Intended for wiring at startup, before
// the store serves commits.
func (s *Store) SetSink(sink EventSink) {
	s.mu.Lock()
	s.sink = sink
	s.mu.Unlock()
}

// Add installs a venue snapshot, overwriting any previous state for the same
// identifier. Used by cold-start loading and provisioning.
func (s *Store) Add(venue Venue) error {
	if _, err := NewVenueID(venue.ID); err != nil {
		return err
	}
	s.mu.Lock()
	s.entries[venue.ID] = &storeEntry{venue: venue}
	s.mu.Unlock()
	return nil
}

// Get returns the current snapshot for the venue identifier.
func (s *Store) Get(id string) (Venue, error) {
	entry := s.lookup(id)
	if entry == nil {
		return Venue{}, fmt.Errorf("%w: %s", ErrVenueNotFound, id)
	}
	entry.mu.Lock()
	snapshot := entry.venue
	entry.mu.Unlock()
	return snapshot, nil
}

// Len reports the number of venues held by the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// CommitCapacity applies a compare-and-set capacity mutation. The expected
// version must match the current one; on mismatch the store revalidates a
// bounded number of times before returning a ConflictError with the latest
// snapshot. A successful commit increments the version by exactly one and
// emits the new snapshot to the sink before the entry lock is released, so
// commit and emission are a single atomic step for the caller. Value-equal
// commits still advance the version and still emit.
func (s *Store) CommitCapacity(id string, newCurrent uint64, expectedVersion int64) (Venue, error) {
	s.mu.RLock()
	entry := s.entries[id]
	sink := s.sink
	s.mu.RUnlock()
	if entry == nil {
		return Venue{}, fmt.Errorf("%w: %s", ErrVenueNotFound, id)
	}

	var latest Venue
	for attempt := 0; attempt < maxCommitRetries; attempt++ {
		entry.mu.Lock()
		if entry.venue.Version != expectedVersion {
			latest = entry.venue
			entry.mu.Unlock()
			continue
		}

		entry.venue.CurrentCapacity = newCurrent
		entry.venue.Version++
		snapshot := entry.venue
		if sink != nil {
			sink.VenueChanged(snapshot)
		}
		entry.mu.Unlock()
		return snapshot, nil
	}

	s.logger.Debug("capacity commit conflict",
		zap.String("venue_id", id),
		zap.Int64("expected_version", expectedVersion),
		zap.Int64("latest_version", latest.Version))
	return Venue{}, &ConflictError{Latest: latest}
}

func (s *Store) lookup(id string) *storeEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[id]
}
