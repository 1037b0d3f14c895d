package presence

import (
	"errors"
	"sync"
	"time"

	"github.com/moveehq/movee/backend/internal/geo"
	"go.uber.org/zap"
)

const defaultTTL = 90 * time.Second

var (
	// ErrNotFound indicates the user has no active presence record.
	ErrNotFound = errors.New("presence: record not found")
	// ErrMissingUserID indicates a record without a user identifier.
	ErrMissingUserID = errors.New("presence: user id is required")
	// ErrEmptyRecord indicates a record carrying neither a venue nor a location.
	ErrEmptyRecord = errors.New("presence: venue id or location is required")
)

// Record is an ephemeral friend-location broadcast. At least one of VenueID
// and Location must be set.
type Record struct {
	UserID      string     `json:"user_id"`
	VenueID     *string    `json:"venue_id,omitempty"`
	Location    *geo.Point `json:"location,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

// EventSink receives each accepted presence record synchronously with the
// upsert. The table holds only the user's entry lock during emission, so a
// slow sink delays that user's writes but nobody else's.
type EventSink interface {
	PresenceChanged(record Record)
}

// Table holds per-user presence records with TTL-based logical expiry.
// Expired records are excluded on read; Sweep reaps them physically.
// Mutations are serialized per user; distinct users upsert concurrently.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*tableEntry
	ttl     time.Duration
	sink    EventSink
	clock   func() time.Time
	logger  *zap.Logger
}

type tableEntry struct {
	mu      sync.Mutex
	removed bool
	record  Record
}

// TableConfig describes the dependencies of the presence table.
type TableConfig struct {
	TTL    time.Duration
	Sink   EventSink
	Clock  func() time.Time
	Logger *zap.Logger
}

// NewTable constructs an empty presence table with sane defaults.
func NewTable(cfg TableConfig) *Table {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Table{
		entries: make(map[string]*tableEntry),
		ttl:     ttl,
		sink:    cfg.Sink,
		clock:   clock,
		logger:  logger,
	}
}

// SetSink installs the change sink. Intended for wiring at startup.
func (t *Table) SetSink(sink EventSink) {
	t.mu.Lock()
	t.sink = sink
	t.mu.Unlock()
}

// Upsert creates or refreshes the user's presence record. Concurrent writes
// for the same user resolve last-write-wins on LastUpdated; a write older
// than the stored record is dropped without error. Accepted records are
// emitted to the sink before the user's entry lock is released, so emission
// order per user matches acceptance order.
func (t *Table) Upsert(record Record) error {
	if record.UserID == "" {
		return ErrMissingUserID
	}
	if record.VenueID == nil && record.Location == nil {
		return ErrEmptyRecord
	}
	if record.LastUpdated.IsZero() {
		record.LastUpdated = t.clock()
	}

	t.mu.RLock()
	sink := t.sink
	t.mu.RUnlock()

	for {
		entry := t.entryFor(record.UserID)
		entry.mu.Lock()
		if entry.removed {
			// Reaped by a concurrent Sweep between lookup and lock.
			entry.mu.Unlock()
			continue
		}

		if !entry.record.LastUpdated.IsZero() && record.LastUpdated.Before(entry.record.LastUpdated) {
			entry.mu.Unlock()
			t.logger.Debug("stale presence write dropped",
				zap.String("user_id", record.UserID),
				zap.Time("incoming", record.LastUpdated))
			return nil
		}

		entry.record = record
		if sink != nil {
			sink.PresenceChanged(record)
		}
		entry.mu.Unlock()
		return nil
	}
}

// Get returns the user's presence record when present and unexpired.
func (t *Table) Get(userID string) (Record, error) {
	t.mu.RLock()
	entry := t.entries[userID]
	t.mu.RUnlock()
	if entry == nil {
		return Record{}, ErrNotFound
	}

	entry.mu.Lock()
	record := entry.record
	removed := entry.removed
	entry.mu.Unlock()

	if removed || t.expired(record, t.clock()) {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// ListActive returns the unexpired records matching the filter. A nil filter
// matches everything.
func (t *Table) ListActive(filter func(Record) bool) []Record {
	now := t.clock()

	t.mu.RLock()
	snapshot := make([]*tableEntry, 0, len(t.entries))
	for _, entry := range t.entries {
		snapshot = append(snapshot, entry)
	}
	t.mu.RUnlock()

	var active []Record
	for _, entry := range snapshot {
		entry.mu.Lock()
		record := entry.record
		removed := entry.removed
		entry.mu.Unlock()

		if removed || t.expired(record, now) {
			continue
		}
		if filter != nil && !filter(record) {
			continue
		}
		active = append(active, record)
	}
	return active
}

// Sweep removes expired records and reports how many were reaped. Expiry is
// already enforced on every read; this only bounds memory growth.
func (t *Table) Sweep() int {
	now := t.clock()

	t.mu.Lock()
	defer t.mu.Unlock()

	reaped := 0
	for userID, entry := range t.entries {
		entry.mu.Lock()
		if t.expired(entry.record, now) {
			entry.removed = true
			delete(t.entries, userID)
			reaped++
		}
		entry.mu.Unlock()
	}
	return reaped
}

// entryFor returns the user's entry, creating it on first use. Lock order is
// always table lock before entry lock.
func (t *Table) entryFor(userID string) *tableEntry {
	t.mu.RLock()
	entry := t.entries[userID]
	t.mu.RUnlock()
	if entry != nil {
		return entry
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if entry = t.entries[userID]; entry == nil {
		entry = &tableEntry{}
		t.entries[userID] = entry
	}
	return entry
}

func (t *Table) expired(record Record, now time.Time) bool {
	return now.Sub(record.LastUpdated) >= t.ttl
}
