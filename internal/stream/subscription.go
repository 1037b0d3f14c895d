package stream

import (
	"sync"
	"time"
)

// Subscription is one live client's delivery endpoint. The registry owns the
// handle; the subscription owns the channel and closes it exactly once when
// the registration ends. Deltas arriving faster than the consumer drains are
// dropped (drop-new), never blocking the publisher.
type Subscription struct {
	handle string
	scope  Scope
	stream chan Delta

	mu            sync.Mutex
	closed        bool
	venueFloor    map[string]int64
	presenceFloor map[string]time.Time
}

func newSubscription(handle string, scope Scope, bufferSize int) *Subscription {
	return &Subscription{
		handle:        handle,
		scope:         scope,
		stream:        make(chan Delta, bufferSize),
		venueFloor:    make(map[string]int64),
		presenceFloor: make(map[string]time.Time),
	}
}

// Handle returns the opaque registration identifier.
func (s *Subscription) Handle() string {
	return s.handle
}

// Scope returns the subscription's matching scope.
func (s *Subscription) Scope() Scope {
	return s.scope
}

// Stream exposes the delivery channel. It is closed when the subscription is
// unregistered; consumers should range until closed.
func (s *Subscription) Stream() <-chan Delta {
	return s.stream
}

// Prime records a venue version already reflected in the subscriber's initial
// snapshot, so Admit suppresses deltas at or below it. Must be called before
// the consumer starts draining the stream.
func (s *Subscription) Prime(venueID string, version int64) {
	s.mu.Lock()
	if current, ok := s.venueFloor[venueID]; !ok || version > current {
		s.venueFloor[venueID] = version
	}
	s.mu.Unlock()
}

// Admit decides whether a received delta should be forwarded to the client.
// Per entity, venue deltas must strictly increase in version and presence
// deltas must not regress in LastUpdated; anything else is a duplicate or a
// stale arrival and is skipped. Called by the consumer for every delta read
// off the stream.
func (s *Subscription) Admit(delta Delta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch delta.Kind {
	case DeltaKindVenue:
		if delta.Venue == nil {
			return false
		}
		floor, seen := s.venueFloor[delta.Venue.ID]
		if seen && delta.Venue.Version <= floor {
			return false
		}
		s.venueFloor[delta.Venue.ID] = delta.Venue.Version
		return true
	case DeltaKindPresence:
		if delta.Presence == nil {
			return false
		}
		floor, seen := s.presenceFloor[delta.Presence.UserID]
		if seen && delta.Presence.LastUpdated.Before(floor) {
			return false
		}
		s.presenceFloor[delta.Presence.UserID] = delta.Presence.LastUpdated
		return true
	default:
		return false
	}
}

// push enqueues the delta without blocking. A full buffer or a concurrently
// closed subscription drops this delta only; the publisher and all other
// subscribers are unaffected.
func (s *Subscription) push(delta Delta) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.stream <- delta:
		return true
	default:
		return false
	}
}

// close terminates delivery exactly once. Safe against in-flight pushes: they
// observe the closed flag under the same lock and drop instead of panicking.
func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.stream)
}
