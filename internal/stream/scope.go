package stream

import (
	"errors"
	"fmt"

	"github.com/moveehq/movee/backend/internal/geo"
)

// ErrInvalidScope indicates a malformed subscription scope. Registration is
// refused; no channel is allocated.
var ErrInvalidScope = errors.New("stream: invalid scope")

// ScopeKind discriminates the subscription scope variants.
type ScopeKind string

const (
	// ScopeKindGeoFence matches venue capacity deltas within a radius of a center point.
	ScopeKindGeoFence ScopeKind = "geofence"
	// ScopeKindFriendSet matches presence deltas for an explicit set of users.
	ScopeKindFriendSet ScopeKind = "friends"
)

// Scope is the tagged filter deciding which deltas a subscriber receives.
// Exactly one variant's fields are meaningful, selected by Kind.
type Scope struct {
	Kind         ScopeKind
	Center       geo.Point
	RadiusMeters float64
	Friends      map[string]struct{}
}

// NewGeoFenceScope builds a scope matching venues within radiusMeters of center.
func NewGeoFenceScope(center geo.Point, radiusMeters float64) (Scope, error) {
	scope := Scope{
		Kind:         ScopeKindGeoFence,
		Center:       center,
		RadiusMeters: radiusMeters,
	}
	if err := scope.Validate(); err != nil {
		return Scope{}, err
	}
	return scope, nil
}

// NewFriendSetScope builds a scope matching presence broadcasts from the
// provided users. Empty and duplicate identifiers are rejected and collapsed
// respectively.
func NewFriendSetScope(friendIDs []string) (Scope, error) {
	friends := make(map[string]struct{}, len(friendIDs))
	for _, id := range friendIDs {
		if id == "" {
			return Scope{}, fmt.Errorf("%w: empty friend id", ErrInvalidScope)
		}
		friends[id] = struct{}{}
	}
	scope := Scope{
		Kind:    ScopeKindFriendSet,
		Friends: friends,
	}
	if err := scope.Validate(); err != nil {
		return Scope{}, err
	}
	return scope, nil
}

// Validate reports whether the scope is well formed for its kind.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeKindGeoFence:
		if _, err := geo.NewPoint(s.Center.Latitude, s.Center.Longitude); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidScope, err)
		}
		if s.RadiusMeters < 0 {
			return fmt.Errorf("%w: negative radius", ErrInvalidScope)
		}
		return nil
	case ScopeKindFriendSet:
		if len(s.Friends) == 0 {
			return fmt.Errorf("%w: empty friend set", ErrInvalidScope)
		}
		return nil
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidScope, string(s.Kind))
	}
}

// Contains reports friend-set membership. Always false for other kinds.
func (s Scope) Contains(userID string) bool {
	if s.Kind != ScopeKindFriendSet {
		return false
	}
	_, ok := s.Friends[userID]
	return ok
}
