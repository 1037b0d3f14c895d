package stream

import (
	"github.com/moveehq/movee/backend/internal/geo"
	"github.com/moveehq/movee/backend/internal/presence"
	"github.com/moveehq/movee/backend/internal/venues"
	"go.uber.org/zap"
)

// UsernameResolver supplies display names for presence deltas. The empty
// string means no profile is known.
type UsernameResolver interface {
	ResolveUsername(userID string) string
}

// VenueDirectory supplies live venue snapshots for enriching check-in deltas
// with the venue's display name.
type VenueDirectory interface {
	Get(id string) (venues.Venue, error)
}

// Dispatcher matches committed change events against every live subscription
// scope and fans matching deltas out to their channels. It is the sink for
// both the venue state store and the presence table; emission happens on the
// committing goroutine, so delivery must never block.
type Dispatcher struct {
	registry  *Registry
	usernames UsernameResolver
	venues    VenueDirectory
	logger    *zap.Logger
}

// DispatcherConfig describes dispatcher dependencies.
type DispatcherConfig struct {
	Registry  *Registry
	Usernames UsernameResolver
	Venues    VenueDirectory
	Logger    *zap.Logger
}

// NewDispatcher constructs a dispatcher over the registry.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry:  cfg.Registry,
		usernames: cfg.Usernames,
		venues:    cfg.Venues,
		logger:    logger,
	}
}

// VenueChanged fans a committed capacity snapshot out to every geofence
// subscription whose radius covers the venue, boundary inclusive. Friend-set
// subscriptions never receive venue deltas.
func (d *Dispatcher) VenueChanged(snapshot venues.Venue) {
	delta := venueDeltaFrom(snapshot)
	for _, subscription := range d.registry.snapshot() {
		scope := subscription.Scope()
		switch scope.Kind {
		case ScopeKindGeoFence:
			if geo.DistanceMeters(scope.Center, snapshot.Location) <= scope.RadiusMeters {
				if !subscription.push(delta) {
					d.logger.Debug("venue delta dropped",
						zap.String("venue_id", snapshot.ID),
						zap.String("subscription", subscription.Handle()))
				}
			}
		case ScopeKindFriendSet:
			// Venue capacity is not friend data; skip.
		}
	}
}

// PresenceChanged fans an accepted friend-location broadcast out to every
// friend-set subscription containing the user. Geofence subscriptions never
// receive presence deltas: arbitrary users' positions are not leaked to
// whoever happens to watch a map region.
func (d *Dispatcher) PresenceChanged(record presence.Record) {
	username := ""
	if d.usernames != nil {
		username = d.usernames.ResolveUsername(record.UserID)
	}
	venueName := ""
	if record.VenueID != nil && d.venues != nil {
		if venue, err := d.venues.Get(*record.VenueID); err == nil {
			venueName = venue.Name
		}
	}
	delta := presenceDeltaFrom(record, username, venueName)
	for _, subscription := range d.registry.snapshot() {
		scope := subscription.Scope()
		switch scope.Kind {
		case ScopeKindFriendSet:
			if scope.Contains(record.UserID) {
				if !subscription.push(delta) {
					d.logger.Debug("presence delta dropped",
						zap.String("user_id", record.UserID),
						zap.String("subscription", subscription.Handle()))
				}
			}
		case ScopeKindGeoFence:
		}
	}
}
