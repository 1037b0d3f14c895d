package stream

import (
	"errors"
	"sort"

	"github.com/moveehq/movee/backend/internal/geo"
	"github.com/moveehq/movee/backend/internal/venues"
	"go.uber.org/zap"
)

var (
	errMissingIndex    = errors.New("stream: spatial index is required")
	errMissingStore    = errors.New("stream: venue store is required")
	errMissingRegistry = errors.New("stream: registry is required")
)

// Service is the synchronous client-facing query API: proximity searches over
// the live venue state and subscription bootstrap.
type Service struct {
	index    *geo.Index
	store    *venues.Store
	registry *Registry
	logger   *zap.Logger
}

// ServiceConfig describes the dependencies of the query service.
type ServiceConfig struct {
	Index    *geo.Index
	Store    *venues.Store
	Registry *Registry
	Logger   *zap.Logger
}

// NewService validates dependencies and constructs the query service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Index == nil {
		return nil, errMissingIndex
	}
	if cfg.Store == nil {
		return nil, errMissingStore
	}
	if cfg.Registry == nil {
		return nil, errMissingRegistry
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		index:    cfg.Index,
		store:    cfg.Store,
		registry: cfg.Registry,
		logger:   logger,
	}, nil
}

// NearbyVenues returns live snapshots of all venues within radiusMeters of
// center, nearest first. Identifiers removed from the state store between the
// index query and the snapshot read are skipped; the index and the store are
// allowed to disagree briefly.
func (s *Service) NearbyVenues(center geo.Point, radiusMeters float64) []venues.Venue {
	ids := s.index.Query(center, radiusMeters)
	found := make([]venues.Venue, 0, len(ids))
	for _, id := range ids {
		venue, err := s.store.Get(id)
		if err != nil {
			continue
		}
		found = append(found, venue)
	}
	sort.Slice(found, func(i, j int) bool {
		di := geo.DistanceMeters(center, found[i].Location)
		dj := geo.DistanceMeters(center, found[j].Location)
		if di == dj {
			return found[i].ID < found[j].ID
		}
		return di < dj
	})
	return found
}

// OpenSubscription registers the scope and, for geofence scopes, takes the
// initial venue snapshot. Registration happens first so no commit can land
// between the snapshot read and the subscription becoming visible to
// dispatch; the snapshot versions are primed as delivery floors so a delta
// already reflected in the snapshot is never forwarded again.
func (s *Service) OpenSubscription(scope Scope) ([]venues.Venue, *Subscription, error) {
	subscription, err := s.registry.Register(scope)
	if err != nil {
		return nil, nil, err
	}

	var snapshot []venues.Venue
	if scope.Kind == ScopeKindGeoFence {
		snapshot = s.NearbyVenues(scope.Center, scope.RadiusMeters)
		for _, venue := range snapshot {
			subscription.Prime(venue.ID, venue.Version)
		}
	}

	s.logger.Debug("subscription opened",
		zap.String("subscription", subscription.Handle()),
		zap.String("scope", string(scope.Kind)),
		zap.Int("snapshot_venues", len(snapshot)))
	return snapshot, subscription, nil
}

// CloseSubscription removes the subscription from dispatch and closes its
// channel.
func (s *Service) CloseSubscription(subscription *Subscription) {
	if subscription == nil {
		return
	}
	s.registry.Unregister(subscription.Handle())
}
