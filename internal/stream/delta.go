package stream

import (
	"time"

	"github.com/moveehq/movee/backend/internal/geo"
	"github.com/moveehq/movee/backend/internal/presence"
	"github.com/moveehq/movee/backend/internal/venues"
)

// DeltaKind discriminates the delta payload variants.
type DeltaKind string

const (
	// DeltaKindVenue is a venue capacity change.
	DeltaKindVenue DeltaKind = "venue"
	// DeltaKindPresence is a friend location broadcast.
	DeltaKindPresence DeltaKind = "presence"
)

// Delta is one incremental change pushed to a subscriber. Exactly one payload
// pointer is non-nil, selected by Kind.
type Delta struct {
	Kind     DeltaKind      `json:"kind"`
	Venue    *VenueDelta    `json:"venue,omitempty"`
	Presence *PresenceDelta `json:"presence,omitempty"`
}

// VenueDelta carries the committed capacity snapshot of a single venue.
type VenueDelta struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	CurrentCapacity uint64 `json:"current_capacity"`
	MaxCapacity     uint64 `json:"max_capacity"`
	Version         int64  `json:"version"`
}

// PresenceDelta carries an accepted friend-location broadcast. VenueName is
// resolved at dispatch time so clients can render a check-in without a second
// lookup.
type PresenceDelta struct {
	UserID      string     `json:"user_id"`
	Username    string     `json:"username,omitempty"`
	VenueID     *string    `json:"venue_id,omitempty"`
	VenueName   string     `json:"venue_name,omitempty"`
	Location    *geo.Point `json:"location,omitempty"`
	LastUpdated time.Time  `json:"last_updated"`
}

func venueDeltaFrom(snapshot venues.Venue) Delta {
	return Delta{
		Kind: DeltaKindVenue,
		Venue: &VenueDelta{
			ID:              snapshot.ID,
			Name:            snapshot.Name,
			CurrentCapacity: snapshot.CurrentCapacity,
			MaxCapacity:     snapshot.MaxCapacity,
			Version:         snapshot.Version,
		},
	}
}

func presenceDeltaFrom(record presence.Record, username, venueName string) Delta {
	return Delta{
		Kind: DeltaKindPresence,
		Presence: &PresenceDelta{
			UserID:      record.UserID,
			Username:    username,
			VenueID:     record.VenueID,
			VenueName:   venueName,
			Location:    record.Location,
			LastUpdated: record.LastUpdated,
		},
	}
}
