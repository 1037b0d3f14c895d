package venues

import (
	"errors"
	"fmt"
	"strings"

	"github.com/moveehq/movee/backend/internal/geo"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidVenueID indicates that a venue identifier is empty or exceeds storage bounds.
	ErrInvalidVenueID = errors.New("venues: invalid venue id")
	// ErrVenueNotFound indicates the venue is unknown to the state store.
	ErrVenueNotFound = errors.New("venues: venue not found")
)

// VenueID represents a validated venue identifier.
type VenueID string

// NewVenueID validates raw input and returns a VenueID.
func NewVenueID(rawInput string) (VenueID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidVenueID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidVenueID, maxIdentifierLength)
	}
	return VenueID(trimmed), nil
}

// String returns the underlying string identifier.
func (id VenueID) String() string {
	return string(id)
}

// Venue is an immutable snapshot of a venue's live state. Location never
// changes after provisioning; capacity and version advance together under
// the state store's per-venue lock.
type Venue struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Location        geo.Point `json:"location"`
	CurrentCapacity uint64    `json:"current_capacity"`
	MaxCapacity     uint64    `json:"max_capacity"`
	Version         int64     `json:"version"`
}

// VenueRecord is the master record persisted by the external provisioning
// store. The live store only borrows its initial state at cold start.
type VenueRecord struct {
	VenueID         string  `gorm:"column:venue_id;primaryKey;size:190;not null"`
	Name            string  `gorm:"column:name;size:320;not null"`
	Latitude        float64 `gorm:"column:latitude;not null"`
	Longitude       float64 `gorm:"column:longitude;not null"`
	MaxCapacity     uint64  `gorm:"column:max_capacity;not null;default:0"`
	CurrentCapacity uint64  `gorm:"column:current_capacity;not null;default:0"`
	Version         int64   `gorm:"column:version;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (VenueRecord) TableName() string {
	return "venues"
}
