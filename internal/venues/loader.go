package venues

import (
	"context"
	"errors"
	"fmt"

	"github.com/moveehq/movee/backend/internal/geo"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var errMissingDatabase = errors.New("venues: database handle is required")

// LoadSnapshot reads the venue master records and seeds the state store and
// spatial index before the service starts accepting traffic. Any failure is
// returned to the caller; serving with a partial index is not supported.
func LoadSnapshot(ctx context.Context, db *gorm.DB, store *Store, index *geo.Index, logger *zap.Logger) error {
	if db == nil {
		return errMissingDatabase
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var records []VenueRecord
	if err := db.WithContext(ctx).Find(&records).Error; err != nil {
		return fmt.Errorf("venues: load master records: %w", err)
	}

	for _, record := range records {
		point, err := geo.NewPoint(record.Latitude, record.Longitude)
		if err != nil {
			return fmt.Errorf("venues: master record %s: %w", record.VenueID, err)
		}
		venue := Venue{
			ID:              record.VenueID,
			Name:            record.Name,
			Location:        point,
			CurrentCapacity: record.CurrentCapacity,
			MaxCapacity:     record.MaxCapacity,
			Version:         record.Version,
		}
		if err := store.Add(venue); err != nil {
			return err
		}
		index.Upsert(venue.ID, venue.Location)
	}

	logger.Info("venue snapshot loaded", zap.Int("venues", len(records)))
	return nil
}
