package geo

import (
	"math"
	"sync"
)

// cellSizeDegrees is the grid resolution: roughly 1.1km of latitude per cell.
const cellSizeDegrees = 0.01

type cellKey struct {
	row int
	col int
}

// Index is a concurrency-safe grid index over identified points supporting
// radius queries. Points are bucketed by a coarse lat/lng cell; queries scan
// the cells covering the radius bounding box and filter by exact distance.
type Index struct {
	mu      sync.RWMutex
	cells   map[cellKey]map[string]Point
	located map[string]cellKey
}

// NewIndex constructs an empty spatial index.
func NewIndex() *Index {
	return &Index{
		cells:   make(map[cellKey]map[string]Point),
		located: make(map[string]cellKey),
	}
}

// Upsert inserts the point under the identifier, relocating it when the
// identifier is already indexed.
func (x *Index) Upsert(id string, point Point) {
	if id == "" {
		return
	}
	key := cellFor(point)

	x.mu.Lock()
	defer x.mu.Unlock()

	if previous, ok := x.located[id]; ok {
		if previous == key {
			x.cells[previous][id] = point
			return
		}
		x.evict(id, previous)
	}
	bucket, ok := x.cells[key]
	if !ok {
		bucket = make(map[string]Point)
		x.cells[key] = bucket
	}
	bucket[id] = point
	x.located[id] = key
}

// Remove drops the identifier from the index. Unknown identifiers are a no-op.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	key, ok := x.located[id]
	if !ok {
		return
	}
	x.evict(id, key)
	delete(x.located, id)
}

// Query returns the identifiers of all indexed points within radiusMeters of
// center. The radius boundary is inclusive.
func (x *Index) Query(center Point, radiusMeters float64) []string {
	if radiusMeters < 0 {
		return nil
	}

	latDelta := radiusMeters / earthRadiusMeters * 180 / math.Pi
	minLat := math.Max(-90, center.Latitude-latDelta)
	maxLat := math.Min(90, center.Latitude+latDelta)

	// Longitude span widens toward the poles; cap it at a full wrap.
	cosLat := math.Cos(center.Latitude * math.Pi / 180)
	lngDelta := 180.0
	if cosLat > 1e-9 {
		lngDelta = math.Min(180, latDelta/cosLat)
	}
	minLng := center.Longitude - lngDelta
	maxLng := center.Longitude + lngDelta

	minRow := int(math.Floor(minLat / cellSizeDegrees))
	maxRow := int(math.Floor(maxLat / cellSizeDegrees))
	minCol := int(math.Floor(minLng / cellSizeDegrees))
	maxCol := int(math.Floor(maxLng / cellSizeDegrees))

	// A capped longitude span can cover the ring plus one wrapped column;
	// clamp to a single full ring so no cell is scanned twice.
	if span := int(math.Round(360 / cellSizeDegrees)); maxCol-minCol+1 > span {
		minCol = 0
		maxCol = span - 1
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var matches []string
	for row := minRow; row <= maxRow; row++ {
		for col := minCol; col <= maxCol; col++ {
			bucket, ok := x.cells[cellKey{row: row, col: wrapCol(col)}]
			if !ok {
				continue
			}
			for id, point := range bucket {
				if DistanceMeters(center, point) <= radiusMeters {
					matches = append(matches, id)
				}
			}
		}
	}
	return matches
}

// Len reports the number of indexed identifiers.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.located)
}

func (x *Index) evict(id string, key cellKey) {
	bucket := x.cells[key]
	if bucket == nil {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(x.cells, key)
	}
}

func cellFor(point Point) cellKey {
	return cellKey{
		row: int(math.Floor(point.Latitude / cellSizeDegrees)),
		col: wrapCol(int(math.Floor(point.Longitude / cellSizeDegrees))),
	}
}

// wrapCol folds columns crossing the antimeridian back into [-180, 180) range.
func wrapCol(col int) int {
	span := int(math.Round(360 / cellSizeDegrees))
	half := span / 2
	for col < -half {
		col += span
	}
	for col >= half {
		col -= span
	}
	return col
}
