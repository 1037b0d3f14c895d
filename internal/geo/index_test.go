package geo

import (
	"sort"
	"testing"
)

func queryIDs(t *testing.T, index *Index, center Point, radius float64) []string {
	t.Helper()
	ids := index.Query(center, radius)
	sort.Strings(ids)
	return ids
}

func TestIndexQueryFiltersByExactDistance(t *testing.T) {
	index := NewIndex()
	center := Point{Latitude: 52.52, Longitude: 13.405}
	index.Upsert("near", Point{Latitude: 52.521, Longitude: 13.406})
	index.Upsert("far", Point{Latitude: 52.6, Longitude: 13.7})

	ids := queryIDs(t, index, center, 500)
	if len(ids) != 1 || ids[0] != "near" {
		t.Fatalf("expected only the near venue, got %v", ids)
	}
}

func TestIndexQueryBoundaryIsInclusive(t *testing.T) {
	index := NewIndex()
	center := Point{Latitude: 10, Longitude: 20}
	index.Upsert("exact", center)

	ids := queryIDs(t, index, center, 0)
	if len(ids) != 1 || ids[0] != "exact" {
		t.Fatalf("expected zero-radius query to match the exact point, got %v", ids)
	}
}

func TestIndexUpsertRelocatesExistingID(t *testing.T) {
	index := NewIndex()
	index.Upsert("venue-1", Point{Latitude: 0, Longitude: 0})
	index.Upsert("venue-1", Point{Latitude: 45, Longitude: 90})

	if ids := queryIDs(t, index, Point{Latitude: 0, Longitude: 0}, 1000); len(ids) != 0 {
		t.Fatalf("expected old cell membership to be removed, got %v", ids)
	}
	ids := queryIDs(t, index, Point{Latitude: 45, Longitude: 90}, 1000)
	if len(ids) != 1 || ids[0] != "venue-1" {
		t.Fatalf("expected relocated venue at new position, got %v", ids)
	}
	if index.Len() != 1 {
		t.Fatalf("expected a single indexed id, got %d", index.Len())
	}
}

func TestIndexRemoveUnknownIDIsNoOp(t *testing.T) {
	index := NewIndex()
	index.Upsert("venue-1", Point{Latitude: 1, Longitude: 1})
	index.Remove("missing")

	if index.Len() != 1 {
		t.Fatalf("expected remove of unknown id to leave index intact, got %d entries", index.Len())
	}
}

func TestIndexRemoveDropsFromQueries(t *testing.T) {
	index := NewIndex()
	point := Point{Latitude: 1, Longitude: 1}
	index.Upsert("venue-1", point)
	index.Remove("venue-1")

	if ids := queryIDs(t, index, point, 1000); len(ids) != 0 {
		t.Fatalf("expected removed id to disappear, got %v", ids)
	}
}

func TestIndexQuerySpansMultipleCells(t *testing.T) {
	index := NewIndex()
	center := Point{Latitude: 52.5, Longitude: 13.4}
	// ~1.1km north, in a neighboring grid cell.
	index.Upsert("north", Point{Latitude: 52.51, Longitude: 13.4})
	index.Upsert("south", Point{Latitude: 52.49, Longitude: 13.4})
	index.Upsert("outside", Point{Latitude: 52.55, Longitude: 13.4})

	ids := queryIDs(t, index, center, 1500)
	if len(ids) != 2 {
		t.Fatalf("expected the two neighboring venues, got %v", ids)
	}
}

func TestIndexQueryNegativeRadiusReturnsNothing(t *testing.T) {
	index := NewIndex()
	index.Upsert("venue-1", Point{Latitude: 0, Longitude: 0})
	if ids := index.Query(Point{Latitude: 0, Longitude: 0}, -1); len(ids) != 0 {
		t.Fatalf("expected no matches for negative radius, got %v", ids)
	}
}

func TestIndexQueryAcrossAntimeridian(t *testing.T) {
	index := NewIndex()
	index.Upsert("west", Point{Latitude: 0, Longitude: 179.995})
	index.Upsert("east", Point{Latitude: 0, Longitude: -179.995})

	ids := queryIDs(t, index, Point{Latitude: 0, Longitude: 179.999}, 2000)
	if len(ids) != 2 {
		t.Fatalf("expected matches on both sides of the antimeridian, got %v", ids)
	}
}

func TestIndexQueryNearPoleReturnsEachIDOnce(t *testing.T) {
	index := NewIndex()
	index.Upsert("station-a", Point{Latitude: 89.99, Longitude: 0})
	index.Upsert("station-b", Point{Latitude: 89.99, Longitude: 179.5})

	// Near the pole the longitude window caps at a full wrap; every column
	// of the ring is scanned but each id must still appear exactly once.
	ids := queryIDs(t, index, Point{Latitude: 89.99, Longitude: 0}, 50000)
	counts := make(map[string]int)
	for _, id := range ids {
		counts[id]++
	}
	if counts["station-a"] != 1 || counts["station-b"] != 1 {
		t.Fatalf("expected each station exactly once, got %v", ids)
	}
	if len(ids) != 2 {
		t.Fatalf("expected two matches, got %v", ids)
	}
}
