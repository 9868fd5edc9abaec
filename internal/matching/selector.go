// Package matching picks a plumber for a job location.
package matching

import (
	"math"
	"strings"

	"marketplace-service/internal/storage"
)

// Strategy names accepted by New
const (
	StrategyNearest        = "nearest"
	StrategyFirstAvailable = "first_available"
)

// Location is a point in decimal degrees
type Location struct {
	Lat float64 `json:"latitude"`
	Lng float64 `json:"longitude"`
}

// Selector chooses one candidate from the given plumbers. A nil result means
// no candidate, which is a normal outcome rather than an error. Selectors
// never mutate plumbers; claiming the winner is the caller's job.
type Selector interface {
	Select(loc Location, plumbers []*storage.Plumber) *storage.Plumber
}

// FirstAvailable returns the first available plumber in list order, ignoring distance
type FirstAvailable struct{}

func (FirstAvailable) Select(_ Location, plumbers []*storage.Plumber) *storage.Plumber {
	for _, p := range plumbers {
		if p.Available {
			return p
		}
	}
	return nil
}

// Nearest returns the closest available plumber with a known location.
// RadiusKm <= 0 means unbounded. Ties keep list order. Available plumbers
// without a location rank after every located candidate, so the first of them
// is chosen only when no located plumber qualifies.
type Nearest struct {
	RadiusKm float64
}

func (n Nearest) Select(loc Location, plumbers []*storage.Plumber) *storage.Plumber {
	var best, unlocated *storage.Plumber
	minDistance := math.MaxFloat64

	for _, p := range plumbers {
		if !p.Available {
			continue
		}
		if !p.HasLocation() {
			if unlocated == nil {
				unlocated = p
			}
			continue
		}

		distance := Distance(loc, Location{Lat: *p.LocationLat, Lng: *p.LocationLng})
		if n.RadiusKm > 0 && distance > n.RadiusKm {
			continue
		}

		if distance < minDistance {
			minDistance = distance
			best = p
		}
	}

	if best == nil {
		return unlocated
	}
	return best
}

// New returns the selector for strategy, defaulting to Nearest
func New(strategy string, radiusKm float64) Selector {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case StrategyFirstAvailable:
		return FirstAvailable{}
	default:
		return Nearest{RadiusKm: radiusKm}
	}
}

// Distance returns the great-circle distance in kilometers (Haversine formula)
func Distance(a, b Location) float64 {
	const earthRadius = 6371 // Earth's radius in kilometers

	lat1Rad := a.Lat * math.Pi / 180
	lat2Rad := b.Lat * math.Pi / 180
	dlat := (b.Lat - a.Lat) * math.Pi / 180
	dlng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) + math.Cos(lat1Rad)*math.Cos(lat2Rad)*math.Sin(dlng/2)*math.Sin(dlng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return earthRadius * c
}
