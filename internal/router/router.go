// Package router finds public transport routes between two points and
// delivers them as raw sections for the transit package to process.
package router

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"transit-bridge/internal/transit"
)

// ErrNoRoutes is returned when a request has no result.
var ErrNoRoutes = errors.New("no routes found")

// Router answers route requests between exactly two waypoints.
type Router interface {
	RequestRoutes(ctx context.Context, req Request) ([]Route, error)
}

type Request struct {
	Origin      orb.Point
	Destination orb.Point
	DepartAt    time.Time
}

// Route is one candidate itinerary, sections in travel order.
type Route struct {
	Sections        []transit.RawSection
	Geometry        orb.LineString
	DurationSeconds float64
}

// FormatDuration renders a travel time as the short text shown to users,
// e.g. "7 min" or "1 h 5 min".
func FormatDuration(seconds float64) string {
	mins := int((seconds + 59) / 60)
	if mins < 1 {
		mins = 1
	}
	if mins < 60 {
		return fmt.Sprintf("%d min", mins)
	}
	if mins%60 == 0 {
		return fmt.Sprintf("%d h", mins/60)
	}
	return fmt.Sprintf("%d h %d min", mins/60, mins%60)
}
