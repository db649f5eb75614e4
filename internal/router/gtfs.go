package router

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/golang/glog"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"transit-bridge/internal/gtfs"
	"transit-bridge/internal/transit"
)

// Store is the GTFS data the router reads.
type Store interface {
	ActiveServiceIDs(ctx context.Context, now time.Time) ([]string, error)
	StopsWithin(ctx context.Context, b orb.Bound) ([]gtfs.Stop, error)
	DirectLegs(ctx context.Context, from, to, serviceIDs []string, notBefore int) ([]gtfs.TripLeg, error)
	TripStops(ctx context.Context, tripID string, fromSeq, toSeq int) ([]gtfs.Stop, error)
}

type Options struct {
	WalkingSpeed  float64 // metres per second
	MaxWalkMeters float64
	MaxRoutes     int
	Location      *time.Location
}

// GTFS plans single-ride itineraries: walk to a nearby stop, wait, ride one
// trip, walk to the destination.
type GTFS struct {
	store Store
	opts  Options
}

func NewGTFS(store Store, opts Options) *GTFS {
	if opts.WalkingSpeed <= 0 {
		opts.WalkingSpeed = 1.4
	}
	if opts.MaxWalkMeters <= 0 {
		opts.MaxWalkMeters = 800
	}
	if opts.MaxRoutes <= 0 {
		opts.MaxRoutes = 3
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &GTFS{store: store, opts: opts}
}

type nearStop struct {
	stop gtfs.Stop
	dist float64
}

func (g *GTFS) RequestRoutes(ctx context.Context, req Request) ([]Route, error) {
	depart := req.DepartAt
	if depart.IsZero() {
		depart = time.Now()
	}
	depart = depart.In(g.opts.Location)

	var routes []Route
	if d := geo.Distance(req.Origin, req.Destination); d <= g.opts.MaxWalkMeters {
		routes = append(routes, g.walkOnly(req, d))
	}

	rides, err := g.rideRoutes(ctx, req, depart)
	if err != nil {
		if len(routes) == 0 {
			return nil, err
		}
		glog.Warningf("ride routes unavailable, offering walk only: %v", err)
	}
	routes = append(routes, rides...)

	if len(routes) == 0 {
		return nil, ErrNoRoutes
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return routes[i].DurationSeconds < routes[j].DurationSeconds
	})
	if len(routes) > g.opts.MaxRoutes {
		routes = routes[:g.opts.MaxRoutes]
	}
	return routes, nil
}

func (g *GTFS) walkOnly(req Request, dist float64) Route {
	s := g.walk(dist)
	return Route{
		Sections:        []transit.RawSection{s},
		Geometry:        orb.LineString{req.Origin, req.Destination},
		DurationSeconds: s.DurationSeconds,
	}
}

func (g *GTFS) rideRoutes(ctx context.Context, req Request, depart time.Time) ([]Route, error) {
	services, err := g.store.ActiveServiceIDs(ctx, depart)
	if err != nil {
		return nil, fmt.Errorf("active services: %w", err)
	}
	if len(services) == 0 {
		glog.V(1).Infof("no active services on %s", depart.Format("2006-01-02"))
		return nil, nil
	}
	origins, err := g.nearbyStops(ctx, req.Origin)
	if err != nil {
		return nil, err
	}
	dests, err := g.nearbyStops(ctx, req.Destination)
	if err != nil {
		return nil, err
	}
	if len(origins) == 0 || len(dests) == 0 {
		return nil, nil
	}

	now := daySeconds(depart)
	legs, err := g.store.DirectLegs(ctx, stopIDs(origins), stopIDs(dests), services, now)
	if err != nil {
		return nil, fmt.Errorf("direct legs: %w", err)
	}
	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].Alight.Arrival() < legs[j].Alight.Arrival()
	})

	seen := make(map[string]bool)
	var routes []Route
	for _, leg := range legs {
		if len(routes) >= g.opts.MaxRoutes {
			break
		}
		if seen[leg.TripID] {
			continue
		}
		walkIn := g.walk(origins[leg.Board.Stop.StopID].dist)
		ready := now + int(walkIn.DurationSeconds)
		if leg.Board.Departure() < ready {
			continue
		}
		r, err := g.rideRoute(ctx, req, leg, walkIn, float64(leg.Board.Departure()-ready), dests[leg.Alight.Stop.StopID].dist)
		if err != nil {
			return nil, err
		}
		seen[leg.TripID] = true
		routes = append(routes, r)
	}
	return routes, nil
}

func (g *GTFS) rideRoute(ctx context.Context, req Request, leg gtfs.TripLeg, walkIn transit.RawSection, wait, walkOutDist float64) (Route, error) {
	stops, err := g.store.TripStops(ctx, leg.TripID, leg.Board.StopSequence, leg.Alight.StopSequence)
	if err != nil {
		return Route{}, fmt.Errorf("trip stops for %s: %w", leg.TripID, err)
	}
	if len(stops) == 0 {
		stops = []gtfs.Stop{leg.Board.Stop, leg.Alight.Stop}
	}

	name := leg.Route.ShortName
	if name == "" {
		name = leg.Route.LongName
	}
	ride := transit.RawSection{
		Transit: &transit.TransitData{Lines: []transit.Line{{
			Name:         name,
			Color:        lineColor(leg.Route.Color),
			VehicleTypes: vehicleTypes(leg.Route.Type),
		}}},
		Stops:           make([]transit.Stop, 0, len(stops)),
		DurationSeconds: float64(leg.Alight.Arrival() - leg.Board.Departure()),
	}
	geom := orb.LineString{req.Origin}
	for _, s := range stops {
		ride.Stops = append(ride.Stops, transit.Stop{Name: s.Name})
		geom = append(geom, s.Point())
	}
	geom = append(geom, req.Destination)

	sections := []transit.RawSection{walkIn}
	if wait > 0 {
		sections = append(sections, transit.RawSection{DurationSeconds: wait})
	}
	sections = append(sections, ride, g.walk(walkOutDist))

	total := 0.0
	for _, s := range sections {
		total += s.DurationSeconds
	}
	return Route{Sections: sections, Geometry: geom, DurationSeconds: total}, nil
}

func (g *GTFS) walk(dist float64) transit.RawSection {
	return transit.RawSection{
		DurationSeconds:       dist / g.opts.WalkingSpeed,
		WalkingDistanceMeters: dist,
	}
}

// nearbyStops returns the stops within walking distance of p keyed by stop id.
func (g *GTFS) nearbyStops(ctx context.Context, p orb.Point) (map[string]nearStop, error) {
	candidates, err := g.store.StopsWithin(ctx, geo.NewBoundAroundPoint(p, g.opts.MaxWalkMeters))
	if err != nil {
		return nil, fmt.Errorf("stops near %v: %w", p, err)
	}
	near := make(map[string]nearStop, len(candidates))
	for _, s := range candidates {
		if d := geo.Distance(p, s.Point()); d <= g.opts.MaxWalkMeters {
			near[s.StopID] = nearStop{stop: s, dist: d}
		}
	}
	return near, nil
}

func stopIDs(m map[string]nearStop) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func daySeconds(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}
