package gtfs

import "github.com/paulmach/orb"

type Stop struct {
	StopID string
	Name   string
	Lat    float64
	Lon    float64
}

func (s Stop) Point() orb.Point { return orb.Point{s.Lon, s.Lat} }

// Route is a row of routes.txt. Color is the raw RRGGBB hex, possibly empty.
type Route struct {
	RouteID   string
	ShortName string
	LongName  string
	Color     string
	Type      int
}

// StopTime is a row of stop_times.txt. Either time may be absent in the feed;
// the Has flags tell a missing time from a real 00:00:00.
type StopTime struct {
	Stop         Stop
	StopSequence int
	ArrivalSec   int // seconds since midnight (can exceed 24h)
	DepartureSec int // seconds since midnight (can exceed 24h)
	HasArrival   bool
	HasDeparture bool
}

// Departure is the departure time, falling back to the arrival time.
func (st StopTime) Departure() int {
	if st.HasDeparture {
		return st.DepartureSec
	}
	return st.ArrivalSec
}

// Arrival is the arrival time, falling back to the departure time.
func (st StopTime) Arrival() int {
	if st.HasArrival {
		return st.ArrivalSec
	}
	return st.DepartureSec
}

// TripLeg is a ride on one trip from Board to a later Alight stop.
type TripLeg struct {
	TripID    string
	ServiceID string
	Headsign  string
	Route     Route
	Board     StopTime
	Alight    StopTime
}
