package router

import (
	"strconv"
	"strings"
)

// vehicleTypes maps a GTFS route_type (basic or extended) to vehicle types,
// most specific first.
func vehicleTypes(routeType int) []string {
	switch {
	case routeType == 0:
		return []string{"tramway"}
	case routeType == 1:
		return []string{"underground"}
	case routeType == 2:
		return []string{"railway"}
	case routeType == 3:
		return []string{"bus"}
	case routeType == 4:
		return []string{"water"}
	case routeType == 5:
		return []string{"cable"}
	case routeType == 6:
		return []string{"aerial_lift"}
	case routeType == 7:
		return []string{"funicular"}
	case routeType == 11:
		return []string{"trolleybus", "bus"}
	case routeType == 12:
		return []string{"monorail"}
	case routeType >= 100 && routeType < 200:
		return []string{"railway"}
	case routeType == 200 || (routeType >= 700 && routeType < 800):
		return []string{"bus"}
	case routeType == 800:
		return []string{"trolleybus", "bus"}
	case routeType >= 400 && routeType < 500:
		return []string{"underground"}
	case routeType >= 900 && routeType < 1000:
		return []string{"tramway"}
	case routeType >= 1000 && routeType < 1100:
		return []string{"water"}
	}
	return nil
}

// lineColor parses a routes.txt color ("RRGGBB", optionally with '#').
// Empty or malformed values yield nil.
func lineColor(hex string) *uint32 {
	hex = strings.TrimPrefix(strings.TrimSpace(hex), "#")
	if len(hex) != 6 {
		return nil
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return nil
	}
	c := uint32(v)
	return &c
}
