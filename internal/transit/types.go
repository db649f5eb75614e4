package transit

// Color is a 32-bit ARGB color.
type Color uint32

const (
	ColorUnknown    Color = 0xFFA06ED9
	ColorPedestrian Color = 0xFF7073EE
	ColorSurface    Color = 0xFF33B609 // bus and tramway
	opaque          Color = 0xFF000000
)

// Section tags.
const (
	TagPedestrian  = "pedestrian"
	TagBus         = "bus"
	TagTramway     = "tramway"
	TagUnderground = "underground"
)

// Placeholder for transport fields the routing backend does not expose.
const unresolved = "?"

// RoutePoint is one waypoint label on a route. ZIndex ranks points when two
// sections meet at a shared boundary; -1 marks a point without stop information.
type RoutePoint struct {
	Name   string `json:"name"`
	Color  Color  `json:"color"`
	ZIndex int    `json:"zIndex"`
}

type PointBound struct {
	Start RoutePoint
	End   RoutePoint
}

// SectionInfo describes one leg of a route. Transport is nil exactly when Tag is
// TagPedestrian.
type SectionInfo struct {
	Tag                   string
	DurationSeconds       float64
	WalkingDistanceMeters float64
	Color                 Color
	Bounds                PointBound
	Transport             *TransportInfo
}

// TransportInfo carries the transit-line details of a ride section. LineID and
// Interval are always "?" as the backend does not resolve them.
type TransportInfo struct {
	LineName                 string
	LineID                   string
	DirectionDescription     string
	Interval                 string
	IntermediateStationNames []string
}

func (s SectionInfo) IsPedestrian() bool { return s.Tag == TagPedestrian }

// RawSection is a section as delivered by a router. Transit is nil for walk,
// wait and transfer sections.
type RawSection struct {
	Transit               *TransitData
	Stops                 []Stop
	DurationSeconds       float64
	WalkingDistanceMeters float64
}

type TransitData struct {
	Lines []Line
}

// Line is a public transport line usable for a section. VehicleTypes are
// ordered from the most specific to the most common.
type Line struct {
	Name         string
	Color        *uint32 // RRGGBB, nil when the line has no style
	VehicleTypes []string
}

type Stop struct {
	Name string
}
