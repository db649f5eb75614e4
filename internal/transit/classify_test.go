package transit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rgb(v uint32) *uint32 { return &v }

func stops(names ...string) []Stop {
	out := make([]Stop, 0, len(names))
	for _, n := range names {
		out = append(out, Stop{Name: n})
	}
	return out
}

func TestClassifyPedestrian(t *testing.T) {
	info := Classify(RawSection{
		Stops:                 stops("Home", "Corner"),
		DurationSeconds:       120,
		WalkingDistanceMeters: 150,
	}, Options{})

	assert.Equal(t, TagPedestrian, info.Tag)
	assert.Equal(t, ColorPedestrian, info.Color)
	assert.Nil(t, info.Transport)
	assert.Equal(t, RoutePoint{Name: "Home", Color: ColorPedestrian, ZIndex: 0}, info.Bounds.Start)
	assert.Equal(t, RoutePoint{Name: "Corner", Color: ColorPedestrian, ZIndex: 0}, info.Bounds.End)
	assert.Equal(t, 120.0, info.DurationSeconds)
	assert.Equal(t, 150.0, info.WalkingDistanceMeters)
}

func TestClassifyWithoutStopsUsesSentinelBounds(t *testing.T) {
	info := Classify(RawSection{DurationSeconds: 30}, Options{})

	sentinel := RoutePoint{Name: "", Color: 0, ZIndex: -1}
	assert.Equal(t, sentinel, info.Bounds.Start)
	assert.Equal(t, sentinel, info.Bounds.End)
}

func TestClassifyLineColor(t *testing.T) {
	t.Run("first line with a color wins", func(t *testing.T) {
		info := Classify(RawSection{
			Transit: &TransitData{Lines: []Line{
				{Name: "N1", VehicleTypes: []string{"railway"}},
				{Name: "N2", Color: rgb(0x112233), VehicleTypes: []string{"railway"}},
				{Name: "N3", Color: rgb(0x445566)},
			}},
		}, Options{})

		assert.Equal(t, Color(0xFF112233), info.Color)
		require.NotNil(t, info.Transport)
		assert.Equal(t, "N2", info.Transport.LineName)
	})

	t.Run("line name falls back to the last line", func(t *testing.T) {
		info := Classify(RawSection{
			Transit: &TransitData{Lines: []Line{{Name: "A"}, {Name: "B"}}},
		}, Options{})

		assert.Equal(t, ColorUnknown, info.Color)
		require.NotNil(t, info.Transport)
		assert.Equal(t, "B", info.Transport.LineName)
	})

	t.Run("underground keeps the line color", func(t *testing.T) {
		info := Classify(RawSection{
			Transit: &TransitData{Lines: []Line{
				{Name: "L1", Color: rgb(0xDD2222), VehicleTypes: []string{"underground"}},
			}},
			Stops: stops("Catalunya", "Urquinaona"),
		}, Options{})

		assert.Equal(t, TagUnderground, info.Tag)
		assert.Equal(t, Color(0xFFDD2222), info.Color)
		assert.Equal(t, 3, info.Bounds.Start.ZIndex)
		assert.Equal(t, Color(0xFFDD2222), info.Bounds.End.Color)
	})
}

func TestClassifyVehicleTypes(t *testing.T) {
	tests := []struct {
		name   string
		lines  []Line
		tag    string
		color  Color
		zIndex int
	}{
		{
			name:   "bus",
			lines:  []Line{{Name: "V15", Color: rgb(0x0000FF), VehicleTypes: []string{"bus"}}},
			tag:    TagBus,
			color:  ColorSurface,
			zIndex: 1,
		},
		{
			name:   "tramway after specific type",
			lines:  []Line{{Name: "T4", VehicleTypes: []string{"historic_tram", "tramway"}}},
			tag:    TagTramway,
			color:  ColorSurface,
			zIndex: 2,
		},
		{
			name: "first matching line decides",
			lines: []Line{
				{Name: "R2", VehicleTypes: []string{"railway"}},
				{Name: "L3", VehicleTypes: []string{"underground"}},
				{Name: "H10", VehicleTypes: []string{"bus"}},
			},
			tag:    TagUnderground,
			color:  ColorUnknown,
			zIndex: 3,
		},
		{
			name:   "known types are checked in priority order",
			lines:  []Line{{Name: "X", VehicleTypes: []string{"tramway", "bus"}}},
			tag:    TagBus,
			color:  ColorSurface,
			zIndex: 1,
		},
		{
			name:   "unknown vehicle type leaves tag empty",
			lines:  []Line{{Name: "R1", VehicleTypes: []string{"railway"}}},
			tag:    "",
			color:  ColorUnknown,
			zIndex: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := Classify(RawSection{
				Transit: &TransitData{Lines: tt.lines},
				Stops:   stops("From", "To"),
			}, Options{})

			assert.Equal(t, tt.tag, info.Tag)
			assert.Equal(t, tt.color, info.Color)
			assert.Equal(t, tt.zIndex, info.Bounds.Start.ZIndex)
			assert.Equal(t, tt.zIndex, info.Bounds.End.ZIndex)
			assert.NotNil(t, info.Transport)
		})
	}
}

func TestClassifyUnknownVehicleTagOption(t *testing.T) {
	info := Classify(RawSection{
		Transit: &TransitData{Lines: []Line{{Name: "Ferry", VehicleTypes: []string{"water"}}}},
	}, Options{UnknownVehicleTag: "transit-other"})

	assert.Equal(t, "transit-other", info.Tag)
	assert.NotNil(t, info.Transport)
	assert.Equal(t, -1, info.Bounds.Start.ZIndex)
}

func TestClassifyTransportDetails(t *testing.T) {
	info := Classify(RawSection{
		Transit: &TransitData{Lines: []Line{{Name: "V17", VehicleTypes: []string{"bus"}}}},
		Stops:   stops("Plaça Espanya", "Sants", "Numància", "Les Corts"),
	}, Options{})

	require.NotNil(t, info.Transport)
	assert.Equal(t, "Sants", info.Transport.DirectionDescription)
	assert.Equal(t, []string{"Sants", "Numància"}, info.Transport.IntermediateStationNames)
	assert.Equal(t, "?", info.Transport.LineID)
	assert.Equal(t, "?", info.Transport.Interval)
	assert.Equal(t, "Plaça Espanya", info.Bounds.Start.Name)
	assert.Equal(t, "Les Corts", info.Bounds.End.Name)

	short := Classify(RawSection{
		Transit: &TransitData{Lines: []Line{{Name: "V17", VehicleTypes: []string{"bus"}}}},
		Stops:   stops("Sants", "Les Corts"),
	}, Options{})
	require.NotNil(t, short.Transport)
	assert.Empty(t, short.Transport.DirectionDescription)
	assert.Empty(t, short.Transport.IntermediateStationNames)
}
