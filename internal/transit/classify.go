package transit

type vehicleKind struct {
	tag    string
	zIndex int
}

// knownVehicles lists the vehicle types that get a dedicated tag, in priority order.
var knownVehicles = []vehicleKind{
	{TagBus, 1},
	{TagTramway, 2},
	{TagUnderground, 3},
}

// Options tune classification.
type Options struct {
	// UnknownVehicleTag is assigned to ride sections whose lines carry no known
	// vehicle type. Empty keeps the legacy behaviour of an empty tag.
	UnknownVehicleTag string
}

// Classify converts a raw router section into a SectionInfo.
func Classify(raw RawSection, opts Options) SectionInfo {
	color := ColorUnknown
	tag := ""
	zIndex := 0
	lineName := ""

	if raw.Transit != nil {
		for _, line := range raw.Transit.Lines {
			lineName = line.Name
			if line.Color != nil {
				color = Color(*line.Color) | opaque
				break
			}
		}
		if kt, ok := resolveVehicle(raw.Transit.Lines); ok {
			tag = kt.tag
			zIndex = kt.zIndex
			if kt.tag != TagUnderground {
				color = ColorSurface
			}
		} else {
			tag = opts.UnknownVehicleTag
		}
	} else {
		color = ColorPedestrian
		tag = TagPedestrian
	}

	info := SectionInfo{
		Tag:                   tag,
		DurationSeconds:       raw.DurationSeconds,
		WalkingDistanceMeters: raw.WalkingDistanceMeters,
		Color:                 color,
		Bounds:                boundsFor(raw.Stops, color, zIndex),
	}
	if info.IsPedestrian() {
		return info
	}

	tr := &TransportInfo{
		LineName: lineName,
		LineID:   unresolved,
		Interval: unresolved,
	}
	if n := len(raw.Stops); n > 2 {
		tr.DirectionDescription = raw.Stops[1].Name
		tr.IntermediateStationNames = make([]string, 0, n-2)
		for _, s := range raw.Stops[1 : n-1] {
			tr.IntermediateStationNames = append(tr.IntermediateStationNames, s.Name)
		}
	}
	info.Transport = tr
	return info
}

// resolveVehicle returns the known vehicle type of the first line that has one.
func resolveVehicle(lines []Line) (vehicleKind, bool) {
	for _, line := range lines {
		for _, kt := range knownVehicles {
			for _, vt := range line.VehicleTypes {
				if vt == kt.tag {
					return kt, true
				}
			}
		}
	}
	return vehicleKind{}, false
}

func boundsFor(stops []Stop, color Color, zIndex int) PointBound {
	if len(stops) == 0 {
		unknown := RoutePoint{Name: "", Color: 0, ZIndex: -1}
		return PointBound{Start: unknown, End: unknown}
	}
	return PointBound{
		Start: RoutePoint{Name: stops[0].Name, Color: color, ZIndex: zIndex},
		End:   RoutePoint{Name: stops[len(stops)-1].Name, Color: color, ZIndex: zIndex},
	}
}
