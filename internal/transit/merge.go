package transit

// MaxPoint returns the point with the strictly greater ZIndex; ties keep p1.
func MaxPoint(p1, p2 RoutePoint) RoutePoint {
	if p2.ZIndex > p1.ZIndex {
		return p2
	}
	return p1
}

func MergeBounds(b1, b2 PointBound) PointBound {
	return PointBound{
		Start: MaxPoint(b1.Start, b2.Start),
		End:   MaxPoint(b1.End, b2.End),
	}
}

// MergeSections collapses runs of adjacent pedestrian sections into one,
// summing duration and walking distance. Order is preserved and the input is
// not modified.
func MergeSections(sections []SectionInfo) []SectionInfo {
	merged := make([]SectionInfo, 0, len(sections))
	var acc *SectionInfo

	for i := range sections {
		cur := sections[i]
		switch {
		case acc == nil:
			acc = &cur
		case acc.IsPedestrian() && cur.IsPedestrian():
			acc = &SectionInfo{
				Tag:                   acc.Tag,
				DurationSeconds:       acc.DurationSeconds + cur.DurationSeconds,
				WalkingDistanceMeters: acc.WalkingDistanceMeters + cur.WalkingDistanceMeters,
				Color:                 acc.Color,
				Bounds:                MergeBounds(acc.Bounds, cur.Bounds),
			}
		default:
			merged = append(merged, *acc)
			acc = &cur
		}
	}
	if acc != nil {
		merged = append(merged, *acc)
	}
	return merged
}

// RoutePoints derives one waypoint per section boundary. At each junction the
// higher ranked of the two meeting points is kept; the route origin and
// destination are always kept. The result has len(sections)+1 points, or none
// for an empty input.
func RoutePoints(sections []SectionInfo) []RoutePoint {
	if len(sections) == 0 {
		return []RoutePoint{}
	}
	points := make([]RoutePoint, 0, len(sections)+1)
	points = append(points, sections[0].Bounds.Start)
	for i := 0; i < len(sections)-1; i++ {
		points = append(points, MaxPoint(sections[i].Bounds.End, sections[i+1].Bounds.Start))
	}
	points = append(points, sections[len(sections)-1].Bounds.End)
	return points
}
