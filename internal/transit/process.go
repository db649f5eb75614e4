package transit

// Result is a processed route: merged sections and their boundary points.
type Result struct {
	Sections []SectionInfo
	Points   []RoutePoint
}

// Process classifies raw sections, merges walking runs and extracts route points.
func Process(raw []RawSection, opts Options) Result {
	sections := make([]SectionInfo, 0, len(raw))
	for _, r := range raw {
		sections = append(sections, Classify(r, opts))
	}
	merged := MergeSections(sections)
	return Result{
		Sections: merged,
		Points:   RoutePoints(merged),
	}
}
