package transit

import "encoding/json"

type sectionMessage struct {
	Tag             string     `json:"tag"`
	Duration        float64    `json:"duration"`
	WalkingDistance float64    `json:"walkingDistance"`
	Color           Color      `json:"color"`
	StartPoint      RoutePoint `json:"points.startPoint"`
	EndPoint        RoutePoint `json:"points.endPoint"`
	*transportMessage
}

type transportMessage struct {
	LineName          string `json:"lineName"`
	LineID            string `json:"lineId"`
	DirectionDesc     string `json:"directionDesc"`
	Interval          string `json:"interval"`
	IntermediateCount int    `json:"intermediateStations.size"`
}

// MarshalJSON writes the section in the flat shape the UI layer reads.
// Transport fields are present only for ride sections.
func (s SectionInfo) MarshalJSON() ([]byte, error) {
	msg := sectionMessage{
		Tag:             s.Tag,
		Duration:        s.DurationSeconds,
		WalkingDistance: s.WalkingDistanceMeters,
		Color:           s.Color,
		StartPoint:      s.Bounds.Start,
		EndPoint:        s.Bounds.End,
	}
	if t := s.Transport; t != nil {
		msg.transportMessage = &transportMessage{
			LineName:          t.LineName,
			LineID:            t.LineID,
			DirectionDesc:     t.DirectionDescription,
			Interval:          t.Interval,
			IntermediateCount: len(t.IntermediateStationNames),
		}
	}
	return json.Marshal(msg)
}
