package bridge

import (
	"encoding/json"

	"github.com/paulmach/orb"
)

type clientArgs struct {
	ClientID string `json:"clientId"`
}

// routeArgs are the arguments of route and distance calls.
type routeArgs struct {
	ClientID      string   `json:"clientId"`
	SrcLatitude   *float64 `json:"srcLatitude"`
	SrcLongitude  *float64 `json:"srcLongitude"`
	DestLatitude  *float64 `json:"destLatitude"`
	DestLongitude *float64 `json:"destLongitude"`
}

func (a routeArgs) endpoints() (src, dst orb.Point, merr *MethodError) {
	if a.SrcLatitude == nil || a.SrcLongitude == nil || a.DestLatitude == nil || a.DestLongitude == nil {
		return src, dst, invalidArgs("srcLatitude, srcLongitude, destLatitude and destLongitude are required")
	}
	src = orb.Point{*a.SrcLongitude, *a.SrcLatitude}
	dst = orb.Point{*a.DestLongitude, *a.DestLatitude}
	for _, p := range []orb.Point{src, dst} {
		if p.Lat() < -90 || p.Lat() > 90 || p.Lon() < -180 || p.Lon() > 180 {
			return src, dst, invalidArgs("coordinate out of range: %v", p)
		}
	}
	return src, dst, nil
}

func decodeArgs(payload []byte, v any) *MethodError {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return invalidArgs("decode arguments: %v", err)
	}
	return nil
}
