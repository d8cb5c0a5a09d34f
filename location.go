package hood

import (
	"context"
	"encoding/json"
)

// map viewport span applied to resolved locations regardless of what the
// server or device reports
const DefaultViewportDelta = 0.0015

// a geocoded point with a map viewport hint. latitude and longitude are
// either both set (resolved) or both nil - a partial pair is never stored.
type UserLocation struct {
	City           *string  `json:"city"`
	Region         *string  `json:"region"`
	Country        *string  `json:"country"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	LatitudeDelta  *float64 `json:"latitudeDelta"`
	LongitudeDelta *float64 `json:"longitudeDelta"`
}

func (self *UserLocation) Resolved() bool {
	return self != nil && self.Latitude != nil && self.Longitude != nil
}

func (self *UserLocation) normalize(viewportDelta float64) {
	if self.Latitude == nil || self.Longitude == nil {
		self.Latitude = nil
		self.Longitude = nil
		self.LatitudeDelta = nil
		self.LongitudeDelta = nil
		return
	}
	delta := viewportDelta
	self.LatitudeDelta = &delta
	self.LongitudeDelta = &delta
}

func encodeUserLocation(location *UserLocation) (string, error) {
	b, err := json.Marshal(location)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeUserLocation(value string) (*UserLocation, error) {
	location := &UserLocation{}
	if err := json.Unmarshal([]byte(value), location); err != nil {
		return nil, err
	}
	return location, nil
}

// the device side of location acquisition - permission request, position fix,
// and reverse geocode. implementations return `*LocationError` when the
// permission is denied or the device cannot produce a fix.
type LocationResolver interface {
	Resolve(ctx context.Context) (*UserLocation, error)
}
