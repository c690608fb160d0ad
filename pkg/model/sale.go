package model

import (
	"math"
	"time"
)

// Status is the lifecycle state of a sale.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusLive     Status = "live"
	StatusEnded    Status = "ended"
)

// Valid reports whether s is one of the known lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusUpcoming, StatusLive, StatusEnded:
		return true
	}
	return false
}

// Location is a WGS84 coordinate pair.
type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether l holds a usable coordinate pair.
func (l *Location) Valid() bool {
	if l == nil {
		return false
	}
	return ValidCoordinate(l.Lat, l.Lng)
}

// ValidCoordinate reports whether lat/lng are finite and inside the WGS84 range.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// Sale is a published, time-boxed physical-location event.
type Sale struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id,omitempty"`
	Title           string     `json:"title"`
	Description     string     `json:"description,omitempty"`
	Address         string     `json:"address"`
	StartsAt        *time.Time `json:"starts_at,omitempty"`
	EndsAt          *time.Time `json:"ends_at,omitempty"`
	Status          Status     `json:"status"`
	StatusUpdatedAt *time.Time `json:"status_updated_at,omitempty"`
	Location        *Location  `json:"location,omitempty"`
	Geohash         string     `json:"geohash,omitempty"`
	GeocodedAt      *time.Time `json:"geocoded_at,omitempty"`
	ApproxUntilLive bool       `json:"approx_until_live"`
	CreatedAt       time.Time  `json:"created_at"`
}

// StatusUpdate is a single pending lifecycle transition.
type StatusUpdate struct {
	SaleID string `json:"sale_id"`
	Status Status `json:"status"`
}

// GeocodeEntry is a cached address resolution, keyed by the normalized-address digest.
type GeocodeEntry struct {
	Key       string    `json:"key"`
	Address   string    `json:"address"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	UpdatedAt time.Time `json:"updated_at"`
}
