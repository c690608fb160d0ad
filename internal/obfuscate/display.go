// Package obfuscate computes the coordinate shown for a sale on the map.
//
// Private sales are displayed at a stable offset of 50-109 m from their true
// location until they go live. The offset is derived from a hash of the sale's
// id, so it is identical on every render without being stored.
package obfuscate

import (
	"math"
	"strconv"
	"unicode/utf16"

	"github.com/salemap/saled/pkg/model"
)

// EarthRadius is the WGS84 equatorial radius in metres.
const EarthRadius = 6378137.0

const (
	minOffsetMeters = 50
	offsetSpread    = 60
)

// Display returns the coordinate to render for s, or nil when it has no location.
func Display(s model.Sale) *model.Location {
	if !s.Location.Valid() {
		return nil
	}
	loc := *s.Location
	if !s.ApproxUntilLive || s.Status == model.StatusLive {
		return &loc
	}
	out := Offset(loc, Seed(s))
	return &out
}

// Seed picks the stable per-sale string the offset is derived from.
func Seed(s model.Sale) string {
	if s.ID != "" {
		return s.ID
	}
	if s.Address != "" {
		return s.Address
	}
	if s.Location == nil {
		return ""
	}
	return strconv.FormatFloat(s.Location.Lat, 'f', -1, 64) + strconv.FormatFloat(s.Location.Lng, 'f', -1, 64)
}

// Hash is the base-31 polynomial rolling hash over the UTF-16 code units of
// seed, truncated to 32 bits.
func Hash(seed string) uint32 {
	var h uint32
	for _, u := range utf16.Encode([]rune(seed)) {
		h = h*31 + uint32(u)
	}
	return h
}

// Offset moves loc by the angle and distance derived from seed.
func Offset(loc model.Location, seed string) model.Location {
	h := Hash(seed)
	angle := float64((h>>3)%360) * math.Pi / 180
	distance := float64(minOffsetMeters + (h>>11)%offsetSpread)

	dLat := distance * math.Cos(angle) / EarthRadius

	// Longitude degrees collapse at the poles; only shift latitude there.
	var dLng float64
	if cosLat := math.Cos(loc.Lat * math.Pi / 180); math.Abs(cosLat) > 1e-12 {
		dLng = distance * math.Sin(angle) / (EarthRadius * cosLat)
	}

	return model.Location{
		Lat: loc.Lat + dLat*180/math.Pi,
		Lng: loc.Lng + dLng*180/math.Pi,
	}
}
