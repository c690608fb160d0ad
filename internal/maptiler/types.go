package maptiler

// geocodingResponse is the subset of the MapTiler forward-geocoding payload we read.
// center is [lng, lat]; elements are kept untyped so malformed values degrade to "no result".
type geocodingResponse struct {
	Features []feature `json:"features"`
}

type feature struct {
	ID        string `json:"id"`
	PlaceName string `json:"place_name"`
	Center    []any  `json:"center"`
}

type errorResponse struct {
	Message string `json:"message"`
}
