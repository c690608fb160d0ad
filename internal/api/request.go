package api

import (
	"time"

	"github.com/salemap/saled/pkg/model"
)

// CreateSaleRequest is the payload for publishing a sale.
type CreateSaleRequest struct {
	OwnerID         string          `json:"ownerId"`
	Title           string          `json:"title" example:"Moving sale"`
	Description     string          `json:"description"`
	Address         string          `json:"address" example:"500 Test Ave"`
	State           string          `json:"state" example:"OR"`
	Zip             string          `json:"zip" example:"97201"`
	StartsAt        *time.Time      `json:"startsAt"`
	EndsAt          *time.Time      `json:"endsAt"`
	ApproxUntilLive bool            `json:"approxUntilLive"`
	Location        *model.Location `json:"location,omitempty"`
}

// GeocodeRequest asks for the coordinates of a free-text address.
type GeocodeRequest struct {
	Address string `json:"address"`
}

// GeocodeResponse is a resolved coordinate.
type GeocodeResponse struct {
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	FromCache bool    `json:"fromCache"`
}

// SaleView is a sale as shown to the public. Private sales that are not live
// carry an offset location and no address.
type SaleView struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Address     string          `json:"address,omitempty"`
	StartsAt    *time.Time      `json:"startsAt,omitempty"`
	EndsAt      *time.Time      `json:"endsAt,omitempty"`
	Status      model.Status    `json:"status"`
	Location    *model.Location `json:"location,omitempty"`
	Geohash     string          `json:"geohash,omitempty"`
	Approximate bool            `json:"approximate"`
}
