package api

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/salemap/saled/internal/geocode"
)

// Resolver resolves an address through the geocode cache.
type Resolver interface {
	Resolve(ctx context.Context, address string) (geocode.Result, error)
}

// GeocodeHandler resolves addresses on behalf of an interactive user.
type GeocodeHandler struct {
	logger   *zap.Logger
	resolver Resolver
}

func NewGeocodeHandler(logger *zap.Logger, resolver Resolver) *GeocodeHandler {
	return &GeocodeHandler{logger: logger, resolver: resolver}
}

// Geocode maps the resolver's outcomes onto HTTP: not found is 404, a missing
// API key is 503, and anything else asks the user to retry.
func (h *GeocodeHandler) Geocode(c *fiber.Ctx) error {
	var req GeocodeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	res, err := h.resolver.Resolve(c.Context(), req.Address)
	switch {
	case err == nil:
		return c.JSON(GeocodeResponse{Lat: res.Lat, Lng: res.Lng, FromCache: res.FromCache})
	case errors.Is(err, geocode.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "We couldn't find that address. Check it and try again."})
	case errors.Is(err, geocode.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Address lookup is not available right now."})
	default:
		h.logger.Error("api.geocode.failed", zap.Error(err))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": "We couldn't reach the geocoding service. Please try again in a moment.",
			"retry": true,
		})
	}
}
