package api

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/mmcloughlin/geohash"
	"go.uber.org/zap"

	"github.com/salemap/saled/internal/discover"
	"github.com/salemap/saled/internal/obfuscate"
	"github.com/salemap/saled/internal/store"
	"github.com/salemap/saled/internal/trigger"
	"github.com/salemap/saled/pkg/model"
)

// SaleStore is the part of the document store the HTTP surface reads and writes.
type SaleStore interface {
	ListActiveSales(ctx context.Context, now time.Time) ([]model.Sale, error)
	GetSale(ctx context.Context, id string) (*model.Sale, error)
	CreateSale(ctx context.Context, sale model.Sale) error
	HealthCheck(ctx context.Context) error
}

// CreationNotifier hands a new sale to the creation trigger.
type CreationNotifier interface {
	PublishSaleCreated(ctx context.Context, evt model.SaleCreated) error
}

// SaleHandler serves the sale list and the creation endpoint.
type SaleHandler struct {
	logger   *zap.Logger
	store    SaleStore
	notifier CreationNotifier
	now      func() time.Time
	newID    func() string
}

// NewSaleHandler creates a SaleHandler. notifier is optional.
func NewSaleHandler(logger *zap.Logger, st SaleStore, notifier CreationNotifier) *SaleHandler {
	return &SaleHandler{
		logger:   logger,
		store:    st,
		notifier: notifier,
		now:      time.Now,
		newID:    func() string { return uuid.NewString() },
	}
}

// ListSales returns sales that have not finished, soonest-ending first.
func (h *SaleHandler) ListSales(c *fiber.Ctx) error {
	filter, err := discover.ParseFilter(c.Query("filter"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	now := h.now()
	sales, err := h.store.ListActiveSales(c.Context(), now)
	if err != nil {
		h.logger.Error("api.list_sales.failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unable to load sales"})
	}

	sales = discover.Apply(sales, filter, now)
	views := make([]SaleView, 0, len(sales))
	for _, s := range sales {
		views = append(views, toView(s))
	}
	return c.JSON(fiber.Map{"filter": filter, "sales": views})
}

func (h *SaleHandler) GetSale(c *fiber.Ctx) error {
	sale, err := h.store.GetSale(c.Context(), c.Params("id"))
	if errors.Is(err, store.ErrSaleNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "sale not found"})
	}
	if err != nil {
		h.logger.Error("api.get_sale.failed", zap.String("sale_id", c.Params("id")), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unable to load sale"})
	}
	return c.JSON(toView(*sale))
}

// CreateSale stores a new upcoming sale and notifies the creation trigger.
func (h *SaleHandler) CreateSale(c *fiber.Ctx) error {
	var req CreateSaleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := req.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	now := h.now().UTC()
	sale := model.Sale{
		ID:              h.newID(),
		OwnerID:         strings.TrimSpace(req.OwnerID),
		Title:           strings.TrimSpace(req.Title),
		Description:     strings.TrimSpace(req.Description),
		Address:         req.FullAddress(),
		StartsAt:        req.StartsAt,
		EndsAt:          req.EndsAt,
		Status:          model.StatusUpcoming,
		ApproxUntilLive: req.ApproxUntilLive,
		CreatedAt:       now,
	}
	if req.Location != nil {
		loc := *req.Location
		sale.Location = &loc
		sale.Geohash = geohash.EncodeWithPrecision(loc.Lat, loc.Lng, trigger.GeohashPrecision)
		sale.GeocodedAt = &now
	}

	if err := h.store.CreateSale(c.Context(), sale); err != nil {
		h.logger.Error("api.create_sale.failed", zap.String("sale_id", sale.ID), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "unable to save sale"})
	}

	if h.notifier != nil {
		evt := model.SaleCreated{SaleID: sale.ID, Sale: sale, Timestamp: now}
		if err := h.notifier.PublishSaleCreated(c.Context(), evt); err != nil {
			h.logger.Warn("api.create_sale.notify_failed", zap.String("sale_id", sale.ID), zap.Error(err))
		}
	}

	h.logger.Info("api.create_sale", zap.String("sale_id", sale.ID))
	return c.Status(fiber.StatusCreated).JSON(toView(sale))
}

func toView(s model.Sale) SaleView {
	v := SaleView{
		ID:          s.ID,
		Title:       s.Title,
		Description: s.Description,
		Address:     s.Address,
		StartsAt:    s.StartsAt,
		EndsAt:      s.EndsAt,
		Status:      s.Status,
		Location:    obfuscate.Display(s),
		Geohash:     s.Geohash,
	}
	if v.Location != nil && s.ApproxUntilLive && s.Status != model.StatusLive {
		v.Approximate = true
		v.Address = ""
		v.Geohash = ""
	}
	return v
}
