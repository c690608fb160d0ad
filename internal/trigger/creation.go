// Package trigger handles newly created sales and resolves their location once.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmcloughlin/geohash"
	"go.uber.org/zap"

	"github.com/salemap/saled/internal/geocode"
	"github.com/salemap/saled/internal/metrics"
	"github.com/salemap/saled/pkg/model"
)

// GeohashPrecision is the number of base32 characters stored with each location.
const GeohashPrecision = 10

const SubjectSaleGeocoded = "evt.sale.geocoded.v1"

// Outcome describes what a single Handle call did.
type Outcome string

const (
	OutcomeAlreadyLocated Outcome = "already_located"
	OutcomeNoAddress      Outcome = "no_address"
	OutcomeGeocoded       Outcome = "geocoded"
	OutcomeUnresolved     Outcome = "unresolved"
	OutcomeRaced          Outcome = "raced"
)

// Resolver turns a free-text address into coordinates.
type Resolver interface {
	Resolve(ctx context.Context, address string) (geocode.Result, error)
}

// LocationWriter persists a resolved location. It reports false without error
// when the sale already had a location, so a concurrent writer wins.
type LocationWriter interface {
	SetLocation(ctx context.Context, saleID string, loc model.Location, hash string, at time.Time) (bool, error)
}

// EventPublisher emits domain events.
type EventPublisher interface {
	PublishEvent(ctx context.Context, subject, eventType string, payload any) error
}

// CreationTrigger geocodes a sale once, right after it is created.
type CreationTrigger struct {
	logger    *zap.Logger
	resolver  Resolver
	writer    LocationWriter
	publisher EventPublisher
	now       func() time.Time
}

// NewCreationTrigger builds the handler. publisher may be nil.
func NewCreationTrigger(logger *zap.Logger, resolver Resolver, writer LocationWriter, publisher EventPublisher) *CreationTrigger {
	return &CreationTrigger{
		logger:    logger,
		resolver:  resolver,
		writer:    writer,
		publisher: publisher,
		now:       time.Now,
	}
}

// Handle processes one creation notification. Deliveries are at-least-once,
// so a sale that already carries a location is left untouched.
//
// Geocoding failures are logged and swallowed: the sale simply stays without a
// location. Only a failed store write is returned, so the delivery can be retried.
func (t *CreationTrigger) Handle(ctx context.Context, evt model.SaleCreated) (Outcome, error) {
	sale := evt.Sale
	if sale.ID == "" {
		sale.ID = evt.SaleID
	}
	log := t.logger.With(zap.String("sale_id", sale.ID))

	if sale.Location.Valid() {
		log.Debug("trigger.already_located")
		return t.done(OutcomeAlreadyLocated), nil
	}

	address := sale.Address
	if strings.TrimSpace(address) == "" {
		log.Warn("trigger.no_address")
		return t.done(OutcomeNoAddress), nil
	}

	res, err := t.resolver.Resolve(ctx, address)
	if err != nil {
		switch {
		case errors.Is(err, geocode.ErrNotConfigured):
			log.Warn("trigger.geocoder_not_configured")
		case errors.Is(err, geocode.ErrNotFound):
			log.Info("trigger.geocode_not_found", zap.String("address", address))
		default:
			log.Error("trigger.geocode_failed", zap.String("address", address), zap.Error(err))
		}
		return t.done(OutcomeUnresolved), nil
	}

	loc := res.Location()
	hash := geohash.EncodeWithPrecision(loc.Lat, loc.Lng, GeohashPrecision)
	at := t.now().UTC()

	written, err := t.writer.SetLocation(ctx, sale.ID, loc, hash, at)
	if err != nil {
		metrics.IncTriggerOutcome("error")
		return "", fmt.Errorf("persist location for sale %s: %w", sale.ID, err)
	}
	if !written {
		log.Info("trigger.location_already_set")
		return t.done(OutcomeRaced), nil
	}

	log.Info("trigger.geocoded",
		zap.Float64("lat", loc.Lat),
		zap.Float64("lng", loc.Lng),
		zap.Bool("from_cache", res.FromCache))

	if t.publisher != nil {
		evt := model.SaleGeocoded{SaleID: sale.ID, Location: loc, Geohash: hash, FromCache: res.FromCache, Timestamp: at}
		if err := t.publisher.PublishEvent(ctx, SubjectSaleGeocoded, model.EventSaleGeocoded, evt); err != nil {
			log.Warn("trigger.publish_failed", zap.Error(err))
		}
	}
	return t.done(OutcomeGeocoded), nil
}

func (t *CreationTrigger) done(o Outcome) Outcome {
	metrics.IncTriggerOutcome(string(o))
	return o
}

// PublishSaleCreated delivers evt straight to Handle, for deployments without
// a message broker. Failures are logged and never reach the creation path.
func (t *CreationTrigger) PublishSaleCreated(ctx context.Context, evt model.SaleCreated) error {
	if _, err := t.Handle(ctx, evt); err != nil {
		t.logger.Warn("trigger.inline_failed", zap.String("sale_id", evt.SaleID), zap.Error(err))
	}
	return nil
}
