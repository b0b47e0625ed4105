package analytics

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/metrics"
	"github.com/artromone/linkpulse/services/shortener/models"
)

type EventStore interface {
	InsertEvent(ctx context.Context, event *models.AnalyticsEvent) error
}

type GeoLookup interface {
	IPToLocation(ctx context.Context, ip string) (models.Location, error)
}

// Enricher turns a visit into an AnalyticsEvent. Every field degrades to its
// sentinel on failure, and nothing it does is reported back to the visitor.
type Enricher struct {
	events EventStore
	geo    GeoLookup
	sink   EventSink
	log    *zap.Logger
	now    func() time.Time
}

func NewEnricher(events EventStore, geo GeoLookup, sink EventSink, log *zap.Logger) *Enricher {
	if sink == nil {
		sink = NopSink{}
	}
	return &Enricher{
		events: events,
		geo:    geo,
		sink:   sink,
		log:    log,
		now:    time.Now,
	}
}

func (e *Enricher) Enrich(ctx context.Context, link *models.LinkRecord, visit models.Visit) models.AnalyticsEvent {
	occurred := visit.At
	if occurred.IsZero() {
		occurred = e.now()
	}

	event := models.AnalyticsEvent{
		ID:              uuid.NewString(),
		LinkID:          link.ID,
		OwnerID:         link.OwnerID,
		OccurredAt:      occurred.UTC(),
		DeviceClass:     ClassifyDevice(visit.UserAgent),
		ReferrerDomain:  ReferrerDomain(visit.Referer),
		LocationCountry: models.LocationUnknown,
		LocationCity:    models.LocationUnknown,
		IsQRScan:        visit.IsQRScan,
	}

	log := e.log.With(zap.String("link_id", link.ID), zap.String("event_id", event.ID))

	loc, err := e.geo.IPToLocation(ctx, visit.IP)
	if err != nil {
		metrics.EnrichmentDegraded.WithLabelValues("geo").Inc()
		log.Debug("location unavailable", zap.String("ip", visit.IP), zap.Error(err))
	} else {
		if loc.Country != "" {
			event.LocationCountry = loc.Country
		}
		if loc.City != "" {
			event.LocationCity = loc.City
		}
	}

	if err := e.events.InsertEvent(ctx, &event); err != nil {
		metrics.EnrichmentDegraded.WithLabelValues("persist").Inc()
		log.Error("analytics event not persisted", zap.Error(err))
		return event
	}

	if err := e.sink.Publish(ctx, event); err != nil {
		metrics.EnrichmentDegraded.WithLabelValues("publish").Inc()
		log.Warn("analytics event not published", zap.Error(err))
	}
	return event
}

// Task wraps Enrich for a WorkerPool.
func (e *Enricher) Task(link *models.LinkRecord, visit models.Visit) Task {
	linkCopy := *link
	return func(ctx context.Context) {
		e.Enrich(ctx, &linkCopy, visit)
	}
}
