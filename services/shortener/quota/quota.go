package quota

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/metrics"
	"github.com/artromone/linkpulse/services/shortener/models"
)

const upsertAttempts = 3

type Store interface {
	Get(ctx context.Context, ownerID string) (*models.UsageCounter, error)
	UpsertIncrement(ctx context.Context, ownerID string, delta models.UsageDelta, caps models.UsageCaps) (*models.UsageCounter, bool, error)
	Reset(ctx context.Context, ownerID string) (*models.UsageCounter, error)
}

type EventPurger interface {
	DeleteByOwner(ctx context.Context, ownerID string) (int64, error)
}

// Limits are per-period caps. Zero or negative means unlimited.
type Limits struct {
	Links            int64 `json:"links"`
	QRCodes          int64 `json:"qrCodes"`
	CustomBackHalves int64 `json:"customBackHalves"`
}

type Usage struct {
	Counter *models.UsageCounter `json:"usage"`
	Limits  Limits               `json:"limits"`
}

type Guard struct {
	store  Store
	events EventPurger
	limits Limits
	log    *zap.Logger
}

func New(store Store, events EventPurger, limits Limits, log *zap.Logger) *Guard {
	return &Guard{store: store, events: events, limits: limits, log: log}
}

func (g *Guard) Limits() Limits {
	return g.limits
}

// CheckAndIncrement admits one creation of kind for the owner and records it.
// Link creations are gated by the links limit and, when usesCustomAlias is
// set, the custom back-half limit. QR code usage is tracked but never gated.
func (g *Guard) CheckAndIncrement(ctx context.Context, ownerID string, kind models.QuotaKind, usesCustomAlias bool) (*models.UsageCounter, error) {
	switch kind {
	case models.QuotaQRCodes:
		return g.TrackQRCode(ctx, ownerID), nil
	case models.QuotaLinks:
	default:
		return nil, fmt.Errorf("%w: unknown quota kind %q", models.ErrInvalidInput, kind)
	}

	delta := models.UsageDelta{Links: 1}
	if usesCustomAlias {
		delta.CustomBackhalves = 1
	}
	caps := models.UsageCaps{Links: g.limits.Links, CustomBackhalves: g.limits.CustomBackHalves}

	// The upsert only refuses when a concurrent creation took the last slot
	// after the read; the re-read then names the exhausted kind.
	for attempt := 0; attempt < upsertAttempts; attempt++ {
		usage, err := g.store.Get(ctx, ownerID)
		if err != nil {
			return nil, fmt.Errorf("load usage: %w", err)
		}
		if err := g.exhausted(usage, usesCustomAlias); err != nil {
			return nil, err
		}

		updated, applied, err := g.store.UpsertIncrement(ctx, ownerID, delta, caps)
		if err != nil {
			return nil, fmt.Errorf("increment usage: %w", err)
		}
		if applied {
			return updated, nil
		}
	}
	return nil, g.reject(models.QuotaLinks, g.limits.Links)
}

// TrackQRCode counts a generated QR code. Failures are logged and ignored.
func (g *Guard) TrackQRCode(ctx context.Context, ownerID string) *models.UsageCounter {
	usage, _, err := g.store.UpsertIncrement(ctx, ownerID, models.UsageDelta{QRCodes: 1}, models.UsageCaps{})
	if err != nil {
		g.log.Warn("qr code usage not tracked", zap.String("owner_id", ownerID), zap.Error(err))
		return nil
	}
	return usage
}

// Reset starts a new period for the owner and removes the owner's analytics
// events. The two steps are independent; an event purge failure is returned
// after the counters were already reset.
func (g *Guard) Reset(ctx context.Context, ownerID string) (*models.UsageCounter, error) {
	usage, err := g.store.Reset(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("reset usage: %w", err)
	}

	deleted, err := g.events.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return usage, fmt.Errorf("purge analytics events: %w", err)
	}

	g.log.Info("usage reset",
		zap.String("owner_id", ownerID),
		zap.Int64("events_deleted", deleted),
	)
	return usage, nil
}

func (g *Guard) Usage(ctx context.Context, ownerID string) (*Usage, error) {
	usage, err := g.store.Get(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load usage: %w", err)
	}
	return &Usage{Counter: usage, Limits: g.limits}, nil
}

func (g *Guard) exhausted(usage *models.UsageCounter, usesCustomAlias bool) error {
	if g.limits.Links > 0 && usage.LinksUsed >= g.limits.Links {
		return g.reject(models.QuotaLinks, g.limits.Links)
	}
	if usesCustomAlias && g.limits.CustomBackHalves > 0 && usage.CustomBackhalvesUsed >= g.limits.CustomBackHalves {
		return g.reject(models.QuotaCustomBackHalves, g.limits.CustomBackHalves)
	}
	return nil
}

func (g *Guard) reject(kind models.QuotaKind, limit int64) error {
	metrics.QuotaRejections.WithLabelValues(string(kind)).Inc()
	return &models.QuotaExceededError{Kind: kind, Limit: limit}
}
