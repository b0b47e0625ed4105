package repository

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/artromone/linkpulse/services/shortener/models"
)

var eventColumns = []string{
	"id", "link_id", "owner_id", "occurred_at", "device_class",
	"referrer_domain", "location_country", "location_city", "is_qr_scan",
}

func (r *Repository) InsertEvent(ctx context.Context, event *models.AnalyticsEvent) error {
	query := r.qb.Insert("analytics_events").
		Columns(eventColumns...).
		Values(
			event.ID, event.LinkID, event.OwnerID, event.OccurredAt.UTC(), string(event.DeviceClass),
			event.ReferrerDomain, event.LocationCountry, event.LocationCity, event.IsQRScan,
		)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("insert analytics event: %w", err)
	}
	return nil
}

func (r *Repository) DeleteByOwner(ctx context.Context, ownerID string) (int64, error) {
	query := r.qb.Delete("analytics_events").
		Where(sq.Eq{"owner_id": ownerID})

	res, err := query.RunWith(r.db).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete analytics events: %w", err)
	}
	return res.RowsAffected()
}

// EventsForLink lists a link's events in occurrence order. A zero since
// returns the full history.
func (r *Repository) EventsForLink(ctx context.Context, linkID string, since time.Time) ([]models.AnalyticsEvent, error) {
	where := sq.And{sq.Eq{"link_id": linkID}}
	if !since.IsZero() {
		where = append(where, sq.GtOrEq{"occurred_at": since.UTC()})
	}
	return r.listEvents(ctx, where)
}

func (r *Repository) EventsForOwner(ctx context.Context, ownerID string) ([]models.AnalyticsEvent, error) {
	return r.listEvents(ctx, sq.Eq{"owner_id": ownerID})
}

func (r *Repository) listEvents(ctx context.Context, where sq.Sqlizer) ([]models.AnalyticsEvent, error) {
	query := r.qb.Select(eventColumns...).
		From("analytics_events").
		Where(where).
		OrderBy("occurred_at ASC", "id ASC")

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list analytics events: %w", err)
	}
	defer rows.Close()

	var events []models.AnalyticsEvent
	for rows.Next() {
		var (
			e      models.AnalyticsEvent
			device string
		)
		err := rows.Scan(
			&e.ID, &e.LinkID, &e.OwnerID, &e.OccurredAt, &device,
			&e.ReferrerDomain, &e.LocationCountry, &e.LocationCity, &e.IsQRScan,
		)
		if err != nil {
			return nil, err
		}
		e.DeviceClass = models.DeviceClass(device)
		events = append(events, e)
	}
	return events, rows.Err()
}
