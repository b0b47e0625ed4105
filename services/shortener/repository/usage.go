package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/artromone/linkpulse/services/shortener/models"
)

const usageReturning = "RETURNING owner_id, links_used, qr_codes_used, custom_backhalves_used, period_start"

func scanUsage(row rowScanner) (*models.UsageCounter, error) {
	var u models.UsageCounter
	if err := row.Scan(&u.OwnerID, &u.LinksUsed, &u.QRCodesUsed, &u.CustomBackhalvesUsed, &u.PeriodStart); err != nil {
		return nil, err
	}
	return &u, nil
}

// Get returns the owner's counter, creating a zeroed one on first use.
func (r *Repository) Get(ctx context.Context, ownerID string) (*models.UsageCounter, error) {
	create := r.qb.Insert("usage_counters").
		Columns("owner_id", "links_used", "qr_codes_used", "custom_backhalves_used", "period_start").
		Values(ownerID, 0, 0, 0, r.now()).
		Suffix("ON CONFLICT (owner_id) DO NOTHING")

	if _, err := create.RunWith(r.db).ExecContext(ctx); err != nil {
		return nil, fmt.Errorf("create usage counter: %w", err)
	}

	query := r.qb.Select("owner_id", "links_used", "qr_codes_used", "custom_backhalves_used", "period_start").
		From("usage_counters").
		Where(sq.Eq{"owner_id": ownerID})

	usage, err := scanUsage(query.RunWith(r.db).QueryRowContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("load usage counter: %w", err)
	}
	return usage, nil
}

// UpsertIncrement applies delta in one statement. A bounded kind is only
// incremented while used+delta stays within its cap; when any cap would be
// crossed nothing is written and applied is false.
func (r *Repository) UpsertIncrement(ctx context.Context, ownerID string, delta models.UsageDelta, caps models.UsageCaps) (*models.UsageCounter, bool, error) {
	var (
		guards []string
		args   []any
	)
	if delta.Links > 0 && caps.Links > 0 {
		guards = append(guards, "usage_counters.links_used + excluded.links_used <= ?")
		args = append(args, caps.Links)
	}
	if delta.CustomBackhalves > 0 && caps.CustomBackhalves > 0 {
		guards = append(guards, "usage_counters.custom_backhalves_used + excluded.custom_backhalves_used <= ?")
		args = append(args, caps.CustomBackhalves)
	}

	suffix := "ON CONFLICT (owner_id) DO UPDATE SET " +
		"links_used = usage_counters.links_used + excluded.links_used, " +
		"qr_codes_used = usage_counters.qr_codes_used + excluded.qr_codes_used, " +
		"custom_backhalves_used = usage_counters.custom_backhalves_used + excluded.custom_backhalves_used"
	if len(guards) > 0 {
		suffix += " WHERE " + strings.Join(guards, " AND ")
	}
	suffix += " " + usageReturning

	query := r.qb.Insert("usage_counters").
		Columns("owner_id", "links_used", "qr_codes_used", "custom_backhalves_used", "period_start").
		Values(ownerID, delta.Links, delta.QRCodes, delta.CustomBackhalves, r.now()).
		Suffix(suffix, args...)

	usage, err := scanUsage(query.RunWith(r.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("increment usage: %w", err)
	}
	return usage, true, nil
}

// Reset zeroes the owner's counters and starts a new period.
func (r *Repository) Reset(ctx context.Context, ownerID string) (*models.UsageCounter, error) {
	query := r.qb.Update("usage_counters").
		Set("links_used", 0).
		Set("qr_codes_used", 0).
		Set("custom_backhalves_used", 0).
		Set("period_start", r.now()).
		Where(sq.Eq{"owner_id": ownerID}).
		Suffix(usageReturning)

	usage, err := scanUsage(query.RunWith(r.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return r.Get(ctx, ownerID)
	}
	if err != nil {
		return nil, fmt.Errorf("reset usage: %w", err)
	}
	return usage, nil
}
