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

var linkColumns = []string{
	"id", "owner_id", "original_url", "alias", "short_url", "click_count",
	"campaign_id", "utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content",
	"qr_design_ref", "created_at",
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*models.LinkRecord, error) {
	var (
		link                           models.LinkRecord
		campaign, source, medium, name sql.NullString
		term, content, qrDesign        sql.NullString
	)
	err := row.Scan(
		&link.ID, &link.OwnerID, &link.OriginalURL, &link.Alias, &link.ShortURL, &link.ClickCount,
		&campaign, &source, &medium, &name, &term, &content,
		&qrDesign, &link.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	link.CampaignID = campaign.String
	link.UTM = models.UTM{
		Source:   source.String,
		Medium:   medium.String,
		Campaign: name.String,
		Term:     term.String,
		Content:  content.String,
	}
	link.QRDesignRef = qrDesign.String
	return &link, nil
}

func (r *Repository) Insert(ctx context.Context, link *models.LinkRecord) error {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = r.now()
	}

	query := r.qb.Insert("links").
		Columns(linkColumns...).
		Values(
			link.ID, link.OwnerID, link.OriginalURL, link.Alias, link.ShortURL, link.ClickCount,
			nullable(link.CampaignID),
			nullable(link.UTM.Source), nullable(link.UTM.Medium), nullable(link.UTM.Campaign),
			nullable(link.UTM.Term), nullable(link.UTM.Content),
			nullable(link.QRDesignRef), link.CreatedAt.UTC(),
		)

	if _, err := query.RunWith(r.db).ExecContext(ctx); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert link %q: %w", link.Alias, models.ErrAliasTaken)
		}
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (r *Repository) findOne(ctx context.Context, where sq.Sqlizer) (*models.LinkRecord, error) {
	query := r.qb.Select(linkColumns...).
		From("links").
		Where(where).
		Limit(1)

	link, err := scanLink(query.RunWith(r.db).QueryRowContext(ctx))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

func (r *Repository) FindByID(ctx context.Context, id string) (*models.LinkRecord, error) {
	return r.findOne(ctx, sq.Eq{"id": id})
}

func (r *Repository) FindByAlias(ctx context.Context, alias string) (*models.LinkRecord, error) {
	return r.findOne(ctx, sq.Eq{"alias": alias})
}

func (r *Repository) FindByShortURL(ctx context.Context, shortURL string) (*models.LinkRecord, error) {
	return r.findOne(ctx, sq.Eq{"short_url": shortURL})
}

// FindByFuzzyContains matches token case-insensitively anywhere in short_url.
// Results are ordered oldest first so repeated calls pick the same record.
func (r *Repository) FindByFuzzyContains(ctx context.Context, token string, limit int) ([]models.LinkRecord, error) {
	if limit <= 0 {
		limit = 1
	}
	pattern := "%" + escapeLike(strings.ToLower(token)) + "%"

	query := r.qb.Select(linkColumns...).
		From("links").
		Where(sq.Expr(`LOWER(short_url) LIKE ? ESCAPE '\'`, pattern)).
		OrderBy("created_at ASC", "id ASC").
		Limit(uint64(limit))

	rows, err := query.RunWith(r.db).QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var links []models.LinkRecord
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, err
		}
		links = append(links, *link)
	}
	return links, rows.Err()
}

func (r *Repository) AliasExists(ctx context.Context, alias string) (bool, error) {
	query := r.qb.Select("COUNT(*)").
		From("links").
		Where(sq.Eq{"alias": alias})

	var count int
	err := query.RunWith(r.db).QueryRowContext(ctx).Scan(&count)
	return count > 0, err
}

// IncrementClicks adds one to click_count in the store and returns the new value.
func (r *Repository) IncrementClicks(ctx context.Context, linkID string) (int64, error) {
	query := r.qb.Update("links").
		Set("click_count", sq.Expr("click_count + 1")).
		Where(sq.Eq{"id": linkID}).
		Suffix("RETURNING click_count")

	var count int64
	err := query.RunWith(r.db).QueryRowContext(ctx).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, models.ErrNotFound
	}
	return count, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
