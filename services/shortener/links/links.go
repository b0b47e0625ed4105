package links

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/alias"
	"github.com/artromone/linkpulse/services/shortener/metrics"
	"github.com/artromone/linkpulse/services/shortener/models"
)

const (
	insertAttempts   = 3
	defaultQRDesign  = "default"
	shortRoutePrefix = "/r/"
)

type AliasGenerator interface {
	Generate(ctx context.Context, custom string) (string, error)
}

type QuotaGuard interface {
	CheckAndIncrement(ctx context.Context, ownerID string, kind models.QuotaKind, usesCustomAlias bool) (*models.UsageCounter, error)
	TrackQRCode(ctx context.Context, ownerID string) *models.UsageCounter
}

type Store interface {
	Insert(ctx context.Context, link *models.LinkRecord) error
}

type CreateParams struct {
	OwnerID        string `json:"owner_id" validate:"required,max=128"`
	OriginalURL    string `json:"original_url" validate:"required,http_url,max=2048"`
	CustomAlias    string `json:"custom_alias" validate:"omitempty,min=3,max=64,alias"`
	CampaignID     string `json:"campaign_id" validate:"omitempty,max=128"`
	UTMSource      string `json:"utm_source" validate:"omitempty,max=256"`
	UTMMedium      string `json:"utm_medium" validate:"omitempty,max=256"`
	UTMCampaign    string `json:"utm_campaign" validate:"omitempty,max=256"`
	UTMTerm        string `json:"utm_term" validate:"omitempty,max=256"`
	UTMContent     string `json:"utm_content" validate:"omitempty,max=256"`
	GenerateQRCode bool   `json:"generate_qr_code"`
	QRDesignRef    string `json:"qr_design_ref" validate:"omitempty,max=256"`
}

func (p CreateParams) utm() models.UTM {
	return models.UTM{
		Source:   p.UTMSource,
		Medium:   p.UTMMedium,
		Campaign: p.UTMCampaign,
		Term:     p.UTMTerm,
		Content:  p.UTMContent,
	}
}

// Service is the link creation workflow: alias, quota, then insert.
type Service struct {
	aliases  AliasGenerator
	quota    QuotaGuard
	store    Store
	validate *validator.Validate
	baseURL  string
	log      *zap.Logger
	now      func() time.Time
}

func NewService(aliases AliasGenerator, quota QuotaGuard, store Store, baseURL string, log *zap.Logger) *Service {
	return &Service{
		aliases:  aliases,
		quota:    quota,
		store:    store,
		validate: alias.NewValidator(),
		baseURL:  strings.TrimRight(baseURL, "/"),
		log:      log,
		now:      time.Now,
	}
}

// Create validates p, claims an alias and a quota slot, and stores the link.
// A generated alias that loses an insert race is regenerated; a custom one
// reports models.ErrAliasTaken. The quota slot is not returned when the
// insert fails.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.LinkRecord, error) {
	p.OriginalURL = strings.TrimSpace(p.OriginalURL)
	p.CustomAlias = strings.TrimSpace(p.CustomAlias)
	if err := s.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrInvalidInput, describe(err))
	}

	aliasValue, err := s.aliases.Generate(ctx, p.CustomAlias)
	if err != nil {
		return nil, err
	}

	custom := p.CustomAlias != ""
	if _, err := s.quota.CheckAndIncrement(ctx, p.OwnerID, models.QuotaLinks, custom); err != nil {
		return nil, err
	}

	utm := p.utm()
	destination, err := withUTM(p.OriginalURL, utm)
	if err != nil {
		return nil, fmt.Errorf("%w: original_url: %v", models.ErrInvalidInput, err)
	}

	link := &models.LinkRecord{
		OwnerID:     p.OwnerID,
		OriginalURL: destination,
		CampaignID:  p.CampaignID,
		UTM:         utm,
		CreatedAt:   s.now().UTC(),
	}
	if p.GenerateQRCode {
		link.QRDesignRef = p.QRDesignRef
		if link.QRDesignRef == "" {
			link.QRDesignRef = defaultQRDesign
		}
	}

	for attempt := 1; ; attempt++ {
		link.ID = uuid.NewString()
		link.Alias = aliasValue
		link.ShortURL = s.baseURL + shortRoutePrefix + aliasValue

		err = s.store.Insert(ctx, link)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrAliasTaken) || custom || attempt == insertAttempts {
			return nil, err
		}

		s.log.Info("generated alias lost an insert race, retrying",
			zap.String("alias", aliasValue),
			zap.Int("attempt", attempt),
		)
		if aliasValue, err = s.aliases.Generate(ctx, ""); err != nil {
			return nil, err
		}
	}

	if link.HasQRCode() {
		s.quota.TrackQRCode(ctx, p.OwnerID)
	}

	metrics.LinksCreated.Inc()
	s.log.Info("link created",
		zap.String("link_id", link.ID),
		zap.String("owner_id", link.OwnerID),
		zap.String("alias", link.Alias),
		zap.Bool("custom_alias", custom),
	)
	return link, nil
}

// withUTM appends the non-empty UTM values to raw as query parameters in
// source, medium, campaign, term, content order.
func withUTM(raw string, utm models.UTM) (string, error) {
	if utm.IsZero() {
		return raw, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	params := []struct{ key, value string }{
		{"utm_source", utm.Source},
		{"utm_medium", utm.Medium},
		{"utm_campaign", utm.Campaign},
		{"utm_term", utm.Term},
		{"utm_content", utm.Content},
	}

	var b strings.Builder
	b.WriteString(u.RawQuery)
	for _, p := range params {
		if p.value == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('&')
		}
		b.WriteString(p.key)
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	u.RawQuery = b.String()
	return u.String(), nil
}

func describe(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}
