package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/metrics"
	"github.com/artromone/linkpulse/services/shortener/models"
)

var tracer = otel.Tracer("linkpulse/resolver")

type LinkStore interface {
	FindByAlias(ctx context.Context, alias string) (*models.LinkRecord, error)
	FindByShortURL(ctx context.Context, shortURL string) (*models.LinkRecord, error)
	FindByFuzzyContains(ctx context.Context, token string, limit int) ([]models.LinkRecord, error)
}

type Options struct {
	BaseURL       string
	RoutePrefixes []string
	Fuzzy         bool
}

// Engine maps a token to a link: exact alias, then the short URLs the
// token could have been served under, then a substring match on short_url.
type Engine struct {
	store    LinkStore
	baseURL  string
	prefixes []string
	fuzzy    bool
	log      *zap.Logger
}

func New(store LinkStore, opts Options, log *zap.Logger) *Engine {
	prefixes := opts.RoutePrefixes
	if len(prefixes) == 0 {
		prefixes = []string{"/r/", "/go/"}
	}
	return &Engine{
		store:    store,
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		prefixes: prefixes,
		fuzzy:    opts.Fuzzy,
		log:      log,
	}
}

type strategy struct {
	name string
	find func(ctx context.Context, token string) (*models.LinkRecord, error)
}

func (e *Engine) strategies() []strategy {
	list := []strategy{
		{name: "alias", find: e.store.FindByAlias},
		{name: "short_url", find: e.byShortURL},
	}
	if e.fuzzy {
		list = append(list, strategy{name: "fuzzy", find: e.byFuzzy})
	}
	return list
}

// Resolve returns the first hit. A strategy failing with a store error is
// logged and skipped; if nothing matched the last such error is returned
// wrapped in models.ErrLookupFailed. Context errors end resolution at once.
func (e *Engine) Resolve(ctx context.Context, token string) (*models.LinkRecord, error) {
	ctx, span := tracer.Start(ctx, "resolver.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("link.token", token))

	start := time.Now()
	defer func() { metrics.ResolveDuration.Observe(time.Since(start).Seconds()) }()

	if token == "" {
		return nil, models.ErrNotFound
	}

	var lastErr error
	for _, s := range e.strategies() {
		link, err := s.find(ctx, token)
		if err == nil {
			metrics.ResolutionHits.WithLabelValues(s.name).Inc()
			span.SetAttributes(attribute.String("resolver.strategy", s.name), attribute.String("link.id", link.ID))
			if s.name == "fuzzy" {
				e.log.Warn("token resolved by fuzzy match",
					zap.String("token", token),
					zap.String("link_id", link.ID),
					zap.String("short_url", link.ShortURL),
				)
			}
			return link, nil
		}
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, ctxErr.Error())
			return nil, ctxErr
		}

		e.log.Warn("resolution strategy failed",
			zap.String("strategy", s.name),
			zap.String("token", token),
			zap.Error(err),
		)
		lastErr = err
	}

	if lastErr != nil {
		span.SetStatus(codes.Error, lastErr.Error())
		return nil, fmt.Errorf("%w: %w", models.ErrLookupFailed, lastErr)
	}
	return nil, models.ErrNotFound
}

func (e *Engine) byShortURL(ctx context.Context, token string) (*models.LinkRecord, error) {
	var lastErr error
	for _, prefix := range e.prefixes {
		link, err := e.store.FindByShortURL(ctx, e.baseURL+prefix+token)
		if err == nil {
			return link, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, models.ErrNotFound
}

func (e *Engine) byFuzzy(ctx context.Context, token string) (*models.LinkRecord, error) {
	links, err := e.store.FindByFuzzyContains(ctx, token, 1)
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return nil, models.ErrNotFound
	}
	return &links[0], nil
}
