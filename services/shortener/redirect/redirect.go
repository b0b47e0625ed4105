package redirect

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/analytics"
	"github.com/artromone/linkpulse/services/shortener/metrics"
	"github.com/artromone/linkpulse/services/shortener/models"
)

var tracer = otel.Tracer("linkpulse/redirect")

type Resolver interface {
	Resolve(ctx context.Context, token string) (*models.LinkRecord, error)
}

type ClickRecorder interface {
	RecordClick(ctx context.Context, linkID string) (int64, error)
}

type EnrichmentFactory interface {
	Task(link *models.LinkRecord, visit models.Visit) analytics.Task
}

type Submitter interface {
	Submit(task analytics.Task) bool
}

type Outcome struct {
	Link       *models.LinkRecord
	ClickCount int64
	Counted    bool
}

type Orchestrator struct {
	resolver Resolver
	clicks   ClickRecorder
	enricher EnrichmentFactory
	pool     Submitter
	deadline time.Duration
	log      *zap.Logger
}

func New(resolver Resolver, clicks ClickRecorder, enricher EnrichmentFactory, pool Submitter, deadline time.Duration, log *zap.Logger) *Orchestrator {
	if deadline <= 0 {
		deadline = 5 * time.Second
	}
	return &Orchestrator{
		resolver: resolver,
		clicks:   clicks,
		enricher: enricher,
		pool:     pool,
		deadline: deadline,
		log:      log,
	}
}

// Visit resolves token and accounts for the visit. Counting and enrichment
// failures never fail the visit: the outcome then carries the last known
// click count.
func (o *Orchestrator) Visit(ctx context.Context, token string, visit models.Visit) (*Outcome, error) {
	return o.visit(ctx, token, visit, false)
}

// Peek resolves token without recording anything.
func (o *Orchestrator) Peek(ctx context.Context, token string) (*Outcome, error) {
	return o.visit(ctx, token, models.Visit{}, true)
}

func (o *Orchestrator) visit(ctx context.Context, token string, visit models.Visit, skipStats bool) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, o.deadline)
	defer cancel()

	ctx, span := tracer.Start(ctx, "redirect.Visit")
	defer span.End()
	span.SetAttributes(attribute.String("link.token", token), attribute.Bool("redirect.skip_stats", skipStats))

	link, err := o.resolver.Resolve(ctx, token)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrNotFound):
			metrics.Redirects.WithLabelValues("not_found").Inc()
			return nil, models.ErrNotFound
		case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
			metrics.Redirects.WithLabelValues("timeout").Inc()
			span.SetStatus(codes.Error, "deadline exceeded")
			o.log.Warn("resolution timed out", zap.String("token", token), zap.Duration("deadline", o.deadline))
			return nil, models.ErrDeadlineExceeded
		default:
			metrics.Redirects.WithLabelValues("failed").Inc()
			span.SetStatus(codes.Error, err.Error())
			o.log.Error("resolution failed", zap.String("token", token), zap.Error(err))
			return nil, err
		}
	}
	span.SetAttributes(attribute.String("link.id", link.ID))

	out := &Outcome{Link: link, ClickCount: link.ClickCount}
	if skipStats {
		metrics.Redirects.WithLabelValues("redirected").Inc()
		return out, nil
	}

	if count, err := o.clicks.RecordClick(ctx, link.ID); err == nil {
		out.ClickCount = count
		out.Counted = true
	}

	if visit.At.IsZero() {
		visit.At = time.Now()
	}
	if !o.pool.Submit(o.enricher.Task(link, visit)) {
		o.log.Warn("visit enrichment dropped", zap.String("link_id", link.ID))
	}

	metrics.Redirects.WithLabelValues("redirected").Inc()
	return out, nil
}
