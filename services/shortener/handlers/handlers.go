package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/render"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/analytics"
	"github.com/artromone/linkpulse/services/shortener/links"
	"github.com/artromone/linkpulse/services/shortener/models"
	"github.com/artromone/linkpulse/services/shortener/quota"
	"github.com/artromone/linkpulse/services/shortener/redirect"
)

const ownerHeader = "X-Owner-ID"

type Redirector interface {
	Visit(ctx context.Context, token string, visit models.Visit) (*redirect.Outcome, error)
	Peek(ctx context.Context, token string) (*redirect.Outcome, error)
}

type LinkCreator interface {
	Create(ctx context.Context, p links.CreateParams) (*models.LinkRecord, error)
}

type UsageService interface {
	Usage(ctx context.Context, ownerID string) (*quota.Usage, error)
	Reset(ctx context.Context, ownerID string) (*models.UsageCounter, error)
}

type Reporter interface {
	Summary(ctx context.Context, ownerID, linkID, rangeParam string) (*analytics.Summary, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	redirects Redirector
	links     LinkCreator
	usage     UsageService
	reports   Reporter
	db        Pinger
	log       *zap.Logger
}

func New(redirects Redirector, links LinkCreator, usage UsageService, reports Reporter, db Pinger, log *zap.Logger) *Handler {
	return &Handler{
		redirects: redirects,
		links:     links,
		usage:     usage,
		reports:   reports,
		db:        db,
		log:       log,
	}
}

// Register mounts every route. redirectMW runs on the public redirect routes only.
func (h *Handler) Register(r *gin.Engine, prefixes []string, redirectMW ...gin.HandlerFunc) {
	for _, prefix := range prefixes {
		group := r.Group(prefix, redirectMW...)
		group.GET(":token", h.Redirect)
		group.HEAD(":token", h.Redirect)
	}

	api := r.Group("/api/v1")
	api.GET("/resolve/:token", h.Resolve)

	owned := api.Group("", requireOwner)
	owned.POST("/links", h.CreateLink)
	owned.GET("/links/:id/analytics", h.LinkAnalytics)
	owned.GET("/usage", h.GetUsage)
	owned.POST("/usage/reset", h.ResetUsage)

	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func (h *Handler) Redirect(c *gin.Context) {
	out, err := h.visit(c)
	if err != nil {
		// visitors only ever see the not-found page; faults stay in logs and metrics
		if !errors.Is(err, models.ErrNotFound) {
			_ = c.Error(err)
			h.log.Warn("redirect failed, serving not found",
				zap.String("token", c.Param("token")),
				zap.Error(err),
			)
		}
		renderPage(c, http.StatusNotFound, notFoundPage)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Redirect(http.StatusFound, out.Link.OriginalURL)
}

// Resolve is the JSON form of Redirect for clients that navigate themselves.
func (h *Handler) Resolve(c *gin.Context) {
	out, err := h.visit(c)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"original_url": out.Link.OriginalURL,
		"click_count":  out.ClickCount,
	})
}

func (h *Handler) visit(c *gin.Context) (*redirect.Outcome, error) {
	token := c.Param("token")
	if c.Query("no_stat") == "1" || c.Request.Method == http.MethodHead {
		return h.redirects.Peek(c.Request.Context(), token)
	}

	return h.redirects.Visit(c.Request.Context(), token, models.Visit{
		UserAgent: c.Request.UserAgent(),
		Referer:   c.Request.Referer(),
		IP:        analytics.ClientIP(c.Request),
	})
}

func (h *Handler) CreateLink(c *gin.Context) {
	var params links.CreateParams
	if err := c.ShouldBindJSON(&params); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body: " + err.Error()})
		return
	}
	params.OwnerID = c.GetString(ownerHeader)

	link, err := h.links.Create(c.Request.Context(), params)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

func (h *Handler) GetUsage(c *gin.Context) {
	usage, err := h.usage.Usage(c.Request.Context(), c.GetString(ownerHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, usage)
}

func (h *Handler) ResetUsage(c *gin.Context) {
	usage, err := h.usage.Reset(c.Request.Context(), c.GetString(ownerHeader))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": usage})
}

func (h *Handler) LinkAnalytics(c *gin.Context) {
	summary, err := h.reports.Summary(c.Request.Context(), c.GetString(ownerHeader), c.Param("id"), c.DefaultQuery("range", "all"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *Handler) Health(c *gin.Context) {
	if err := h.db.Ping(c.Request.Context()); err != nil {
		h.log.Warn("health check failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func requireOwner(c *gin.Context) {
	owner := c.GetHeader(ownerHeader)
	if owner == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing " + ownerHeader + " header"})
		return
	}
	c.Set(ownerHeader, owner)
	c.Next()
}

func (h *Handler) writeError(c *gin.Context, err error) {
	var quotaErr *models.QuotaExceededError

	switch {
	case errors.As(err, &quotaErr):
		c.JSON(http.StatusForbidden, gin.H{
			"error": err.Error(),
			"limit": quotaErr.Kind,
			"max":   quotaErr.Limit,
		})
	case errors.Is(err, models.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrAliasTaken):
		c.JSON(http.StatusConflict, gin.H{"error": models.ErrAliasTaken.Error()})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": models.ErrNotFound.Error()})
	case errors.Is(err, models.ErrDeadlineExceeded):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": models.ErrDeadlineExceeded.Error()})
	case errors.Is(err, models.ErrAliasSpaceExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": models.ErrAliasSpaceExhausted.Error()})
	default:
		_ = c.Error(err)
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func renderPage(c *gin.Context, status int, p page) {
	c.Render(status, render.HTML{Template: pageTemplate, Name: "page", Data: p})
}
