package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/artromone/linkpulse/pkg/circuitbreaker"
	"github.com/artromone/linkpulse/services/shortener/metrics"
	"github.com/artromone/linkpulse/services/shortener/models"
)

var (
	ErrNoIP        = errors.New("no client ip")
	ErrNoLocation  = errors.New("geo lookup returned no location")
	maxGeoBodySize = int64(64 << 10)
)

type GeoConfig struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	MaxFailures  int
	ResetTimeout time.Duration
}

// GeoClient resolves an IP to a country and city through the ipinfo.io JSON
// API. Calls go through a circuit breaker so an unavailable provider costs
// nothing once it has tripped.
type GeoClient struct {
	client  *http.Client
	baseURL string
	token   string
	breaker *circuitbreaker.CircuitBreaker
	log     *zap.Logger
}

func NewGeoClient(cfg GeoConfig, log *zap.Logger) *GeoClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}

	breaker := circuitbreaker.New(cfg.MaxFailures, cfg.ResetTimeout,
		circuitbreaker.WithStateChange(func(from, to circuitbreaker.State) {
			metrics.GeoBreakerState.Set(float64(to))
			log.Warn("geo lookup breaker changed state",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}),
	)

	return &GeoClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		breaker: breaker,
		log:     log,
	}
}

type ipinfoResponse struct {
	Country string `json:"country"`
	City    string `json:"city"`
}

func (g *GeoClient) IPToLocation(ctx context.Context, ip string) (models.Location, error) {
	if net.ParseIP(ip) == nil {
		return models.Location{}, ErrNoIP
	}

	var loc models.Location
	err := g.breaker.Call(func() error {
		var err error
		loc, err = g.fetch(ctx, ip)
		return err
	})
	if err != nil {
		return models.Location{}, err
	}
	return loc, nil
}

func (g *GeoClient) fetch(ctx context.Context, ip string) (models.Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/%s/json", g.baseURL, ip), nil)
	if err != nil {
		return models.Location{}, err
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return models.Location{}, fmt.Errorf("geo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.Location{}, fmt.Errorf("geo request: unexpected status %d", resp.StatusCode)
	}

	var body ipinfoResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxGeoBodySize)).Decode(&body); err != nil {
		return models.Location{}, fmt.Errorf("decode geo response: %w", err)
	}
	if body.Country == "" && body.City == "" {
		return models.Location{}, ErrNoLocation
	}
	return models.Location{Country: body.Country, City: body.City}, nil
}
