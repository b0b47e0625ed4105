package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/analytics"
	"github.com/artromone/linkpulse/services/shortener/links"
	"github.com/artromone/linkpulse/services/shortener/models"
	"github.com/artromone/linkpulse/services/shortener/quota"
	"github.com/artromone/linkpulse/services/shortener/redirect"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockRedirector struct{ mock.Mock }

func (m *mockRedirector) Visit(ctx context.Context, token string, visit models.Visit) (*redirect.Outcome, error) {
	args := m.Called(ctx, token, visit)
	out, _ := args.Get(0).(*redirect.Outcome)
	return out, args.Error(1)
}

func (m *mockRedirector) Peek(ctx context.Context, token string) (*redirect.Outcome, error) {
	args := m.Called(ctx, token)
	out, _ := args.Get(0).(*redirect.Outcome)
	return out, args.Error(1)
}

type mockCreator struct{ mock.Mock }

func (m *mockCreator) Create(ctx context.Context, p links.CreateParams) (*models.LinkRecord, error) {
	args := m.Called(ctx, p)
	link, _ := args.Get(0).(*models.LinkRecord)
	return link, args.Error(1)
}

type mockUsage struct{ mock.Mock }

func (m *mockUsage) Usage(ctx context.Context, ownerID string) (*quota.Usage, error) {
	args := m.Called(ctx, ownerID)
	usage, _ := args.Get(0).(*quota.Usage)
	return usage, args.Error(1)
}

func (m *mockUsage) Reset(ctx context.Context, ownerID string) (*models.UsageCounter, error) {
	args := m.Called(ctx, ownerID)
	usage, _ := args.Get(0).(*models.UsageCounter)
	return usage, args.Error(1)
}

type mockReporter struct{ mock.Mock }

func (m *mockReporter) Summary(ctx context.Context, ownerID, linkID, rangeParam string) (*analytics.Summary, error) {
	args := m.Called(ctx, ownerID, linkID, rangeParam)
	s, _ := args.Get(0).(*analytics.Summary)
	return s, args.Error(1)
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type fixture struct {
	router    *gin.Engine
	redirects *mockRedirector
	creator   *mockCreator
	usage     *mockUsage
	reports   *mockReporter
}

func newFixture(dbErr error) *fixture {
	f := &fixture{
		redirects: &mockRedirector{},
		creator:   &mockCreator{},
		usage:     &mockUsage{},
		reports:   &mockReporter{},
	}
	h := New(f.redirects, f.creator, f.usage, f.reports, pinger{err: dbErr}, zap.NewNop())
	f.router = gin.New()
	h.Register(f.router, []string{"/r/", "/go/"})
	return f
}

func (f *fixture) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRedirect(t *testing.T) {
	f := newFixture(nil)
	f.redirects.On("Visit", mock.Anything, "abc1234", mock.MatchedBy(func(v models.Visit) bool {
		return v.IP == "203.0.113.7" && v.Referer == "https://t.co/x" && v.UserAgent == "test-agent" && !v.IsQRScan
	})).Return(&redirect.Outcome{Link: &models.LinkRecord{OriginalURL: "https://example.com/landing"}, ClickCount: 3}, nil)

	w := f.do(http.MethodGet, "/r/abc1234", "", map[string]string{
		"X-Forwarded-For": "203.0.113.7, 10.0.0.1",
		"Referer":         "https://t.co/x",
		"User-Agent":      "test-agent",
	})

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.com/landing", w.Header().Get("Location"))
	f.redirects.AssertExpectations(t)
}

func TestRedirectGoPrefixAndNoStat(t *testing.T) {
	f := newFixture(nil)
	f.redirects.On("Peek", mock.Anything, "abc").Return(&redirect.Outcome{Link: &models.LinkRecord{OriginalURL: "https://example.com"}}, nil)

	w := f.do(http.MethodGet, "/go/abc?no_stat=1", "", nil)

	assert.Equal(t, http.StatusFound, w.Code)
	f.redirects.AssertNotCalled(t, "Visit", mock.Anything, mock.Anything, mock.Anything)
}

func TestRedirectErrorsRenderNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", models.ErrNotFound},
		{"deadline", models.ErrDeadlineExceeded},
		{"lookup failed", fmt.Errorf("%w: %w", models.ErrLookupFailed, errors.New("database is closed"))},
		{"unexpected", errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			f.redirects.On("Visit", mock.Anything, "tok", mock.Anything).Return(nil, tt.err)

			w := f.do(http.MethodGet, "/r/tok", "", nil)

			assert.Equal(t, http.StatusNotFound, w.Code)
			assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
			assert.Contains(t, w.Body.String(), "<h1>Link Not Found</h1>")
		})
	}
}

func TestResolveJSONKeepsFailureCodes(t *testing.T) {
	f := newFixture(nil)
	f.redirects.On("Visit", mock.Anything, "slow", mock.Anything).Return(nil, models.ErrDeadlineExceeded)
	f.redirects.On("Visit", mock.Anything, "broken", mock.Anything).Return(nil, models.ErrLookupFailed)

	assert.Equal(t, http.StatusGatewayTimeout, f.do(http.MethodGet, "/api/v1/resolve/slow", "", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, f.do(http.MethodGet, "/api/v1/resolve/broken", "", nil).Code)
}

func TestResolveJSON(t *testing.T) {
	f := newFixture(nil)
	f.redirects.On("Visit", mock.Anything, "abc", mock.Anything).
		Return(&redirect.Outcome{Link: &models.LinkRecord{OriginalURL: "https://example.com"}, ClickCount: 12}, nil)
	f.redirects.On("Visit", mock.Anything, "nope", mock.Anything).Return(nil, models.ErrNotFound)

	w := f.do(http.MethodGet, "/api/v1/resolve/abc", "", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		OriginalURL string `json:"original_url"`
		ClickCount  int64  `json:"click_count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "https://example.com", body.OriginalURL)
	assert.EqualValues(t, 12, body.ClickCount)

	w = f.do(http.MethodGet, "/api/v1/resolve/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateLink(t *testing.T) {
	f := newFixture(nil)
	f.creator.On("Create", mock.Anything, links.CreateParams{
		OwnerID:     "owner-1",
		OriginalURL: "https://example.com",
		CustomAlias: "promo",
	}).Return(&models.LinkRecord{ID: "l1", Alias: "promo", ShortURL: "https://sho.rt/r/promo"}, nil)

	w := f.do(http.MethodPost, "/api/v1/links", `{"original_url":"https://example.com","custom_alias":"promo","owner_id":"spoofed"}`,
		map[string]string{ownerHeader: "owner-1"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), `"short_url":"https://sho.rt/r/promo"`)
	f.creator.AssertExpectations(t)
}

func TestCreateLinkErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		body   string
	}{
		{"taken", models.ErrAliasTaken, http.StatusConflict, "alias is already in use"},
		{"invalid", errors.Join(models.ErrInvalidInput, errors.New("original_url failed")), http.StatusBadRequest, "original_url"},
		{"quota", &models.QuotaExceededError{Kind: models.QuotaCustomBackHalves, Limit: 5}, http.StatusForbidden, `"limit":"customBackHalves"`},
		{"exhausted", models.ErrAliasSpaceExhausted, http.StatusServiceUnavailable, "free alias"},
		{"internal", errors.New("db exploded"), http.StatusInternalServerError, "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(nil)
			f.creator.On("Create", mock.Anything, mock.Anything).Return(nil, tt.err)

			w := f.do(http.MethodPost, "/api/v1/links", `{"original_url":"https://example.com"}`, map[string]string{ownerHeader: "o"})

			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
			assert.NotContains(t, w.Body.String(), "db exploded")
		})
	}
}

func TestCreateLinkRequiresOwner(t *testing.T) {
	f := newFixture(nil)

	w := f.do(http.MethodPost, "/api/v1/links", `{"original_url":"https://example.com"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(http.MethodPost, "/api/v1/links", `{not json`, map[string]string{ownerHeader: "o"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	f.creator.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestUsageEndpoints(t *testing.T) {
	f := newFixture(nil)
	f.usage.On("Usage", mock.Anything, "o").Return(&quota.Usage{
		Counter: &models.UsageCounter{OwnerID: "o", LinksUsed: 4},
		Limits:  quota.Limits{Links: 25},
	}, nil)
	f.usage.On("Reset", mock.Anything, "o").Return(&models.UsageCounter{OwnerID: "o"}, nil)

	w := f.do(http.MethodGet, "/api/v1/usage", "", map[string]string{ownerHeader: "o"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"links_used":4`)
	assert.Contains(t, w.Body.String(), `"links":25`)

	w = f.do(http.MethodPost, "/api/v1/usage/reset", "", map[string]string{ownerHeader: "o"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"links_used":0`)
}

func TestLinkAnalytics(t *testing.T) {
	f := newFixture(nil)
	f.reports.On("Summary", mock.Anything, "o", "l1", "30").Return(&analytics.Summary{LinkID: "l1", TotalClicks: 9}, nil)
	f.reports.On("Summary", mock.Anything, "o", "l2", "all").Return(nil, models.ErrNotFound)

	w := f.do(http.MethodGet, "/api/v1/links/l1/analytics?range=30", "", map[string]string{ownerHeader: "o"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total_clicks":9`)

	w = f.do(http.MethodGet, "/api/v1/links/l2/analytics", "", map[string]string{ownerHeader: "o"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	assert.Equal(t, http.StatusOK, newFixture(nil).do(http.MethodGet, "/healthz", "", nil).Code)
	assert.Equal(t, http.StatusServiceUnavailable, newFixture(errors.New("down")).do(http.MethodGet, "/healthz", "", nil).Code)
}

func TestMetricsEndpoint(t *testing.T) {
	w := newFixture(nil).do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
