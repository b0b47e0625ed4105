package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/artromone/linkpulse/services/shortener/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) FindByAlias(ctx context.Context, alias string) (*models.LinkRecord, error) {
	args := m.Called(ctx, alias)
	link, _ := args.Get(0).(*models.LinkRecord)
	return link, args.Error(1)
}

func (m *mockStore) FindByShortURL(ctx context.Context, shortURL string) (*models.LinkRecord, error) {
	args := m.Called(ctx, shortURL)
	link, _ := args.Get(0).(*models.LinkRecord)
	return link, args.Error(1)
}

func (m *mockStore) FindByFuzzyContains(ctx context.Context, token string, limit int) ([]models.LinkRecord, error) {
	args := m.Called(ctx, token, limit)
	links, _ := args.Get(0).([]models.LinkRecord)
	return links, args.Error(1)
}

var opts = Options{BaseURL: "https://sho.rt/", Fuzzy: true}

func TestResolveByAlias(t *testing.T) {
	store := &mockStore{}
	store.On("FindByAlias", mock.Anything, "abc1234").Return(&models.LinkRecord{ID: "l1"}, nil)

	link, err := New(store, opts, zap.NewNop()).Resolve(context.Background(), "abc1234")
	require.NoError(t, err)
	assert.Equal(t, "l1", link.ID)
	store.AssertNotCalled(t, "FindByShortURL", mock.Anything, mock.Anything)
}

func TestResolveByConstructedShortURL(t *testing.T) {
	store := &mockStore{}
	store.On("FindByAlias", mock.Anything, "tok").Return(nil, models.ErrNotFound)
	store.On("FindByShortURL", mock.Anything, "https://sho.rt/r/tok").Return(nil, models.ErrNotFound)
	store.On("FindByShortURL", mock.Anything, "https://sho.rt/go/tok").Return(&models.LinkRecord{ID: "l2"}, nil)

	link, err := New(store, opts, zap.NewNop()).Resolve(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "l2", link.ID)
	store.AssertExpectations(t)
}

func TestResolveFuzzyLogsWarning(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	store := &mockStore{}
	store.On("FindByAlias", mock.Anything, "Legacy").Return(nil, models.ErrNotFound)
	store.On("FindByShortURL", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)
	store.On("FindByFuzzyContains", mock.Anything, "Legacy", 1).Return([]models.LinkRecord{{ID: "l3", ShortURL: "https://old/r/legacy"}}, nil)

	link, err := New(store, opts, zap.New(core)).Resolve(context.Background(), "Legacy")
	require.NoError(t, err)
	assert.Equal(t, "l3", link.ID)
	assert.Equal(t, 1, logs.FilterMessage("token resolved by fuzzy match").Len())
}

func TestResolveFuzzyDisabled(t *testing.T) {
	store := &mockStore{}
	store.On("FindByAlias", mock.Anything, "x").Return(nil, models.ErrNotFound)
	store.On("FindByShortURL", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)

	_, err := New(store, Options{BaseURL: "https://sho.rt"}, zap.NewNop()).Resolve(context.Background(), "x")
	assert.ErrorIs(t, err, models.ErrNotFound)
	store.AssertNotCalled(t, "FindByFuzzyContains", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveNotFound(t *testing.T) {
	store := &mockStore{}
	store.On("FindByAlias", mock.Anything, "zzz").Return(nil, models.ErrNotFound)
	store.On("FindByShortURL", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)
	store.On("FindByFuzzyContains", mock.Anything, "zzz", 1).Return(nil, nil)

	_, err := New(store, opts, zap.NewNop()).Resolve(context.Background(), "zzz")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestResolveEmptyToken(t *testing.T) {
	store := &mockStore{}

	_, err := New(store, opts, zap.NewNop()).Resolve(context.Background(), "")
	assert.ErrorIs(t, err, models.ErrNotFound)
	store.AssertNotCalled(t, "FindByAlias", mock.Anything, mock.Anything)
}

func TestResolveSkipsFailingStrategy(t *testing.T) {
	store := &mockStore{}
	store.On("FindByAlias", mock.Anything, "tok").Return(nil, errors.New("cache and db down"))
	store.On("FindByShortURL", mock.Anything, "https://sho.rt/r/tok").Return(&models.LinkRecord{ID: "l4"}, nil)

	link, err := New(store, opts, zap.NewNop()).Resolve(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "l4", link.ID)
}

func TestResolveAllFailing(t *testing.T) {
	boom := errors.New("connection refused")
	store := &mockStore{}
	store.On("FindByAlias", mock.Anything, "tok").Return(nil, boom)
	store.On("FindByShortURL", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)
	store.On("FindByFuzzyContains", mock.Anything, "tok", 1).Return(nil, nil)

	_, err := New(store, opts, zap.NewNop()).Resolve(context.Background(), "tok")
	assert.ErrorIs(t, err, models.ErrLookupFailed)
	assert.ErrorIs(t, err, boom)
}

func TestResolveDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	store := &mockStore{}
	store.On("FindByAlias", mock.Anything, "slow").
		Run(func(args mock.Arguments) { <-args.Get(0).(context.Context).Done() }).
		Return(nil, context.DeadlineExceeded)

	_, err := New(store, opts, zap.NewNop()).Resolve(ctx, "slow")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	store.AssertNotCalled(t, "FindByShortURL", mock.Anything, mock.Anything)
}
