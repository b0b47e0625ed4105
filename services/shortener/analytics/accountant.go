package analytics

import (
	"context"

	"go.uber.org/zap"

	"github.com/artromone/linkpulse/services/shortener/metrics"
)

type ClickStore interface {
	IncrementClicks(ctx context.Context, linkID string) (int64, error)
}

// Accountant counts visits. The increment happens in the store so concurrent
// visits never lose updates.
type Accountant struct {
	store ClickStore
	log   *zap.Logger
}

func NewAccountant(store ClickStore, log *zap.Logger) *Accountant {
	return &Accountant{store: store, log: log}
}

func (a *Accountant) RecordClick(ctx context.Context, linkID string) (int64, error) {
	count, err := a.store.IncrementClicks(ctx, linkID)
	if err != nil {
		metrics.AccountingFailures.Inc()
		a.log.Error("click not recorded", zap.String("link_id", linkID), zap.Error(err))
		return 0, err
	}
	return count, nil
}
