package store

import (
	"context"

	"netflows/internal/model"
)

// Datasets held in the raw-data cache.
const (
	DatasetDebtInflows = "debt_inflows"
	DatasetDebtService = "debt_service"
	DatasetGrants      = "grants"
)

type Store interface {
	UpsertFlows(ctx context.Context, dataset string, records []model.FlowRecord) error
	ListFlows(ctx context.Context, filter FlowFilter) ([]model.FlowRecord, error)
	ListFlowYears(ctx context.Context, dataset string) ([]int, error)
	UpsertSeries(ctx context.Context, values []model.SeriesValue) error
	ListSeries(ctx context.Context, series string) ([]model.SeriesValue, error)
	Close() error
}

// FlowFilter selects cached flow rows. Zero values match everything.
type FlowFilter struct {
	Dataset  string
	FromYear int
	ToYear   int
	Prices   model.Prices
}

// NopStore discards writes and reads back nothing. The collector uses it
// for dry runs.
type NopStore struct{}

func (s *NopStore) UpsertFlows(ctx context.Context, dataset string, records []model.FlowRecord) error {
	return nil
}

func (s *NopStore) ListFlows(ctx context.Context, filter FlowFilter) ([]model.FlowRecord, error) {
	return nil, nil
}

func (s *NopStore) ListFlowYears(ctx context.Context, dataset string) ([]int, error) {
	return nil, nil
}

func (s *NopStore) UpsertSeries(ctx context.Context, values []model.SeriesValue) error {
	return nil
}

func (s *NopStore) ListSeries(ctx context.Context, series string) ([]model.SeriesValue, error) {
	return nil, nil
}

func (s *NopStore) Close() error {
	return nil
}

var _ Store = (*NopStore)(nil)
