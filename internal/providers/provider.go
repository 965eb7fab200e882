package providers

import (
	"context"

	"netflows/internal/model"
)

// DebtSource serves creditor-level debt statistics series.
type DebtSource interface {
	Name() string
	FetchDebt(ctx context.Context, series string, from, to int) ([]model.DebtObservation, error)
}

// IndicatorSource serves country-level indicator series such as GDP.
type IndicatorSource interface {
	Name() string
	FetchIndicator(ctx context.Context, indicator string, from, to int) ([]model.SeriesValue, error)
}

type GrantsSource interface {
	Name() string
	FetchGrants(ctx context.Context, from, to int) ([]model.GrantObservation, error)
}

type PopulationSource interface {
	Name() string
	ListLocations(ctx context.Context) ([]model.Location, error)
	FetchPopulation(ctx context.Context, query PopulationQuery) ([]model.PopulationRecord, error)
}

type PopulationQuery struct {
	Indicator int
	Locations []int
	StartYear int
	EndYear   int
	StartAge  int
	EndAge    int
	Sexes     int
	Variants  int
}
