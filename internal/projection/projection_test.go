package projection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netflows/internal/model"
)

func inflow(year int, country, counterpartType string, value float64) model.FlowRecord {
	return model.FlowRecord{
		FlowKey: model.FlowKey{
			Year:            year,
			Country:         country,
			ISOCode:         "XXX",
			Continent:       "Africa",
			IncomeLevel:     "Low income",
			CounterpartArea: "Somewhere",
			CounterpartType: counterpartType,
			Indicator:       "x",
			IndicatorType:   model.IndicatorInflow,
			Prices:          model.PricesCurrent,
		},
		Value: value,
	}
}

func predicted(records []model.FlowRecord, country string, year int) (float64, bool) {
	for _, r := range records {
		if r.Country == country && r.Year == year {
			return r.Value, true
		}
	}
	return 0, false
}

func TestLinearTrendExtrapolates(t *testing.T) {
	got := LinearTrend([]model.FlowRecord{
		inflow(2020, "Kenya", model.CounterpartBilateral, 100),
		inflow(2021, "Kenya", model.CounterpartBilateral, 110),
	}, 2021, 2, 1)
	require.Len(t, got, 3)
	v, ok := predicted(got, "Kenya", 2022)
	require.True(t, ok)
	assert.InDelta(t, 120.0, v, 1e-9)
	for _, r := range got {
		assert.Equal(t, model.IndicatorInflow, r.IndicatorType)
		assert.Empty(t, r.CounterpartArea)
	}
}

func TestLinearTrendClampsAndSkipsSparseGroups(t *testing.T) {
	got := LinearTrend([]model.FlowRecord{
		inflow(2021, "Kenya", model.CounterpartBilateral, 100),
		inflow(2022, "Kenya", model.CounterpartBilateral, 10),
		inflow(2018, "Ghana", model.CounterpartBilateral, 50),
		inflow(2022, "Ghana", model.CounterpartBilateral, 60),
	}, 2022, 3, 3)

	for year := 2023; year <= 2025; year++ {
		v, ok := predicted(got, "Kenya", year)
		require.True(t, ok)
		assert.Zero(t, v)
	}
	_, ok := predicted(got, "Ghana", 2023)
	assert.False(t, ok)
	_, ok = predicted(got, "Ghana", 2018)
	assert.True(t, ok, "history outside the window is kept")
}

func TestOLS(t *testing.T) {
	slope, intercept := OLS([]float64{1, 2, 3}, []float64{2, 4, 6})
	assert.InDelta(t, 2.0, slope, 1e-12)
	assert.InDelta(t, 0.0, intercept, 1e-12)

	slope, intercept = OLS([]float64{5, 5}, []float64{1, 3})
	assert.Zero(t, slope)
	assert.Equal(t, 2.0, intercept)
}

func TestRollingProjectsFlat(t *testing.T) {
	got := Rolling([]model.FlowRecord{
		inflow(2020, "Kenya", model.CounterpartBilateral, 10),
		inflow(2021, "Kenya", model.CounterpartBilateral, 20),
		inflow(2022, "Kenya", model.CounterpartBilateral, 40),
	}, 2022, 2, 2)
	v, ok := predicted(got, "Kenya", 2024)
	require.True(t, ok)
	assert.Equal(t, 30.0, v)
}

func TestOutflowsCarryForward(t *testing.T) {
	service := func(year int, counterpart string, value float64) model.FlowRecord {
		r := inflow(year, "Kenya", model.CounterpartBilateral, value)
		r.CounterpartArea = counterpart
		r.Indicator = "bilateral"
		r.IndicatorType = model.IndicatorOutflow
		return r
	}
	got := Outflows([]model.FlowRecord{
		service(2022, "France", 10),
		service(2023, "France", 12),
		service(2022, "China", 5),
		service(2022, "World", 100),
	}, 2022, 3)

	values := make(map[string]float64)
	for _, r := range got {
		assert.Equal(t, model.IndicatorOutflow, r.IndicatorType)
		values[r.CounterpartType+"|"+string(rune('0'+r.Year-2020))] = r.Value
	}
	assert.Equal(t, -10.0, values["Bilateral|2"])
	assert.Equal(t, -12.0, values["Bilateral|3"])
	assert.Equal(t, -12.0, values["Bilateral|5"])
	assert.Equal(t, -5.0, values["China|4"])
	assert.Len(t, got, 8)
}

func TestEngineRunNetFlows(t *testing.T) {
	e, err := New(Config{BaseYear: 2021, YearsBack: 2, YearsForward: 1}, nil)
	require.NoError(t, err)

	outflow := inflow(2021, "Kenya", model.CounterpartBilateral, -40)
	outflow.IndicatorType = model.IndicatorOutflow
	all := []model.FlowRecord{
		inflow(2020, "Kenya", model.CounterpartBilateral, 100),
		inflow(2021, "Kenya", model.CounterpartBilateral, 110),
		outflow,
		inflow(2021, "China", model.CounterpartBilateral, 1000),
	}
	schedule := inflow(2022, "Kenya", model.CounterpartBilateral, 30)
	schedule.IndicatorType = model.IndicatorOutflow

	res := e.Run(all, []model.FlowRecord{schedule})
	require.Len(t, res.Countries, 1)
	assert.Equal(t, 2022, res.Countries[0].Year)
	assert.InDelta(t, 90.0, res.Countries[0].Value, 1e-9)
	assert.Equal(t, model.IndicatorNetFlow, res.Countries[0].IndicatorType)

	require.NotEmpty(t, res.Groups)
	assert.Equal(t, "Developing countries", res.Groups[0].Country)

	_, err = New(Config{Strategy: "spline"}, nil)
	require.Error(t, err)
}
