package charts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netflows/internal/artifact"
	"netflows/internal/model"
	"netflows/internal/netflow"
	"netflows/internal/population"
)

var isoCodes = map[string]string{"Kenya": "KEN", "Ghana": "GHA", "China": "CHN", "Brazil": "BRA"}

func iso(country string) (string, bool) {
	code, ok := isoCodes[country]
	return code, ok
}

type flow struct {
	year        int
	country     string
	iso         string
	income      string
	counterpart string
	kind        string
	it          model.IndicatorType
	prices      model.Prices
	value       float64
}

func (f flow) record() model.FlowRecord {
	if f.prices == "" {
		f.prices = model.PricesCurrent
	}
	if f.income == "" {
		f.income = "Lower middle income"
	}
	return model.FlowRecord{
		FlowKey: model.FlowKey{
			Year:            f.year,
			Country:         f.country,
			ISOCode:         f.iso,
			Continent:       "Africa",
			IncomeLevel:     f.income,
			CounterpartArea: f.counterpart,
			CounterpartType: f.kind,
			IndicatorType:   f.it,
			Prices:          f.prices,
		},
		Value: f.value,
	}
}

func records(flows ...flow) []model.FlowRecord {
	out := make([]model.FlowRecord, len(flows))
	for i, f := range flows {
		out[i] = f.record()
	}
	return out
}

func column(t *testing.T, table *artifact.Table, name string) []string {
	t.Helper()
	i := table.Column(name)
	require.GreaterOrEqual(t, i, 0, "column %s", name)
	out := make([]string, len(table.Rows))
	for r, row := range table.Rows {
		out[r] = row[i]
	}
	return out
}

func TestNetFlowsOverviewJoinsProjection(t *testing.T) {
	net := records(
		flow{year: 2021, country: "Kenya", it: model.IndicatorNetFlow, value: 5},
		flow{year: 2022, country: "Kenya", it: model.IndicatorNetFlow, value: 7},
		flow{year: 2022, country: "Kenya", it: model.IndicatorNetFlow, prices: model.PricesConstant, value: 100},
	)
	groups := records(flow{year: 2022, country: "Developing countries", it: model.IndicatorNetFlow, value: 70})
	proj := records(flow{year: 2023, country: "Kenya", value: 9})

	table := NetFlowsOverview(net, groups, proj, nil, 2022)
	assert.Equal(t, []string{"country", "year", "data", "projection"}, table.Columns)
	assert.Equal(t, [][]string{
		{"Developing countries", "2022", "70", "70"},
		{"Kenya", "2021", "5", ""},
		{"Kenya", "2022", "7", "7"},
		{"Kenya", "2023", "", "9"},
	}, table.Rows)
}

func TestChartOrderPutsOceaniaAfterEurope(t *testing.T) {
	net := records(
		flow{year: 2022, country: "Oceania", value: 1},
		flow{year: 2022, country: "Europe", value: 1},
		flow{year: 2022, country: "Angola", value: 1},
		flow{year: 2022, country: "Low income", value: 1},
	)
	table := NetFlowsOverview(nil, net, nil, nil, 2030)
	assert.Equal(t, []string{"Low income", "Europe", "Oceania", "Angola"}, column(t, table, "country"))
}

func TestInflowsByCounterpartBreaksOutChina(t *testing.T) {
	full := records(
		flow{year: 2022, country: "Kenya", counterpart: "China", kind: model.CounterpartBilateral, it: model.IndicatorInflow, value: 3},
		flow{year: 2022, country: "Kenya", counterpart: "France", kind: model.CounterpartBilateral, it: model.IndicatorInflow, value: 2},
		flow{year: 2022, country: "Kenya", counterpart: "Bondholders", kind: model.CounterpartPrivate, it: model.IndicatorInflow, value: 1},
		flow{year: 2022, country: "Kenya", counterpart: "France", kind: model.CounterpartBilateral, it: model.IndicatorOutflow, value: -9},
	)
	table := InflowsByCounterpart(full, nil)
	assert.Equal(t, []string{"year", "country", "Bilateral (excl. China)", "China", "Multilateral", "Private (excl. China)"}, table.Columns)
	assert.Equal(t, [][]string{{"2022", "Kenya", "2", "3", "", "1"}}, table.Rows)
}

func TestBinIndex(t *testing.T) {
	cases := []struct {
		value float64
		label string
		ok    bool
	}{
		{-5, "-5 to -4", true},
		{-4, "-5 to -4", true},
		{-3.99, "-4 to -3", true},
		{0, "-1 to 0", true},
		{19.5, "19 to 20", true},
		{20.01, "20+", true},
		{-5.01, "", false},
	}
	for _, c := range cases {
		i, ok := BinIndex(HistogramBins, c.value)
		require.Equal(t, c.ok, ok, "value %v", c.value)
		if ok {
			assert.Equal(t, c.label, HistogramBins[i].Label, "value %v", c.value)
		}
	}
	assert.Len(t, HistogramBins, 26)
	assert.Equal(t, ">20", HistogramBins[25].X)
	assert.Equal(t, -4.5, HistogramBins[0].X)
}

func TestHistogramCountsDistinctCountries(t *testing.T) {
	rows := []netflow.Row{
		{FlowKey: model.FlowKey{Year: 2022, Country: "Kenya"}, NetFlowPctGDP: -4.5},
		{FlowKey: model.FlowKey{Year: 2022, Country: "Kenya"}, NetFlowPctGDP: -4.2},
		{FlowKey: model.FlowKey{Year: 2022, Country: "Ghana"}, NetFlowPctGDP: -4.9},
		{FlowKey: model.FlowKey{Year: 2022, Country: "Brazil"}, NetFlowPctGDP: 25},
	}
	counts := Histogram(rows, HistogramBins)
	require.Len(t, counts, len(HistogramBins))
	assert.Equal(t, 2, counts[0].Count)
	assert.Equal(t, 1, counts[25].Count)
	assert.Zero(t, counts[1].Count)

	table := HistogramTable(counts, HistogramShown)
	require.Len(t, table.Rows, HistogramShown)
	assert.Equal(t, []string{"2022", "-5 to -4", "2", "-4.5"}, table.Rows[0])
	assert.Equal(t, "4 to 5", table.Rows[9][1])
}

func TestBeeswarmSharesAndExclusions(t *testing.T) {
	net := records(
		flow{year: 2022, country: "Kenya", it: model.IndicatorNetFlow, value: 3e9},
		flow{year: 2022, country: "Kenya", it: model.IndicatorNetFlow, value: -1e9},
		flow{year: 2022, country: "China", it: model.IndicatorNetFlow, value: 5e9},
		flow{year: 2015, country: "Kenya", it: model.IndicatorNetFlow, value: 1e9},
		flow{year: 2022, country: "Ghana", it: model.IndicatorNetFlow, value: 1e9},
	)
	gdp := netflow.NewGDPTable([]model.SeriesValue{
		{ISOCode: "KEN", Year: 2022, Value: 100e9},
		{ISOCode: "KEN", Year: 2015, Value: 100e9},
		{ISOCode: "CHN", Year: 2022, Value: 100e9},
	})
	rows := Beeswarm(net, gdp, iso)
	require.Len(t, rows, 1)
	assert.Equal(t, "KEN", rows[0].ISOCode)
	assert.InDelta(t, 2.0, rows[0].NetFlow, 1e-9)
	assert.InDelta(t, 100.0, rows[0].GDP, 1e-9)
	assert.InDelta(t, 2.0, rows[0].NetFlowPctGDP, 1e-9)

	table := BeeswarmTable(rows)
	assert.Equal(t, "chart_2_1", table.Name)
	assert.Equal(t, []string{"2022", "Kenya", "Lower middle income", "Africa", "2", "KEN", "100", "2"}, table.Rows[0])
}

func TestScatterTableSumsCounterpartTypes(t *testing.T) {
	rows := []netflow.Row{
		{FlowKey: model.FlowKey{Year: 2022, Country: "Kenya", CounterpartType: model.CounterpartBilateral}, Inflow: 1, Outflow: 2},
		{FlowKey: model.FlowKey{Year: 2022, Country: "Kenya", CounterpartType: model.CounterpartPrivate}, Inflow: 3, Outflow: 4},
		{FlowKey: model.FlowKey{Year: 2021, Country: "Kenya", CounterpartType: model.CounterpartPrivate}, Inflow: 9, Outflow: 9},
	}
	table := ScatterTable(rows, ScatterYear)
	assert.Equal(t, [][]string{{"2022", "Kenya", "", "", "4", "6"}}, table.Rows)
}

func TestNegativeTransfersTables(t *testing.T) {
	full := records(
		flow{year: 2012, country: "Kenya", it: model.IndicatorInflow, prices: model.PricesConstant, value: 10},
		flow{year: 2012, country: "Kenya", it: model.IndicatorOutflow, prices: model.PricesConstant, value: -15},
		flow{year: 2012, country: "Ghana", it: model.IndicatorOutflow, prices: model.PricesConstant, value: -1},
		flow{year: 2012, country: "Brazil", income: "Upper middle income", it: model.IndicatorInflow, prices: model.PricesConstant, value: 4},
		flow{year: 2005, country: "Kenya", it: model.IndicatorOutflow, prices: model.PricesConstant, value: -2},
		flow{year: 2012, country: "Kenya", it: model.IndicatorOutflow, value: -500},
	)
	s := NegativeTransfers(full)

	assert.Equal(t, [][]string{
		{"2012", "Ghana", "Africa", "Lower middle income", "0", "-1", "-1"},
		{"2012", "Kenya", "Africa", "Lower middle income", "10", "-15", "-5"},
	}, s.Countries.Rows)
	assert.Equal(t, []string{"year", "Lower middle income"}, s.Income.Columns)
	assert.Equal(t, [][]string{{"2005", "2"}, {"2012", "6"}}, s.Income.Rows)
	assert.Equal(t, []string{"year", "Africa"}, s.Continent.Columns)
	assert.Equal(t, [][]string{{"2005", "0", "-2", "2"}, {"2012", "10", "-16", "6"}}, s.Years.Rows)
}

func TestConnectedScatterKeepsEveryYearOfNegativeCountries(t *testing.T) {
	full := records(
		flow{year: 2021, country: "Kenya", it: model.IndicatorInflow, prices: model.PricesConstant, value: 10},
		flow{year: 2022, country: "Kenya", it: model.IndicatorOutflow, prices: model.PricesConstant, value: -3},
		flow{year: 2022, country: "Ghana", it: model.IndicatorInflow, prices: model.PricesConstant, value: 3},
	)
	table := ConnectedScatter(full)
	assert.Equal(t, [][]string{
		{"2021", "Kenya", "Africa", "Lower middle income", "10", "0", "10", ""},
		{"2022", "Kenya", "Africa", "Lower middle income", "0", "3", "-3", "nnt"},
	}, table.Rows)
}

func TestAvgRepayments(t *testing.T) {
	service := func(year int, country, counterpart, kind string, value float64) flow {
		return flow{year: year, country: country, iso: "KEN", counterpart: counterpart, kind: kind, it: model.IndicatorOutflow, value: value}
	}
	unmapped := service(2011, "Atlantis", "France", model.CounterpartBilateral, 500)
	unmapped.iso = ""
	debt := records(
		unmapped,
		service(2010, "Kenya", "France", model.CounterpartBilateral, 10),
		service(2011, "Kenya", "France", model.CounterpartBilateral, 20),
		service(2011, "Kenya", "China", model.CounterpartBilateral, 6),
		service(2024, "Kenya", "France", model.CounterpartBilateral, 30),
		service(2011, "Kenya", "World", model.CounterpartBilateral, 1000),
		service(2011, "Low income", "France", model.CounterpartBilateral, 1000),
	)

	table := AvgRepayments(debt, RepaymentPeriods, false)
	assert.Equal(t, []string{"year", "country", "counterpart_type", "value"}, table.Columns)
	assert.Equal(t, [][]string{
		{"2010-2014", "Developing countries", "Bilateral", "18"},
		{"2023-2025 (projected)", "Developing countries", "Bilateral", "30"},
		{"2010-2014", "Lower middle income", "Bilateral", "18"},
		{"2023-2025 (projected)", "Lower middle income", "Bilateral", "30"},
		{"2010-2014", "Africa", "Bilateral", "18"},
		{"2023-2025 (projected)", "Africa", "Bilateral", "30"},
		{"2010-2014", "Kenya", "Bilateral", "18"},
		{"2023-2025 (projected)", "Kenya", "Bilateral", "30"},
	}, table.Rows)

	china := AvgRepayments(debt, RepaymentPeriods, true)
	assert.Equal(t, "avg_repayments_china", china.Name)
	assert.Contains(t, china.Rows, []string{"2010-2014", "Kenya", "China", "6"})
	assert.Contains(t, china.Rows, []string{"2010-2014", "Kenya", "Bilateral", "15"})
	for _, row := range china.Rows {
		assert.NotEqual(t, "Atlantis", row[1])
	}
}

func TestScatterTotalsCarriesLatestGDPForward(t *testing.T) {
	full := records(
		flow{year: 2022, country: "Kenya", iso: "KEN", kind: model.CounterpartBilateral, it: model.IndicatorInflow, value: 4e9},
		flow{year: 2022, country: "Kenya", iso: "KEN", kind: model.CounterpartBilateral, it: model.IndicatorOutflow, value: -1e9},
		flow{year: 2022, country: "Ghana", iso: "GHA", kind: model.CounterpartBilateral, it: model.IndicatorInflow, value: 4e9},
		flow{year: 2022, country: "Ghana", iso: "GHA", kind: model.CounterpartBilateral, it: model.IndicatorOutflow, value: -1e9},
	)
	gdp := netflow.NewGDPTable([]model.SeriesValue{
		{ISOCode: "KEN", Year: 2020, Value: 50e9},
		{ISOCode: "KEN", Year: 2021, Value: 100e9},
		{ISOCode: "GHA", Year: 2023, Value: 100e9},
	})

	rows := ScatterTotals(full, gdp, iso)
	require.Len(t, rows, 1)
	assert.Equal(t, "Kenya", rows[0].Country)
	assert.InDelta(t, 100e9, rows[0].GDP, 1)
	assert.InDelta(t, 4.0, rows[0].Inflow, 1e-9)
	assert.InDelta(t, 1.0, rows[0].Outflow, 1e-9)
}

func TestKeyNumbers(t *testing.T) {
	grouping := records(
		flow{year: 2020, country: "Developing countries", value: 50e9},
		flow{year: 2021, country: "Developing countries", value: 80e9},
		flow{year: 2022, country: "Developing countries", value: -20e9},
		flow{year: 2021, country: "Upper middle income", value: 1.234e9},
	)
	projGroup := records(
		flow{year: 2024, country: "Developing countries", value: -30e9},
		flow{year: 2024, country: "Lower middle income", value: -5.555e9},
	)
	netCountry := records(
		flow{year: 2022, country: "Kenya", value: -1},
		flow{year: 2022, country: "Ghana", value: 2},
	)
	projCountry := records(
		flow{year: 2023, country: "Kenya", value: -1},
		flow{year: 2024, country: "Kenya", value: 1},
	)
	full := records(
		flow{year: 2022, country: "Kenya"},
		flow{year: 2022, country: "Brazil", income: "Upper middle income"},
	)
	people := population.NewTable([]model.PopulationRecord{
		{ISO3: "KEN", Sex: "Both sexes", Variant: "Median", Value: 55e6},
		{ISO3: "BRA", Sex: "Both sexes", Variant: "Median", Value: 216.4e6},
	}, nil)

	got, err := KeyNumbers(KeyNumbersInput{
		NetCountry:         netCountry,
		NetGrouping:        grouping,
		ProjectionsCountry: projCountry,
		ProjectionsGroup:   projGroup,
		FullCountry:        full,
		Population:         people,
		ISO:                iso,
		LastDataYear:       2022,
		ProjectionYear:     2024,
		UMICYear:           2021,
		NNTYears:           []int{2022, 2023, 2024},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"dev_countries_nt_peak_year":                  2021,
		"dev_countries_nt_peak_value":                 "$80.0 bn",
		"dev_countries_nt_latest_year":                2022,
		"dev_countries_nt_latest_value":               "$-20.0 bn",
		"dev_countries_nt_change_2021_2022_value":     "$-100.0 bn",
		"dev_countries_nt_change_2021_2022_percentage": "-125.0%",
		"dev_countries_nt_2024":                       "$-30.0 bn",
		"dev_countries_nt_2022_2024_change":           "$-10.0 bn",
		"umic_nt_2021_value":                          "$1.23 bn",
		"lmic_nt_2024_value":                          "$-5.56 bn",
		"umic_nt_population":                          "216 million",
		"lmic_nt_population":                          "0.1 billion",
		"nnt_count_2022":                              "1 out of 2 countries",
		"nnt_count_2023":                              "1 out of 1 countries",
		"nnt_count_2024":                              "0 out of 1 countries",
	}, got)
}

func TestKeyNumbersMissingProjection(t *testing.T) {
	_, err := KeyNumbers(KeyNumbersInput{
		NetGrouping: records(
			flow{year: 2021, country: "Developing countries", value: 1},
			flow{year: 2022, country: "Developing countries", value: 2},
		),
		LastDataYear:   2022,
		ProjectionYear: 2024,
	})
	require.ErrorIs(t, err, ErrMissingValue)
}
