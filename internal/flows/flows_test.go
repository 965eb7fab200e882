package flows

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netflows/internal/model"
)

func rec(year int, country, continent, income, counterpart, counterpartType, indicator string, it model.IndicatorType, value float64) model.FlowRecord {
	return model.FlowRecord{
		FlowKey: model.FlowKey{
			Year:            year,
			Country:         country,
			ISOCode:         country[:3],
			Continent:       continent,
			IncomeLevel:     income,
			CounterpartArea: counterpart,
			CounterpartType: counterpartType,
			Indicator:       indicator,
			IndicatorType:   it,
			Prices:          model.PricesCurrent,
		},
		Value: value,
	}
}

func total(records []model.FlowRecord) float64 {
	var sum float64
	for _, r := range records {
		sum += r.Value
	}
	return sum
}

func TestPrepFlowsPreservesSum(t *testing.T) {
	in := []model.FlowRecord{
		rec(2021, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "bilateral", model.IndicatorInflow, 10),
		rec(2021, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "bilateral", model.IndicatorInflow, 5),
		rec(2021, "Kenya", "Africa", "Lower middle income", "France", "Bilateral", "bilateral", model.IndicatorInflow, 7),
		rec(2021, "Kenya", "Africa", "Lower middle income", "World", "Bilateral", "bilateral", model.IndicatorInflow, 99),
		rec(2021, "Kenya", "Africa", "Lower middle income", "Japan", "Bilateral", "bilateral", model.IndicatorInflow, 0),
	}
	noISO := rec(2021, "Ghana", "Africa", "Lower middle income", "China", "Bilateral", "bilateral", model.IndicatorInflow, 3)
	noISO.ISOCode = ""
	in = append(in, noISO)

	got := PrepFlows(in)
	require.Len(t, got, 2)
	assert.Equal(t, 15.0, got[0].Value)
	assert.Equal(t, 7.0, got[1].Value)
	assert.Equal(t, 22.0, total(got))
}

func TestYears(t *testing.T) {
	in := []model.FlowRecord{
		rec(2022, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "bilateral", model.IndicatorInflow, 1),
		rec(2020, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "bilateral", model.IndicatorInflow, 1),
		rec(2022, "Ghana", "Africa", "Lower middle income", "China", "Bilateral", "bilateral", model.IndicatorInflow, 1),
	}
	assert.Equal(t, []int{2020, 2022}, Years(in))
	assert.Empty(t, Years(nil))
}

func TestIndicatorLabels(t *testing.T) {
	assert.Equal(t, "Private  - banks", IndicatorLabel("banks", ""))
	assert.Equal(t, "Private - other", IndicatorLabel("other", ""))
	assert.Equal(t, "Private - other", IndicatorLabel("other_private", ""))
	assert.Equal(t, "Bilateral Grants (constant)", IndicatorLabel("grants_bilateral", " (constant)"))
	assert.Equal(t, "custom_code", IndicatorLabel("custom_code", " (constant)"))
}

func TestAllFlowsNegatesOutflowsAndCutsOff(t *testing.T) {
	inflows := []model.FlowRecord{
		rec(2022, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "bilateral_concessional", model.IndicatorInflow, 100),
		rec(2023, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "bilateral_concessional", model.IndicatorInflow, 50),
	}
	outflows := []model.FlowRecord{
		rec(2022, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "bilateral", model.IndicatorOutflow, 40),
	}
	outflows[0].CounterpartISOCode = "CHN"

	got := AllFlows(inflows, outflows, 2022)
	require.Len(t, got, 2)
	assert.Equal(t, "Bilateral Concessional Debt", got[0].Indicator)
	assert.Equal(t, model.IndicatorInflow, got[0].IndicatorType)
	assert.Equal(t, -40.0, got[1].Value)
	assert.Equal(t, model.IndicatorOutflow, got[1].IndicatorType)
	assert.Equal(t, "All bilateral", got[1].Indicator)
	assert.Empty(t, got[1].CounterpartISOCode)
	assert.Equal(t, "Ken", got[1].ISOCode)

	assert.Len(t, AllFlows(inflows, outflows, 0), 3)
}

func TestSumClearsDroppedDimensions(t *testing.T) {
	in := []model.FlowRecord{
		rec(2021, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "a", model.IndicatorInflow, 1),
		rec(2021, "Kenya", "Africa", "Lower middle income", "France", "Bilateral", "b", model.IndicatorInflow, 2),
		rec(2022, "Kenya", "Africa", "Lower middle income", "France", "Bilateral", "b", model.IndicatorInflow, 4),
	}
	got := Sum(in, model.DimCounterpartArea, model.DimIndicator)
	want := []model.FlowRecord{
		{FlowKey: model.FlowKey{Year: 2021, Country: "Kenya", ISOCode: "Ken", Continent: "Africa", IncomeLevel: "Lower middle income", CounterpartType: "Bilateral", IndicatorType: model.IndicatorInflow, Prices: model.PricesCurrent}, Value: 3},
		{FlowKey: model.FlowKey{Year: 2022, Country: "Kenya", ISOCode: "Ken", Continent: "Africa", IncomeLevel: "Lower middle income", CounterpartType: "Bilateral", IndicatorType: model.IndicatorInflow, Prices: model.PricesCurrent}, Value: 4},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Sum mismatch (-want +got):\n%s", diff)
	}
}

func TestNegativeOnlyAndCounts(t *testing.T) {
	in := []model.FlowRecord{
		rec(2021, "Kenya", "Africa", "Lower middle income", "", "", "", model.IndicatorNetFlow, -1),
		rec(2021, "Ghana", "Africa", "Lower middle income", "", "", "", model.IndicatorNetFlow, 2),
		rec(2022, "Ghana", "Africa", "Lower middle income", "", "", "", model.IndicatorNetFlow, -3),
	}
	assert.Len(t, NegativeOnly(in), 2)
	assert.Equal(t, []YearCount{
		{Year: 2021, Negative: 1, Total: 2},
		{Year: 2022, Negative: 1, Total: 1},
	}, CountNegativeByYear(in))
}

func TestConvertToNetFlowsAndSummarise(t *testing.T) {
	in := []model.FlowRecord{
		rec(2022, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "x", model.IndicatorInflow, 100),
		rec(2022, "Kenya", "Africa", "Lower middle income", "China", "Bilateral", "x", model.IndicatorOutflow, -40),
		rec(2022, "Kenya", "Africa", "Lower middle income", "IDA", "Multilateral", "y", model.IndicatorInflow, 5),
	}
	net := SummariseByCountry(ConvertToNetFlows(in))
	require.Len(t, net, 1)
	assert.Equal(t, 65.0, net[0].Value)
	assert.Equal(t, model.IndicatorNetFlow, net[0].IndicatorType)
	assert.Empty(t, net[0].CounterpartArea)
	assert.Empty(t, net[0].Indicator)
}

func TestPeriodMeans(t *testing.T) {
	in := []model.FlowRecord{
		rec(2010, "Kenya", "Africa", "Lower middle income", "", "Bilateral", "", model.IndicatorOutflow, 10),
		rec(2011, "Kenya", "Africa", "Lower middle income", "", "Bilateral", "", model.IndicatorOutflow, 20),
		rec(2019, "Kenya", "Africa", "Lower middle income", "", "Bilateral", "", model.IndicatorOutflow, 9),
		rec(2030, "Kenya", "Africa", "Lower middle income", "", "Bilateral", "", model.IndicatorOutflow, 1000),
	}
	got := PeriodMeans(in, []Period{NewPeriod(2010, 2014), NewPeriod(2018, 2022)})
	require.Len(t, got, 2)
	assert.Equal(t, "2010-2014", got[0].Period)
	assert.Equal(t, 15.0, got[0].Value)
	assert.Zero(t, got[0].Key.Year)
	assert.Equal(t, 9.0, got[1].Value)
}
