package charts

import (
	"sort"

	"netflows/internal/artifact"
	"netflows/internal/flows"
	"netflows/internal/model"
)

// RepaymentPeriods are the averaging windows of the repayment charts. The
// last one is contracted debt service, not reported payments.
var RepaymentPeriods = []flows.Period{
	flows.NewPeriod(2010, 2014),
	flows.NewPeriod(2018, 2022),
	{Start: 2023, End: 2025, Label: "2023-2025 (projected)"},
}

// AvgRepayments averages yearly debt service per country, group and
// counterpart type over each period. Groups are the developing-countries
// total, the continents and the income levels; countries are kept too. With
// chinaAsType, payments to China get their own counterpart type. Rows are
// prepared like every other flow table, so debtors without an ISO code and
// "World" counterparts never reach the totals.
func AvgRepayments(debtService []model.FlowRecord, periods []flows.Period, chinaAsType bool) *artifact.Table {
	data := flows.ExcludeCountriesWithoutOutflows(flows.PrepFlows(debtService))
	data = flows.RemoveDefaultGroupings(data)
	data = flows.CreateWorldTotal(data, flows.DevelopingCountries)
	data = flows.CreateGroupingTotals(data, model.DimContinent, model.DimIncomeLevel)
	data = flows.CreateGroupingTotals(data, model.DimIncomeLevel, model.DimContinent)
	if chinaAsType {
		data = flows.AddChinaAsCounterpartType(data)
	}
	data = flows.Sum(flows.Map(data, func(r model.FlowRecord) model.FlowRecord {
		r.FlowKey = r.FlowKey.Only(model.DimYear, model.DimCountry, model.DimContinent, model.DimIncomeLevel, model.DimCounterpartType)
		return r
	}))

	means := flows.PeriodMeans(data, periods)
	sort.SliceStable(means, func(i, j int) bool {
		ci, cj := means[i].Key.Country, means[j].Key.Country
		ri, rj := flows.Rank(flows.Groups, ci), flows.Rank(flows.Groups, cj)
		if ri != rj {
			return ri < rj
		}
		return ci < cj
	})

	name := "avg_repayments"
	if chinaAsType {
		name = "avg_repayments_china"
	}
	t := artifact.NewTable(name, "year", "country", "counterpart_type", "value")
	for _, m := range means {
		t.Append(m.Period, m.Key.Country, m.Key.CounterpartType, m.Value)
	}
	return t
}
