package flows

import (
	"sort"

	"netflows/internal/model"
)

const DevelopingCountries = "Developing countries"

// Groups ranks the synthetic group labels kept in grouping tables.
var Groups = map[string]int{
	DevelopingCountries:   1,
	"Low income":          2,
	"Lower middle income": 3,
	"Upper middle income": 4,
	"Africa":              7,
	"Europe":              8,
	"Asia":                9,
	"America":             10,
	"Oceania":             11,
}

// OutlierCountries are left out of every aggregate.
var OutlierCountries = []string{"China", "Russia", "Ukraine"}

// DefaultGroupings are aggregate debtor rows published by the World Bank
// alongside the countries.
var DefaultGroupings = []string{
	"Africa",
	"East Asia & Pacific (excluding high income)",
	"Europe & Central Asia (excluding high income)",
	"IDA only",
	"IDA total",
	"Latin America & Caribbean (excluding high income)",
	"Least developed countries: UN classification",
	"Low & middle income",
	"Low income",
	"Lower middle income",
	"Middle East & North Africa (excluding high income)",
	"Middle income",
	"South Asia",
	"Sub-Saharan Africa (excluding high income)",
	"Upper middle income",
}

// synthetic rows never carry ISO codes.
var syntheticDrop = []model.Dim{model.DimISOCode, model.DimCounterpartISOCode}

// CreateWorldTotal appends one total per remaining dimension combination,
// labelled name. Continent and income level are cleared on the total rows.
func CreateWorldTotal(records []model.FlowRecord, name string) []model.FlowRecord {
	relabelled := Map(records, func(r model.FlowRecord) model.FlowRecord {
		r.Country = name
		return r
	})
	drop := append([]model.Dim{model.DimContinent, model.DimIncomeLevel}, syntheticDrop...)
	return Concat(records, Sum(relabelled, drop...))
}

// CreateGroupingTotals appends a total for each distinct value of column,
// labelled with that value. The exclude dimensions are cleared on the
// totals. Rows where column is empty belong to no group.
func CreateGroupingTotals(records []model.FlowRecord, column model.Dim, exclude ...model.Dim) []model.FlowRecord {
	drop := append(append([]model.Dim{}, exclude...), syntheticDrop...)

	var (
		order   []string
		members = make(map[string][]model.FlowRecord)
	)
	for _, r := range records {
		group := r.Get(column)
		if group == "" {
			continue
		}
		if _, ok := members[group]; !ok {
			order = append(order, group)
		}
		r.Country = group
		members[group] = append(members[group], r)
	}

	out := append([]model.FlowRecord{}, records...)
	for _, group := range order {
		out = append(out, Sum(members[group], drop...)...)
	}
	return out
}

// AddChinaAsCounterpartType moves rows whose counterpart is China into their
// own counterpart type. Those rows are placed after all others.
func AddChinaAsCounterpartType(records []model.FlowRecord) []model.FlowRecord {
	var rest, china []model.FlowRecord
	for _, r := range records {
		if r.CounterpartArea == model.CounterpartChina {
			r.CounterpartType = model.CounterpartChina
			china = append(china, r)
			continue
		}
		rest = append(rest, r)
	}
	return Concat(rest, china)
}

// CreateGroupings builds the developing-countries, continent and income
// level totals and keeps only those group rows.
func CreateGroupings(records []model.FlowRecord) []model.FlowRecord {
	out := CreateWorldTotal(records, DevelopingCountries)
	out = CreateGroupingTotals(out, model.DimContinent, model.DimIncomeLevel)
	out = CreateGroupingTotals(out, model.DimIncomeLevel, model.DimContinent)
	return FilterGroups(out)
}

func IsGroup(country string) bool {
	_, ok := Groups[country]
	return ok
}

func FilterGroups(records []model.FlowRecord) []model.FlowRecord {
	return Filter(records, func(r model.FlowRecord) bool { return IsGroup(r.Country) })
}

// Rank returns the sort rank of a country label. Labels missing from ranks
// sort after every ranked label, by the code point of their first letter.
func Rank(ranks map[string]int, country string) int {
	if rank, ok := ranks[country]; ok {
		return rank
	}
	top := 0
	for _, rank := range ranks {
		if rank > top {
			top = rank
		}
	}
	first := 0
	for _, r := range country {
		first = int(r)
		break
	}
	return top + 1 + first
}

// ReorderCountries sorts records by group rank, then country, then year.
// Ties keep their input order.
func ReorderCountries(records []model.FlowRecord) []model.FlowRecord {
	return ReorderBy(records, Groups)
}

func ReorderBy(records []model.FlowRecord, ranks map[string]int) []model.FlowRecord {
	out := append([]model.FlowRecord{}, records...)
	sort.SliceStable(out, func(i, j int) bool {
		ri, rj := Rank(ranks, out[i].Country), Rank(ranks, out[j].Country)
		if ri != rj {
			return ri < rj
		}
		if out[i].Country != out[j].Country {
			return out[i].Country < out[j].Country
		}
		return out[i].Year < out[j].Year
	})
	return out
}

func ExcludeOutlierCountries(records []model.FlowRecord) []model.FlowRecord {
	return ExcludeCountries(records, OutlierCountries...)
}

func ExcludeCountries(records []model.FlowRecord, countries ...string) []model.FlowRecord {
	skip := make(map[string]bool, len(countries))
	for _, c := range countries {
		skip[c] = true
	}
	return Filter(records, func(r model.FlowRecord) bool { return !skip[r.Country] })
}

// ExcludeCountriesWithoutOutflows drops every country that never reports a
// non-zero outflow.
func ExcludeCountriesWithoutOutflows(records []model.FlowRecord) []model.FlowRecord {
	hasOutflow := make(map[string]bool)
	for _, r := range records {
		if r.IndicatorType == model.IndicatorOutflow && r.Value != 0 {
			hasOutflow[r.Country] = true
		}
	}
	return Filter(records, func(r model.FlowRecord) bool { return hasOutflow[r.Country] })
}

func RemoveDefaultGroupings(records []model.FlowRecord) []model.FlowRecord {
	return ExcludeCountries(records, DefaultGroupings...)
}
