package charts

import (
	"sort"

	"netflows/internal/artifact"
	"netflows/internal/flows"
	"netflows/internal/model"
)

const (
	valueData       = "data"
	valueProjection = "projection"
)

// Order is the presentation order of the overview charts. Labels not listed
// follow, keyed by their first letter.
var Order = ranks(
	flows.DevelopingCountries,
	"Low income",
	"Lower middle income",
	"Upper middle income",
	"Africa",
	"America",
	"Asia",
	"Europe",
	"Oceania",
)

func ranks(labels ...string) map[string]int {
	out := make(map[string]int, len(labels))
	for i, l := range labels {
		out[l] = i
	}
	return out
}

// counterpart columns of chart 1.2, with their published headers.
var counterpartColumns = []struct{ kind, header string }{
	{model.CounterpartBilateral, "Bilateral (excl. China)"},
	{model.CounterpartChina, model.CounterpartChina},
	{model.CounterpartMultilateral, model.CounterpartMultilateral},
	{model.CounterpartPrivate, "Private (excl. China)"},
}

type countryYear struct {
	country string
	year    int
}

func sortCountryYears(keys []countryYear, order map[string]int) {
	sort.SliceStable(keys, func(i, j int) bool {
		ri, rj := flows.Rank(order, keys[i].country), flows.Rank(order, keys[j].country)
		if ri != rj {
			return ri < rj
		}
		if keys[i].country != keys[j].country {
			return keys[i].country < keys[j].country
		}
		return keys[i].year < keys[j].year
	})
}

type cell struct {
	value float64
	ok    bool
}

func (c cell) orNil() any {
	if !c.ok {
		return nil
	}
	return c.value
}

func current(records []model.FlowRecord) []model.FlowRecord {
	return flows.Filter(records, func(r model.FlowRecord) bool { return r.Prices == model.PricesCurrent })
}

func byCountryYear(records []model.FlowRecord) map[countryYear]float64 {
	out := make(map[countryYear]float64)
	for _, r := range records {
		out[countryYear{r.Country, r.Year}] += r.Value
	}
	return out
}

// NetFlowsOverview builds chart 1.1: reported net flows next to projections,
// per country and group. The last reported year is repeated in the
// projection column so the two lines join.
func NetFlowsOverview(netCountry, netGrouping, projCountry, projGroup []model.FlowRecord, lastDataYear int) *artifact.Table {
	data := byCountryYear(current(flows.Concat(netCountry, netGrouping)))
	projection := byCountryYear(flows.Concat(projGroup, projCountry))

	type pair struct{ data, projection cell }
	rows := make(map[countryYear]*pair)
	get := func(k countryYear) *pair {
		p, ok := rows[k]
		if !ok {
			p = &pair{}
			rows[k] = p
		}
		return p
	}
	for k, v := range data {
		get(k).data = cell{v, true}
		if k.year == lastDataYear {
			get(k).projection = cell{v, true}
		}
	}
	for k, v := range projection {
		get(k).projection = cell{v, true}
	}

	keys := make([]countryYear, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sortCountryYears(keys, Order)

	t := artifact.NewTable("chart_1_1", "country", "year", valueData, valueProjection)
	for _, k := range keys {
		p := rows[k]
		t.Append(k.country, k.year, p.data.orNil(), p.projection.orNil())
	}
	return t
}

// InflowsByCounterpart builds chart 1.2: current-price inflows per country
// and group split by counterpart type, with China broken out of the
// bilateral and private buckets.
func InflowsByCounterpart(fullCountry, fullGrouping []model.FlowRecord) *artifact.Table {
	inflows := flows.Filter(current(flows.Concat(fullGrouping, fullCountry)), func(r model.FlowRecord) bool {
		return r.IndicatorType == model.IndicatorInflow
	})
	inflows = flows.AddChinaAsCounterpartType(inflows)

	values := make(map[countryYear]map[string]float64)
	for _, r := range inflows {
		k := countryYear{r.Country, r.Year}
		if values[k] == nil {
			values[k] = make(map[string]float64)
		}
		values[k][r.CounterpartType] += r.Value
	}
	keys := make([]countryYear, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sortCountryYears(keys, Order)

	columns := []string{"year", "country"}
	for _, c := range counterpartColumns {
		columns = append(columns, c.header)
	}
	t := artifact.NewTable("chart_1_2", columns...)
	for _, k := range keys {
		row := []any{k.year, k.country}
		for _, c := range counterpartColumns {
			v, ok := values[k][c.kind]
			row = append(row, cell{v, ok}.orNil())
		}
		t.Append(row...)
	}
	return t
}
