package charts

import (
	"math"
	"sort"

	"netflows/internal/artifact"
	"netflows/internal/flows"
	"netflows/internal/model"
	"netflows/internal/netflow"
)

const billion = 1e9

var (
	// BeeswarmYears are the years shown in chart 2.1.
	BeeswarmYears = []int{2010, 2022}
	// ScatterYear is the year shown in chart 2.3.
	ScatterYear = 2022
	// SteamgraphFrom is the first year of the chart 2.4 table.
	SteamgraphFrom = 2010
	// ExcludedISO are left out of the GDP-share charts.
	ExcludedISO = []string{"CHN", "RUS", "UKR"}
)

var countryDims = []model.Dim{model.DimYear, model.DimCountry, model.DimContinent, model.DimIncomeLevel}

// netByCountry sums net flow records per year and country into rows.
func netByCountry(records []model.FlowRecord) []netflow.Row {
	summed := flows.Sum(flows.Map(records, func(r model.FlowRecord) model.FlowRecord {
		r.FlowKey = r.FlowKey.Only(countryDims...)
		return r
	}))
	rows := make([]netflow.Row, len(summed))
	for i, r := range summed {
		rows[i] = netflow.Row{FlowKey: r.FlowKey, NetFlow: r.Value}
	}
	return rows
}

// pivotByCountry sums flows per year, country and indicator type, then
// spreads inflows and outflows into columns. Rows are ordered by year then
// country.
func pivotByCountry(records []model.FlowRecord) []netflow.Row {
	rows := netflow.Pivot(flows.Map(records, func(r model.FlowRecord) model.FlowRecord {
		r.FlowKey = r.FlowKey.Only(append([]model.Dim{model.DimIndicatorType}, countryDims...)...)
		return r
	}))
	netflow.SortRows(rows)
	return rows
}

func withPrices(records []model.FlowRecord, prices model.Prices) []model.FlowRecord {
	return flows.Filter(records, func(r model.FlowRecord) bool { return r.Prices == prices })
}

func isoExcluded(iso string) bool {
	for _, code := range ExcludedISO {
		if code == iso {
			return true
		}
	}
	return false
}

func yearIn(year int, years []int) bool {
	for _, y := range years {
		if y == year {
			return true
		}
	}
	return false
}

// Beeswarm returns current-price net flows in billions with GDP in billions
// and the net flow share of GDP, for the beeswarm years. Countries without
// GDP are dropped.
func Beeswarm(netCountry []model.FlowRecord, gdp *netflow.GDPTable, iso func(string) (string, bool)) []netflow.Row {
	rows := gdp.Join(netByCountry(current(netCountry)), netflow.JoinOptions{Inner: true, ISO: iso})
	out := make([]netflow.Row, 0, len(rows))
	for _, r := range netflow.ToBillions(rows) {
		if isoExcluded(r.ISOCode) || !yearIn(r.Year, BeeswarmYears) {
			continue
		}
		r.GDP /= billion
		out = append(out, r)
	}
	out = netflow.WithGDPShare(out)
	netflow.SortRows(out)
	return out
}

// BeeswarmTable is chart 2.1.
func BeeswarmTable(rows []netflow.Row) *artifact.Table {
	t := artifact.NewTable("chart_2_1", "year", "country", "income_level", "continent", "net_flows", "iso_3", "gdp", "net_flows_over_gdp_percent")
	for _, r := range rows {
		t.Append(r.Year, r.Country, r.IncomeLevel, r.Continent, r.NetFlow, r.ISOCode, r.GDP, r.NetFlowPctGDP)
	}
	return t
}

// Bin is one histogram bucket over (Lower, Upper]. The first bucket also
// includes its lower edge.
type Bin struct {
	Label string
	Lower float64
	Upper float64
	// X is the bucket midpoint, or a label for the open-ended bucket.
	X any
}

// HistogramBins are one-point buckets from -5% to 20% of GDP plus one
// bucket for everything above.
var HistogramBins = histogramBins(-5, 20)

// HistogramShown is how many leading buckets chart 2.2 keeps.
const HistogramShown = 10

func histogramBins(from, to int) []Bin {
	var out []Bin
	for lo := from; lo < to; lo++ {
		out = append(out, Bin{
			Label: artifact.Cell(lo) + " to " + artifact.Cell(lo+1),
			Lower: float64(lo),
			Upper: float64(lo + 1),
			X:     float64(lo) + 0.5,
		})
	}
	return append(out, Bin{
		Label: artifact.Cell(to) + "+",
		Lower: float64(to),
		Upper: math.Inf(1),
		X:     ">" + artifact.Cell(to),
	})
}

// BinIndex returns the bucket holding v, or false when v falls below the
// first bucket.
func BinIndex(bins []Bin, v float64) (int, bool) {
	if math.IsNaN(v) || len(bins) == 0 || v < bins[0].Lower {
		return 0, false
	}
	for i, b := range bins {
		if v <= b.Upper {
			return i, true
		}
	}
	return 0, false
}

type BinCount struct {
	Year  int
	Bin   Bin
	Count int
}

// Histogram counts distinct countries per year and bucket of net flow share
// of GDP. Every bucket is reported for every year, empty ones with zero.
func Histogram(rows []netflow.Row, bins []Bin) []BinCount {
	seen := make(map[int][]map[string]bool)
	for _, r := range rows {
		i, ok := BinIndex(bins, r.NetFlowPctGDP)
		if !ok {
			continue
		}
		if seen[r.Year] == nil {
			seen[r.Year] = make([]map[string]bool, len(bins))
		}
		if seen[r.Year][i] == nil {
			seen[r.Year][i] = make(map[string]bool)
		}
		seen[r.Year][i][r.Country] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)

	var out []BinCount
	for _, y := range years {
		for i, b := range bins {
			out = append(out, BinCount{Year: y, Bin: b, Count: len(seen[y][i])})
		}
	}
	return out
}

// HistogramTable is chart 2.2, limited to the first shown buckets.
func HistogramTable(counts []BinCount, shown int) *artifact.Table {
	keep := make(map[string]bool, shown)
	for i := 0; i < shown && i < len(HistogramBins); i++ {
		keep[HistogramBins[i].Label] = true
	}
	t := artifact.NewTable("chart_2_2", "year", "binned", "count", "x_values")
	for _, c := range counts {
		if !keep[c.Bin.Label] {
			continue
		}
		t.Append(c.Year, c.Bin.Label, c.Count, c.Bin.X)
	}
	return t
}

// ScatterTotals returns inflows and outflows as shares of GDP per country
// and counterpart type.
func ScatterTotals(fullCountry []model.FlowRecord, gdp *netflow.GDPTable, iso func(string) (string, bool)) []netflow.Row {
	rows := netflow.Scatter(fullCountry, gdp, netflow.JoinOptions{ForwardFill: true, ISO: iso})
	netflow.SortRows(rows)
	return rows
}

func ScatterTotalsTable(rows []netflow.Row) *artifact.Table {
	t := artifact.NewTable("scatter_totals", "year", "country", "continent", "income_level", "counterpart_type", "inflow", "outflow")
	for _, r := range rows {
		t.Append(r.Year, r.Country, r.Continent, r.IncomeLevel, r.CounterpartType, r.Inflow, r.Outflow)
	}
	return t
}

// ScatterTable is chart 2.3: scatter totals for one year summed over
// counterpart types.
func ScatterTable(rows []netflow.Row, year int) *artifact.Table {
	type key struct{ country, continent, income string }
	index := make(map[key]int)
	var totals []netflow.Row
	for _, r := range rows {
		if r.Year != year {
			continue
		}
		k := key{r.Country, r.Continent, r.IncomeLevel}
		i, ok := index[k]
		if !ok {
			i = len(totals)
			index[k] = i
			totals = append(totals, netflow.Row{FlowKey: r.FlowKey.Only(countryDims...)})
		}
		totals[i].Inflow += r.Inflow
		totals[i].Outflow += r.Outflow
	}
	netflow.SortRows(totals)

	t := artifact.NewTable("chart_2_3", "year", "country", "continent", "income_level", "inflow", "outflow")
	for _, r := range totals {
		t.Append(r.Year, r.Country, r.Continent, r.IncomeLevel, r.Inflow, r.Outflow)
	}
	return t
}

// Steamgraph holds the chart 2.4 tables.
type Steamgraph struct {
	Countries *artifact.Table
	Income    *artifact.Table
	Continent *artifact.Table
	Years     *artifact.Table
}

// NegativeTransfers builds chart 2.4 from constant-price flows: every
// country-year with a net flow at or below zero. The income and continent
// tables stack the transfer out (net flow negated) per year; groups missing
// in a year are zero.
func NegativeTransfers(fullCountry []model.FlowRecord) Steamgraph {
	rows := netflow.FilterRows(pivotByCountry(withPrices(fullCountry, model.PricesConstant)), func(r netflow.Row) bool {
		return r.NetFlow <= 0
	})

	countries := artifact.NewTable("chart_2_4", "year", "country", "continent", "income_level", "inflow", "outflow", "net_flow")
	for _, r := range rows {
		if r.Year < SteamgraphFrom {
			continue
		}
		countries.Append(r.Year, r.Country, r.Continent, r.IncomeLevel, r.Inflow, r.Outflow, r.NetFlow)
	}

	type total struct{ inflow, outflow, net float64 }
	var years []int
	byYear := make(map[int]*total)
	for _, r := range rows {
		t, ok := byYear[r.Year]
		if !ok {
			t = &total{}
			byYear[r.Year] = t
			years = append(years, r.Year)
		}
		t.inflow += r.Inflow
		t.outflow += r.Outflow
		t.net -= r.NetFlow
	}
	yearTable := artifact.NewTable("chart_2_4_year", "year", "inflow", "outflow", "net_flow")
	for _, y := range years {
		t := byYear[y]
		yearTable.Append(y, t.inflow, t.outflow, t.net)
	}

	return Steamgraph{
		Countries: countries,
		Income:    transfersBy(rows, "chart_2_4_income", func(r netflow.Row) string { return r.IncomeLevel }),
		Continent: transfersBy(rows, "chart_2_4_continent", func(r netflow.Row) string { return r.Continent }),
		Years:     yearTable,
	}
}

// transfersBy pivots the negated net flow to one column per group, summed
// per year. Columns are sorted by name.
func transfersBy(rows []netflow.Row, name string, group func(netflow.Row) string) *artifact.Table {
	var years []int
	values := make(map[int]map[string]float64)
	groups := make(map[string]bool)
	for _, r := range rows {
		g := group(r)
		groups[g] = true
		if values[r.Year] == nil {
			values[r.Year] = make(map[string]float64)
			years = append(years, r.Year)
		}
		values[r.Year][g] -= r.NetFlow
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)
	sort.Ints(years)

	t := artifact.NewTable(name, append([]string{"year"}, names...)...)
	for _, y := range years {
		row := []any{y}
		for _, g := range names {
			row = append(row, values[y][g])
		}
		t.Append(row...)
	}
	return t
}

// ConnectedScatter builds chart 2.5 from constant-price flows: every year of
// the countries that had a negative net flow at least once, outflows shown
// as positive amounts.
func ConnectedScatter(fullCountry []model.FlowRecord) *artifact.Table {
	rows := netflow.EverNegative(pivotByCountry(withPrices(fullCountry, model.PricesConstant)))
	t := artifact.NewTable("chart_2_5", "year", "country", "continent", "income_level", "inflow", "outflow", "net_flow", "nnt")
	for _, r := range rows {
		t.Append(r.Year, r.Country, r.Continent, r.IncomeLevel, r.Inflow, -r.Outflow, r.NetFlow, r.NNTLabel())
	}
	return t
}
