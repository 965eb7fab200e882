package netflow

import (
	"sort"

	"netflows/internal/model"
)

const (
	billion        = 1e9
	NotAssessed    = "Not assessed"
	nntFlag        = "nnt"
	percentOfTotal = 100
)

// Row is one pivoted observation: inflow and outflow side by side.
// Outflows keep the sign they had in the input.
type Row struct {
	model.FlowKey
	Inflow     float64
	Outflow    float64
	NetFlow    float64
	HasInflow  bool
	HasOutflow bool

	GDP           float64
	HasGDP        bool
	NetFlowPctGDP float64
}

// NNT reports a negative net transfer.
func (r Row) NNT() bool {
	return r.NetFlow < 0
}

// NNTLabel is the chart flag for a negative net transfer.
func (r Row) NNTLabel() string {
	if r.NNT() {
		return nntFlag
	}
	return ""
}

// Pivot spreads indicator types into inflow and outflow columns, grouping on
// the remaining dimensions, and computes net_flow = inflow + outflow with a
// missing side counted as zero. Rows come out in first-seen order.
func Pivot(records []model.FlowRecord) []Row {
	index := make(map[model.FlowKey]int)
	var out []Row
	for _, r := range records {
		key := r.FlowKey.Without(model.DimIndicatorType)
		i, ok := index[key]
		if !ok {
			i = len(out)
			index[key] = i
			out = append(out, Row{FlowKey: key})
		}
		switch r.IndicatorType {
		case model.IndicatorInflow:
			out[i].Inflow += r.Value
			out[i].HasInflow = true
		case model.IndicatorOutflow:
			out[i].Outflow += r.Value
			out[i].HasOutflow = true
		}
	}
	for i := range out {
		out[i].NetFlow = out[i].Inflow + out[i].Outflow
	}
	return out
}

// ToBillions scales the flow columns to billions.
func ToBillions(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		r.Inflow /= billion
		r.Outflow /= billion
		r.NetFlow /= billion
		out[i] = r
	}
	return out
}

// FilterRows keeps the rows for which keep reports true.
func FilterRows(rows []Row, keep func(Row) bool) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// EverNegative keeps every row of a country that has a negative net flow in
// at least one year.
func EverNegative(rows []Row) []Row {
	negative := make(map[string]bool)
	for _, r := range rows {
		if r.NetFlow < 0 {
			negative[r.Country] = true
		}
	}
	return FilterRows(rows, func(r Row) bool { return negative[r.Country] })
}

// WithGDPShare fills net_flow_over_gdp_percent for rows that carry GDP.
func WithGDPShare(rows []Row) []Row {
	out := make([]Row, len(rows))
	for i, r := range rows {
		if r.HasGDP && r.GDP != 0 {
			r.NetFlowPctGDP = percentOfTotal * r.NetFlow / r.GDP
		}
		out[i] = r
	}
	return out
}

// Scatter builds per-country inflow and outflow totals as shares of GDP from
// current-price flows. Outflows are reported as positive numbers. Rows with
// no outflow or no GDP are dropped.
func Scatter(records []model.FlowRecord, gdp *GDPTable, join JoinOptions) []Row {
	var current []model.FlowRecord
	for _, r := range records {
		if r.Prices != model.PricesCurrent {
			continue
		}
		key := model.FlowKey{
			Year:            r.Year,
			Country:         r.Country,
			ISOCode:         r.ISOCode,
			Continent:       r.Continent,
			IncomeLevel:     r.IncomeLevel,
			CounterpartType: r.CounterpartType,
			IndicatorType:   r.IndicatorType,
		}
		if key.IncomeLevel == "" {
			key.IncomeLevel = NotAssessed
		}
		value := r.Value
		if r.IndicatorType == model.IndicatorOutflow {
			value = -value
		}
		current = append(current, model.FlowRecord{FlowKey: key, Value: value})
	}

	rows := gdp.Join(Pivot(current), join)
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !r.HasGDP || !r.HasOutflow || r.GDP == 0 {
			continue
		}
		r.Inflow = percentOfTotal * r.Inflow / r.GDP
		r.Outflow = percentOfTotal * r.Outflow / r.GDP
		r.NetFlow = r.Inflow - r.Outflow
		out = append(out, r)
	}
	return out
}

// SortRows orders rows by year then country.
func SortRows(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Year != rows[j].Year {
			return rows[i].Year < rows[j].Year
		}
		return rows[i].Country < rows[j].Country
	})
}
