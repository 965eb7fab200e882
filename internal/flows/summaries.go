package flows

import (
	"fmt"
	"sort"

	"netflows/internal/model"
)

// ConvertToNetFlows sums inflows and outflows into net_flow rows. Outflows are
// expected to be negative already.
func ConvertToNetFlows(records []model.FlowRecord) []model.FlowRecord {
	net := Sum(records, model.DimIndicatorType)
	return Map(net, func(r model.FlowRecord) model.FlowRecord {
		r.IndicatorType = model.IndicatorNetFlow
		return r
	})
}

// SummariseByCountry collapses counterpart and indicator detail.
func SummariseByCountry(records []model.FlowRecord) []model.FlowRecord {
	return Sum(records, model.DimCounterpartArea, model.DimCounterpartISOCode, model.DimCounterpartType, model.DimIndicator)
}

func NegativeOnly(records []model.FlowRecord) []model.FlowRecord {
	return Filter(records, func(r model.FlowRecord) bool { return r.Value < 0 })
}

type YearCount struct {
	Year     int
	Negative int
	Total    int
}

// CountNegativeByYear counts, per year, the distinct countries whose value is
// negative and the distinct countries reporting at all.
func CountNegativeByYear(records []model.FlowRecord) []YearCount {
	type seen struct{ negative, total map[string]bool }
	byYear := make(map[int]*seen)
	for _, r := range records {
		s, ok := byYear[r.Year]
		if !ok {
			s = &seen{negative: map[string]bool{}, total: map[string]bool{}}
			byYear[r.Year] = s
		}
		s.total[r.Country] = true
		if r.Value < 0 {
			s.negative[r.Country] = true
		}
	}

	out := make([]YearCount, 0, len(byYear))
	for year, s := range byYear {
		out = append(out, YearCount{Year: year, Negative: len(s.negative), Total: len(s.total)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year < out[j].Year })
	return out
}

// Period is an inclusive year range averaged into one row.
type Period struct {
	Start int
	End   int
	Label string
}

func NewPeriod(start, end int) Period {
	return Period{Start: start, End: end, Label: fmt.Sprintf("%d-%d", start, end)}
}

type PeriodMean struct {
	Period string
	// Key carries every dimension except the year.
	Key   model.FlowKey
	Value float64
}

// PeriodMeans averages the values of each group over the years of every
// period. Only years present in the data count towards the mean. Output
// follows period order, then first appearance of the group.
func PeriodMeans(records []model.FlowRecord, periods []Period) []PeriodMean {
	var out []PeriodMean
	for _, p := range periods {
		type acc struct {
			sum float64
			n   int
		}
		index := make(map[model.FlowKey]int)
		var keys []model.FlowKey
		var accs []acc
		for _, r := range records {
			if r.Year < p.Start || r.Year > p.End {
				continue
			}
			key := r.FlowKey.Without(model.DimYear)
			i, ok := index[key]
			if !ok {
				i = len(keys)
				index[key] = i
				keys = append(keys, key)
				accs = append(accs, acc{})
			}
			accs[i].sum += r.Value
			accs[i].n++
		}
		for i, key := range keys {
			out = append(out, PeriodMean{Period: p.Label, Key: key, Value: accs[i].sum / float64(accs[i].n)})
		}
	}
	return out
}
