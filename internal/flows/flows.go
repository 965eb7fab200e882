package flows

import (
	"sort"

	"netflows/internal/model"
)

const (
	WorldCounterpart = "World"
	// DefaultCutoffYear is the last year with reported (not projected) data.
	DefaultCutoffYear = 2022
)

var indicatorLabels = map[string]string{
	"grants":                        "Grants",
	"grants_bilateral":              "Bilateral Grants",
	"grants_multilateral":           "Multilateral Grants",
	"bilateral":                     "All bilateral",
	"bilateral_non_concessional":    "Bilateral Non-Concessional Debt",
	"bilateral_concessional":        "Bilateral Concessional Debt",
	"multilateral_non_concessional": "Multilateral Non-Concessional Debt",
	"multilateral_concessional":     "Multilateral Concessional Debt",
	"multilateral":                  "All multilateral",
	"bonds":                         "Private - bonds",
	"banks":                         "Private  - banks",
	"other_private":                 "Private - other",
	"other":                         "Private - other",
}

// Sum groups records by every dimension except the dropped ones and sums
// their values. Dropped dimensions are cleared in the output. Groups come out
// in the order their first member appears.
func Sum(records []model.FlowRecord, drop ...model.Dim) []model.FlowRecord {
	index := make(map[model.FlowKey]int, len(records))
	out := make([]model.FlowRecord, 0, len(records))
	for _, r := range records {
		key := r.FlowKey.Without(drop...)
		if i, ok := index[key]; ok {
			out[i].Value += r.Value
			continue
		}
		index[key] = len(out)
		out = append(out, model.FlowRecord{FlowKey: key, Value: r.Value})
	}
	return out
}

// Filter returns the records for which keep reports true.
func Filter(records []model.FlowRecord, keep func(model.FlowRecord) bool) []model.FlowRecord {
	out := make([]model.FlowRecord, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Map returns a copy of records with fn applied to each one.
func Map(records []model.FlowRecord, fn func(model.FlowRecord) model.FlowRecord) []model.FlowRecord {
	out := make([]model.FlowRecord, len(records))
	for i, r := range records {
		out[i] = fn(r)
	}
	return out
}

func Concat(tables ...[]model.FlowRecord) []model.FlowRecord {
	n := 0
	for _, t := range tables {
		n += len(t)
	}
	out := make([]model.FlowRecord, 0, n)
	for _, t := range tables {
		out = append(out, t...)
	}
	return out
}

func DropZero(records []model.FlowRecord) []model.FlowRecord {
	return Filter(records, func(r model.FlowRecord) bool { return r.Value != 0 })
}

// PrepFlows drops rows without a debtor ISO code, zero values and rows
// reported against the "World" counterpart, then collapses duplicates.
func PrepFlows(records []model.FlowRecord) []model.FlowRecord {
	kept := Filter(records, func(r model.FlowRecord) bool {
		return r.ISOCode != "" && r.Value != 0 && r.CounterpartArea != WorldCounterpart
	})
	return Sum(kept)
}

// IndicatorLabel maps an indicator code to its display label. Unknown codes
// are returned unchanged and never get the suffix.
func IndicatorLabel(code, suffix string) string {
	label, ok := indicatorLabels[code]
	if !ok {
		return code
	}
	return label + suffix
}

func RenameIndicators(records []model.FlowRecord, suffix string) []model.FlowRecord {
	return Map(records, func(r model.FlowRecord) model.FlowRecord {
		r.Indicator = IndicatorLabel(r.Indicator, suffix)
		return r
	})
}

// NegateOutflows flips the sign of every value and tags the rows as outflows.
func NegateOutflows(records []model.FlowRecord) []model.FlowRecord {
	return Map(records, func(r model.FlowRecord) model.FlowRecord {
		r.Value = -r.Value
		r.IndicatorType = model.IndicatorOutflow
		return r
	})
}

// AllFlows combines prepared inflows with negated outflows. Counterpart ISO
// codes are dropped, zeros removed and, when cutoff is positive, only years
// up to the cutoff kept. The debtor ISO code is kept: it is one-to-one with
// the country name and is needed for GDP joins.
func AllFlows(inflows, outflows []model.FlowRecord, cutoff int) []model.FlowRecord {
	in := RenameIndicators(PrepFlows(inflows), "")
	in = Map(in, func(r model.FlowRecord) model.FlowRecord {
		r.IndicatorType = model.IndicatorInflow
		return r
	})
	out := RenameIndicators(NegateOutflows(PrepFlows(outflows)), "")

	combined := Concat(in, out)
	combined = Map(combined, func(r model.FlowRecord) model.FlowRecord {
		r.CounterpartISOCode = ""
		return r
	})
	combined = DropZero(combined)
	if cutoff > 0 {
		combined = Filter(combined, func(r model.FlowRecord) bool { return r.Year <= cutoff })
	}
	return combined
}

// WithPrices tags every record with a price basis.
func WithPrices(records []model.FlowRecord, prices model.Prices) []model.FlowRecord {
	return Map(records, func(r model.FlowRecord) model.FlowRecord {
		r.Prices = prices
		return r
	})
}

// Years returns the sorted distinct years present in records.
func Years(records []model.FlowRecord) []int {
	seen := make(map[int]bool)
	var years []int
	for _, r := range records {
		if !seen[r.Year] {
			seen[r.Year] = true
			years = append(years, r.Year)
		}
	}
	sort.Ints(years)
	return years
}
