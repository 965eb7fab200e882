package deflate

import (
	"errors"
	"fmt"

	"netflows/internal/model"
)

var ErrNoBaseYear = errors.New("deflate: no deflators for base year")

// Index holds GDP deflators by ISO3 code and year.
type Index struct {
	base   int
	values map[string]map[int]float64
}

// NewIndex builds a deflator index rebased on base. Non-positive deflators
// are ignored.
func NewIndex(series []model.SeriesValue, base int) (*Index, error) {
	idx := &Index{base: base, values: make(map[string]map[int]float64)}
	hasBase := false
	for _, v := range series {
		if v.Value <= 0 || v.ISOCode == "" {
			continue
		}
		byYear, ok := idx.values[v.ISOCode]
		if !ok {
			byYear = make(map[int]float64)
			idx.values[v.ISOCode] = byYear
		}
		byYear[v.Year] = v.Value
		if v.Year == base {
			hasBase = true
		}
	}
	if !hasBase {
		return nil, fmt.Errorf("%w %d", ErrNoBaseYear, base)
	}
	return idx, nil
}

func (i *Index) Base() int {
	return i.base
}

// Factor converts a value of year into base-year prices for one country.
func (i *Index) Factor(iso3 string, year int) (float64, bool) {
	byYear, ok := i.values[iso3]
	if !ok {
		return 0, false
	}
	base, okBase := byYear[i.base]
	current, okYear := byYear[year]
	if !okBase || !okYear {
		return 0, false
	}
	return base / current, true
}

// Constant converts current-price records to constant prices. Records with
// no deflator for their country and year are dropped and counted.
func (i *Index) Constant(records []model.FlowRecord) ([]model.FlowRecord, int) {
	out := make([]model.FlowRecord, 0, len(records))
	dropped := 0
	for _, r := range records {
		if r.Prices == model.PricesConstant {
			out = append(out, r)
			continue
		}
		factor, ok := i.Factor(r.ISOCode, r.Year)
		if !ok {
			dropped++
			continue
		}
		r.Value *= factor
		r.Prices = model.PricesConstant
		out = append(out, r)
	}
	return out, dropped
}
