package netflow

import (
	"sort"

	"netflows/internal/model"
)

// GDPTable holds GDP in current USD by ISO3 code and year.
type GDPTable struct {
	values map[string]map[int]float64
	years  map[string][]int
}

func NewGDPTable(series []model.SeriesValue) *GDPTable {
	g := &GDPTable{
		values: make(map[string]map[int]float64),
		years:  make(map[string][]int),
	}
	for _, v := range series {
		if v.ISOCode == "" {
			continue
		}
		byYear, ok := g.values[v.ISOCode]
		if !ok {
			byYear = make(map[int]float64)
			g.values[v.ISOCode] = byYear
		}
		if _, dup := byYear[v.Year]; !dup {
			g.years[v.ISOCode] = append(g.years[v.ISOCode], v.Year)
		}
		byYear[v.Year] = v.Value
	}
	for iso := range g.years {
		sort.Ints(g.years[iso])
	}
	return g
}

// Lookup returns GDP for a country and year. With forwardFill, a missing year
// takes the value of the latest earlier year.
func (g *GDPTable) Lookup(iso3 string, year int, forwardFill bool) (float64, bool) {
	if g == nil {
		return 0, false
	}
	byYear, ok := g.values[iso3]
	if !ok {
		return 0, false
	}
	if v, ok := byYear[year]; ok {
		return v, true
	}
	if !forwardFill {
		return 0, false
	}
	years := g.years[iso3]
	i := sort.SearchInts(years, year)
	if i == 0 {
		return 0, false
	}
	return byYear[years[i-1]], true
}

type JoinOptions struct {
	// Inner drops rows without GDP. Otherwise they are kept with HasGDP false.
	Inner       bool
	ForwardFill bool
	// ISO resolves a country label when a row has no ISO code.
	ISO func(country string) (string, bool)
}

// Join attaches GDP to each row by ISO3 code and year.
func (g *GDPTable) Join(rows []Row, opts JoinOptions) []Row {
	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		iso := r.ISOCode
		if iso == "" && opts.ISO != nil {
			iso, _ = opts.ISO(r.Country)
			r.ISOCode = iso
		}
		r.GDP, r.HasGDP = g.Lookup(iso, r.Year, opts.ForwardFill)
		if opts.Inner && !r.HasGDP {
			continue
		}
		out = append(out, r)
	}
	return out
}
