package charts

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"netflows/internal/flows"
	"netflows/internal/model"
	"netflows/internal/population"
)

var ErrMissingValue = errors.New("charts: missing value")

const (
	upperMiddleIncome = "Upper middle income"
	lowerMiddleIncome = "Lower middle income"
)

var (
	billions = decimal.NewFromInt(1e9)
	millions = decimal.NewFromInt(1e6)
	hundred  = decimal.NewFromInt(100)
)

// KeyNumbersInput carries the published tables the headline numbers are
// read from.
type KeyNumbersInput struct {
	NetCountry         []model.FlowRecord
	NetGrouping        []model.FlowRecord
	ProjectionsCountry []model.FlowRecord
	ProjectionsGroup   []model.FlowRecord
	FullCountry        []model.FlowRecord
	Population         *population.Table
	ISO                func(country string) (string, bool)

	// LastDataYear is the last reported year. Later years come from the
	// projections.
	LastDataYear   int
	ProjectionYear int
	UMICYear       int
	NNTYears       []int
}

// KeyNumbers computes the headline figures quoted in the text. Money is in
// billions of current USD. The change percentage is relative to the
// magnitude of the earlier year, so a shrinking negative transfer reads as a
// positive change.
func KeyNumbers(in KeyNumbersInput) (map[string]any, error) {
	out := make(map[string]any)

	dev := groupSeries(current(in.NetGrouping), flows.DevelopingCountries)
	if len(dev) == 0 {
		return nil, fmt.Errorf("%w: no net flows for %s", ErrMissingValue, flows.DevelopingCountries)
	}
	peakYear, peak := dev[0].year, dev[0].value
	latestYear, latest := dev[0].year, dev[0].value
	for _, p := range dev {
		if p.value.GreaterThanOrEqual(peak) {
			peakYear, peak = p.year, p.value
		}
		if p.year > latestYear {
			latestYear, latest = p.year, p.value
		}
	}
	previous, ok := find(dev, latestYear-1)
	if !ok {
		return nil, fmt.Errorf("%w: %s %d", ErrMissingValue, flows.DevelopingCountries, latestYear-1)
	}
	change := latest.Sub(previous).Round(3)
	changePct := decimal.Zero
	if !previous.IsZero() {
		changePct = change.Div(previous.Abs()).Mul(hundred).Round(1)
	}

	devProjection, ok := find(groupSeries(in.ProjectionsGroup, flows.DevelopingCountries), in.ProjectionYear)
	if !ok {
		return nil, fmt.Errorf("%w: %s projection %d", ErrMissingValue, flows.DevelopingCountries, in.ProjectionYear)
	}
	devProjection = devProjection.Round(3)
	latestRounded := latest.Round(2)

	out["dev_countries_nt_peak_year"] = peakYear
	out["dev_countries_nt_peak_value"] = bn(peak.Round(2))
	out["dev_countries_nt_latest_year"] = latestYear
	out["dev_countries_nt_latest_value"] = bn(latestRounded)
	out[fmt.Sprintf("dev_countries_nt_change_%d_%d_value", latestYear-1, latestYear)] = bn(change)
	out[fmt.Sprintf("dev_countries_nt_change_%d_%d_percentage", latestYear-1, latestYear)] = number(changePct) + "%"
	out[fmt.Sprintf("dev_countries_nt_%d", in.ProjectionYear)] = bn(devProjection)
	out[fmt.Sprintf("dev_countries_nt_%d_%d_change", latestYear, in.ProjectionYear)] = bn(devProjection.Sub(latestRounded).Round(2))

	umic, ok := find(groupSeries(current(in.NetGrouping), upperMiddleIncome), in.UMICYear)
	if !ok {
		return nil, fmt.Errorf("%w: %s %d", ErrMissingValue, upperMiddleIncome, in.UMICYear)
	}
	out[fmt.Sprintf("umic_nt_%d_value", in.UMICYear)] = bn(umic.Round(2))

	lmic, ok := find(groupSeries(in.ProjectionsGroup, lowerMiddleIncome), in.ProjectionYear)
	if !ok {
		return nil, fmt.Errorf("%w: %s projection %d", ErrMissingValue, lowerMiddleIncome, in.ProjectionYear)
	}
	out[fmt.Sprintf("lmic_nt_%d_value", in.ProjectionYear)] = bn(lmic.Round(2))

	if in.Population != nil {
		umicPeople := decimal.NewFromFloat(in.Population.ForCountries(incomeCountries(in.FullCountry, upperMiddleIncome, in.ISO)...))
		lmicPeople := decimal.NewFromFloat(in.Population.ForCountries(incomeCountries(in.FullCountry, lowerMiddleIncome, in.ISO)...))
		out["umic_nt_population"] = fmt.Sprintf("%d million", umicPeople.Div(millions).Round(0).IntPart())
		out["lmic_nt_population"] = number(lmicPeople.Div(billions).Round(1)) + " billion"
	}

	for _, year := range in.NNTYears {
		negative, total := negativeCount(in, year)
		out[fmt.Sprintf("nnt_count_%d", year)] = fmt.Sprintf("%d out of %d countries", negative, total)
	}
	return out, nil
}

type yearValue struct {
	year  int
	value decimal.Decimal
}

// groupSeries sums the rows of one label per year, in billions, ordered by
// year.
func groupSeries(records []model.FlowRecord, country string) []yearValue {
	index := make(map[int]int)
	var out []yearValue
	for _, r := range records {
		if r.Country != country {
			continue
		}
		v := decimal.NewFromFloat(r.Value).Div(billions)
		if i, ok := index[r.Year]; ok {
			out[i].value = out[i].value.Add(v)
			continue
		}
		index[r.Year] = len(out)
		out = append(out, yearValue{year: r.Year, value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].year < out[j].year })
	return out
}

func find(series []yearValue, year int) (decimal.Decimal, bool) {
	for _, p := range series {
		if p.year == year {
			return p.value, true
		}
	}
	return decimal.Zero, false
}

// incomeCountries lists the ISO3 codes of the countries of one income level
// that appear in the flows.
func incomeCountries(records []model.FlowRecord, income string, iso func(string) (string, bool)) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range records {
		if r.IncomeLevel != income || seen[r.Country] {
			continue
		}
		seen[r.Country] = true
		code := r.ISOCode
		if code == "" && iso != nil {
			code, _ = iso(r.Country)
		}
		if code != "" {
			out = append(out, code)
		}
	}
	return out
}

// negativeCount counts the countries with a negative net flow in year and
// all countries reporting that year. Years after the last reported year are
// read from the country projections.
func negativeCount(in KeyNumbersInput, year int) (negative, total int) {
	source := current(in.NetCountry)
	if year > in.LastDataYear {
		source = in.ProjectionsCountry
	}
	values := make(map[string]float64)
	for _, r := range source {
		if r.Year == year {
			values[r.Country] += r.Value
		}
	}
	for _, v := range values {
		if v < 0 {
			negative++
		}
	}
	return negative, len(values)
}

func bn(d decimal.Decimal) string {
	return "$" + number(d) + " bn"
}

// number prints a rounded value with at least one decimal place.
func number(d decimal.Decimal) string {
	s := d.String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
