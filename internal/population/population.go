package population

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"netflows/internal/artifact"
	"netflows/internal/model"
	"netflows/internal/providers"
)

const (
	DefaultIndicator = 49
	DefaultYear      = 2023
	ChildAge         = 18

	bothSexes     = "Both sexes"
	medianVariant = "Median"

	// query defaults of the UN data portal: both sexes, median variant.
	querySexes    = 3
	queryVariants = 4
)

var ErrNoLocations = errors.New("population: no locations")

var rawColumns = []string{
	"locationId", "location", "iso3", "indicatorId", "indicator", "variant",
	"variantLabel", "timeLabel", "sex", "ageStart", "ageEnd", "value",
}

// RawFileName is the name of the raw download for one indicator.
func RawFileName(indicator int) string {
	return fmt.Sprintf("un_population_raw_%d.csv", indicator)
}

type Downloader struct {
	source providers.PopulationSource
	logger *zap.Logger
}

func NewDownloader(source providers.PopulationSource, logger *zap.Logger) *Downloader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Downloader{source: source, logger: logger}
}

// Download fetches one indicator for every UN location, ages 0 to 18, for a
// single year.
func (d *Downloader) Download(ctx context.Context, indicator, year int) ([]model.PopulationRecord, error) {
	locations, err := d.source.ListLocations(ctx)
	if err != nil {
		return nil, fmt.Errorf("population: list locations: %w", err)
	}
	if len(locations) == 0 {
		return nil, ErrNoLocations
	}
	ids := make([]int, len(locations))
	for i, l := range locations {
		ids[i] = l.ID
	}
	d.logger.Info("downloading population",
		zap.String("source", d.source.Name()),
		zap.Int("indicator", indicator),
		zap.Int("locations", len(ids)),
		zap.Int("year", year))

	records, err := d.source.FetchPopulation(ctx, providers.PopulationQuery{
		Indicator: indicator,
		Locations: ids,
		StartYear: year,
		EndYear:   year,
		StartAge:  0,
		EndAge:    ChildAge,
		Sexes:     querySexes,
		Variants:  queryVariants,
	})
	if err != nil {
		return nil, fmt.Errorf("population: fetch: %w", err)
	}
	return records, nil
}

func WriteRaw(path string, records []model.PopulationRecord) error {
	t := artifact.NewTable(RawFileName(0), rawColumns...)
	for _, r := range records {
		t.Append(r.LocationID, r.Location, r.ISO3, r.IndicatorID, r.Indicator, r.Variant,
			r.VariantLabel, r.TimeLabel, r.Sex, r.AgeStart, r.AgeEnd, r.Value)
	}
	return artifact.WriteCSV(path, t)
}

func ReadRaw(path string) ([]model.PopulationRecord, error) {
	t, err := artifact.ReadCSV(path, rawColumns...)
	if err != nil {
		return nil, err
	}
	col := make(map[string]int, len(rawColumns))
	for _, c := range rawColumns {
		col[c] = t.Column(c)
	}
	out := make([]model.PopulationRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		if len(row) < len(t.Columns) {
			return nil, fmt.Errorf("population: %s row %d: short row", path, i+1)
		}
		value, err := strconv.ParseFloat(row[col["value"]], 64)
		if err != nil {
			return nil, fmt.Errorf("population: %s row %d: value: %w", path, i+1, err)
		}
		out = append(out, model.PopulationRecord{
			LocationID:   atoi(row[col["locationId"]]),
			Location:     row[col["location"]],
			ISO3:         row[col["iso3"]],
			IndicatorID:  atoi(row[col["indicatorId"]]),
			Indicator:    row[col["indicator"]],
			Variant:      row[col["variant"]],
			VariantLabel: row[col["variantLabel"]],
			TimeLabel:    row[col["timeLabel"]],
			Sex:          row[col["sex"]],
			AgeStart:     atoi(row[col["ageStart"]]),
			AgeEnd:       atoi(row[col["ageEnd"]]),
			Value:        value,
		})
	}
	return out, nil
}

func atoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		if f, ferr := strconv.ParseFloat(s, 64); ferr == nil {
			return int(f)
		}
	}
	return n
}

// Clean keeps the median estimate for both sexes.
func Clean(records []model.PopulationRecord) []model.PopulationRecord {
	var out []model.PopulationRecord
	for _, r := range records {
		if r.Sex != bothSexes {
			continue
		}
		if r.Variant != medianVariant && r.VariantLabel != medianVariant {
			continue
		}
		out = append(out, r)
	}
	return out
}

// UnderAge sums the population younger than age per ISO3 code.
func UnderAge(records []model.PopulationRecord, age int) map[string]float64 {
	out := make(map[string]float64)
	for _, r := range Clean(records) {
		if r.ISO3 == "" || r.AgeStart >= age {
			continue
		}
		out[r.ISO3] += r.Value
	}
	return out
}

// Table is the cleaned population of every location with an ISO3 code,
// tagged with its income level.
type Table struct {
	values map[string]float64
	income map[string]string
	total  float64
}

// NewTable sums cleaned records per ISO3 code. incomeLevel resolves the
// income group of a code; locations it does not know keep no income level.
func NewTable(records []model.PopulationRecord, incomeLevel func(iso3 string) (string, bool)) *Table {
	t := &Table{values: make(map[string]float64), income: make(map[string]string)}
	for _, r := range Clean(records) {
		if r.ISO3 == "" {
			continue
		}
		t.values[r.ISO3] += r.Value
		t.total += r.Value
		if incomeLevel == nil {
			continue
		}
		if level, ok := incomeLevel(r.ISO3); ok {
			t.income[r.ISO3] = level
		}
	}
	return t
}

func (t *Table) Total() float64 {
	return t.total
}

func (t *Table) ForCountries(iso3 ...string) float64 {
	var sum float64
	seen := make(map[string]bool, len(iso3))
	for _, code := range iso3 {
		if seen[code] {
			continue
		}
		seen[code] = true
		sum += t.values[code]
	}
	return sum
}

func (t *Table) ForIncome(levels ...string) float64 {
	want := make(map[string]bool, len(levels))
	for _, l := range levels {
		want[l] = true
	}
	var sum float64
	for code, value := range t.values {
		if want[t.income[code]] {
			sum += value
		}
	}
	return sum
}

// ShareForCountries is the percentage of the total population living in the
// given countries, rounded to one decimal.
func (t *Table) ShareForCountries(iso3 ...string) float64 {
	return t.share(t.ForCountries(iso3...))
}

func (t *Table) ShareForIncome(levels ...string) float64 {
	return t.share(t.ForIncome(levels...))
}

func (t *Table) share(part float64) float64 {
	if t.total == 0 {
		return 0
	}
	pct := decimal.NewFromFloat(part).Div(decimal.NewFromFloat(t.total)).Mul(decimal.NewFromInt(100))
	return pct.Round(1).InexactFloat64()
}
