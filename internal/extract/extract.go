package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"netflows/internal/flows"
	"netflows/internal/model"
	"netflows/internal/normalize"
	"netflows/internal/providers"
	"netflows/internal/providers/oecd"
	"netflows/internal/providers/worldbank"
)

// class is one creditor class of the debt statistics.
type class struct {
	indicator       string
	counterpartType string
	series          []string
	concessional    string
}

var inflowClasses = []class{
	{indicator: "bilateral", counterpartType: model.CounterpartBilateral, series: []string{"DT.DIS.BLAT.CD"}, concessional: "DT.DIS.BLTC.CD"},
	{indicator: "multilateral", counterpartType: model.CounterpartMultilateral, series: []string{"DT.DIS.MLAT.CD"}, concessional: "DT.DIS.MLTC.CD"},
	{indicator: "bonds", counterpartType: model.CounterpartPrivate, series: []string{"DT.DIS.PBND.CD"}},
	{indicator: "banks", counterpartType: model.CounterpartPrivate, series: []string{"DT.DIS.PCBK.CD"}},
	{indicator: "other_private", counterpartType: model.CounterpartPrivate, series: []string{"DT.DIS.PROP.CD"}},
}

// Debt service is principal plus interest.
var serviceClasses = []class{
	{indicator: "bilateral", counterpartType: model.CounterpartBilateral, series: []string{"DT.AMT.BLAT.CD", "DT.INT.BLAT.CD"}},
	{indicator: "multilateral", counterpartType: model.CounterpartMultilateral, series: []string{"DT.AMT.MLAT.CD", "DT.INT.MLAT.CD"}},
	{indicator: "bonds", counterpartType: model.CounterpartPrivate, series: []string{"DT.AMT.PBND.CD", "DT.INT.PBND.CD"}},
	{indicator: "banks", counterpartType: model.CounterpartPrivate, series: []string{"DT.AMT.PCBK.CD", "DT.INT.PCBK.CD"}},
	{indicator: "other", counterpartType: model.CounterpartPrivate, series: []string{"DT.AMT.PROP.CD", "DT.INT.PROP.CD"}},
}

// Recipient labels in DAC2a that stand for regions or unallocated amounts.
var regionalMarkers = []string{", total", "regional", "unspecified", "unallocated"}

// Result is an extracted table plus the labels no lookup could resolve.
// Unresolved debtors keep an empty ISO code and unresolved creditors keep
// their cleaned label. Callers decide whether to store such rows; Err
// reports them.
type Result struct {
	Records    []model.FlowRecord
	Unresolved []*normalize.UnresolvedEntityError
}

// Err joins the unresolved entities, or returns nil when every label resolved.
func (r Result) Err() error {
	if len(r.Unresolved) == 0 {
		return nil
	}
	errs := make([]error, len(r.Unresolved))
	for i, u := range r.Unresolved {
		errs[i] = u
	}
	return errors.Join(errs...)
}

type Extractor struct {
	debt   providers.DebtSource
	grants providers.GrantsSource
	names  *normalize.Normalizer
	logger *zap.Logger
}

func New(debt providers.DebtSource, grants providers.GrantsSource, names *normalize.Normalizer, logger *zap.Logger) (*Extractor, error) {
	if names == nil {
		return nil, errors.New("extract: normalizer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{debt: debt, grants: grants, names: names, logger: logger}, nil
}

// DebtInflows returns disbursements per creditor class. Bilateral and
// multilateral disbursements are split into concessional and
// non-concessional parts.
func (e *Extractor) DebtInflows(ctx context.Context, from, to int) (Result, error) {
	var raw []model.FlowRecord
	for _, c := range inflowClasses {
		rows, err := e.fetch(ctx, c.series, from, to)
		if err != nil {
			return Result{}, err
		}
		if c.concessional == "" {
			raw = append(raw, tag(rows, c.indicator, c.counterpartType)...)
			continue
		}
		concessional, err := e.fetch(ctx, []string{c.concessional}, from, to)
		if err != nil {
			return Result{}, err
		}
		raw = append(raw, splitConcessional(rows, concessional, c)...)
	}
	return e.finish("debt_inflows", raw, model.IndicatorInflow), nil
}

// DebtService returns principal and interest payments per creditor class.
// The range may extend past the last reported year to cover contracted
// future payments.
func (e *Extractor) DebtService(ctx context.Context, from, to int) (Result, error) {
	var raw []model.FlowRecord
	for _, c := range serviceClasses {
		rows, err := e.fetch(ctx, c.series, from, to)
		if err != nil {
			return Result{}, err
		}
		raw = append(raw, tag(rows, c.indicator, c.counterpartType)...)
	}
	return e.finish("debt_service", raw, model.IndicatorOutflow), nil
}

// Grants returns official grants by donor, at current and constant prices.
func (e *Extractor) Grants(ctx context.Context, from, to int) (Result, error) {
	if e.grants == nil {
		return Result{}, errors.New("extract: grants source is not configured")
	}
	rows, err := e.grants.FetchGrants(ctx, from, to)
	if err != nil {
		return Result{}, fmt.Errorf("extract: grants: %w", err)
	}

	raw := make([]model.FlowRecord, 0, len(rows))
	for _, row := range rows {
		if isRegional(row.Recipient) || strings.Contains(row.Donor, ", Total") {
			continue
		}
		indicator, counterpartType := "grants_multilateral", model.CounterpartMultilateral
		if oecd.BilateralDonor(row.DonorCode) {
			indicator, counterpartType = "grants_bilateral", model.CounterpartBilateral
		}
		raw = append(raw, model.FlowRecord{
			FlowKey: model.FlowKey{
				Year:            row.Year,
				Country:         row.Recipient,
				CounterpartArea: row.Donor,
				CounterpartType: counterpartType,
				Indicator:       indicator,
				Prices:          row.Prices,
			},
			Value: row.Value,
		})
	}
	return e.finish("grants", raw, model.IndicatorInflow), nil
}

// fetch downloads several series and sums them per debtor, counterpart and
// year. A series without records contributes nothing.
func (e *Extractor) fetch(ctx context.Context, series []string, from, to int) ([]model.DebtObservation, error) {
	if e.debt == nil {
		return nil, errors.New("extract: debt source is not configured")
	}
	type key struct {
		country, counterpart string
		year                 int
	}
	index := make(map[key]int)
	var out []model.DebtObservation
	for _, s := range series {
		rows, err := e.debt.FetchDebt(ctx, s, from, to)
		if errors.Is(err, worldbank.ErrNoRecords) {
			e.logger.Warn("series returned no records", zap.String("series", s))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("extract: %s: %w", s, err)
		}
		for _, row := range rows {
			k := key{country: row.Country, counterpart: row.CounterpartArea, year: row.Year}
			if i, ok := index[k]; ok {
				out[i].Value += row.Value
				continue
			}
			index[k] = len(out)
			row.Series = series[0]
			out = append(out, row)
		}
	}
	return out, nil
}

func tag(rows []model.DebtObservation, indicator, counterpartType string) []model.FlowRecord {
	out := make([]model.FlowRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, model.FlowRecord{
			FlowKey: model.FlowKey{
				Year:            row.Year,
				Country:         row.Country,
				CounterpartArea: row.CounterpartArea,
				CounterpartType: counterpartType,
				Indicator:       indicator,
				Prices:          model.PricesCurrent,
			},
			Value: row.Value,
		})
	}
	return out
}

// splitConcessional derives the non-concessional part as total minus
// concessional, treating a missing concessional value as zero.
func splitConcessional(totals, concessional []model.DebtObservation, c class) []model.FlowRecord {
	type key struct {
		country, counterpart string
		year                 int
	}
	conc := make(map[key]float64, len(concessional))
	for _, row := range concessional {
		conc[key{row.Country, row.CounterpartArea, row.Year}] += row.Value
	}

	out := make([]model.FlowRecord, 0, len(totals)*2)
	for _, row := range totals {
		base := model.FlowKey{
			Year:            row.Year,
			Country:         row.Country,
			CounterpartArea: row.CounterpartArea,
			CounterpartType: c.counterpartType,
			Prices:          model.PricesCurrent,
		}
		cv, ok := conc[key{row.Country, row.CounterpartArea, row.Year}]
		if ok {
			k := base
			k.Indicator = c.indicator + "_concessional"
			out = append(out, model.FlowRecord{FlowKey: k, Value: cv})
		}
		k := base
		k.Indicator = c.indicator + "_non_concessional"
		out = append(out, model.FlowRecord{FlowKey: k, Value: row.Value - cv})
	}
	return out
}

// finish cleans labels, resolves debtors and creditors and collapses
// duplicate keys.
func (e *Extractor) finish(dataset string, raw []model.FlowRecord, indicatorType model.IndicatorType) Result {
	defaultGroupings := make(map[string]bool, len(flows.DefaultGroupings))
	for _, g := range flows.DefaultGroupings {
		defaultGroupings[g] = true
	}

	var (
		res    Result
		seen   = make(map[string]bool)
		report = func(err error) {
			var unresolved *normalize.UnresolvedEntityError
			if errors.As(err, &unresolved) {
				id := unresolved.Role + "|" + unresolved.Name
				if !seen[id] {
					seen[id] = true
					res.Unresolved = append(res.Unresolved, unresolved)
				}
			}
		}
	)

	records := make([]model.FlowRecord, 0, len(raw))
	for _, r := range raw {
		debtor := normalize.Clean(r.Country)
		counterpart := normalize.Clean(r.CounterpartArea)
		if debtor == "" || defaultGroupings[debtor] || e.names.IsAggregate(debtor) {
			continue
		}
		if strings.Contains(counterpart, ", Total") {
			continue
		}

		r.IndicatorType = indicatorType
		r.Country = debtor
		if country, err := e.names.ResolveDebtor(debtor); err != nil {
			report(err)
			r.ISOCode = ""
		} else {
			r.Country = country.Name
			r.ISOCode = country.ISO3
			r.Continent = country.Continent
			r.IncomeLevel = country.IncomeLevel
		}

		r.CounterpartArea = counterpart
		if creditor, err := e.names.ResolveCreditor(counterpart); err != nil {
			report(err)
		} else {
			r.CounterpartArea = creditor.Name
			r.CounterpartISOCode = creditor.ISO3
		}
		records = append(records, r)
	}

	res.Records = flows.Sum(records)
	e.logger.Info("extracted",
		zap.String("dataset", dataset),
		zap.Int("raw_rows", len(raw)),
		zap.Int("rows", len(res.Records)),
		zap.Int("unresolved", len(res.Unresolved)))
	for _, u := range res.Unresolved {
		e.logger.Warn("unresolved entity", zap.String("dataset", dataset), zap.String("role", u.Role), zap.String("name", u.Name))
	}
	return res
}

func isRegional(recipient string) bool {
	lower := strings.ToLower(recipient)
	for _, marker := range regionalMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
