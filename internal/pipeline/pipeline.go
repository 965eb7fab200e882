package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"netflows/internal/artifact"
	"netflows/internal/charts"
	"netflows/internal/config"
	"netflows/internal/deflate"
	"netflows/internal/flows"
	"netflows/internal/logging"
	"netflows/internal/model"
	"netflows/internal/netflow"
	"netflows/internal/normalize"
	"netflows/internal/population"
	"netflows/internal/projection"
	"netflows/internal/store"
)

// Steps in run order.
const (
	StepFullFlows   = "full_flows"
	StepNetFlows    = "net_flows"
	StepNegative    = "negative_flows"
	StepProjections = "projections"
	StepScatter     = "scatter"
	StepRepayments  = "repayments"
	StepCharts      = "charts"
	StepKeyNumbers  = "key_numbers"
)

var Steps = []string{
	StepFullFlows,
	StepNetFlows,
	StepNegative,
	StepProjections,
	StepScatter,
	StepRepayments,
	StepCharts,
	StepKeyNumbers,
}

// Artifact file names.
const (
	FileFullFlowsCountry     = "full_flows_country.parquet"
	FileFullFlowsGrouping    = "full_flows_grouping.parquet"
	FileNetFlowsCountry      = "net_flows_country.parquet"
	FileNetFlowsGrouping     = "net_flows_grouping.parquet"
	FileNegativeCountry      = "net_negative_flows_country.parquet"
	FileNegativeGroup        = "net_negative_flows_group.parquet"
	FileProjectionsCountry   = "net_flow_projections_country.parquet"
	FileProjectionsGroup     = "net_flow_projections_group.parquet"
	FileKeyNumbers           = "key_numbers.json"
	FileDownload             = "net_flows_download.xlsx"
	projectionLead           = 2
)

var ErrUnknownStep = errors.New("pipeline: unknown step")

// Runner executes the analysis steps over the raw-data cache and writes
// every artifact to the output directory. Tables computed by one step are
// handed to later steps in memory; a step whose inputs were not computed in
// this run reads them back from the output directory.
type Runner struct {
	cfg    config.Config
	store  store.Store
	names  *normalize.Normalizer
	logger *zap.Logger

	fullCountry  []model.FlowRecord
	fullGrouping []model.FlowRecord
	netCountry   []model.FlowRecord
	netGrouping  []model.FlowRecord
	projCountry  []model.FlowRecord
	projGroup    []model.FlowRecord
	scatter      []netflow.Row
	gdp          *netflow.GDPTable

	written []*artifact.Table
}

func New(cfg config.Config, st store.Store, names *normalize.Normalizer, logger *zap.Logger) (*Runner, error) {
	if st == nil {
		return nil, errors.New("pipeline: store is required")
	}
	if names == nil {
		return nil, errors.New("pipeline: normalizer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{cfg: cfg, store: st, names: names, logger: logger}, nil
}

// Select validates step names. No names selects every step.
func Select(only []string) (map[string]bool, error) {
	known := make(map[string]bool, len(Steps))
	for _, s := range Steps {
		known[s] = true
	}
	selected := make(map[string]bool)
	for _, raw := range only {
		for _, name := range strings.Split(raw, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if !known[name] {
				return nil, fmt.Errorf("%w: %s", ErrUnknownStep, name)
			}
			selected[name] = true
		}
	}
	if len(selected) == 0 {
		return known, nil
	}
	return selected, nil
}

func (r *Runner) Run(ctx context.Context, only ...string) error {
	selected, err := Select(only)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(r.cfg.Paths.Output, 0o755); err != nil {
		return fmt.Errorf("pipeline: create output dir: %w", err)
	}

	steps := map[string]func(context.Context, *zap.Logger) error{
		StepFullFlows:   r.runFullFlows,
		StepNetFlows:    r.runNetFlows,
		StepNegative:    r.runNegative,
		StepProjections: r.runProjections,
		StepScatter:     r.runScatter,
		StepRepayments:  r.runRepayments,
		StepCharts:      r.runCharts,
		StepKeyNumbers:  r.runKeyNumbers,
	}
	for _, name := range Steps {
		if !selected[name] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		log := logging.Stage(r.logger, name)
		start := time.Now()
		if err := steps[name](ctx, log); err != nil {
			return fmt.Errorf("pipeline: %s: %w", name, err)
		}
		log.Info("step complete", zap.Duration("elapsed", time.Since(start)))
	}
	return nil
}

func (r *Runner) listFlows(ctx context.Context, dataset string, from, to int, prices model.Prices) ([]model.FlowRecord, error) {
	records, err := r.store.ListFlows(ctx, store.FlowFilter{Dataset: dataset, FromYear: from, ToYear: to, Prices: prices})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dataset, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no %s rows cached for %d-%d; run the collector first", dataset, from, to)
	}
	return records, nil
}

func splitPrices(records []model.FlowRecord) (current, constant []model.FlowRecord) {
	for _, r := range records {
		if r.Prices == model.PricesConstant {
			constant = append(constant, r)
			continue
		}
		current = append(current, r)
	}
	return current, constant
}

func (r *Runner) runFullFlows(ctx context.Context, log *zap.Logger) error {
	a := r.cfg.Analysis
	debtInflows, err := r.listFlows(ctx, store.DatasetDebtInflows, a.StartYear, a.EndYear, model.PricesCurrent)
	if err != nil {
		return err
	}
	service, err := r.listFlows(ctx, store.DatasetDebtService, a.StartYear, a.EndYear, model.PricesCurrent)
	if err != nil {
		return err
	}
	grants, err := r.listFlows(ctx, store.DatasetGrants, a.StartYear, a.EndYear, "")
	if err != nil {
		return err
	}
	grantsCurrent, grantsConstant := splitPrices(grants)

	current := flows.WithPrices(flows.AllFlows(flows.Concat(debtInflows, grantsCurrent), service, a.EndYear), model.PricesCurrent)

	deflators, err := r.store.ListSeries(ctx, a.DeflatorSeries)
	if err != nil {
		return fmt.Errorf("list deflators: %w", err)
	}
	index, err := deflate.NewIndex(deflators, a.ConstantBaseYear)
	if err != nil {
		return err
	}
	inflowsConstant, droppedIn := index.Constant(debtInflows)
	serviceConstant, droppedOut := index.Constant(service)
	if droppedIn+droppedOut > 0 {
		log.Warn("rows without deflator dropped from constant prices",
			zap.Int("inflows", droppedIn),
			zap.Int("outflows", droppedOut))
	}
	constant := flows.WithPrices(flows.AllFlows(flows.Concat(inflowsConstant, grantsConstant), serviceConstant, a.EndYear), model.PricesConstant)

	r.fullCountry = flows.ExcludeOutlierCountries(flows.Sum(flows.Concat(current, constant)))
	r.fullGrouping = flows.ReorderCountries(flows.CreateGroupings(r.fullCountry))

	log.Info("full flows built",
		zap.Int("country_rows", len(r.fullCountry)),
		zap.Int("group_rows", len(r.fullGrouping)),
		zap.Ints("years", flows.Years(r.fullCountry)),
		zap.Int("base_year", index.Base()))
	if err := artifact.WriteFlows(r.cfg.OutputPath(FileFullFlowsCountry), r.fullCountry); err != nil {
		return err
	}
	return artifact.WriteFlows(r.cfg.OutputPath(FileFullFlowsGrouping), r.fullGrouping)
}

func (r *Runner) runNetFlows(ctx context.Context, log *zap.Logger) error {
	full, err := r.full()
	if err != nil {
		return err
	}
	r.netCountry = flows.SummariseByCountry(flows.ConvertToNetFlows(full))
	r.netGrouping = flows.ReorderCountries(flows.CreateGroupings(r.netCountry))

	log.Info("net flows built", zap.Int("country_rows", len(r.netCountry)), zap.Int("group_rows", len(r.netGrouping)))
	if err := artifact.WriteNetFlows(r.cfg.OutputPath(FileNetFlowsCountry), r.netCountry); err != nil {
		return err
	}
	return artifact.WriteNetFlows(r.cfg.OutputPath(FileNetFlowsGrouping), r.netGrouping)
}

func (r *Runner) runNegative(ctx context.Context, log *zap.Logger) error {
	full, err := r.full()
	if err != nil {
		return err
	}
	current := flows.Filter(full, func(rec model.FlowRecord) bool { return rec.Prices == model.PricesCurrent })
	net := flows.SummariseByCountry(flows.ConvertToNetFlows(current))
	negative := flows.NegativeOnly(net)
	grouped := flows.ReorderCountries(flows.CreateGroupings(negative))

	for _, c := range flows.CountNegativeByYear(net) {
		log.Debug("negative net transfers", zap.Int("year", c.Year), zap.Int("negative", c.Negative), zap.Int("countries", c.Total))
	}
	if err := artifact.WriteNetFlows(r.cfg.OutputPath(FileNegativeCountry), negative); err != nil {
		return err
	}
	return artifact.WriteNetFlows(r.cfg.OutputPath(FileNegativeGroup), grouped)
}

func (r *Runner) runProjections(ctx context.Context, log *zap.Logger) error {
	full, err := r.full()
	if err != nil {
		return err
	}
	p := r.cfg.Projection
	engine, err := projection.New(projection.Config{
		Strategy:      p.Strategy,
		BaseYear:      p.BaseYear,
		YearsBack:     p.YearsBack,
		YearsForward:  p.YearsForward,
		RollingWindow: p.RollingWindow,
	}, log)
	if err != nil {
		return err
	}
	service, err := r.listFlows(ctx, store.DatasetDebtService, r.cfg.Analysis.StartYear, r.cfg.Analysis.DebtServiceTo, model.PricesCurrent)
	if err != nil {
		return err
	}
	current := flows.Filter(full, func(rec model.FlowRecord) bool { return rec.Prices == model.PricesCurrent })

	res := engine.Run(current, service)
	r.projCountry, r.projGroup = res.Countries, res.Groups
	if err := artifact.WriteProjections(r.cfg.OutputPath(FileProjectionsCountry), r.projCountry); err != nil {
		return err
	}
	return artifact.WriteProjections(r.cfg.OutputPath(FileProjectionsGroup), r.projGroup)
}

func (r *Runner) runScatter(ctx context.Context, log *zap.Logger) error {
	scatter, err := r.scatterRows(ctx)
	if err != nil {
		return err
	}
	log.Info("scatter totals built", zap.Int("rows", len(scatter)))
	return r.writeCSV(charts.ScatterTotalsTable(scatter))
}

func (r *Runner) runRepayments(ctx context.Context, log *zap.Logger) error {
	service, err := r.listFlows(ctx, store.DatasetDebtService, r.cfg.Analysis.StartYear, r.cfg.Analysis.DebtServiceTo, model.PricesCurrent)
	if err != nil {
		return err
	}
	for _, china := range []bool{false, true} {
		if err := r.writeCSV(charts.AvgRepayments(service, charts.RepaymentPeriods, china)); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) runCharts(ctx context.Context, log *zap.Logger) error {
	full, err := r.full()
	if err != nil {
		return err
	}
	fullGrouping, err := r.load(&r.fullGrouping, FileFullFlowsGrouping, artifact.ReadFlows)
	if err != nil {
		return err
	}
	netCountry, netGrouping, err := r.net()
	if err != nil {
		return err
	}
	projCountry, projGroup, err := r.projections()
	if err != nil {
		return err
	}
	gdp, err := r.gdpTable(ctx)
	if err != nil {
		return err
	}
	scatter, err := r.scatterRows(ctx)
	if err != nil {
		return err
	}

	beeswarm := charts.Beeswarm(netCountry, gdp, r.names.ISO3)
	steam := charts.NegativeTransfers(full)
	tables := []*artifact.Table{
		charts.NetFlowsOverview(netCountry, netGrouping, projCountry, projGroup, r.cfg.Analysis.EndYear),
		charts.InflowsByCounterpart(full, fullGrouping),
		charts.BeeswarmTable(beeswarm),
		charts.HistogramTable(charts.Histogram(beeswarm, charts.HistogramBins), charts.HistogramShown),
		charts.ScatterTable(scatter, charts.ScatterYear),
		steam.Countries,
		steam.Income,
		steam.Continent,
		steam.Years,
		charts.ConnectedScatter(full),
	}
	for _, t := range tables {
		if err := r.writeCSV(t); err != nil {
			return err
		}
	}

	if err := artifact.WriteWorkbook(r.cfg.OutputPath(FileDownload), r.written...); err != nil {
		return err
	}
	log.Info("charts written", zap.Int("tables", len(tables)), zap.Int("workbook_sheets", len(r.written)))
	return nil
}

func (r *Runner) runKeyNumbers(ctx context.Context, log *zap.Logger) error {
	full, err := r.full()
	if err != nil {
		return err
	}
	netCountry, netGrouping, err := r.net()
	if err != nil {
		return err
	}
	projCountry, projGroup, err := r.projections()
	if err != nil {
		return err
	}

	var people *population.Table
	path := r.cfg.RawPath(population.RawFileName(population.DefaultIndicator))
	records, err := population.ReadRaw(path)
	switch {
	case err == nil:
		people = population.NewTable(records, r.names.IncomeLevel)
	case errors.Is(err, os.ErrNotExist):
		log.Warn("population file missing, population numbers skipped", zap.String("path", path))
	default:
		return err
	}

	end := r.cfg.Analysis.EndYear
	var nntYears []int
	for y := end; y <= r.cfg.Projection.BaseYear+r.cfg.Projection.YearsForward; y++ {
		nntYears = append(nntYears, y)
	}
	numbers, err := charts.KeyNumbers(charts.KeyNumbersInput{
		NetCountry:         netCountry,
		NetGrouping:        netGrouping,
		ProjectionsCountry: projCountry,
		ProjectionsGroup:   projGroup,
		FullCountry:        full,
		Population:         people,
		ISO:                r.names.ISO3,
		LastDataYear:       end,
		ProjectionYear:     end + projectionLead,
		UMICYear:           end - 1,
		NNTYears:           nntYears,
	})
	if err != nil {
		return err
	}
	log.Info("key numbers computed", zap.Int("numbers", len(numbers)))
	return artifact.WriteJSON(r.cfg.OutputPath(FileKeyNumbers), numbers)
}

func (r *Runner) writeCSV(t *artifact.Table) error {
	if err := artifact.WriteCSV(r.cfg.OutputPath(t.Name+".csv"), t); err != nil {
		return err
	}
	r.written = append(r.written, t)
	return nil
}

// load returns the cached table, reading the artifact when this run has
// not produced it.
func (r *Runner) load(cache *[]model.FlowRecord, file string, read func(string) ([]model.FlowRecord, error)) ([]model.FlowRecord, error) {
	if *cache != nil {
		return *cache, nil
	}
	records, err := read(r.cfg.OutputPath(file))
	if err != nil {
		return nil, err
	}
	*cache = records
	return records, nil
}

func (r *Runner) full() ([]model.FlowRecord, error) {
	return r.load(&r.fullCountry, FileFullFlowsCountry, artifact.ReadFlows)
}

func (r *Runner) net() (country, grouping []model.FlowRecord, err error) {
	if country, err = r.load(&r.netCountry, FileNetFlowsCountry, artifact.ReadNetFlows); err != nil {
		return nil, nil, err
	}
	if grouping, err = r.load(&r.netGrouping, FileNetFlowsGrouping, artifact.ReadNetFlows); err != nil {
		return nil, nil, err
	}
	return country, grouping, nil
}

func (r *Runner) projections() (country, group []model.FlowRecord, err error) {
	if country, err = r.load(&r.projCountry, FileProjectionsCountry, artifact.ReadProjections); err != nil {
		return nil, nil, err
	}
	if group, err = r.load(&r.projGroup, FileProjectionsGroup, artifact.ReadProjections); err != nil {
		return nil, nil, err
	}
	return country, group, nil
}

func (r *Runner) gdpTable(ctx context.Context) (*netflow.GDPTable, error) {
	if r.gdp != nil {
		return r.gdp, nil
	}
	series, err := r.store.ListSeries(ctx, r.cfg.Analysis.GDPSeries)
	if err != nil {
		return nil, fmt.Errorf("list gdp: %w", err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no %s values cached; run the collector reference command first", r.cfg.Analysis.GDPSeries)
	}
	r.gdp = netflow.NewGDPTable(series)
	return r.gdp, nil
}

func (r *Runner) scatterRows(ctx context.Context) ([]netflow.Row, error) {
	if r.scatter != nil {
		return r.scatter, nil
	}
	full, err := r.full()
	if err != nil {
		return nil, err
	}
	gdp, err := r.gdpTable(ctx)
	if err != nil {
		return nil, err
	}
	r.scatter = charts.ScatterTotals(full, gdp, r.names.ISO3)
	return r.scatter, nil
}
