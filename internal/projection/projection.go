package projection

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"netflows/internal/flows"
	"netflows/internal/model"
)

const (
	StrategyLinear  = "linear"
	StrategyRolling = "rolling"

	defaultYearsBack     = 3
	defaultYearsForward  = 3
	defaultRollingWindow = 2
	minPoints            = 2
)

type Config struct {
	Strategy      string
	BaseYear      int
	YearsBack     int
	YearsForward  int
	RollingWindow int
}

// Engine projects inflows, outflows and net flows past the base year.
type Engine struct {
	config Config
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyLinear
	}
	if cfg.Strategy != StrategyLinear && cfg.Strategy != StrategyRolling {
		return nil, fmt.Errorf("projection: unknown strategy %q", cfg.Strategy)
	}
	if cfg.BaseYear <= 0 {
		cfg.BaseYear = flows.DefaultCutoffYear
	}
	if cfg.YearsBack <= 0 {
		cfg.YearsBack = defaultYearsBack
	}
	if cfg.YearsForward <= 0 {
		cfg.YearsForward = defaultYearsForward
	}
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = defaultRollingWindow
	}
	if cfg.Strategy == StrategyLinear && cfg.YearsBack < minPoints {
		return nil, errors.New("projection: a linear trend needs at least two years back")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{config: cfg, logger: logger}, nil
}

// projectionDims are the dimensions projections are computed over.
var projectionDims = []model.Dim{
	model.DimYear,
	model.DimCountry,
	model.DimContinent,
	model.DimIncomeLevel,
	model.DimCounterpartType,
}

func byProjectionDims(records []model.FlowRecord) []model.FlowRecord {
	return flows.Sum(flows.Map(records, func(r model.FlowRecord) model.FlowRecord {
		r.FlowKey = r.FlowKey.Only(projectionDims...)
		return r
	}))
}

// series groups records by every projection dimension except the year.
type series struct {
	key    model.FlowKey
	years  []int
	values []float64
}

func groupSeries(records []model.FlowRecord) []*series {
	index := make(map[model.FlowKey]*series)
	var out []*series
	for _, r := range records {
		key := r.FlowKey.Without(model.DimYear)
		s, ok := index[key]
		if !ok {
			s = &series{key: key}
			index[key] = s
			out = append(out, s)
		}
		s.years = append(s.years, r.Year)
		s.values = append(s.values, r.Value)
	}
	for _, s := range out {
		sort.Sort(s)
	}
	return out
}

func (s *series) Len() int           { return len(s.years) }
func (s *series) Less(i, j int) bool { return s.years[i] < s.years[j] }
func (s *series) Swap(i, j int) {
	s.years[i], s.years[j] = s.years[j], s.years[i]
	s.values[i], s.values[j] = s.values[j], s.values[i]
}

func point(key model.FlowKey, year int, value float64, it model.IndicatorType) model.FlowRecord {
	key.Year = year
	key.IndicatorType = it
	return model.FlowRecord{FlowKey: key, Value: value}
}

// LinearTrend fits value on year by least squares over the years_back years
// ending at base, per country and counterpart type, and predicts the
// years_forward years after base. Groups with fewer than two points in the
// window get no prediction. Negative predictions are clamped to zero. The
// output holds the full grouped history followed by the predictions, all
// tagged as inflows.
func LinearTrend(records []model.FlowRecord, base, yearsBack, yearsForward int) []model.FlowRecord {
	full := byProjectionDims(records)
	from := base - yearsBack + 1

	var predictions []model.FlowRecord
	for _, s := range groupSeries(full) {
		var xs, ys []float64
		for i, year := range s.years {
			if year >= from && year <= base {
				xs = append(xs, float64(year))
				ys = append(ys, s.values[i])
			}
		}
		if len(xs) < minPoints {
			continue
		}
		slope, intercept := OLS(xs, ys)
		for year := base + 1; year <= base+yearsForward; year++ {
			value := intercept + slope*float64(year)
			if value < 0 {
				value = 0
			}
			predictions = append(predictions, point(s.key, year, value, model.IndicatorInflow))
		}
	}

	out := flows.Map(full, func(r model.FlowRecord) model.FlowRecord {
		r.IndicatorType = model.IndicatorInflow
		return r
	})
	return flows.Concat(out, predictions)
}

// OLS returns slope and intercept of the least squares line through the
// points. A single distinct x gives a flat line through the mean.
func OLS(xs, ys []float64) (slope, intercept float64) {
	n := float64(len(xs))
	if n == 0 {
		return 0, 0
	}
	var meanX, meanY float64
	for i := range xs {
		meanX += xs[i]
		meanY += ys[i]
	}
	meanX /= n
	meanY /= n

	var sxy, sxx float64
	for i := range xs {
		dx := xs[i] - meanX
		sxy += dx * (ys[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, meanY
	}
	slope = sxy / sxx
	return slope, meanY - slope*meanX
}

// Rolling projects each group flat at its trailing rolling mean as of the
// base year. The output holds the full grouped history followed by the
// projections, all tagged as inflows.
func Rolling(records []model.FlowRecord, base, window, yearsForward int) []model.FlowRecord {
	full := byProjectionDims(records)

	var predictions []model.FlowRecord
	for _, s := range groupSeries(full) {
		var values []float64
		for i, year := range s.years {
			if year <= base {
				values = append(values, s.values[i])
			}
		}
		if len(values) == 0 {
			continue
		}
		level := trailingMean(values, window)
		for year := base + 1; year <= base+yearsForward; year++ {
			predictions = append(predictions, point(s.key, year, level, model.IndicatorInflow))
		}
	}

	out := flows.Map(full, func(r model.FlowRecord) model.FlowRecord {
		r.IndicatorType = model.IndicatorInflow
		return r
	})
	return flows.Concat(out, predictions)
}

func trailingMean(values []float64, window int) float64 {
	if len(values) > window {
		values = values[len(values)-window:]
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// Outflows prepares debt service, including contracted future years, as
// negative outflows by country and counterpart type. Years after base that
// have no contracted amount carry the latest earlier value forward.
func Outflows(debtService []model.FlowRecord, base, yearsForward int) []model.FlowRecord {
	prepared := flows.RenameIndicators(flows.NegateOutflows(flows.PrepFlows(debtService)), "")
	prepared = flows.AddChinaAsCounterpartType(prepared)
	grouped := byProjectionDims(prepared)
	grouped = flows.ExcludeOutlierCountries(grouped)

	var out []model.FlowRecord
	for _, s := range groupSeries(grouped) {
		have := make(map[int]bool, len(s.years))
		for i, year := range s.years {
			have[year] = true
			out = append(out, point(s.key, year, s.values[i], model.IndicatorOutflow))
		}
		last, ok := 0.0, false
		for year := base + 1; year <= base+yearsForward; year++ {
			for i, y := range s.years {
				if y < year {
					last, ok = s.values[i], true
				}
			}
			if have[year] || !ok {
				continue
			}
			out = append(out, point(s.key, year, last, model.IndicatorOutflow))
		}
	}
	return out
}

// NetFlows adds projected inflows and outflows per country and year. The
// value is the net flow.
func NetFlows(inflows, outflows []model.FlowRecord) []model.FlowRecord {
	combined := flows.Concat(inflows, outflows)
	net := flows.Sum(flows.Map(combined, func(r model.FlowRecord) model.FlowRecord {
		r.FlowKey = r.FlowKey.Only(model.DimYear, model.DimCountry, model.DimContinent, model.DimIncomeLevel)
		return r
	}))
	return flows.Map(net, func(r model.FlowRecord) model.FlowRecord {
		r.IndicatorType = model.IndicatorNetFlow
		return r
	})
}

// Inflows projects inflows with the configured strategy.
func (e *Engine) Inflows(records []model.FlowRecord) []model.FlowRecord {
	c := e.config
	if c.Strategy == StrategyRolling {
		return Rolling(records, c.BaseYear, c.RollingWindow, c.YearsForward)
	}
	return LinearTrend(records, c.BaseYear, c.YearsBack, c.YearsForward)
}

// Result holds projected net flows after the base year.
type Result struct {
	Countries []model.FlowRecord
	Groups    []model.FlowRecord
}

// Run projects net flows from historical flows (inflows positive, outflows
// negative) and the debt service schedule.
func (e *Engine) Run(allFlows, debtService []model.FlowRecord) Result {
	data := flows.ExcludeCountriesWithoutOutflows(flows.ExcludeOutlierCountries(allFlows))
	data = flows.Filter(data, func(r model.FlowRecord) bool { return r.IndicatorType == model.IndicatorInflow })
	data = flows.AddChinaAsCounterpartType(data)

	inflows := e.Inflows(data)
	outflows := Outflows(debtService, e.config.BaseYear, e.config.YearsForward)
	net := NetFlows(inflows, outflows)

	base := e.config.BaseYear
	projected := flows.Filter(net, func(r model.FlowRecord) bool { return r.Year > base })
	groups := flows.ReorderCountries(flows.CreateGroupings(projected))

	e.logger.Info("projected net flows",
		zap.String("strategy", e.config.Strategy),
		zap.Int("base_year", base),
		zap.Int("country_rows", len(projected)),
		zap.Int("group_rows", len(groups)))
	return Result{Countries: projected, Groups: groups}
}
