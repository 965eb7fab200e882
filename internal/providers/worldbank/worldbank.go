package worldbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"netflows/internal/config"
	"netflows/internal/model"
	"netflows/internal/providers"
)

const (
	defaultBaseURL        = "https://api.worldbank.org/v2/"
	defaultDebtPath       = "sources/{source}/country/all/series/{series}/counterpart-area/all/time/{time}"
	defaultIndicatorPath  = "country/all/indicator/{indicator}"
	defaultDebtSource     = "6"
	defaultPerPage        = 1000
	defaultRetries        = 2
	defaultRetryDelay     = 10 * time.Second
	defaultTimeoutSeconds = 60
	defaultRateLimit      = 5
)

var ErrNoRecords = errors.New("worldbank: no records found")

type Config struct {
	BaseURL       string
	DebtPath      string
	IndicatorPath string
	DebtSource    string
	PerPage       int
	UserAgent     string
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
	RateLimit     int
}

func ConfigFromSettings(s config.HTTPConfig) Config {
	return Config{
		BaseURL:    s.BaseURL,
		PerPage:    s.PerPage,
		UserAgent:  s.UserAgent,
		Timeout:    s.Timeout,
		Retries:    s.Retries,
		RetryDelay: s.RetryDelay,
		RateLimit:  s.RateLimit,
	}
}

type Provider struct {
	config  Config
	fetcher *providers.Fetcher
	logger  *zap.Logger
}

func New(logger *zap.Logger) (*Provider, error) {
	return NewWithConfig(Config{
		BaseURL:    defaultBaseURL,
		Retries:    defaultRetries,
		RetryDelay: defaultRetryDelay,
	}, logger)
}

func NewWithConfig(cfg Config, logger *zap.Logger) (*Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("worldbank: base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.DebtPath) == "" {
		cfg.DebtPath = defaultDebtPath
	}
	if strings.TrimSpace(cfg.IndicatorPath) == "" {
		cfg.IndicatorPath = defaultIndicatorPath
	}
	if strings.TrimSpace(cfg.DebtSource) == "" {
		cfg.DebtSource = defaultDebtSource
	}
	if cfg.PerPage <= 0 {
		cfg.PerPage = defaultPerPage
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fetcher := providers.NewFetcher(providers.FetcherConfig{
		Source:     "worldbank",
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout,
		Retries:    cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		RateLimit:  cfg.RateLimit,
	}, logger)
	return &Provider{config: cfg, fetcher: fetcher, logger: logger}, nil
}

func (p *Provider) Name() string {
	return "worldbank"
}

// FetchDebt downloads one International Debt Statistics series for every
// debtor and counterpart area over the inclusive year range.
func (p *Provider) FetchDebt(ctx context.Context, series string, from, to int) ([]model.DebtObservation, error) {
	if from > to {
		return nil, fmt.Errorf("worldbank: invalid year range %d-%d", from, to)
	}
	path := strings.NewReplacer(
		"{source}", url.PathEscape(p.config.DebtSource),
		"{series}", url.PathEscape(series),
		"{time}", yearSpan(from, to),
	).Replace(p.config.DebtPath)

	var out []model.DebtObservation
	for page := 1; ; page++ {
		body, err := p.fetcher.Get(ctx, p.buildURL(path, nil, page), "application/json")
		if err != nil {
			return nil, err
		}
		rows, pages, err := parseDebtPage(body, series)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		p.logger.Debug("debt page fetched",
			zap.String("series", series),
			zap.Int("page", page),
			zap.Int("pages", pages),
			zap.Int("rows", len(rows)))
		if page >= pages {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

// FetchIndicator downloads a World Development Indicators series for all
// economies. Rows without an ISO3 code or a value are skipped.
func (p *Provider) FetchIndicator(ctx context.Context, indicator string, from, to int) ([]model.SeriesValue, error) {
	if from > to {
		return nil, fmt.Errorf("worldbank: invalid year range %d-%d", from, to)
	}
	path := strings.ReplaceAll(p.config.IndicatorPath, "{indicator}", url.PathEscape(indicator))
	params := url.Values{}
	params.Set("date", fmt.Sprintf("%d:%d", from, to))

	var out []model.SeriesValue
	for page := 1; ; page++ {
		body, err := p.fetcher.Get(ctx, p.buildURL(path, params, page), "application/json")
		if err != nil {
			return nil, err
		}
		rows, pages, err := parseIndicatorPage(body, indicator)
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
		if page >= pages {
			break
		}
	}
	if len(out) == 0 {
		return nil, ErrNoRecords
	}
	return out, nil
}

func (p *Provider) buildURL(path string, params url.Values, page int) string {
	query := url.Values{}
	for key, values := range params {
		for _, value := range values {
			query.Add(key, value)
		}
	}
	query.Set("format", "json")
	query.Set("per_page", strconv.Itoa(p.config.PerPage))
	query.Set("page", strconv.Itoa(page))
	return p.config.BaseURL + strings.TrimLeft(path, "/") + "?" + query.Encode()
}

func yearSpan(from, to int) string {
	years := make([]string, 0, to-from+1)
	for year := from; year <= to; year++ {
		years = append(years, "YR"+strconv.Itoa(year))
	}
	return strings.Join(years, ";")
}

type apiMessage struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Value string `json:"value"`
}

type pageMeta struct {
	Page    json.Number  `json:"page"`
	Pages   json.Number  `json:"pages"`
	Total   json.Number  `json:"total"`
	Message []apiMessage `json:"message"`
}

func (m pageMeta) err() error {
	if len(m.Message) == 0 {
		return nil
	}
	msg := m.Message[0]
	return fmt.Errorf("worldbank: api error %s: %s %s", msg.ID, msg.Key, strings.TrimSpace(msg.Value))
}

func (m pageMeta) pageCount() int {
	pages, err := m.Pages.Int64()
	if err != nil || pages < 1 {
		return 1
	}
	return int(pages)
}

type debtPage struct {
	pageMeta
	Source json.RawMessage `json:"source"`
}

type debtSource struct {
	Data []debtDatum `json:"data"`
}

type debtDatum struct {
	Variable []debtVariable `json:"variable"`
	Value    *json.Number   `json:"value"`
}

type debtVariable struct {
	Concept string `json:"concept"`
	ID      string `json:"id"`
	Value   string `json:"value"`
}

func parseDebtPage(body []byte, series string) ([]model.DebtObservation, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var metas []pageMeta
		if err := decode(trimmed, &metas); err != nil {
			return nil, 0, fmt.Errorf("worldbank: decode debt page: %w", err)
		}
		if len(metas) > 0 {
			if err := metas[0].err(); err != nil {
				return nil, 0, err
			}
		}
		return nil, 0, errors.New("worldbank: unexpected debt response shape")
	}

	var page debtPage
	if err := decode(trimmed, &page); err != nil {
		return nil, 0, fmt.Errorf("worldbank: decode debt page: %w", err)
	}
	if err := page.err(); err != nil {
		return nil, 0, err
	}

	sources, err := decodeSources(page.Source)
	if err != nil {
		return nil, 0, err
	}

	var out []model.DebtObservation
	for _, source := range sources {
		for _, datum := range source.Data {
			if datum.Value == nil {
				continue
			}
			value, err := datum.Value.Float64()
			if err != nil {
				continue
			}
			obs := model.DebtObservation{Series: series, Value: value}
			for _, v := range datum.Variable {
				switch strings.ToLower(v.Concept) {
				case "country":
					obs.CountryCode, obs.Country = v.ID, v.Value
				case "counterpart-area":
					obs.CounterpartCode, obs.CounterpartArea = v.ID, v.Value
				case "series":
					if v.ID != "" {
						obs.Series = v.ID
					}
				case "time":
					obs.Year = parseYear(v.ID, v.Value)
				}
			}
			if obs.Year == 0 || obs.Country == "" {
				continue
			}
			out = append(out, obs)
		}
	}
	return out, page.pageCount(), nil
}

// decodeSources accepts both the object and the single-element array forms
// the API uses for the "source" member.
func decodeSources(raw json.RawMessage) ([]debtSource, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var sources []debtSource
		if err := decode(raw, &sources); err != nil {
			return nil, fmt.Errorf("worldbank: decode source list: %w", err)
		}
		return sources, nil
	}
	var source debtSource
	if err := decode(raw, &source); err != nil {
		return nil, fmt.Errorf("worldbank: decode source: %w", err)
	}
	return []debtSource{source}, nil
}

type indicatorRow struct {
	Country struct {
		ID    string `json:"id"`
		Value string `json:"value"`
	} `json:"country"`
	CountryISO3 string       `json:"countryiso3code"`
	Date        string       `json:"date"`
	Value       *json.Number `json:"value"`
}

func parseIndicatorPage(body []byte, indicator string) ([]model.SeriesValue, int, error) {
	var parts []json.RawMessage
	if err := decode(body, &parts); err != nil {
		return nil, 0, fmt.Errorf("worldbank: decode indicator page: %w", err)
	}
	if len(parts) == 0 {
		return nil, 0, errors.New("worldbank: empty indicator response")
	}
	var meta pageMeta
	if err := decode(parts[0], &meta); err != nil {
		return nil, 0, fmt.Errorf("worldbank: decode indicator meta: %w", err)
	}
	if err := meta.err(); err != nil {
		return nil, 0, err
	}
	if len(parts) < 2 {
		return nil, meta.pageCount(), nil
	}

	var rows []indicatorRow
	if err := decode(parts[1], &rows); err != nil {
		return nil, 0, fmt.Errorf("worldbank: decode indicator rows: %w", err)
	}
	out := make([]model.SeriesValue, 0, len(rows))
	for _, row := range rows {
		iso := strings.ToUpper(strings.TrimSpace(row.CountryISO3))
		if iso == "" || row.Value == nil {
			continue
		}
		value, err := row.Value.Float64()
		if err != nil {
			continue
		}
		year := parseYear(row.Date, "")
		if year == 0 {
			continue
		}
		out = append(out, model.SeriesValue{Series: indicator, ISOCode: iso, Year: year, Value: value})
	}
	return out, meta.pageCount(), nil
}

func parseYear(values ...string) int {
	for _, value := range values {
		value = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(value)), "YR")
		if len(value) != 4 {
			continue
		}
		if year, err := strconv.Atoi(value); err == nil {
			return year
		}
	}
	return 0
}

func decode(body []byte, dest any) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	return decoder.Decode(dest)
}

var (
	_ providers.DebtSource      = (*Provider)(nil)
	_ providers.IndicatorSource = (*Provider)(nil)
)
