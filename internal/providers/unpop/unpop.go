package unpop

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

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"netflows/internal/config"
	"netflows/internal/model"
	"netflows/internal/providers"
)

const (
	defaultBaseURL        = "https://population.un.org/dataportalapi/api/v1/"
	defaultLocationsPath  = "locations"
	defaultDataPath       = "data/indicators/{indicator}/locations/{locations}"
	defaultPageSize       = 100
	defaultBatches        = 3
	defaultRetries        = 2
	defaultRetryDelay     = 10 * time.Second
	defaultTimeoutSeconds = 60
)

var ErrNoData = errors.New("unpop: no population data in response")

type Config struct {
	BaseURL       string
	LocationsPath string
	DataPath      string
	PageSize      int
	Batches       int
	UserAgent     string
	Timeout       time.Duration
	Retries       int
	RetryDelay    time.Duration
	RateLimit     int
}

func ConfigFromSettings(s config.HTTPConfig) Config {
	return Config{
		BaseURL:    s.BaseURL,
		PageSize:   s.PerPage,
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
		return nil, errors.New("unpop: base url is required")
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	if strings.TrimSpace(cfg.LocationsPath) == "" {
		cfg.LocationsPath = defaultLocationsPath
	}
	if strings.TrimSpace(cfg.DataPath) == "" {
		cfg.DataPath = defaultDataPath
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Batches <= 0 {
		cfg.Batches = defaultBatches
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeoutSeconds * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	fetcher := providers.NewFetcher(providers.FetcherConfig{
		Source:     "unpop",
		UserAgent:  cfg.UserAgent,
		Timeout:    cfg.Timeout,
		Retries:    cfg.Retries,
		RetryDelay: cfg.RetryDelay,
		RateLimit:  cfg.RateLimit,
	}, logger)
	return &Provider{config: cfg, fetcher: fetcher, logger: logger}, nil
}

func (p *Provider) Name() string {
	return "unpop"
}

type locationRow struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
	ISO3 string      `json:"iso3"`
}

func (p *Provider) ListLocations(ctx context.Context) ([]model.Location, error) {
	params := url.Values{}
	params.Set("pageSize", strconv.Itoa(p.config.PageSize))
	endpoint := p.config.BaseURL + strings.Trim(p.config.LocationsPath, "/") + "/?" + params.Encode()

	var out []model.Location
	err := p.walk(ctx, endpoint, func(raw json.RawMessage) error {
		var rows []locationRow
		if err := decode(raw, &rows); err != nil {
			return fmt.Errorf("unpop: decode locations: %w", err)
		}
		for _, row := range rows {
			id, err := row.ID.Int64()
			if err != nil {
				continue
			}
			out = append(out, model.Location{ID: int(id), Name: row.Name, ISO3: strings.ToUpper(row.ISO3)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type populationRow struct {
	LocationID   json.Number `json:"locationId"`
	Location     string      `json:"location"`
	ISO3         string      `json:"iso3"`
	IndicatorID  json.Number `json:"indicatorId"`
	Indicator    string      `json:"indicator"`
	Variant      string      `json:"variant"`
	VariantLabel string      `json:"variantLabel"`
	TimeLabel    string      `json:"timeLabel"`
	Sex          string      `json:"sex"`
	AgeStart     json.Number `json:"ageStart"`
	AgeEnd       json.Number `json:"ageEnd"`
	Value        json.Number `json:"value"`
}

// FetchPopulation downloads the query for its locations, split into the
// configured number of batches so each URL stays short.
func (p *Provider) FetchPopulation(ctx context.Context, query providers.PopulationQuery) ([]model.PopulationRecord, error) {
	if len(query.Locations) == 0 {
		return nil, errors.New("unpop: no locations requested")
	}
	var out []model.PopulationRecord
	for i, batch := range SplitBatches(query.Locations, p.config.Batches) {
		if len(batch) == 0 {
			continue
		}
		endpoint := p.dataURL(query, batch)
		p.logger.Info("downloading population batch",
			zap.Int("batch", i+1),
			zap.Int("locations", len(batch)),
			zap.Int("indicator", query.Indicator))
		err := p.walk(ctx, endpoint, func(raw json.RawMessage) error {
			var rows []populationRow
			if err := decode(raw, &rows); err != nil {
				return fmt.Errorf("unpop: decode population: %w", err)
			}
			for _, row := range rows {
				out = append(out, row.record())
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r populationRow) record() model.PopulationRecord {
	value, _ := r.Value.Float64()
	return model.PopulationRecord{
		LocationID:   numberInt(r.LocationID),
		Location:     r.Location,
		ISO3:         strings.ToUpper(r.ISO3),
		IndicatorID:  numberInt(r.IndicatorID),
		Indicator:    r.Indicator,
		Variant:      r.Variant,
		VariantLabel: r.VariantLabel,
		TimeLabel:    r.TimeLabel,
		Sex:          r.Sex,
		AgeStart:     numberInt(r.AgeStart),
		AgeEnd:       numberInt(r.AgeEnd),
		Value:        value,
	}
}

func (p *Provider) dataURL(query providers.PopulationQuery, locations []int) string {
	ids := make([]string, len(locations))
	for i, id := range locations {
		ids[i] = strconv.Itoa(id)
	}
	path := strings.NewReplacer(
		"{indicator}", strconv.Itoa(query.Indicator),
		"{locations}", strings.Join(ids, ","),
	).Replace(p.config.DataPath)

	params := url.Values{}
	params.Set("startYear", strconv.Itoa(query.StartYear))
	params.Set("endYear", strconv.Itoa(query.EndYear))
	params.Set("startAge", strconv.Itoa(query.StartAge))
	params.Set("endAge", strconv.Itoa(query.EndAge))
	params.Set("sexes", strconv.Itoa(query.Sexes))
	params.Set("variants", strconv.Itoa(query.Variants))
	params.Set("pageSize", strconv.Itoa(p.config.PageSize))
	return p.config.BaseURL + strings.TrimLeft(path, "/") + "?" + params.Encode()
}

type envelope struct {
	Data     json.RawMessage `json:"data"`
	NextPage *string         `json:"nextPage"`
}

// walk fetches endpoint and every nextPage link after it until the link is
// null, handing each page's data array to visit.
func (p *Provider) walk(ctx context.Context, endpoint string, visit func(json.RawMessage) error) error {
	for endpoint != "" {
		body, err := p.fetcher.Get(ctx, endpoint, "application/json")
		if err != nil {
			return err
		}
		payload, err := ExtractJSON(body)
		if err != nil {
			return err
		}
		var page envelope
		if err := decode(payload, &page); err != nil {
			return fmt.Errorf("unpop: decode page: %w", err)
		}
		if len(page.Data) == 0 {
			return ErrNoData
		}
		if err := visit(page.Data); err != nil {
			return err
		}
		endpoint = ""
		if page.NextPage != nil {
			endpoint = strings.TrimSpace(*page.NextPage)
		}
	}
	return nil
}

// ExtractJSON returns the JSON document in body. The portal sometimes serves
// the payload as an HTML page with the document inside a <pre> element.
func ExtractJSON(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrNoData
	}
	if trimmed[0] == '{' || trimmed[0] == '[' {
		return trimmed, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(trimmed))
	if err != nil {
		return nil, fmt.Errorf("unpop: parse html: %w", err)
	}
	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		return nil, ErrNoData
	}
	text := strings.TrimSpace(pre.Text())
	if text == "" {
		return nil, ErrNoData
	}
	return []byte(text), nil
}

// SplitBatches splits ids into n parts whose sizes differ by at most one,
// larger parts first.
func SplitBatches(ids []int, n int) [][]int {
	if n <= 0 {
		n = 1
	}
	size, rem := len(ids)/n, len(ids)%n
	out := make([][]int, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		out = append(out, ids[start:end])
		start = end
	}
	return out
}

func numberInt(n json.Number) int {
	if v, err := n.Int64(); err == nil {
		return int(v)
	}
	if f, err := n.Float64(); err == nil {
		return int(f)
	}
	return 0
}

func decode(body []byte, dest any) error {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	return decoder.Decode(dest)
}

var _ providers.PopulationSource = (*Provider)(nil)
