package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultRawDataDir       = "raw_data"
	defaultOutputDir        = "output"
	defaultDatabaseFile     = "flows.db"
	defaultStartYear        = 2000
	defaultEndYear          = 2022
	defaultConstantBaseYear = 2022
	defaultDebtServiceTo    = 2025
	defaultStrategy         = "linear"
	defaultYearsBack        = 3
	defaultYearsForward     = 3
	defaultRollingWindow    = 2
	defaultLogLevel         = "info"
	defaultWorldBankURL     = "https://api.worldbank.org/v2/"
	defaultUNPopulationURL  = "https://population.un.org/dataportalapi/api/v1/"
	defaultUserAgent        = "netflows/0.1"
	defaultTimeoutSeconds   = 60
	defaultRetries          = 2
	defaultRetryDelay       = 10 * time.Second
	defaultPerPage          = 1000
	defaultRateLimitPerSec  = 5
	defaultDAC2aFile        = "Table2a_Data.csv"
	defaultGrantsAidType    = "240"
	defaultGDPSeries        = "NY.GDP.MKTP.CD"
	defaultDeflatorSeries   = "NY.GDP.DEFL.ZS.AD"
)

type Config struct {
	Paths      PathsConfig      `yaml:"paths"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Projection ProjectionConfig `yaml:"projection"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type PathsConfig struct {
	RawData  string `yaml:"raw_data"`
	Output   string `yaml:"output"`
	Database string `yaml:"database"`
}

type AnalysisConfig struct {
	StartYear        int    `yaml:"start_year"`
	EndYear          int    `yaml:"end_year"`
	ConstantBaseYear int    `yaml:"constant_base_year"`
	DebtServiceTo    int    `yaml:"debt_service_to"`
	GDPSeries        string `yaml:"gdp_series"`
	DeflatorSeries   string `yaml:"deflator_series"`
}

type ProjectionConfig struct {
	Strategy      string `yaml:"strategy"`
	BaseYear      int    `yaml:"base_year"`
	YearsBack     int    `yaml:"years_back"`
	YearsForward  int    `yaml:"years_forward"`
	RollingWindow int    `yaml:"rolling_window"`
}

type ProvidersConfig struct {
	WorldBank    HTTPConfig `yaml:"worldbank"`
	UNPopulation HTTPConfig `yaml:"un_population"`
	DAC2aFile    string     `yaml:"dac2a_file"`
	GrantsAid    string     `yaml:"grants_aid_type"`
}

type HTTPConfig struct {
	BaseURL    string        `yaml:"base_url"`
	UserAgent  string        `yaml:"user_agent"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
	PerPage    int           `yaml:"per_page"`
	RateLimit  int           `yaml:"rate_limit_per_sec"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

func Default() Config {
	httpDefaults := HTTPConfig{
		UserAgent:  defaultUserAgent,
		Timeout:    defaultTimeoutSeconds * time.Second,
		Retries:    defaultRetries,
		RetryDelay: defaultRetryDelay,
		PerPage:    defaultPerPage,
		RateLimit:  defaultRateLimitPerSec,
	}
	worldBank := httpDefaults
	worldBank.BaseURL = defaultWorldBankURL
	unPopulation := httpDefaults
	unPopulation.BaseURL = defaultUNPopulationURL
	unPopulation.PerPage = 100

	return Config{
		Paths: PathsConfig{
			RawData:  defaultRawDataDir,
			Output:   defaultOutputDir,
			Database: filepath.Join(defaultRawDataDir, defaultDatabaseFile),
		},
		Analysis: AnalysisConfig{
			StartYear:        defaultStartYear,
			EndYear:          defaultEndYear,
			ConstantBaseYear: defaultConstantBaseYear,
			DebtServiceTo:    defaultDebtServiceTo,
			GDPSeries:        defaultGDPSeries,
			DeflatorSeries:   defaultDeflatorSeries,
		},
		Projection: ProjectionConfig{
			Strategy:      defaultStrategy,
			BaseYear:      defaultEndYear,
			YearsBack:     defaultYearsBack,
			YearsForward:  defaultYearsForward,
			RollingWindow: defaultRollingWindow,
		},
		Providers: ProvidersConfig{
			WorldBank:    worldBank,
			UNPopulation: unPopulation,
			DAC2aFile:    defaultDAC2aFile,
			GrantsAid:    defaultGrantsAidType,
		},
		Logging: LoggingConfig{
			Level: defaultLogLevel,
		},
	}
}

// Load reads a YAML file over the defaults and applies environment overrides.
// An empty path means defaults plus environment only.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	c.Paths.RawData = getenv("NETFLOWS_RAW_DATA", c.Paths.RawData)
	c.Paths.Output = getenv("NETFLOWS_OUTPUT", c.Paths.Output)
	c.Paths.Database = getenv("NETFLOWS_DB", c.Paths.Database)
	c.Analysis.StartYear = getenvInt("NETFLOWS_START_YEAR", c.Analysis.StartYear)
	c.Analysis.EndYear = getenvInt("NETFLOWS_END_YEAR", c.Analysis.EndYear)
	c.Analysis.ConstantBaseYear = getenvInt("NETFLOWS_CONSTANT_BASE_YEAR", c.Analysis.ConstantBaseYear)
	c.Projection.Strategy = getenv("NETFLOWS_PROJECTION_STRATEGY", c.Projection.Strategy)
	c.Providers.WorldBank.BaseURL = getenv("WORLDBANK_BASE_URL", c.Providers.WorldBank.BaseURL)
	c.Providers.UNPopulation.BaseURL = getenv("UN_POPULATION_BASE_URL", c.Providers.UNPopulation.BaseURL)
	c.Logging.Level = getenv("NETFLOWS_LOG_LEVEL", c.Logging.Level)
	c.Logging.Development = getenvBool("NETFLOWS_LOG_DEVELOPMENT", c.Logging.Development)
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Paths.Output) == "" {
		errs = append(errs, errors.New("config: paths.output is required"))
	}
	if c.Analysis.StartYear <= 0 || c.Analysis.EndYear < c.Analysis.StartYear {
		errs = append(errs, fmt.Errorf("config: invalid analysis years %d-%d", c.Analysis.StartYear, c.Analysis.EndYear))
	}
	if c.Analysis.DebtServiceTo < c.Analysis.EndYear {
		errs = append(errs, fmt.Errorf("config: debt_service_to %d is before end_year %d", c.Analysis.DebtServiceTo, c.Analysis.EndYear))
	}
	switch c.Projection.Strategy {
	case "linear", "rolling":
	default:
		errs = append(errs, fmt.Errorf("config: unknown projection strategy %q", c.Projection.Strategy))
	}
	if c.Projection.YearsForward <= 0 {
		errs = append(errs, errors.New("config: projection.years_forward must be positive"))
	}
	if c.Projection.YearsBack < 2 && c.Projection.Strategy == "linear" {
		errs = append(errs, errors.New("config: projection.years_back must be at least 2 for a linear trend"))
	}
	return errors.Join(errs...)
}

// RawPath resolves a file name inside the raw data directory.
func (c Config) RawPath(name string) string {
	return filepath.Join(c.Paths.RawData, name)
}

// OutputPath resolves a file name inside the output directory.
func (c Config) OutputPath(name string) string {
	return filepath.Join(c.Paths.Output, name)
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	switch strings.ToLower(value) {
	case "1", "true", "yes", "y":
		return true
	case "0", "false", "no", "n":
		return false
	default:
		return fallback
	}
}
