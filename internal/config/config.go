// Package config loads the aggregator configuration from a YAML file, an
// optional .env file and OVERDOSE_* environment variables, in that order of
// increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"overdose-pipeline/internal/export"
	"overdose-pipeline/internal/repository"
	"overdose-pipeline/internal/services"
	"overdose-pipeline/pkg/database"
	"overdose-pipeline/pkg/logging"
)

// Source kinds
const (
	SourceCSV = "csv"
	SourceSQL = "sql"
)

const envPrefix = "OVERDOSE_"

// DefaultConfigFile is read when no path is given and the file exists
const DefaultConfigFile = "config.yaml"

type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Source   SourceConfig   `yaml:"source"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Output   OutputConfig   `yaml:"output"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type SourceConfig struct {
	Kind     string         `yaml:"kind"`
	Encoding string         `yaml:"encoding"`
	CSV      TableNames     `yaml:"csv"`
	Tables   TableNames     `yaml:"tables"`
	Database DatabaseConfig `yaml:"database"`
}

// TableNames maps each source table to a CSV path or SQL table name
type TableNames struct {
	Cases        string `yaml:"cases"`
	Jurisdiction string `yaml:"jurisdiction"`
	Drugs        string `yaml:"drugs"`
	DrugTypes    string `yaml:"drug_types"`
}

type DatabaseConfig struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Database        string        `yaml:"database"`
	SSLMode         string        `yaml:"sslmode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
}

type PipelineConfig struct {
	Workers    int      `yaml:"workers"`
	TopN       int      `yaml:"top_n"`
	ZipYearMin int      `yaml:"zip_year_min"`
	ZipYearMax int      `yaml:"zip_year_max"`
	FacetYears []int    `yaml:"facet_years"`
	Charts     []string `yaml:"charts"`
}

type OutputConfig struct {
	Dir     string   `yaml:"dir"`
	Formats []string `yaml:"formats"`
}

type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
	Textfile  string `yaml:"textfile"`
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	params := services.DefaultParams()
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Source: SourceConfig{
			Kind:     SourceCSV,
			Encoding: "utf-8",
			CSV: TableNames{
				Cases:        "data/overdose_cases.csv",
				Jurisdiction: "data/allegheny_cases.csv",
				Drugs:        "data/overdose_drugs.csv",
				DrugTypes:    "data/overdose_drug_types.csv",
			},
			Tables: TableNames{
				Cases:        "overdose_cases",
				Jurisdiction: "allegheny_cases",
				Drugs:        "overdose_drugs",
				DrugTypes:    "overdose_cases",
			},
			Database: DatabaseConfig{
				Driver:          database.DriverPostgres,
				Host:            "localhost",
				Port:            5432,
				SSLMode:         "disable",
				MaxOpenConns:    4,
				MaxIdleConns:    2,
				ConnMaxLifetime: 5 * time.Minute,
				ConnMaxIdleTime: time.Minute,
			},
		},
		Pipeline: PipelineConfig{
			Workers:    4,
			TopN:       params.TopN,
			ZipYearMin: params.ZipYearMin,
			ZipYearMax: params.ZipYearMax,
			FacetYears: params.FacetYears,
		},
		Output: OutputConfig{
			Dir:     "out",
			Formats: []string{export.FormatJSON},
		},
		Metrics: MetricsConfig{
			Namespace: "overdose_pipeline",
		},
	}
}

// LoadConfig builds the configuration. path may be empty, in which case
// config.yaml is used when present. A .env file in the working directory is
// loaded without overriding variables already set.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			path = DefaultConfigFile
		}
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(envPrefix + key)
		if !ok {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, key, err)
		}
		*dst = n
		return nil
	}
	list := func(key string, dst *[]string) {
		if v, ok := lookup(envPrefix + key); ok {
			*dst = splitList(v)
		}
	}

	str("LOG_LEVEL", &c.Logging.Level)
	str("SOURCE_KIND", &c.Source.Kind)
	str("SOURCE_ENCODING", &c.Source.Encoding)
	str("CSV_CASES", &c.Source.CSV.Cases)
	str("CSV_JURISDICTION", &c.Source.CSV.Jurisdiction)
	str("CSV_DRUGS", &c.Source.CSV.Drugs)
	str("CSV_DRUG_TYPES", &c.Source.CSV.DrugTypes)
	str("DB_DRIVER", &c.Source.Database.Driver)
	str("DB_DSN", &c.Source.Database.DSN)
	str("DB_HOST", &c.Source.Database.Host)
	str("DB_USER", &c.Source.Database.User)
	str("DB_PASSWORD", &c.Source.Database.Password)
	str("DB_NAME", &c.Source.Database.Database)
	str("DB_SSLMODE", &c.Source.Database.SSLMode)
	str("OUTPUT_DIR", &c.Output.Dir)
	str("METRICS_TEXTFILE", &c.Metrics.Textfile)
	list("OUTPUT_FORMATS", &c.Output.Formats)
	list("CHARTS", &c.Pipeline.Charts)

	if err := num("DB_PORT", &c.Source.Database.Port); err != nil {
		return err
	}
	if err := num("WORKERS", &c.Pipeline.Workers); err != nil {
		return err
	}
	return num("TOP_N", &c.Pipeline.TopN)
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level))
	}

	switch c.Source.Kind {
	case SourceCSV:
		if _, err := repository.LookupEncoding(c.Source.Encoding); err != nil {
			errs = append(errs, err)
		}
		if len(c.CSVPaths()) == 0 {
			errs = append(errs, errors.New("source.csv: at least one table path is required"))
		}
	case SourceSQL:
		if _, err := c.DatabaseConfig().BuildDSN(); err != nil {
			errs = append(errs, fmt.Errorf("source.database: %w", err))
		}
		if len(c.SQLTables()) == 0 {
			errs = append(errs, errors.New("source.tables: at least one table name is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("source.kind must be %q or %q, got %q", SourceCSV, SourceSQL, c.Source.Kind))
	}

	if c.Pipeline.Workers < 1 {
		errs = append(errs, errors.New("pipeline.workers must be at least 1"))
	}
	if c.Pipeline.TopN < 1 {
		errs = append(errs, errors.New("pipeline.top_n must be at least 1"))
	}
	if c.Pipeline.ZipYearMin > c.Pipeline.ZipYearMax {
		errs = append(errs, errors.New("pipeline.zip_year_min must not exceed zip_year_max"))
	}
	if len(c.Pipeline.FacetYears) == 0 {
		errs = append(errs, errors.New("pipeline.facet_years must not be empty"))
	}
	if _, err := services.SelectCharts(c.Pipeline.Charts); err != nil {
		errs = append(errs, fmt.Errorf("pipeline.charts: %w", err))
	}

	if c.Output.Dir == "" {
		errs = append(errs, errors.New("output.dir is required"))
	}
	if _, err := export.ParseFormats(c.Output.Formats); err != nil {
		errs = append(errs, fmt.Errorf("output.formats: %w", err))
	}
	if c.Metrics.Namespace == "" {
		errs = append(errs, errors.New("metrics.namespace is required"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// LogLevel returns the configured logging level
func (c *Config) LogLevel() logging.LogLevel {
	return logging.ParseLevel(c.Logging.Level)
}

// DatabaseConfig converts the SQL source section for pkg/database
func (c *Config) DatabaseConfig() *database.Config {
	db := c.Source.Database
	return &database.Config{
		Driver:          db.Driver,
		DSN:             db.DSN,
		Host:            db.Host,
		Port:            db.Port,
		User:            db.User,
		Password:        db.Password,
		Database:        db.Database,
		SSLMode:         db.SSLMode,
		MaxOpenConns:    db.MaxOpenConns,
		MaxIdleConns:    db.MaxIdleConns,
		ConnMaxLifetime: db.ConnMaxLifetime,
		ConnMaxIdleTime: db.ConnMaxIdleTime,
	}
}

// CSVPaths returns the configured CSV file per source table
func (c *Config) CSVPaths() map[repository.SourceKind]string {
	return c.Source.CSV.byKind()
}

// SQLTables returns the configured SQL table per source table
func (c *Config) SQLTables() map[repository.SourceKind]string {
	return c.Source.Tables.byKind()
}

func (t TableNames) byKind() map[repository.SourceKind]string {
	out := make(map[repository.SourceKind]string)
	for kind, v := range map[repository.SourceKind]string{
		repository.SourceCases:        t.Cases,
		repository.SourceJurisdiction: t.Jurisdiction,
		repository.SourceDrugs:        t.Drugs,
		repository.SourceDrugTypes:    t.DrugTypes,
	} {
		if v != "" {
			out[kind] = v
		}
	}
	return out
}

// Params returns the chart recipe parameters
func (c *Config) Params() services.Params {
	return services.Params{
		TopN:       c.Pipeline.TopN,
		ZipYearMin: c.Pipeline.ZipYearMin,
		ZipYearMax: c.Pipeline.ZipYearMax,
		FacetYears: c.Pipeline.FacetYears,
	}
}
